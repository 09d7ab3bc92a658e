package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const ingressPathContextKey contextKey = "ingressPath"

// IngressPathHeader is set by the Home Assistant ingress proxy to the base
// path the add-on UI is served under.
const IngressPathHeader = "X-Ingress-Path"

// Ingress stores the ingress base path from the request header in the
// request context. Requests not coming through ingress get an empty path.
func Ingress(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := strings.TrimRight(r.Header.Get(IngressPathHeader), "/")
		ctx := context.WithValue(r.Context(), ingressPathContextKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IngressPath returns the path stored by Ingress, or "".
func IngressPath(r *http.Request) string {
	p, _ := r.Context().Value(ingressPathContextKey).(string)
	return p
}

// WithIngressPathForTest attaches an ingress path to the request context for testing.
func WithIngressPathForTest(r *http.Request, path string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), ingressPathContextKey, path))
}
