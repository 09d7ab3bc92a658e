package middleware

import (
	"bytes"
	"io/fs"
	"net/http"
	"strings"
)

// SPAHandler serves the built frontend, falling back to index.html for
// client-side routes. The index is rewritten so asset URLs resolve under the
// ingress base path.
type SPAHandler struct {
	fs        http.FileSystem
	indexHTML []byte
}

func NewSPAHandler(fsys fs.FS) *SPAHandler {
	index, _ := fs.ReadFile(fsys, "index.html")
	return &SPAHandler{
		fs:        http.FS(fsys),
		indexHTML: index,
	}
}

func (h *SPAHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.NotFound(w, r)
		return
	}

	if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/health" {
		http.NotFound(w, r)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/")
	if name != "" && name != "index.html" {
		if f, err := h.fs.Open(name); err == nil {
			defer f.Close()
			if stat, err := f.Stat(); err == nil && !stat.IsDir() {
				http.FileServer(h.fs).ServeHTTP(w, r)
				return
			}
		}
	}

	if h.indexHTML == nil {
		http.NotFound(w, r)
		return
	}

	index := h.indexHTML
	if base := IngressPath(r); base != "" {
		index = bytes.Replace(index, []byte(`<base href="/">`), []byte(`<base href="`+base+`/">`), 1)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(index)
}
