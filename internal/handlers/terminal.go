package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/hass-addons/claude-terminal/internal/logutil"
	"github.com/hass-addons/claude-terminal/internal/ptyproc"
	"github.com/hass-addons/claude-terminal/internal/termsession"
)

const (
	// MaxInputMessageSize bounds the data of one input message. Larger
	// messages are dropped.
	MaxInputMessageSize = 64 * 1024

	// terminalRateLimit is the sustained number of messages per second a
	// connection may send; terminalRateBurst allows short bursts such as pastes.
	terminalRateLimit = 100
	terminalRateBurst = 200

	// clientQueueSize is how many events may be pending for one connection
	// before it is considered too slow and disconnected.
	clientQueueSize = 4096

	wsWriteTimeout = 10 * time.Second
	wsReadLimit    = 1024 * 1024
)

// Close codes sent when a connection cannot be served.
const (
	closeMissingSession websocket.StatusCode = 4400
	closeUnknownSession websocket.StatusCode = 4404
	closeSessionFailed  websocket.StatusCode = 4500
	closeClientTooSlow  websocket.StatusCode = 4008
)

// clientMessage is anything the browser sends.
type clientMessage struct {
	Type string `json:"type"`
	Data string `json:"data"`
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
}

type sessionMessage struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Name  string `json:"name"`
	Alive bool   `json:"alive"`
}

type outputMessage struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type exitMessage struct {
	Type     string `json:"type"`
	ExitCode int    `json:"exitCode"`
}

type typeMessage struct {
	Type string `json:"type"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

var errClientOverflow = errors.New("client queue full")

// wsClient is the registry's view of one WebSocket connection. Send only
// enqueues, so it never blocks the session; a single writer goroutine drains
// the queue once the backlog has been replayed.
type wsClient struct {
	queue        chan termsession.Event
	overflow     chan struct{}
	overflowOnce sync.Once
}

func newWSClient() *wsClient {
	return &wsClient{
		queue:    make(chan termsession.Event, clientQueueSize),
		overflow: make(chan struct{}),
	}
}

func (c *wsClient) Send(ev termsession.Event) error {
	select {
	case c.queue <- ev:
		return nil
	default:
		c.overflowOnce.Do(func() { close(c.overflow) })
		return errClientOverflow
	}
}

// writeLoop relays queued events until the context ends, the session is
// destroyed or the connection fails.
func (c *wsClient) writeLoop(ctx context.Context, conn *websocket.Conn, sessionID string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.overflow:
			log.Printf("[ws] session %s: client fell behind, disconnecting", sessionID)
			conn.Close(closeClientTooSlow, "client too slow")
			return
		case ev := <-c.queue:
			if err := writeEvent(ctx, conn, ev); err != nil {
				return
			}
			if ev.Type == termsession.EventDestroyed {
				conn.Close(websocket.StatusNormalClosure, "session destroyed")
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev termsession.Event) error {
	switch ev.Type {
	case termsession.EventOutput:
		return writeMessage(ctx, conn, outputMessage{Type: "output", Data: string(ev.Data)})
	case termsession.EventExit:
		return writeMessage(ctx, conn, exitMessage{Type: "exit", ExitCode: ev.ExitCode})
	case termsession.EventDestroyed:
		return writeMessage(ctx, conn, typeMessage{Type: "destroyed"})
	}
	return nil
}

func writeMessage(ctx context.Context, conn *websocket.Conn, v interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}

// rejectWS reports why the connection cannot be served, then closes it.
func rejectWS(ctx context.Context, conn *websocket.Conn, code websocket.StatusCode, message string) {
	writeMessage(ctx, conn, errorMessage{Type: "error", Message: message})
	conn.Close(code, message)
}

// TerminalWS attaches a WebSocket to the session named by the "session" query
// parameter.
//
// The client first receives a "session" message, then the session's backlog
// as "output" messages, then live output. "exit" is sent when the process
// ends; the connection stays open so the final output remains visible.
// "destroyed" is sent when the session is deleted and the connection is then
// closed. Input arrives as {"type":"input","data":...} and
// {"type":"resize","cols":...,"rows":...} text messages.
func (h *Handler) TerminalWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[ws] failed to accept terminal websocket: %v", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		rejectWS(ctx, conn, closeMissingSession, "session parameter is required")
		return
	}

	client := newWSClient()
	att, err := h.Sessions.Attach(sessionID, client)
	if err != nil {
		if errors.Is(err, termsession.ErrUnknownSession) {
			rejectWS(ctx, conn, closeUnknownSession, "Session not found")
			return
		}
		log.Printf("[ws] session %s could not be opened: %v", logutil.SanitizeForLog(sessionID), err)
		rejectWS(ctx, conn, closeSessionFailed, "Failed to start session")
		return
	}
	manager := h.Sessions.Manager()
	defer manager.DetachClient(sessionID, client)

	log.Printf("[ws] client attached to session %s (%d chunks to replay)", sessionID, len(att.Backlog))

	conn.SetReadLimit(wsReadLimit)

	if err := writeMessage(ctx, conn, sessionMessage{
		Type:  "session",
		ID:    att.Info.ID,
		Name:  att.Info.Name,
		Alive: att.Info.Alive,
	}); err != nil {
		return
	}
	for _, chunk := range att.Backlog {
		if err := writeMessage(ctx, conn, outputMessage{Type: "output", Data: string(chunk)}); err != nil {
			return
		}
	}

	relayCtx, relayCancel := context.WithCancel(ctx)
	defer relayCancel()

	go func() {
		defer relayCancel()
		client.writeLoop(relayCtx, conn, sessionID)
	}()

	limiter := newTokenBucket(terminalRateBurst, terminalRateLimit)

	for {
		_, data, err := conn.Read(relayCtx)
		if err != nil {
			break
		}

		if !limiter.allow() {
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "input":
			if len(msg.Data) > MaxInputMessageSize {
				log.Printf("[ws] session %s: input message too large (%d bytes, limit %d)", sessionID, len(msg.Data), MaxInputMessageSize)
				continue
			}
			manager.WriteToSession(sessionID, []byte(msg.Data))
		case "resize":
			if msg.Cols <= 0 || msg.Rows <= 0 {
				continue
			}
			manager.ResizeSession(sessionID, clampDimension(msg.Cols, ptyproc.MaxCols), clampDimension(msg.Rows, ptyproc.MaxRows))
		}
	}

	log.Printf("[ws] client detached from session %s", sessionID)
	conn.Close(websocket.StatusNormalClosure, "")
}

func clampDimension(v, max int) uint16 {
	if v > max {
		v = max
	}
	return uint16(v)
}

// tokenBucket implements a simple token bucket rate limiter for terminal messages.
type tokenBucket struct {
	tokens     int
	maxTokens  int
	refillRate int // tokens added per second
	lastRefill time.Time
}

func newTokenBucket(maxTokens, refillRate int) *tokenBucket {
	return &tokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// allow consumes a token if one is available.
func (tb *tokenBucket) allow() bool {
	now := time.Now()
	refill := int(now.Sub(tb.lastRefill).Seconds() * float64(tb.refillRate))
	if refill > 0 {
		tb.tokens += refill
		if tb.tokens > tb.maxTokens {
			tb.tokens = tb.maxTokens
		}
		tb.lastRefill = now
	}

	if tb.tokens <= 0 {
		return false
	}
	tb.tokens--
	return true
}
