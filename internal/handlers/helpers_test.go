package handlers

import (
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hass-addons/claude-terminal/internal/database"
	"github.com/hass-addons/claude-terminal/internal/ptyproc"
	"github.com/hass-addons/claude-terminal/internal/sessionstore"
	"github.com/hass-addons/claude-terminal/internal/termsession"
)

// stubProcess records what the registry asks of it; tests call the handlers
// captured at launch to produce output and exits.
type stubProcess struct {
	mu      sync.Mutex
	h       ptyproc.Handlers
	input   []byte
	resizes [][2]uint16
	killed  bool
	changed chan struct{}
}

func (p *stubProcess) Write(data []byte) error {
	p.mu.Lock()
	p.input = append(p.input, data...)
	p.mu.Unlock()
	p.notify()
	return nil
}

func (p *stubProcess) Resize(cols, rows uint16) error {
	p.mu.Lock()
	p.resizes = append(p.resizes, [2]uint16{cols, rows})
	p.mu.Unlock()
	p.notify()
	return nil
}

func (p *stubProcess) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	return nil
}

func (p *stubProcess) notify() {
	select {
	case p.changed <- struct{}{}:
	default:
	}
}

// waitFor polls cond until it holds or the deadline passes.
func (p *stubProcess) waitFor(t *testing.T, cond func(p *stubProcess) bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		p.mu.Lock()
		ok := cond(p)
		p.mu.Unlock()
		if ok {
			return
		}
		select {
		case <-p.changed:
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatal("timed out waiting for process state")
		}
	}
}

type stubLauncher struct {
	mu    sync.Mutex
	procs map[string]*stubProcess
	err   error
}

func (l *stubLauncher) Launch(id string, h ptyproc.Handlers) (termsession.Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	p := &stubProcess{h: h, changed: make(chan struct{}, 1)}
	l.procs[id] = p
	return p, nil
}

func (l *stubLauncher) fail(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
}

func (l *stubLauncher) proc(id string) *stubProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.procs[id]
}

type testEnv struct {
	handler  *Handler
	store    *sessionstore.Store
	launcher *stubLauncher
	server   *httptest.Server
}

// setupTestHandler wires a Handler over a temporary database and a stub
// launcher, served by an httptest server.
func setupTestHandler(t *testing.T) (*testEnv, func()) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	store := sessionstore.New(db)
	launcher := &stubLauncher{procs: make(map[string]*stubProcess)}
	manager := termsession.NewManager(termsession.ManagerConfig{Launcher: launcher})

	h := &Handler{
		Sessions:  termsession.NewService(manager, store),
		DB:        db,
		ConfigDir: t.TempDir(),
	}
	srv := httptest.NewServer(NewRouter(h, nil))

	env := &testEnv{handler: h, store: store, launcher: launcher, server: srv}
	return env, func() {
		srv.Close()
		database.Close(db)
	}
}
