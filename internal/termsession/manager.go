package termsession

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/hass-addons/claude-terminal/internal/logutil"
	"github.com/hass-addons/claude-terminal/internal/ptyproc"
)

// Launcher starts the process backing a session. The handlers must be wired
// to the new process before Launch returns.
type Launcher interface {
	Launch(sessionID string, h ptyproc.Handlers) (Process, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(sessionID string, h ptyproc.Handlers) (Process, error)

func (f LauncherFunc) Launch(sessionID string, h ptyproc.Handlers) (Process, error) {
	return f(sessionID, h)
}

type ManagerConfig struct {
	// BufferSize is the backlog capacity in chunks. Zero means DefaultBacklogSize.
	BufferSize int
	Launcher   Launcher
}

// Attachment is what a client gets when it attaches: the session as it was at
// that instant and the output produced so far, oldest first.
type Attachment struct {
	Info    Info
	Backlog [][]byte
}

// Manager is the registry of sessions currently backed by a process. Build
// one at startup and hand it to whatever needs it.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	// creating holds ids whose process is being launched. Launches run
	// outside mu; a concurrent create for the same id waits on the entry.
	creating map[string]*pendingCreate

	bufferSize int
	launcher   Launcher
	now        func() time.Time
}

func NewManager(cfg ManagerConfig) *Manager {
	size := cfg.BufferSize
	if size <= 0 {
		size = DefaultBacklogSize
	}
	return &Manager{
		sessions:   make(map[string]*Session),
		creating:   make(map[string]*pendingCreate),
		bufferSize: size,
		launcher:   cfg.Launcher,
		now:        time.Now,
	}
}

type pendingCreate struct {
	done    chan struct{}
	session *Session
	err     error
}

// CreateSession returns the registered session for id, unchanged, if there is
// one. Otherwise it launches a process, wires its output and exit to the new
// session and registers it. A launch failure leaves nothing registered.
// Other sessions stay usable while a launch is in progress.
func (m *Manager) CreateSession(id, name string) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return s, nil
	}
	if p, ok := m.creating[id]; ok {
		m.mu.Unlock()
		<-p.done
		return p.session, p.err
	}

	if name == "" {
		name = fmt.Sprintf("Session %d", len(m.sessions)+len(m.creating)+1)
	}
	p := &pendingCreate{done: make(chan struct{})}
	m.creating[id] = p
	m.mu.Unlock()

	p.session, p.err = m.launch(id, name)

	m.mu.Lock()
	delete(m.creating, id)
	if p.err == nil {
		m.sessions[id] = p.session
	}
	m.mu.Unlock()
	close(p.done)

	if p.err != nil {
		return nil, p.err
	}
	log.Printf("[terminal] created session %s (%s)", id, logutil.SanitizeForLog(name))
	return p.session, nil
}

func (m *Manager) launch(id, name string) (*Session, error) {
	now := m.now()
	s := &Session{
		ID:           id,
		CreatedAt:    now,
		name:         name,
		backlog:      NewBacklog(m.bufferSize),
		clients:      make(map[Client]struct{}),
		lastActivity: now,
		alive:        true,
	}

	proc, err := m.launcher.Launch(id, ptyproc.Handlers{
		OnData: func(data []byte) { m.handleOutput(s, data) },
		OnExit: func(code int) { m.handleExit(s, code) },
	})
	if err != nil {
		return nil, fmt.Errorf("launch session %s: %w", id, err)
	}

	s.mu.Lock()
	s.proc = proc
	s.mu.Unlock()
	return s, nil
}

func (m *Manager) handleOutput(s *Session, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return
	}

	s.lastActivity = m.now()
	s.backlog.Append(data)

	ev := Event{Type: EventOutput, Data: data}
	for c := range s.clients {
		// A failing client is skipped; its connection handler detaches it.
		_ = c.Send(ev)
	}
}

func (m *Manager) handleExit(s *Session, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return
	}

	s.alive = false
	log.Printf("[terminal] session %s process exited with code %d", s.ID, code)

	ev := Event{Type: EventExit, ExitCode: code}
	for c := range s.clients {
		_ = c.Send(ev)
	}
}

// GetSession returns the registered session or nil.
func (m *Manager) GetSession(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// ListSessions returns a snapshot of every registered session, dead ones
// included, oldest first.
func (m *Manager) ListSessions() []Info {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// AttachClient adds c to the session's clients and returns the backlog taken
// under the same lock, so nothing is lost or repeated between the replay and
// the first live event c receives.
func (m *Manager) AttachClient(id string, c Client) (Attachment, error) {
	s := m.GetSession(id)
	if s == nil {
		return Attachment{}, fmt.Errorf("attach to %s: %w", id, ErrUnknownSession)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return Attachment{}, fmt.Errorf("attach to %s: %w", id, ErrUnknownSession)
	}
	s.clients[c] = struct{}{}
	return Attachment{Info: s.infoLocked(), Backlog: s.backlog.Snapshot()}, nil
}

// DetachClient removes c from the session. Safe to call repeatedly and for
// sessions that no longer exist.
func (m *Manager) DetachClient(id string, c Client) {
	s := m.GetSession(id)
	if s == nil {
		return
	}
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// WriteToSession forwards input to the session's process. Input for unknown
// or exited sessions is dropped: it can legitimately race with teardown.
func (m *Manager) WriteToSession(id string, data []byte) {
	s := m.GetSession(id)
	if s == nil {
		log.Printf("[terminal] dropped %d bytes of input for unknown session %s", len(data), logutil.SanitizeForLog(id))
		return
	}
	proc, ok := s.process()
	if !ok {
		return
	}
	if err := proc.Write(data); err != nil {
		log.Printf("[terminal] session %s write failed: %v", id, err)
	}
}

// ResizeSession follows the same best-effort policy as WriteToSession.
func (m *Manager) ResizeSession(id string, cols, rows uint16) {
	s := m.GetSession(id)
	if s == nil {
		return
	}
	proc, ok := s.process()
	if !ok {
		return
	}
	if err := proc.Resize(cols, rows); err != nil {
		log.Printf("[terminal] session %s resize failed: %v", id, err)
	}
}

// DestroySession kills the process if it is still running, tells attached
// clients the session is gone and frees the id. It does not wait for the
// process to exit. It reports whether a session was registered.
func (m *Manager) DestroySession(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	s.mu.Lock()
	s.removed = true
	wasAlive := s.alive
	s.alive = false
	proc := s.proc
	for c := range s.clients {
		_ = c.Send(Event{Type: EventDestroyed})
	}
	s.clients = make(map[Client]struct{})
	s.mu.Unlock()

	if wasAlive && proc != nil {
		if err := proc.Kill(); err != nil {
			log.Printf("[terminal] session %s kill failed: %v", id, err)
		}
	}
	log.Printf("[terminal] destroyed session %s", id)
	return true
}

// ActiveSince returns the ids of sessions with output after t.
func (m *Manager) ActiveSince(t time.Time) []string {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	var ids []string
	for _, s := range sessions {
		if s.LastActivity().After(t) {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

// Stop kills every live process. Used on shutdown; entries stay registered
// and are marked dead as their exits arrive.
func (m *Manager) Stop() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		if proc, ok := s.process(); ok {
			if err := proc.Kill(); err != nil {
				log.Printf("[terminal] session %s kill failed: %v", s.ID, err)
			}
		}
	}
}

func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
