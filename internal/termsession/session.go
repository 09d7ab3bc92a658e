package termsession

import (
	"sync"
	"time"
)

// Process is the part of a running terminal process the registry drives.
// *ptyproc.Process implements it.
type Process interface {
	Write(data []byte) error
	Resize(cols, rows uint16) error
	Kill() error
}

// Session is one registered terminal session. Its mutable state is only
// changed by the Manager; readers use the accessor methods.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu           sync.Mutex
	name         string
	proc         Process
	backlog      *Backlog
	clients      map[Client]struct{}
	lastActivity time.Time
	alive        bool
	// removed is set by DestroySession; callbacks from the old process are
	// ignored afterwards.
	removed bool
}

// Info is a point-in-time view of a session.
type Info struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	Alive        bool      `json:"alive"`
	ClientCount  int       `json:"clientCount"`
}

func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

func (s *Session) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

func (s *Session) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infoLocked()
}

func (s *Session) infoLocked() Info {
	return Info{
		ID:           s.ID,
		Name:         s.name,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.lastActivity,
		Alive:        s.alive,
		ClientCount:  len(s.clients),
	}
}

// process returns the handle when the session can still take input.
func (s *Session) process() (Process, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive || s.proc == nil {
		return nil, false
	}
	return s.proc, true
}
