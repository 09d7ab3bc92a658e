package termsession

import (
	"errors"
	"sync"

	"github.com/hass-addons/claude-terminal/internal/database"
	"github.com/hass-addons/claude-terminal/internal/ptyproc"
	"github.com/hass-addons/claude-terminal/internal/sessionstore"
)

// fakeProcess stands in for a pty process; tests drive its handlers directly
// the way the pty reader goroutine would.
type fakeProcess struct {
	mu      sync.Mutex
	h       ptyproc.Handlers
	writes  []string
	resizes [][2]uint16
	kills   int
}

func (p *fakeProcess) Write(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes = append(p.writes, string(data))
	return nil
}

func (p *fakeProcess) Resize(cols, rows uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resizes = append(p.resizes, [2]uint16{cols, rows})
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kills++
	return nil
}

func (p *fakeProcess) emit(chunk string) { p.h.OnData([]byte(chunk)) }

func (p *fakeProcess) exit(code int) { p.h.OnExit(code) }

func (p *fakeProcess) killCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.kills
}

// fakeLauncher records every launch and can be told to fail. onLaunch, when
// set, runs at the start of every launch.
type fakeLauncher struct {
	mu       sync.Mutex
	procs    map[string][]*fakeProcess
	err      error
	onLaunch func(id string)
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{procs: make(map[string][]*fakeProcess)}
}

func (l *fakeLauncher) Launch(id string, h ptyproc.Handlers) (Process, error) {
	if l.onLaunch != nil {
		l.onLaunch(id)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	p := &fakeProcess{h: h}
	l.procs[id] = append(l.procs[id], p)
	return p, nil
}

func (l *fakeLauncher) launches(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.procs[id])
}

func (l *fakeLauncher) last(id string) *fakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	ps := l.procs[id]
	if len(ps) == 0 {
		return nil
	}
	return ps[len(ps)-1]
}

var errClientClosed = errors.New("client closed")

// fakeClient records events; a closed client rejects them.
type fakeClient struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (c *fakeClient) Send(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClientClosed
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeClient) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeClient) received() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// outputs returns the data of the output events, in order.
func (c *fakeClient) outputs() []string {
	var out []string
	for _, ev := range c.received() {
		if ev.Type == EventOutput {
			out = append(out, string(ev.Data))
		}
	}
	return out
}

func chunksToStrings(chunks [][]byte) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = string(c)
	}
	return out
}

// flakyStore wraps a real store and fails the operations switched on.
type flakyStore struct {
	*sessionstore.Store

	mu         sync.Mutex
	failAdd    bool
	failList   bool
	failRemove bool
}

var errStoreDown = errors.New("database is locked")

func (s *flakyStore) set(add, list, remove bool) {
	s.mu.Lock()
	s.failAdd, s.failList, s.failRemove = add, list, remove
	s.mu.Unlock()
}

func (s *flakyStore) Add(id, name string) error {
	s.mu.Lock()
	fail := s.failAdd
	s.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return s.Store.Add(id, name)
}

func (s *flakyStore) List() ([]database.SessionRecord, error) {
	s.mu.Lock()
	fail := s.failList
	s.mu.Unlock()
	if fail {
		return nil, errStoreDown
	}
	return s.Store.List()
}

func (s *flakyStore) Remove(id string) error {
	s.mu.Lock()
	fail := s.failRemove
	s.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return s.Store.Remove(id)
}
