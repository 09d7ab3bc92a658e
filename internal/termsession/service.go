package termsession

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hass-addons/claude-terminal/internal/database"
	"github.com/hass-addons/claude-terminal/internal/logutil"
	"github.com/hass-addons/claude-terminal/internal/sessionstore"
)

// Store is the durable metadata the Service reconciles against.
// *sessionstore.Store implements it.
type Store interface {
	Add(id, name string) error
	UpdateActivity(id string) error
	Remove(id string) error
	List() ([]database.SessionRecord, error)
	Get(id string) (*database.SessionRecord, error)
	Count() (int64, error)
}

// Service is the session lifecycle API. The registry is authoritative for the
// running process; the store is authoritative for which sessions exist.
type Service struct {
	manager *Manager
	store   Store
	newID   func() string
}

func NewService(m *Manager, store Store) *Service {
	return &Service{
		manager: m,
		store:   store,
		newID:   func() string { return "session-" + uuid.NewString() },
	}
}

func (svc *Service) Manager() *Manager { return svc.manager }

// List reports every stored session with its live state. A stored session
// without a registry entry is reported as not alive with no clients. Live
// sessions the store has no record of, because persisting them failed, are
// listed from the registry alone, as is everything when the store cannot be
// read.
func (svc *Service) List() []Info {
	records, err := svc.store.List()
	if err != nil {
		log.Printf("[session-store] list failed, reporting live sessions only: %v", err)
	}

	live := make(map[string]Info)
	for _, info := range svc.manager.ListSessions() {
		live[info.ID] = info
	}

	out := make([]Info, 0, len(records)+len(live))
	for _, rec := range records {
		info := Info{
			ID:           rec.ID,
			Name:         rec.Name,
			CreatedAt:    rec.CreatedAt,
			LastActivity: rec.LastActivity,
		}
		if l, ok := live[rec.ID]; ok {
			info.Alive = l.Alive
			info.ClientCount = l.ClientCount
			if l.LastActivity.After(info.LastActivity) {
				info.LastActivity = l.LastActivity
			}
			delete(live, rec.ID)
		}
		out = append(out, info)
	}
	for _, info := range live {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Create starts a session under a fresh id and records it. A launch failure
// is returned and nothing is recorded; a store failure is only logged since
// the running session is usable regardless.
func (svc *Service) Create(name string) (Info, error) {
	if name == "" {
		name = svc.defaultName()
	}

	id := svc.newID()
	s, err := svc.manager.CreateSession(id, name)
	if err != nil {
		return Info{}, err
	}

	if err := svc.store.Add(id, name); err != nil {
		log.Printf("[session-store] session %s not persisted: %v", id, err)
	}
	return s.Info(), nil
}

func (svc *Service) defaultName() string {
	n, err := svc.store.Count()
	if err != nil {
		log.Printf("[session-store] count failed, numbering from registry: %v", err)
		n = int64(svc.manager.SessionCount())
	}
	return fmt.Sprintf("Session %d", n+1)
}

// Delete destroys the live session, if any, and removes the stored record
// whether or not a live session existed. A store failure is logged; the
// session is gone from the registry either way.
func (svc *Service) Delete(id string) {
	svc.manager.DestroySession(id)
	if err := svc.store.Remove(id); err != nil {
		log.Printf("[session-store] remove %s failed: %v", logutil.SanitizeForLog(id), err)
	}
}

// Open resolves the session a connection asked for. A registered session is
// returned as is, dead or alive. A stored session with no registry entry
// (for example after a server restart) gets a new process under its stored
// name. Anything else is ErrUnknownSession.
func (svc *Service) Open(id string) (*Session, error) {
	if s := svc.manager.GetSession(id); s != nil {
		return s, nil
	}

	rec, err := svc.store.Get(id)
	if errors.Is(err, sessionstore.ErrNotFound) {
		return nil, fmt.Errorf("open %s: %w", id, ErrUnknownSession)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", id, err)
	}

	s, err := svc.manager.CreateSession(rec.ID, rec.Name)
	if err != nil {
		return nil, err
	}
	// A Delete may have removed the record while the process was launching.
	if _, err := svc.store.Get(rec.ID); errors.Is(err, sessionstore.ErrNotFound) {
		svc.manager.DestroySession(rec.ID)
		return nil, fmt.Errorf("open %s: %w", id, ErrUnknownSession)
	}
	if err := svc.store.UpdateActivity(rec.ID); err != nil {
		log.Printf("[session-store] activity update for %s failed: %v", rec.ID, err)
	}
	return s, nil
}

// Attach opens the session and attaches c to it.
func (svc *Service) Attach(id string, c Client) (Attachment, error) {
	if _, err := svc.Open(id); err != nil {
		return Attachment{}, err
	}
	return svc.manager.AttachClient(id, c)
}

// SyncActivity copies activity seen since the given time into the store and
// returns how many records were updated. Registered sessions that were never
// persisted are recorded again first.
func (svc *Service) SyncActivity(since time.Time) int {
	svc.persistUnrecorded()

	updated := 0
	for _, id := range svc.manager.ActiveSince(since) {
		if err := svc.store.UpdateActivity(id); err != nil {
			log.Printf("[session-store] activity update for %s failed: %v", id, err)
			continue
		}
		updated++
	}
	return updated
}

func (svc *Service) persistUnrecorded() {
	records, err := svc.store.List()
	if err != nil {
		return
	}
	known := make(map[string]struct{}, len(records))
	for _, rec := range records {
		known[rec.ID] = struct{}{}
	}
	for _, info := range svc.manager.ListSessions() {
		if _, ok := known[info.ID]; ok {
			continue
		}
		if err := svc.store.Add(info.ID, info.Name); err != nil {
			log.Printf("[session-store] session %s still not persisted: %v", info.ID, err)
			continue
		}
		log.Printf("[session-store] persisted session %s", info.ID)
	}
}
