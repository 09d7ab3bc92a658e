// Package sessionstore keeps the durable metadata of terminal sessions (id,
// name, timestamps) in SQLite, independent of whether a process is running
// for the session. Every mutation is committed before the call returns.
package sessionstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/hass-addons/claude-terminal/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned by Get for an unknown session id.
var ErrNotFound = errors.New("session record not found")

// Store is the single writer for session records. Create one per process.
type Store struct {
	mu  sync.Mutex
	db  *gorm.DB
	now func() time.Time
}

func New(db *gorm.DB) *Store {
	return &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Add upserts a record. An existing record gets the new name and a fresh
// lastActivity; a new one gets the current time for both timestamps.
func (s *Store) Add(id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec := database.SessionRecord{ID: id, Name: name, CreatedAt: now, LastActivity: now}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "last_activity"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", id, err)
	}
	return nil
}

// UpdateActivity bumps lastActivity. Unknown ids are ignored.
func (s *Store) UpdateActivity(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Model(&database.SessionRecord{}).
		Where("id = ?", id).
		Update("last_activity", s.now()).Error
	if err != nil {
		return fmt.Errorf("update activity for %s: %w", id, err)
	}
	return nil
}

func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Where("id = ?", id).Delete(&database.SessionRecord{}).Error; err != nil {
		return fmt.Errorf("remove session %s: %w", id, err)
	}
	return nil
}

// List returns every record. Order is not part of the contract.
func (s *Store) List() ([]database.SessionRecord, error) {
	var recs []database.SessionRecord
	if err := s.db.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return recs, nil
}

func (s *Store) Get(id string) (*database.SessionRecord, error) {
	var rec database.SessionRecord
	err := s.db.Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return &rec, nil
}

func (s *Store) Count() (int64, error) {
	var n int64
	if err := s.db.Model(&database.SessionRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

// legacyRecord matches the sessions.json file written by earlier releases.
type legacyRecord struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// ImportLegacy copies records from a sessions.json file into the store,
// leaving already known ids untouched, then renames the file to
// <path>.imported. A missing file is not an error.
func (s *Store) ImportLegacy(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read legacy sessions: %w", err)
	}

	var legacy []legacyRecord
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return 0, fmt.Errorf("parse legacy sessions: %w", err)
	}

	s.mu.Lock()
	imported := 0
	for _, l := range legacy {
		if l.ID == "" {
			continue
		}
		created := l.CreatedAt
		if created.IsZero() {
			created = s.now()
		}
		last := l.LastActivity
		if last.IsZero() {
			last = created
		}
		rec := database.SessionRecord{ID: l.ID, Name: l.Name, CreatedAt: created.UTC(), LastActivity: last.UTC()}
		res := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
		if res.Error != nil {
			s.mu.Unlock()
			return imported, fmt.Errorf("import session %s: %w", l.ID, res.Error)
		}
		imported += int(res.RowsAffected)
	}
	s.mu.Unlock()

	if err := os.Rename(path, path+".imported"); err != nil {
		log.Printf("[session-store] imported %d sessions but could not rename %s: %v", imported, path, err)
	}
	return imported, nil
}
