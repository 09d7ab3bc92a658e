package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpen_CreatesDirectoryAndSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "sessions.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer Close(db)

	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("database file not created: %v", err)
	}
	if !db.Migrator().HasTable(&SessionRecord{}) {
		t.Fatal("sessions table missing after Open")
	}
}

func TestOpen_UncreatableDirectory(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	// A regular file in the path makes MkdirAll fail.
	if _, err := Open(filepath.Join(blocker, "sub", "sessions.db")); err == nil {
		t.Fatal("expected error when db directory cannot be created")
	}
}

func TestSessionRecord_RoundTrip(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer Close(db)

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := SessionRecord{ID: "session-a", Name: "build", CreatedAt: created, LastActivity: created}
	if err := db.Create(&rec).Error; err != nil {
		t.Fatalf("create: %v", err)
	}

	var loaded SessionRecord
	if err := db.First(&loaded, "id = ?", "session-a").Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Name != "build" {
		t.Errorf("Name = %q, want build", loaded.Name)
	}
	if !loaded.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", loaded.CreatedAt, created)
	}
}

func TestClose_Nil(t *testing.T) {
	if err := Close(nil); err != nil {
		t.Errorf("Close(nil) = %v, want nil", err)
	}
}
