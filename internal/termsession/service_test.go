package termsession

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hass-addons/claude-terminal/internal/database"
	"github.com/hass-addons/claude-terminal/internal/sessionstore"
)

func setupTestService(t *testing.T) (*Service, *sessionstore.Store, *fakeLauncher) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { database.Close(db) })

	store := sessionstore.New(db)
	l := newFakeLauncher()
	svc := NewService(NewManager(ManagerConfig{Launcher: l}), store)
	return svc, store, l
}

func setupFlakyService(t *testing.T) (*Service, *flakyStore, *fakeLauncher) {
	t.Helper()
	_, store, l := setupTestService(t)
	flaky := &flakyStore{Store: store}
	svc := NewService(NewManager(ManagerConfig{Launcher: l}), flaky)
	return svc, flaky, l
}

func TestService_CreatePersistsAndReportsLive(t *testing.T) {
	svc, store, _ := setupTestService(t)

	info, err := svc.Create("build")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if info.Name != "build" || !info.Alive {
		t.Errorf("Create = %+v", info)
	}
	if len(info.ID) < len("session-") || info.ID[:len("session-")] != "session-" {
		t.Errorf("id %q lacks session- prefix", info.ID)
	}

	rec, err := store.Get(info.ID)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if rec.Name != "build" {
		t.Errorf("stored name = %q", rec.Name)
	}
}

func TestService_CreateDefaultNames(t *testing.T) {
	svc, _, _ := setupTestService(t)

	first, _ := svc.Create("")
	second, _ := svc.Create("")
	if first.Name != "Session 1" || second.Name != "Session 2" {
		t.Errorf("names = %q, %q", first.Name, second.Name)
	}
	if first.ID == second.ID {
		t.Error("two sessions share an id")
	}
}

func TestService_CreateLaunchFailureStoresNothing(t *testing.T) {
	svc, store, l := setupTestService(t)
	l.err = errors.New("exec: not found")

	if _, err := svc.Create("x"); err == nil {
		t.Fatal("Create succeeded with a failing launcher")
	}
	if n, _ := store.Count(); n != 0 {
		t.Errorf("store has %d records, want 0", n)
	}
}

func TestService_ListMergesLiveState(t *testing.T) {
	svc, store, l := setupTestService(t)

	live, _ := svc.Create("live")
	dead, _ := svc.Create("dead")
	if err := store.Add("stored-only", "from last run"); err != nil {
		t.Fatalf("store.Add: %v", err)
	}

	svc.Manager().AttachClient(live.ID, &fakeClient{})
	l.last(dead.ID).exit(1)

	list := svc.List()
	byID := make(map[string]Info)
	for _, info := range list {
		byID[info.ID] = info
	}
	if len(byID) != 3 {
		t.Fatalf("List returned %d sessions, want 3", len(byID))
	}

	if got := byID[live.ID]; !got.Alive || got.ClientCount != 1 {
		t.Errorf("live session = %+v", got)
	}
	if got := byID[dead.ID]; got.Alive {
		t.Errorf("dead session = %+v", got)
	}
	if got := byID["stored-only"]; got.Alive || got.ClientCount != 0 || got.Name != "from last run" {
		t.Errorf("stored-only session = %+v", got)
	}
}

func TestService_DeleteRemovesBoth(t *testing.T) {
	svc, store, l := setupTestService(t)
	info, _ := svc.Create("x")
	proc := l.last(info.ID)

	svc.Delete(info.ID)
	if svc.Manager().GetSession(info.ID) != nil {
		t.Error("session still registered")
	}
	if _, err := store.Get(info.ID); !errors.Is(err, sessionstore.ErrNotFound) {
		t.Errorf("store.Get after delete: %v", err)
	}
	if proc.killCount() != 1 {
		t.Errorf("kills = %d, want 1", proc.killCount())
	}
}

func TestService_DeleteWithoutLiveSession(t *testing.T) {
	svc, store, _ := setupTestService(t)
	store.Add("orphan", "old")

	svc.Delete("orphan")
	if _, err := store.Get("orphan"); !errors.Is(err, sessionstore.ErrNotFound) {
		t.Errorf("orphan record survived delete: %v", err)
	}
}

func TestService_OpenRevivesStoredSession(t *testing.T) {
	svc, store, l := setupTestService(t)
	store.Add("restored", "from disk")

	s, err := svc.Open("restored")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.Name() != "from disk" || !s.Alive() {
		t.Errorf("revived session name=%q alive=%v", s.Name(), s.Alive())
	}
	if l.launches("restored") != 1 {
		t.Errorf("launches = %d, want 1", l.launches("restored"))
	}

	again, err := svc.Open("restored")
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	if again != s || l.launches("restored") != 1 {
		t.Error("second Open launched another process")
	}
}

func TestService_OpenDeadSessionDoesNotRevive(t *testing.T) {
	svc, _, l := setupTestService(t)
	info, _ := svc.Create("x")
	l.last(info.ID).exit(0)

	s, err := svc.Open(info.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.Alive() {
		t.Error("dead session came back alive")
	}
	if l.launches(info.ID) != 1 {
		t.Errorf("launches = %d, want 1", l.launches(info.ID))
	}
}

func TestService_OpenUnknown(t *testing.T) {
	svc, _, l := setupTestService(t)

	_, err := svc.Open("nope")
	if !errors.Is(err, ErrUnknownSession) {
		t.Errorf("err = %v, want ErrUnknownSession", err)
	}
	if l.launches("nope") != 0 {
		t.Error("unknown id launched a process")
	}
}

func TestService_Attach(t *testing.T) {
	svc, store, l := setupTestService(t)
	store.Add("s1", "one")

	c := &fakeClient{}
	att, err := svc.Attach("s1", c)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if att.Info.ID != "s1" || att.Info.ClientCount != 1 {
		t.Errorf("attachment = %+v", att.Info)
	}

	l.last("s1").emit("prompt> ")
	if got := c.outputs(); len(got) != 1 || got[0] != "prompt> " {
		t.Errorf("outputs = %q", got)
	}

	if _, err := svc.Attach("missing", &fakeClient{}); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Attach missing: %v", err)
	}
}

func TestService_SyncActivity(t *testing.T) {
	svc, store, l := setupTestService(t)
	busy, _ := svc.Create("busy")
	svc.Create("quiet")

	mark := time.Now()
	time.Sleep(5 * time.Millisecond)
	l.last(busy.ID).emit("work")

	if n := svc.SyncActivity(mark); n != 1 {
		t.Errorf("SyncActivity = %d, want 1", n)
	}

	rec, err := store.Get(busy.ID)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if rec.LastActivity.Before(mark) {
		t.Errorf("stored lastActivity %v not after %v", rec.LastActivity, mark)
	}
}

func TestService_UnpersistedSessionStaysListed(t *testing.T) {
	svc, store, _ := setupFlakyService(t)

	store.set(true, false, false)
	info, err := svc.Create("unsaved")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	list := svc.List()
	if len(list) != 1 || list[0].ID != info.ID || !list[0].Alive {
		t.Fatalf("List = %+v, want the running session", list)
	}

	store.set(false, false, false)
	svc.SyncActivity(time.Now())

	rec, err := store.Get(info.ID)
	if err != nil {
		t.Fatalf("session not persisted once the store recovered: %v", err)
	}
	if rec.Name != "unsaved" {
		t.Errorf("stored name = %q", rec.Name)
	}
	if list := svc.List(); len(list) != 1 || !list[0].Alive {
		t.Errorf("List after recovery = %+v", list)
	}
}

func TestService_ListFallsBackToRegistry(t *testing.T) {
	svc, store, _ := setupFlakyService(t)
	info, _ := svc.Create("live")
	store.Add("stored-only", "old")

	store.set(false, true, false)
	list := svc.List()
	if len(list) != 1 || list[0].ID != info.ID {
		t.Errorf("List = %+v, want only the live session", list)
	}
}

func TestService_DeleteWithFailingStore(t *testing.T) {
	svc, store, l := setupFlakyService(t)
	info, _ := svc.Create("x")

	store.set(false, false, true)
	svc.Delete(info.ID)

	if svc.Manager().GetSession(info.ID) != nil {
		t.Error("session still registered")
	}
	if l.last(info.ID).killCount() != 1 {
		t.Error("process not killed")
	}
}

func TestService_OpenRacingDelete(t *testing.T) {
	svc, store, l := setupTestService(t)
	store.Add("restored", "from disk")

	l.onLaunch = func(id string) {
		svc.Delete(id)
	}

	if _, err := svc.Open("restored"); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("Open = %v, want ErrUnknownSession", err)
	}
	if svc.Manager().GetSession("restored") != nil {
		t.Error("revived session outlived its delete")
	}
	if p := l.last("restored"); p == nil || p.killCount() != 1 {
		t.Error("revived process not killed")
	}
	if list := svc.List(); len(list) != 0 {
		t.Errorf("List = %+v, want empty", list)
	}
}
