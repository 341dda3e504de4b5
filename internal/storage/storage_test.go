package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lotas/hidenobids/internal/types"
)

// testStore creates a store backed by a temporary database.
func testStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenDB(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sub", "dir", "hidenobids.db")

	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("database file not found: %v", err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	if count != len(migrations) {
		t.Errorf("expected %d migrations recorded, got %d", len(migrations), count)
	}
}

func TestOpenDB_IdempotentMigrations(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "idempotent.db")
	ctx := context.Background()

	s1, err := Open(dbPath)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if _, err := s1.SaveSettings(ctx, types.MaxBidsPatch(4)); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	s1.Close()

	s2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer s2.Close()

	got, err := s2.Settings(ctx)
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if got.MaxBids != 4 {
		t.Errorf("MaxBids = %d after reopen, want 4", got.MaxBids)
	}
}

func TestCountCheckConstraint(t *testing.T) {
	s := testStore(t)
	_, err := s.db.Exec(`INSERT INTO tab_blocked_counts (tab_id, count) VALUES (1, -1)`)
	if err == nil {
		t.Fatal("expected check constraint violation")
	}
}

func TestDefaultDBPath(t *testing.T) {
	p, err := DefaultDBPath()
	if err != nil {
		t.Fatalf("DefaultDBPath: %v", err)
	}
	if filepath.Base(p) != "hidenobids.db" {
		t.Errorf("expected filename hidenobids.db, got %s", filepath.Base(p))
	}
	if !filepath.IsAbs(p) {
		t.Errorf("expected absolute path, got %s", p)
	}
}

func TestSettingsBeforeInit(t *testing.T) {
	s := testStore(t)
	got, err := s.Settings(context.Background())
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if got != types.DefaultSettings(false) {
		t.Errorf("Settings = %+v, want disabled/All", got)
	}
}

func TestInitWritesDefaultsOnce(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	got, err := s.Init(ctx, types.DefaultSettings(true))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !got.Enabled || got.MaxBids != types.NoBidLimit {
		t.Errorf("Init = %+v", got)
	}

	if _, err := s.SaveSettings(ctx, types.EnablePatch(false)); err != nil {
		t.Fatal(err)
	}
	s.SetTabCount(ctx, 3, 9)

	got, err = s.Init(ctx, types.DefaultSettings(true))
	if err != nil {
		t.Fatalf("second Init: %v", err)
	}
	if got.Enabled {
		t.Error("second Init overwrote the user's choice")
	}
	counts, _ := s.TabCounts(ctx)
	if len(counts) != 0 {
		t.Errorf("counts after Init = %v, want empty", counts)
	}
}

func TestInitRejectsInvalidDefaults(t *testing.T) {
	s := testStore(t)
	_, err := s.Init(context.Background(), types.Settings{MaxBids: 12})
	if !errors.Is(err, types.ErrMaxBidsRange) {
		t.Fatalf("err = %v, want ErrMaxBidsRange", err)
	}
}

func TestSaveSettingsMerges(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.SaveSettings(ctx, types.EnablePatch(true)); err != nil {
		t.Fatal(err)
	}
	got, err := s.SaveSettings(ctx, types.MaxBidsPatch(5))
	if err != nil {
		t.Fatal(err)
	}
	if got != (types.Settings{Enabled: true, MaxBids: 5}) {
		t.Errorf("merged = %+v", got)
	}
}

func TestSaveSettingsSentinelRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.SaveSettings(ctx, types.MaxBidsPatch(3))
	if _, err := s.SaveSettings(ctx, types.MaxBidsPatch(types.NoBidLimit)); err != nil {
		t.Fatal(err)
	}
	got, err := s.Settings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.MaxBids != 11 {
		t.Errorf("MaxBids = %d, want 11", got.MaxBids)
	}
}

func TestSaveSettingsRejectsOutOfRange(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, n := range []int{-1, 12, 100} {
		if _, err := s.SaveSettings(ctx, types.MaxBidsPatch(n)); !errors.Is(err, types.ErrMaxBidsRange) {
			t.Errorf("SaveSettings(%d) err = %v, want ErrMaxBidsRange", n, err)
		}
	}
	got, _ := s.Settings(ctx)
	if got.MaxBids != types.NoBidLimit {
		t.Errorf("rejected write leaked: %+v", got)
	}
}

func TestTabCounts(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, ok, _ := s.TabCount(ctx, 1); ok {
		t.Fatal("unexpected entry for tab 1")
	}
	s.SetTabCount(ctx, 1, 4)
	s.SetTabCount(ctx, 2, 0)
	s.SetTabCount(ctx, 1, 6)

	if n, ok, err := s.TabCount(ctx, 1); err != nil || !ok || n != 6 {
		t.Errorf("TabCount(1) = %d, %v, %v; want 6", n, ok, err)
	}
	counts, err := s.TabCounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(counts) != 2 || counts[2] != 0 {
		t.Errorf("counts = %v", counts)
	}

	existed, err := s.DeleteTabCount(ctx, 1)
	if err != nil || !existed {
		t.Fatalf("DeleteTabCount = %v, %v", existed, err)
	}
	if existed, _ := s.DeleteTabCount(ctx, 1); existed {
		t.Error("second delete reported an entry")
	}
	if _, ok, _ := s.TabCount(ctx, 1); ok {
		t.Error("entry for tab 1 survived delete")
	}

	if err := s.ClearTabCounts(ctx); err != nil {
		t.Fatal(err)
	}
	counts, _ = s.TabCounts(ctx)
	if len(counts) != 0 {
		t.Errorf("counts after clear = %v", counts)
	}
}

func TestSetTabCountRejectsNegative(t *testing.T) {
	s := testStore(t)
	if err := s.SetTabCount(context.Background(), 1, -2); !errors.Is(err, ErrNegativeCount) {
		t.Fatalf("err = %v, want ErrNegativeCount", err)
	}
}

func TestWatch(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	changes, cancel := s.Watch()

	s.SetTabCount(ctx, 7, 1)
	select {
	case c := <-changes:
		if !c.Has(types.KeyTabBlockedCounts) {
			t.Errorf("change = %+v, want tabBlockedCounts", c)
		}
	case <-time.After(time.Second):
		t.Fatal("no change notification")
	}

	s.SaveSettings(ctx, types.MaxBidsPatch(2))
	c := <-changes
	if !c.Has(types.KeyMaxBids) || c.Has(types.KeyExtensionEnabled) {
		t.Errorf("change = %+v, want only maxBids", c)
	}

	cancel()
	s.SetTabCount(ctx, 7, 2)
	if _, ok := <-changes; ok {
		t.Error("received change after cancel")
	}
}

func TestReadSettingsBadValue(t *testing.T) {
	s := testStore(t)
	if _, err := s.db.Exec(`INSERT INTO settings (key, value) VALUES ('maxBids', 'not json')`); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Settings(context.Background()); err == nil {
		t.Fatal("expected decode error")
	}
}
