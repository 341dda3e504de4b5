package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/lotas/hidenobids/internal/notify"
	"github.com/lotas/hidenobids/internal/types"
)

// ErrNegativeCount is returned when a tab count below zero is written.
var ErrNegativeCount = errors.New("negative tab count")

// Change names the persisted keys touched by a write.
type Change struct {
	Keys []string
}

// Has reports whether key was touched.
func (c Change) Has(key string) bool {
	return slices.Contains(c.Keys, key)
}

// Store is the persistent settings and tab-count store. Only the
// coordinator writes to it; everything else reads or watches.
type Store struct {
	db      *sql.DB
	changes notify.Hub[Change]
}

// New wraps an open database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens the database at path and wraps it.
func Open(path string) (*Store, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Watch subscribes to change notifications. cancel stops delivery.
func (s *Store) Watch() (<-chan Change, func()) {
	return s.changes.Subscribe()
}

func (s *Store) publish(keys ...string) {
	s.changes.Publish(Change{Keys: keys})
}

// Init runs on install: it writes defaults for any missing setting and
// drops all tab counts. Existing settings are kept.
func (s *Store) Init(ctx context.Context, defaults types.Settings) (types.Settings, error) {
	if err := defaults.Validate(); err != nil {
		return types.Settings{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Settings{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var written []string
	for key, value := range map[string]any{
		types.KeyExtensionEnabled: defaults.Enabled,
		types.KeyMaxBids:          defaults.MaxBids,
	} {
		raw, _ := json.Marshal(value)
		res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`, key, string(raw))
		if err != nil {
			return types.Settings{}, fmt.Errorf("write default %s: %w", key, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			written = append(written, key)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tab_blocked_counts`); err != nil {
		return types.Settings{}, fmt.Errorf("reset tab counts: %w", err)
	}
	settings, err := readSettings(ctx, tx)
	if err != nil {
		return types.Settings{}, err
	}
	if err := tx.Commit(); err != nil {
		return types.Settings{}, fmt.Errorf("commit: %w", err)
	}

	slices.Sort(written)
	s.publish(append(written, types.KeyTabBlockedCounts)...)
	return settings, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// readSettings loads settings, falling back to the disabled/"All" values
// for keys that were never written.
func readSettings(ctx context.Context, q querier) (types.Settings, error) {
	settings := types.DefaultSettings(false)
	rows, err := q.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return settings, fmt.Errorf("read settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return settings, fmt.Errorf("scan setting: %w", err)
		}
		switch key {
		case types.KeyExtensionEnabled:
			err = json.Unmarshal([]byte(value), &settings.Enabled)
		case types.KeyMaxBids:
			err = json.Unmarshal([]byte(value), &settings.MaxBids)
		}
		if err != nil {
			return settings, fmt.Errorf("decode setting %s: %w", key, err)
		}
	}
	return settings, rows.Err()
}

// Settings returns the persisted settings.
func (s *Store) Settings(ctx context.Context) (types.Settings, error) {
	return readSettings(ctx, s.db)
}

// SaveSettings merges p into the persisted settings and returns the result.
// Out-of-range thresholds are rejected and nothing is written.
func (s *Store) SaveSettings(ctx context.Context, p types.SettingsPatch) (types.Settings, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Settings{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	current, err := readSettings(ctx, tx)
	if err != nil {
		return types.Settings{}, err
	}
	merged := current.Merge(p)
	if err := merged.Validate(); err != nil {
		return current, err
	}

	var keys []string
	if p.Enabled != nil {
		keys = append(keys, types.KeyExtensionEnabled)
		if err := putSetting(ctx, tx, types.KeyExtensionEnabled, merged.Enabled); err != nil {
			return current, err
		}
	}
	if p.MaxBids != nil {
		keys = append(keys, types.KeyMaxBids)
		if err := putSetting(ctx, tx, types.KeyMaxBids, merged.MaxBids); err != nil {
			return current, err
		}
	}
	if err := tx.Commit(); err != nil {
		return current, fmt.Errorf("commit: %w", err)
	}
	if len(keys) > 0 {
		s.publish(keys...)
	}
	return merged, nil
}

func putSetting(ctx context.Context, tx *sql.Tx, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(raw))
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// TabCounts returns the full tab -> hidden count map.
func (s *Store) TabCounts(ctx context.Context) (map[types.TabID]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tab_id, count FROM tab_blocked_counts`)
	if err != nil {
		return nil, fmt.Errorf("read tab counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.TabID]int)
	for rows.Next() {
		var tab types.TabID
		var count int
		if err := rows.Scan(&tab, &count); err != nil {
			return nil, fmt.Errorf("scan tab count: %w", err)
		}
		counts[tab] = count
	}
	return counts, rows.Err()
}

// TabCount returns the count for one tab and whether an entry exists.
func (s *Store) TabCount(ctx context.Context, tab types.TabID) (int, bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT count FROM tab_blocked_counts WHERE tab_id = ?`, tab).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read tab %d count: %w", tab, err)
	}
	return count, true, nil
}

// SetTabCount records the latest count reported for tab. The upsert is a
// single statement, so concurrent reports for other tabs are never lost.
func (s *Store) SetTabCount(ctx context.Context, tab types.TabID, count int) error {
	if count < 0 {
		return fmt.Errorf("%w: tab %d count %d", ErrNegativeCount, tab, count)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tab_blocked_counts (tab_id, count, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(tab_id) DO UPDATE SET count = excluded.count, updated_at = excluded.updated_at`,
		tab, count)
	if err != nil {
		return fmt.Errorf("write tab %d count: %w", tab, err)
	}
	s.publish(types.KeyTabBlockedCounts)
	return nil
}

// DeleteTabCount drops the entry for tab and reports whether one existed.
func (s *Store) DeleteTabCount(ctx context.Context, tab types.TabID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tab_blocked_counts WHERE tab_id = ?`, tab)
	if err != nil {
		return false, fmt.Errorf("delete tab %d count: %w", tab, err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.publish(types.KeyTabBlockedCounts)
	}
	return n > 0, nil
}

// ClearTabCounts drops every tab entry.
func (s *Store) ClearTabCounts(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tab_blocked_counts`); err != nil {
		return fmt.Errorf("clear tab counts: %w", err)
	}
	s.publish(types.KeyTabBlockedCounts)
	return nil
}
