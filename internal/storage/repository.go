package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Repository is the durable state store shared by the scheduler and the
// command handlers. All mutations are transactional: a crash between
// calls never corrupts previously committed state.
type Repository struct {
	db *sql.DB
}

// NewRepository opens (or creates) the SQLite database at dbPath and
// runs migrations.
func NewRepository(dbPath string) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := &Repository{db: db}

	if err := repo.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate creates the schema and seeds the default settings row.
func (r *Repository) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			channel_id TEXT NOT NULL DEFAULT '',
			role_id TEXT NOT NULL DEFAULT '',
			games TEXT NOT NULL DEFAULT '[]',
			interval_seconds INTEGER NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS seen_runs (
			run_id TEXT PRIMARY KEY,
			game TEXT NOT NULL DEFAULT '',
			player TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			weblink TEXT NOT NULL DEFAULT '',
			announced_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_seen_runs_announced ON seen_runs(announced_at)`,
	}

	for _, migration := range migrations {
		if _, err := r.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	defaults := DefaultSettings()
	games, err := json.Marshal(defaults.Games)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(
		`INSERT OR IGNORE INTO settings (id, games, interval_seconds) VALUES (1, ?, ?)`,
		string(games), defaults.IntervalSeconds,
	)
	return err
}

// Settings operations

// LoadSettings reads the configuration record.
func (r *Repository) LoadSettings() (Settings, error) {
	var s Settings
	var games string
	err := r.db.QueryRow(
		`SELECT channel_id, role_id, games, interval_seconds, updated_at FROM settings WHERE id = 1`,
	).Scan(&s.ChannelID, &s.RoleID, &games, &s.IntervalSeconds, &s.UpdatedAt)
	if err != nil {
		return Settings{}, &StorageError{Op: "load settings", Err: err}
	}
	if err := json.Unmarshal([]byte(games), &s.Games); err != nil {
		return Settings{}, &StorageError{Op: "decode games list", Err: err}
	}
	return s, nil
}

// SaveSettings replaces the configuration record as a whole.
func (r *Repository) SaveSettings(s Settings) error {
	games, err := json.Marshal(s.Games)
	if err != nil {
		return &StorageError{Op: "encode games list", Err: err}
	}
	_, err = r.db.Exec(
		`UPDATE settings SET channel_id = ?, role_id = ?, games = ?, interval_seconds = ?, updated_at = ? WHERE id = 1`,
		s.ChannelID, s.RoleID, string(games), s.IntervalSeconds, time.Now().UTC(),
	)
	if err != nil {
		return &StorageError{Op: "save settings", Err: err}
	}
	return nil
}

// ResetSettings restores the default configuration.
func (r *Repository) ResetSettings() error {
	return r.SaveSettings(DefaultSettings())
}

// Seen-run operations

// IsSeen reports whether a run has already been announced.
func (r *Repository) IsSeen(runID string) (bool, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(1) FROM seen_runs WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return false, &StorageError{Op: "query seen run", Err: err}
	}
	return n > 0, nil
}

// SeenIDs returns the full set of announced run ids.
func (r *Repository) SeenIDs() (map[string]struct{}, error) {
	rows, err := r.db.Query(`SELECT run_id FROM seen_runs`)
	if err != nil {
		return nil, &StorageError{Op: "load seen runs", Err: err}
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &StorageError{Op: "scan seen run", Err: err}
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "load seen runs", Err: err}
	}
	return ids, nil
}

// MarkSeen records a run as announced. Marking an already-seen run is a
// no-op. The insert and the retention eviction commit together.
func (r *Repository) MarkSeen(rec SeenRun) error {
	tx, err := r.db.Begin()
	if err != nil {
		return &StorageError{Op: "mark seen", Err: err}
	}
	defer tx.Rollback()

	if rec.AnnouncedAt.IsZero() {
		rec.AnnouncedAt = time.Now().UTC()
	}

	_, err = tx.Exec(
		`INSERT INTO seen_runs (run_id, game, player, category, weblink, announced_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO NOTHING`,
		rec.RunID, rec.Game, rec.Player, rec.Category, rec.Weblink, rec.AnnouncedAt,
	)
	if err != nil {
		return &StorageError{Op: "mark seen", Err: err}
	}

	// Evict the oldest records past the retention cap
	_, err = tx.Exec(
		`DELETE FROM seen_runs WHERE run_id IN (
			SELECT run_id FROM seen_runs ORDER BY announced_at DESC, rowid DESC LIMIT -1 OFFSET ?
		)`,
		SeenRetentionCap,
	)
	if err != nil {
		return &StorageError{Op: "evict seen runs", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "mark seen", Err: err}
	}
	return nil
}

// ResetSeen clears the entire seen-run history.
func (r *Repository) ResetSeen() error {
	if _, err := r.db.Exec(`DELETE FROM seen_runs`); err != nil {
		return &StorageError{Op: "reset seen runs", Err: err}
	}
	return nil
}

// CountSeen returns the number of seen-run records.
func (r *Repository) CountSeen() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(1) FROM seen_runs`).Scan(&n); err != nil {
		return 0, &StorageError{Op: "count seen runs", Err: err}
	}
	return n, nil
}

// RecentlyAnnounced returns the last n announced runs, newest first.
func (r *Repository) RecentlyAnnounced(n int) ([]SeenRun, error) {
	rows, err := r.db.Query(
		`SELECT run_id, game, player, category, weblink, announced_at
		 FROM seen_runs ORDER BY announced_at DESC, rowid DESC LIMIT ?`,
		n,
	)
	if err != nil {
		return nil, &StorageError{Op: "load recent runs", Err: err}
	}
	defer rows.Close()

	var recs []SeenRun
	for rows.Next() {
		var rec SeenRun
		if err := rows.Scan(&rec.RunID, &rec.Game, &rec.Player, &rec.Category, &rec.Weblink, &rec.AnnouncedAt); err != nil {
			return nil, &StorageError{Op: "scan recent run", Err: err}
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "load recent runs", Err: err}
	}
	return recs, nil
}
