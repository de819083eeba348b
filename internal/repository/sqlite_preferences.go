package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"CoinPulse/internal/domain/models"
	"CoinPulse/internal/domain/repository"
)

const memoryDSN = ":memory:"

// SQLitePreferences persists preferences in a local SQLite file.
type SQLitePreferences struct {
	db *sql.DB
}

// NewSQLitePreferences opens or creates the database at path. ":memory:"
// keeps everything in process.
func NewSQLitePreferences(ctx context.Context, path string) (repository.PreferenceStore, error) {
	if path == "" {
		path = memoryDSN
	}
	if path != memoryDSN {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a memory database lives on one connection
	db.SetMaxOpenConns(1)

	s := &SQLitePreferences{db: db}
	if err := s.migrate(ctx, path != memoryDSN); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLitePreferences) migrate(ctx context.Context, wal bool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS watchlist (
			position INTEGER NOT NULL,
			asset_id TEXT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS symbol_overrides (
			asset_id TEXT PRIMARY KEY,
			symbol   TEXT NOT NULL
		)`,
	}
	if wal {
		stmts = append([]string{`PRAGMA journal_mode=WAL`}, stmts...)
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate preferences: %w", err)
		}
	}
	return nil
}

// Load returns models.ErrNotFound before the first Save. A stored value
// that does not parse is skipped and reported as models.ErrInvalidPreference
// alongside everything that did load.
func (s *SQLitePreferences) Load(ctx context.Context) (models.Preferences, error) {
	var (
		p       models.Preferences
		invalid error
	)

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return p, fmt.Errorf("load settings: %w", err)
	}
	found := false
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return p, err
		}
		found = true
		switch k {
		case "fiat":
			p.Fiat = v
		case "refresh_seconds":
			n, err := strconv.Atoi(v)
			if err != nil {
				invalid = errors.Join(invalid, fmt.Errorf("refresh_seconds %q: %w", v, models.ErrInvalidPreference))
				continue
			}
			p.RefreshSeconds = n
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return p, err
	}
	if !found {
		return p, models.ErrNotFound
	}

	p.Watchlist = []string{}
	wl, err := s.db.QueryContext(ctx, `SELECT asset_id FROM watchlist ORDER BY position`)
	if err != nil {
		return p, fmt.Errorf("load watchlist: %w", err)
	}
	for wl.Next() {
		var id string
		if err := wl.Scan(&id); err != nil {
			wl.Close()
			return p, err
		}
		p.Watchlist = append(p.Watchlist, id)
	}
	wl.Close()
	if err := wl.Err(); err != nil {
		return p, err
	}

	p.SymbolOverrides = map[string]string{}
	ov, err := s.db.QueryContext(ctx, `SELECT asset_id, symbol FROM symbol_overrides`)
	if err != nil {
		return p, fmt.Errorf("load overrides: %w", err)
	}
	defer ov.Close()
	for ov.Next() {
		var id, sym string
		if err := ov.Scan(&id, &sym); err != nil {
			return p, err
		}
		p.SymbolOverrides[id] = sym
	}
	if err := ov.Err(); err != nil {
		return p, err
	}
	return p, invalid
}

// Save replaces the stored preferences in one transaction.
func (s *SQLitePreferences) Save(ctx context.Context, p models.Preferences) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	now := time.Now().Unix()
	upsert := `INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err = tx.ExecContext(ctx, upsert, "fiat", p.Fiat, now); err != nil {
		return fmt.Errorf("save fiat: %w", err)
	}
	if _, err = tx.ExecContext(ctx, upsert, "refresh_seconds", strconv.Itoa(p.RefreshSeconds), now); err != nil {
		return fmt.Errorf("save refresh: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM watchlist`); err != nil {
		return err
	}
	for i, id := range p.Watchlist {
		if _, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO watchlist (position, asset_id) VALUES (?, ?)`, i, id); err != nil {
			return fmt.Errorf("save watchlist: %w", err)
		}
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM symbol_overrides`); err != nil {
		return err
	}
	for id, sym := range p.SymbolOverrides {
		if _, err = tx.ExecContext(ctx, `INSERT INTO symbol_overrides (asset_id, symbol) VALUES (?, ?)`, id, sym); err != nil {
			return fmt.Errorf("save overrides: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLitePreferences) Close() error {
	return s.db.Close()
}
