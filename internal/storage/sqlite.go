package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog"

	"cockpit-alerts/internal/dispatch"
	"cockpit-alerts/internal/rules"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS alert_rules (
    position      INTEGER PRIMARY KEY,
    metric        TEXT    NOT NULL,
    operator      TEXT    NOT NULL,
    threshold     REAL    NOT NULL,
    lookback_days INTEGER NOT NULL,
    action        TEXT    NOT NULL DEFAULT 'Digest',
    name          TEXT    NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS dispatch_state (
    id      INTEGER PRIMARY KEY CHECK (id = 1),
    last_fp TEXT NOT NULL,
    sent_at TEXT NOT NULL
);`

// SQLiteStore keeps rules and dispatch state in one SQLite file.
// Rule mutations are serialised so Add and Remove see their own reads.
type SQLiteStore struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	logger zerolog.Logger
}

// NewSQLiteStore opens (and creates, if needed) the database at path.
func NewSQLiteStore(path string, logger zerolog.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		path:   path,
		logger: logger.With().Str("component", "sqlite_store").Logger(),
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// List implements rules.Store. Query failures read as an empty list.
func (s *SQLiteStore) List(ctx context.Context) []rules.Rule {
	rows, err := s.db.QueryContext(ctx, `SELECT metric, operator, threshold, lookback_days, action, name
        FROM alert_rules ORDER BY position`)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("rule table unreadable; treating as empty")
		return []rules.Rule{}
	}
	defer rows.Close()

	out := make([]rules.Rule, 0)
	for rows.Next() {
		var r rules.Rule
		if err := rows.Scan(&r.Metric, &r.Operator, &r.Threshold, &r.LookbackDays, &r.Action, &r.Name); err != nil {
			s.logger.Warn().Err(err).Msg("rule row corrupt; treating store as empty")
			return []rules.Rule{}
		}
		out = append(out, r.Normalize())
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn().Err(err).Msg("rule scan failed; treating store as empty")
		return []rules.Rule{}
	}
	return out
}

// Save implements rules.Store by replacing every row in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, list []rules.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, list)
}

func (s *SQLiteStore) save(ctx context.Context, list []rules.Rule) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM alert_rules`); err != nil {
		return fmt.Errorf("clear rules: %w", err)
	}
	for i, r := range list {
		r = r.Normalize()
		if _, err = tx.ExecContext(ctx, `INSERT INTO alert_rules
            (position, metric, operator, threshold, lookback_days, action, name)
            VALUES (?, ?, ?, ?, ?, ?, ?)`,
			i, r.Metric, r.Operator, r.Threshold, r.LookbackDays, r.Action, r.Name); err != nil {
			return fmt.Errorf("insert rule %d: %w", i, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit rules: %w", err)
	}
	return nil
}

// Add implements rules.Store.
func (s *SQLiteStore) Add(ctx context.Context, r rules.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, append(s.List(ctx), r))
}

// Remove implements rules.Store. Out of range indexes are ignored.
func (s *SQLiteStore) Remove(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.List(ctx)
	if index < 0 || index >= len(current) {
		return nil
	}
	return s.save(ctx, append(current[:index:index], current[index+1:]...))
}

// DispatchState returns the dispatch.StateStore view of the database.
// Rules already own Save, so state lives behind its own type.
func (s *SQLiteStore) DispatchState() dispatch.StateStore {
	return sqliteState{s}
}

type sqliteState struct{ s *SQLiteStore }

func (w sqliteState) Load(ctx context.Context) dispatch.State {
	var fp, sentAt string
	err := w.s.db.QueryRowContext(ctx, `SELECT last_fp, sent_at FROM dispatch_state WHERE id = 1`).Scan(&fp, &sentAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			w.s.logger.Warn().Err(err).Msg("dispatch state unreadable; assuming none")
		}
		return dispatch.State{}
	}
	st := dispatch.State{LastFingerprint: fp}
	if t, parseErr := time.Parse(time.RFC3339Nano, sentAt); parseErr == nil {
		st.SentAt = t
	}
	return st
}

func (w sqliteState) Save(ctx context.Context, st dispatch.State) error {
	_, err := w.s.db.ExecContext(ctx, `INSERT INTO dispatch_state (id, last_fp, sent_at) VALUES (1, ?, ?)
        ON CONFLICT (id) DO UPDATE SET last_fp = excluded.last_fp, sent_at = excluded.sent_at`,
		st.LastFingerprint, st.SentAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save dispatch state: %w", err)
	}
	return nil
}

var (
	_ rules.Store         = (*SQLiteStore)(nil)
	_ dispatch.StateStore = sqliteState{}
)
