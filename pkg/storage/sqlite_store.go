package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/small-frappuccino/modcore/pkg/audit"

	_ "modernc.org/sqlite"
)

// ErrNotInitialized is returned by every method called before Init.
var ErrNotInitialized = errors.New("store not initialized")

// Store wraps an embedded SQLite database holding audit channel bindings and
// runtime metadata. It uses modernc.org/sqlite for CGO-less builds.
type Store struct {
	dbPath string
	db     *sql.DB
}

// NewStore creates a new Store pointing to dbPath. Call Init() before using it.
func NewStore(dbPath string) *Store {
	return &Store{dbPath: dbPath}
}

// Init opens the SQLite database, configures pragmas, and ensures the schema exists.
func (s *Store) Init() error {
	if s.db != nil {
		return nil
	}
	if s.dbPath == "" {
		return fmt.Errorf("db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(s.dbPath), 0o755); err != nil {
		return fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []struct {
		stmt string
		what string
	}{
		{`PRAGMA journal_mode=WAL;`, "set WAL"},
		{`PRAGMA busy_timeout=5000;`, "set busy_timeout"},
		{`PRAGMA synchronous=NORMAL;`, "set synchronous"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			_ = db.Close()
			return fmt.Errorf("%s: %w", p.what, err)
		}
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Ping checks the database connection. Used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return ErrNotInitialized
	}
	return s.db.PingContext(ctx)
}

// BindingRecord is a persisted guild to audit channel mapping.
type BindingRecord struct {
	GuildID   string
	ChannelID string
	UpdatedAt time.Time
}

// Binding converts the record to the audit package's view.
func (r BindingRecord) Binding() audit.Binding {
	return audit.Binding{GuildID: r.GuildID, ChannelID: r.ChannelID}
}

// GetAuditChannel returns the channel bound to guildID; ok is false when the
// guild has no binding.
func (s *Store) GetAuditChannel(ctx context.Context, guildID string) (string, bool, error) {
	if s.db == nil {
		return "", false, ErrNotInitialized
	}
	row := s.db.QueryRowContext(ctx, `SELECT channel_id FROM audit_bindings WHERE guild_id=?`, guildID)
	var channelID string
	if err := row.Scan(&channelID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get audit binding %s: %w", guildID, err)
	}
	return channelID, true, nil
}

// SetAuditChannel creates or replaces the binding for guildID.
func (s *Store) SetAuditChannel(ctx context.Context, guildID, channelID string, updatedAt time.Time) error {
	if s.db == nil {
		return ErrNotInitialized
	}
	guildID = strings.TrimSpace(guildID)
	channelID = strings.TrimSpace(channelID)
	if guildID == "" || channelID == "" {
		return fmt.Errorf("guild id and channel id are required")
	}
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_bindings (guild_id, channel_id, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(guild_id) DO UPDATE SET channel_id=excluded.channel_id, updated_at=excluded.updated_at`,
		guildID, channelID, updatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("set audit binding %s: %w", guildID, err)
	}
	return nil
}

// DeleteAuditChannel removes the binding for guildID. It reports whether a
// binding existed.
func (s *Store) DeleteAuditChannel(ctx context.Context, guildID string) (bool, error) {
	if s.db == nil {
		return false, ErrNotInitialized
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_bindings WHERE guild_id=?`, guildID)
	if err != nil {
		return false, fmt.Errorf("delete audit binding %s: %w", guildID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListBindings returns every binding ordered by guild ID.
func (s *Store) ListBindings(ctx context.Context) ([]BindingRecord, error) {
	if s.db == nil {
		return nil, ErrNotInitialized
	}
	rows, err := s.db.QueryContext(ctx, `SELECT guild_id, channel_id, updated_at FROM audit_bindings ORDER BY guild_id`)
	if err != nil {
		return nil, fmt.Errorf("list audit bindings: %w", err)
	}
	defer rows.Close()

	var out []BindingRecord
	for rows.Next() {
		var rec BindingRecord
		if err := rows.Scan(&rec.GuildID, &rec.ChannelID, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SetHeartbeat records the last-known "bot is running" timestamp.
func (s *Store) SetHeartbeat(t time.Time) error {
	if s.db == nil {
		return ErrNotInitialized
	}
	if t.IsZero() {
		t = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO runtime_meta (key, ts) VALUES (?, ?)
         ON CONFLICT(key) DO UPDATE SET ts=excluded.ts`,
		"heartbeat", t.UTC(),
	)
	return err
}

// GetHeartbeat returns the last recorded heartbeat timestamp, if any.
func (s *Store) GetHeartbeat() (time.Time, bool, error) {
	if s.db == nil {
		return time.Time{}, false, ErrNotInitialized
	}
	row := s.db.QueryRow(`SELECT ts FROM runtime_meta WHERE key=?`, "heartbeat")
	var ts time.Time
	if err := row.Scan(&ts); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return ts, true, nil
}

func ensureSchema(db *sql.DB) error {
	const createAuditBindings = `
CREATE TABLE IF NOT EXISTS audit_bindings (
  guild_id   TEXT PRIMARY KEY,
  channel_id TEXT NOT NULL,
  updated_at TIMESTAMP NOT NULL
);`

	const createRuntimeMeta = `
CREATE TABLE IF NOT EXISTS runtime_meta (
  key TEXT PRIMARY KEY,
  ts  TIMESTAMP NOT NULL
);`

	for _, sqlText := range []string{createAuditBindings, createRuntimeMeta} {
		if _, err := db.Exec(sqlText); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}
