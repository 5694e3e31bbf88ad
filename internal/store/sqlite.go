package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/portal-notify/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One connection: ":memory:" databases are per-connection, and the
	// mirror has a single writer anyway.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// notificationRow is the on-disk shape of a model.Notification.
type notificationRow struct {
	ID            string `db:"id"`
	Position      int    `db:"position"`
	Type          string `db:"type"`
	Title         string `db:"title"`
	Message       string `db:"message"`
	ContractID    string `db:"contract_id"`
	ReferenceType string `db:"reference_type"`
	TimestampNS   int64  `db:"timestamp_ns"`
	Status        string `db:"status"`
	Source        string `db:"source"`
	Synced        int    `db:"synced"`
}

func (r notificationRow) toModel() model.Notification {
	return model.Notification{
		ID:            r.ID,
		Type:          r.Type,
		Title:         r.Title,
		Message:       r.Message,
		ContractID:    r.ContractID,
		ReferenceType: r.ReferenceType,
		Timestamp:     time.Unix(0, r.TimestampNS),
		Status:        model.ParseStatus(r.Status),
		Source:        model.Source(r.Source),
		Synced:        r.Synced == 1,
	}
}

// SaveNotifications replaces the mirrored list in a single transaction.
func (s *SQLiteStore) SaveNotifications(ctx context.Context, list []model.Notification) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM notifications"); err != nil {
		return fmt.Errorf("clearing notifications: %w", err)
	}

	const query = `
		INSERT OR REPLACE INTO notifications (
			id, position, type, title, message,
			contract_id, reference_type, timestamp_ns,
			status, source, synced
		) VALUES (
			?, ?, ?, ?, ?,
			?, ?, ?,
			?, ?, ?
		)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for i, n := range list {
		if i >= MaxNotifications {
			break
		}
		_, err = stmt.ExecContext(ctx,
			n.ID, i, n.Type, n.Title, n.Message,
			n.ContractID, n.ReferenceType, n.Timestamp.UnixNano(),
			n.Status.String(), string(n.Source), boolToInt(n.Synced),
		)
		if err != nil {
			return fmt.Errorf("inserting notification %s: %w", n.ID, err)
		}
	}

	return tx.Commit()
}

// LoadNotifications returns the mirrored list in saved order.
func (s *SQLiteStore) LoadNotifications(ctx context.Context) ([]model.Notification, error) {
	var rows []notificationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, position, type, title, message,
		       contract_id, reference_type, timestamp_ns,
		       status, source, synced
		FROM notifications
		ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}

	out := make([]model.Notification, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// ClearNotifications removes every mirrored record.
func (s *SQLiteStore) ClearNotifications(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM notifications"); err != nil {
		return fmt.Errorf("clearing notifications: %w", err)
	}
	return nil
}

// SetMeta stores a key/value pair.
func (s *SQLiteStore) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("setting meta %q: %w", key, err)
	}
	return nil
}

// GetMeta returns the value for key and whether it was set.
func (s *SQLiteStore) GetMeta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, "SELECT value FROM meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting meta %q: %w", key, err)
	}
	return value, true, nil
}

// SetLastRealtimeEvent records when the last realtime message arrived.
func (s *SQLiteStore) SetLastRealtimeEvent(ctx context.Context, at time.Time) error {
	return s.SetMeta(ctx, MetaLastRealtimeEvent, strconv.FormatInt(at.UnixNano(), 10))
}

// LastRealtimeEvent returns the time recorded by SetLastRealtimeEvent.
func (s *SQLiteStore) LastRealtimeEvent(ctx context.Context) (time.Time, bool, error) {
	v, ok, err := s.GetMeta(ctx, MetaLastRealtimeEvent)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	ns, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parsing %s: %w", MetaLastRealtimeEvent, err)
	}
	return time.Unix(0, ns), true, nil
}

// boolToInt converts a Go bool to a SQLite integer (0 or 1).
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
