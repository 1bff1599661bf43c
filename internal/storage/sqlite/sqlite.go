// Package sqlite stores mappings in a local SQLite file or a remote libSQL (Turso) database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql" // Turso driver
	_ "modernc.org/sqlite"                               // Local SQLite driver

	"github.com/MikhailRaia/shortlinks/internal/model"
	"github.com/MikhailRaia/shortlinks/internal/storage"
)

const selectColumns = `id, original_url, algorithm, created_at, expires_at, click_count, owner_id`

// Storage is a database/sql backed URLStorage. Timestamps are kept as Unix milliseconds.
type Storage struct {
	db *sql.DB
}

// IsDSN reports whether dsn addresses a SQLite or libSQL database.
func IsDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "file:") ||
		strings.HasPrefix(dsn, "sqlite:") ||
		strings.HasSuffix(dsn, ".db") ||
		isRemote(dsn)
}

func isRemote(dsn string) bool {
	return strings.Contains(dsn, "libsql://") || strings.Contains(dsn, "wss://")
}

// NewStorage opens the database and creates the schema if needed.
func NewStorage(ctx context.Context, dsn string) (*Storage, error) {
	driverName := "sqlite"
	if isRemote(dsn) {
		driverName = "libsql"
	}
	dsn = strings.TrimPrefix(dsn, "sqlite:")

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	if driverName == "sqlite" {
		// SQLite allows one writer at a time
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Storage{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS url_mappings (
			id TEXT PRIMARY KEY,
			original_url TEXT NOT NULL,
			algorithm TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL DEFAULT 0,
			click_count INTEGER NOT NULL DEFAULT 0,
			owner_id TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_url_mappings_owner ON url_mappings(owner_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_url_mappings_expires ON url_mappings(expires_at)`,
	}
	for _, q := range statements {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) Save(ctx context.Context, mapping model.URLMapping) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO url_mappings (id, original_url, algorithm, created_at, expires_at, click_count, owner_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		mapping.ID, mapping.OriginalURL, mapping.Algorithm,
		toMillis(mapping.CreatedDate), toMillis(mapping.ExpiryDate),
		mapping.ClickCount, mapping.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("error inserting URL into database: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrURLExists
	}
	return nil
}

func (s *Storage) Get(ctx context.Context, id string) (model.URLMapping, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM url_mappings WHERE id = ?`, id)

	mapping, err := scanMapping(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.URLMapping{}, storage.ErrNotFound
		}
		return model.URLMapping{}, fmt.Errorf("error querying database: %w", err)
	}
	return mapping, nil
}

func (s *Storage) List(ctx context.Context) ([]model.URLMapping, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM url_mappings`)
}

func (s *Storage) ListByOwner(ctx context.Context, ownerID string) ([]model.URLMapping, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM url_mappings WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
}

func (s *Storage) query(ctx context.Context, q string, args ...interface{}) ([]model.URLMapping, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying database: %w", err)
	}
	defer rows.Close()

	var result []model.URLMapping
	for rows.Next() {
		mapping, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		result = append(result, mapping)
	}
	return result, rows.Err()
}

func (s *Storage) IncrementClicks(ctx context.Context, counts map[string]int64) error {
	if len(counts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE url_mappings SET click_count = click_count + ? WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for id, n := range counts {
		if _, err := stmt.ExecContext(ctx, n, id); err != nil {
			return fmt.Errorf("error updating click count: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Storage) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM url_mappings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("error deleting URL: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Storage) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM url_mappings WHERE expires_at > 0 AND expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("error deleting expired URLs: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMapping(row scanner) (model.URLMapping, error) {
	var (
		mapping            model.URLMapping
		created, expiresAt int64
	)

	err := row.Scan(
		&mapping.ID,
		&mapping.OriginalURL,
		&mapping.Algorithm,
		&created,
		&expiresAt,
		&mapping.ClickCount,
		&mapping.OwnerID,
	)
	if err != nil {
		return model.URLMapping{}, err
	}

	mapping.CreatedDate = fromMillis(created)
	mapping.ExpiryDate = fromMillis(expiresAt)
	return mapping, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
