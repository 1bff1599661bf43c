package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/MikhailRaia/shortlinks/internal/model"
	"github.com/MikhailRaia/shortlinks/internal/storage"
)

const selectColumns = `id, original_url, algorithm, created_at, expires_at, click_count, owner_id`

type Storage struct {
	pool *pgxpool.Pool
}

func NewStorage(ctx context.Context, dsn string) (*Storage, error) {
	if dsn == "" {
		return nil, errors.New("database connection string is empty")
	}

	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s := &Storage{
		pool: pool,
	}

	if err := s.createTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func (s *Storage) createTable(ctx context.Context) error {
	createTableQuery := `
		CREATE TABLE IF NOT EXISTS url_mappings (
			id VARCHAR(16) PRIMARY KEY,
			original_url TEXT NOT NULL,
			algorithm VARCHAR(16) NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMP WITH TIME ZONE,
			click_count BIGINT NOT NULL DEFAULT 0,
			owner_id TEXT NOT NULL DEFAULT ''
		);
	`

	if _, err := s.pool.Exec(ctx, createTableQuery); err != nil {
		return err
	}

	// rankings scan by click count, owner listings by owner
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_url_mappings_clicks ON url_mappings(click_count DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_url_mappings_owner ON url_mappings(owner_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_url_mappings_expires ON url_mappings(expires_at)`,
	}
	for _, q := range indexes {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) Save(ctx context.Context, mapping model.URLMapping) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO url_mappings (id, original_url, algorithm, created_at, expires_at, click_count, owner_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		mapping.ID, mapping.OriginalURL, mapping.Algorithm, mapping.CreatedDate,
		nullableTime(mapping.ExpiryDate), mapping.ClickCount, mapping.OwnerID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return storage.ErrURLExists
		}
		return fmt.Errorf("error inserting URL into database: %w", err)
	}
	return nil
}

func (s *Storage) Get(ctx context.Context, id string) (model.URLMapping, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM url_mappings WHERE id = $1`, id)

	mapping, err := scanMapping(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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
	return s.query(ctx, `SELECT `+selectColumns+` FROM url_mappings WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
}

func (s *Storage) query(ctx context.Context, sql string, args ...interface{}) ([]model.URLMapping, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
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

// IncrementClicks sends all counter updates in a single round trip.
func (s *Storage) IncrementClicks(ctx context.Context, counts map[string]int64) error {
	if len(counts) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for id, n := range counts {
		batch.Queue(`UPDATE url_mappings SET click_count = click_count + $2 WHERE id = $1`, id, n)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("error updating click count: %w", err)
		}
	}
	return nil
}

func (s *Storage) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM url_mappings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting URL: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Storage) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM url_mappings WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("error deleting expired URLs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Storage) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func scanMapping(row pgx.Row) (model.URLMapping, error) {
	var (
		mapping   model.URLMapping
		expiresAt *time.Time
	)

	err := row.Scan(
		&mapping.ID,
		&mapping.OriginalURL,
		&mapping.Algorithm,
		&mapping.CreatedDate,
		&expiresAt,
		&mapping.ClickCount,
		&mapping.OwnerID,
	)
	if err != nil {
		return model.URLMapping{}, err
	}

	mapping.CreatedDate = mapping.CreatedDate.UTC()
	if expiresAt != nil {
		mapping.ExpiryDate = expiresAt.UTC()
	}
	return mapping, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
