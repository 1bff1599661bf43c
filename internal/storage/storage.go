package storage

import (
	"context"
	"errors"
	"time"

	"github.com/MikhailRaia/shortlinks/internal/model"
)

var (
	// ErrNotFound is returned when no mapping exists for a short code.
	ErrNotFound = errors.New("url not found")
	// ErrURLExists is returned by Save when the short code is already taken.
	ErrURLExists = errors.New("url with this id already exists")
)

// URLStorage persists short URL mappings and their click counters.
type URLStorage interface {
	Save(ctx context.Context, mapping model.URLMapping) error
	Get(ctx context.Context, id string) (model.URLMapping, error)
	List(ctx context.Context) ([]model.URLMapping, error)
	// ListByOwner returns the owner's mappings, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]model.URLMapping, error)
	// IncrementClicks adds the given counts; unknown ids are ignored.
	IncrementClicks(ctx context.Context, counts map[string]int64) error
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	Ping(ctx context.Context) error
	Close() error
}
