package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// ExpiredDeleter removes mappings that expired before the given time.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}

// Sweeper periodically purges short links that expired more than retention ago.
// Links inside the retention window stay readable and report as expired.
type Sweeper struct {
	store     ExpiredDeleter
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

func NewSweeper(store ExpiredDeleter, interval, retention time.Duration) *Sweeper {
	if retention < 0 {
		retention = 0
	}
	return &Sweeper{
		store:     store,
		interval:  interval,
		retention: retention,
		now:       time.Now,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return nil
	}

	log.Info().
		Dur("interval", s.interval).
		Dur("retention", s.retention).
		Msg("Starting expiry sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Expiry sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				log.Error().Err(err).Msg("Failed to delete expired URLs")
			}
		}
	}
}

// SweepOnce deletes everything that expired before now minus the retention window.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	removed, err := s.store.DeleteExpired(ctx, s.now().Add(-s.retention))
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Msg("Deleted expired URLs")
	}
	return removed, nil
}
