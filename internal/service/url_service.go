package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MikhailRaia/shortlinks/internal/hashing"
	"github.com/MikhailRaia/shortlinks/internal/model"
	"github.com/MikhailRaia/shortlinks/internal/ranking"
	"github.com/MikhailRaia/shortlinks/internal/storage"
)

var (
	// ErrInvalidURL is returned for blank, unparsable or non-HTTP URLs.
	ErrInvalidURL = errors.New("invalid url")
	// ErrCollision is returned when a deterministic code already maps to another URL.
	ErrCollision = errors.New("short code already maps to a different url")
	// ErrExpired is returned when resolving a mapping past its expiry date.
	ErrExpired = errors.New("url has expired")
	// ErrForbidden is returned when a caller tries to modify a mapping it does not own.
	ErrForbidden = errors.New("url belongs to another user")
)

const (
	maxURLLength      = 2048
	maxShortenTries   = 5
	clickCountTimeout = 5 * time.Second
)

// ClickRecorder accepts click events for asynchronous counting.
type ClickRecorder interface {
	Record(id string) error
}

// Option customizes a URLService.
type Option func(*URLService)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *URLService) {
		s.now = now
	}
}

// WithClickRecorder routes clicks through r instead of updating storage inline.
func WithClickRecorder(r ClickRecorder) Option {
	return func(s *URLService) {
		s.clicks = r
	}
}

// URLService provides business logic for creating, resolving and ranking short URLs.
type URLService struct {
	storage storage.URLStorage
	baseURL string
	ttl     time.Duration
	clicks  ClickRecorder
	now     func() time.Time
}

// NewURLService constructs a URLService. A ttl of zero creates links that never expire.
func NewURLService(storage storage.URLStorage, baseURL string, ttl time.Duration, opts ...Option) *URLService {
	s := &URLService{
		storage: storage,
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ShortURL returns the absolute short link for id.
func (s *URLService) ShortURL(id string) string {
	return s.baseURL + "/r/" + id
}

// ShortenURL creates a mapping for originalURL. The boolean result is false when
// an existing live mapping for the same URL was returned instead.
func (s *URLService) ShortenURL(ctx context.Context, originalURL, algorithm, ownerID string) (model.URLMapping, bool, error) {
	originalURL = strings.TrimSpace(originalURL)
	if err := ValidateURL(originalURL); err != nil {
		return model.URLMapping{}, false, err
	}
	if strings.TrimSpace(algorithm) == "" {
		algorithm = hashing.Default
	}

	for attempt := 0; attempt < maxShortenTries; attempt++ {
		code, alg, err := hashing.Shorten(originalURL, algorithm)
		if err != nil {
			return model.URLMapping{}, false, fmt.Errorf("error generating short code: %w", err)
		}

		now := s.now().UTC()
		existing, err := s.storage.Get(ctx, code)
		switch {
		case err == nil && existing.Expired(now):
			if err := s.storage.Delete(ctx, code); err != nil && !errors.Is(err, storage.ErrNotFound) {
				return model.URLMapping{}, false, fmt.Errorf("error replacing expired url: %w", err)
			}
		case err == nil && existing.OriginalURL == originalURL && hashing.IsDeterministic(alg):
			return existing, false, nil
		case err == nil && hashing.IsDeterministic(alg):
			return model.URLMapping{}, false, ErrCollision
		case err == nil:
			continue
		case !errors.Is(err, storage.ErrNotFound):
			return model.URLMapping{}, false, fmt.Errorf("error looking up short code: %w", err)
		}

		mapping := model.URLMapping{
			ID:          code,
			OriginalURL: originalURL,
			Algorithm:   alg,
			CreatedDate: now,
			OwnerID:     ownerID,
		}
		if s.ttl > 0 {
			mapping.ExpiryDate = now.Add(s.ttl)
		}

		err = s.storage.Save(ctx, mapping)
		if errors.Is(err, storage.ErrURLExists) {
			// lost a race with a concurrent request; look again
			continue
		}
		if err != nil {
			return model.URLMapping{}, false, fmt.Errorf("error saving url: %w", err)
		}

		log.Info().
			Str("id", mapping.ID).
			Str("algorithm", mapping.Algorithm).
			Msg("Short URL created")
		return mapping, true, nil
	}

	return model.URLMapping{}, false, ErrCollision
}

// GetURL returns the mapping for id, expired or not.
func (s *URLService) GetURL(ctx context.Context, id string) (model.URLMapping, error) {
	return s.storage.Get(ctx, id)
}

// Resolve returns the redirect target for id and counts the click.
func (s *URLService) Resolve(ctx context.Context, id string) (string, error) {
	mapping, err := s.storage.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if mapping.Expired(s.now()) {
		return "", ErrExpired
	}

	s.recordClick(ctx, id)
	return RedirectTarget(mapping.OriginalURL), nil
}

func (s *URLService) recordClick(ctx context.Context, id string) {
	if s.clicks != nil {
		if err := s.clicks.Record(id); err != nil {
			log.Warn().Err(err).Str("id", id).Msg("Failed to queue click")
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), clickCountTimeout)
	defer cancel()
	if err := s.storage.IncrementClicks(ctx, map[string]int64{id: 1}); err != nil {
		log.Error().Err(err).Str("id", id).Msg("Failed to count click")
	}
}

// Rankings returns up to limit live mappings ordered by click count.
func (s *URLService) Rankings(ctx context.Context, limit int) ([]model.URLMapping, error) {
	active, err := s.active(ctx)
	if err != nil {
		return nil, err
	}
	return ranking.TopByClicks(active, limit), nil
}

// Stats aggregates click totals over live mappings.
func (s *URLService) Stats(ctx context.Context) (model.RankingStats, error) {
	active, err := s.active(ctx)
	if err != nil {
		return model.RankingStats{}, err
	}
	return ranking.Stats(active), nil
}

func (s *URLService) active(ctx context.Context) ([]model.URLMapping, error) {
	all, err := s.storage.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing urls: %w", err)
	}

	now := s.now()
	active := make([]model.URLMapping, 0, len(all))
	for _, m := range all {
		if !m.Expired(now) {
			active = append(active, m)
		}
	}
	return active, nil
}

// UserURLs returns the mappings created by ownerID, newest first.
func (s *URLService) UserURLs(ctx context.Context, ownerID string) ([]model.URLMapping, error) {
	urls, err := s.storage.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("error getting user URLs: %w", err)
	}
	return urls, nil
}

// DeleteURL removes id if it was created by ownerID.
func (s *URLService) DeleteURL(ctx context.Context, id, ownerID string) error {
	mapping, err := s.storage.Get(ctx, id)
	if err != nil {
		return err
	}
	if mapping.OwnerID == "" || mapping.OwnerID != ownerID {
		return ErrForbidden
	}
	return s.storage.Delete(ctx, id)
}

// Ping checks the storage backend.
func (s *URLService) Ping(ctx context.Context) error {
	return s.storage.Ping(ctx)
}

// ValidateURL accepts http(s) URLs and scheme-less host names.
func ValidateURL(raw string) error {
	if raw == "" || len(raw) > maxURLLength || strings.ContainsAny(raw, " \t\r\n") {
		return ErrInvalidURL
	}

	candidate := raw
	if !strings.Contains(raw, "://") {
		candidate = "http://" + raw
	}

	u, err := url.Parse(candidate)
	if err != nil {
		return ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidURL
	}
	if u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}

// RedirectTarget returns the URL to redirect to, assuming http when no scheme was given.
func RedirectTarget(originalURL string) string {
	lower := strings.ToLower(originalURL)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return "http://" + originalURL
	}
	return originalURL
}
