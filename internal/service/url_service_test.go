package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikhailRaia/shortlinks/internal/model"
	"github.com/MikhailRaia/shortlinks/internal/storage"
	"github.com/MikhailRaia/shortlinks/internal/storage/memory"
)

const baseURL = "http://localhost:8080"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorderFunc func(id string) error

func (f recorderFunc) Record(id string) error { return f(id) }

// failingStorage wraps a real storage and fails selected operations.
type failingStorage struct {
	storage.URLStorage
	getErr  error
	saveErr error
	listErr error
}

func (f *failingStorage) Get(ctx context.Context, id string) (model.URLMapping, error) {
	if f.getErr != nil {
		return model.URLMapping{}, f.getErr
	}
	return f.URLStorage.Get(ctx, id)
}

func (f *failingStorage) Save(ctx context.Context, m model.URLMapping) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.URLStorage.Save(ctx, m)
}

func (f *failingStorage) List(ctx context.Context) ([]model.URLMapping, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.URLStorage.List(ctx)
}

func newTestService(t *testing.T, opts ...Option) (*URLService, *memory.Storage, *fakeClock) {
	t.Helper()
	store := memory.NewStorage()
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewURLService(store, baseURL, 24*time.Hour, opts...), store, clock
}

func TestURLService_ShortenURL(t *testing.T) {
	tests := []struct {
		name          string
		url           string
		algorithm     string
		wantID        string
		wantAlgorithm string
		wantErr       error
	}{
		{
			name:          "default algorithm is md5",
			url:           "https://example.com",
			algorithm:     "",
			wantID:        "c984d06a",
			wantAlgorithm: "MD5",
		},
		{
			name:          "sha256",
			url:           "https://example.com",
			algorithm:     "sha256",
			wantID:        "100680ad54",
			wantAlgorithm: "SHA256",
		},
		{
			name:          "unknown algorithm uses crc32",
			url:           "https://example.com",
			algorithm:     "nope",
			wantID:        "ff295cdb",
			wantAlgorithm: "CRC32",
		},
		{
			name:          "surrounding whitespace is trimmed",
			url:           "  https://example.com  ",
			algorithm:     "MD5",
			wantID:        "c984d06a",
			wantAlgorithm: "MD5",
		},
		{name: "empty url", url: "", wantErr: ErrInvalidURL},
		{name: "blank url", url: "   ", wantErr: ErrInvalidURL},
		{name: "unsupported scheme", url: "ftp://example.com/file", wantErr: ErrInvalidURL},
		{name: "embedded space", url: "https://exa mple.com", wantErr: ErrInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, clock := newTestService(t)

			got, created, err := svc.ShortenURL(context.Background(), tt.url, tt.algorithm, "owner-1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.False(t, created)
				return
			}

			require.NoError(t, err)
			assert.True(t, created)
			assert.Equal(t, tt.wantID, got.ID)
			assert.Equal(t, tt.wantAlgorithm, got.Algorithm)
			assert.Equal(t, "https://example.com", got.OriginalURL)
			assert.Equal(t, "owner-1", got.OwnerID)
			assert.Equal(t, clock.Now(), got.CreatedDate)
			assert.Equal(t, clock.Now().Add(24*time.Hour), got.ExpiryDate)
			assert.Zero(t, got.ClickCount)
		})
	}
}

func TestURLService_ShortenURL_ExistingKeepsClicks(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	first, created, err := svc.ShortenURL(ctx, "https://example.com", "MD5", "alice")
	require.NoError(t, err)
	require.True(t, created)

	require.NoError(t, store.IncrementClicks(ctx, map[string]int64{first.ID: 9}))

	second, created, err := svc.ShortenURL(ctx, "https://example.com", "md5", "bob")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(9), second.ClickCount)
	assert.Equal(t, "alice", second.OwnerID)
}

func TestURLService_ShortenURL_Collision(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()

	// occupy the MD5 code of https://example.com with another target
	require.NoError(t, store.Save(ctx, model.URLMapping{
		ID:          "c984d06a",
		OriginalURL: "https://elsewhere.example",
		Algorithm:   "MD5",
		CreatedDate: clock.Now(),
		ExpiryDate:  clock.Now().Add(time.Hour),
	}))

	_, _, err := svc.ShortenURL(ctx, "https://example.com", "MD5", "")
	assert.ErrorIs(t, err, ErrCollision)
}

func TestURLService_ShortenURL_ReplacesExpired(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()

	old, _, err := svc.ShortenURL(ctx, "https://example.com", "MD5", "alice")
	require.NoError(t, err)
	require.NoError(t, store.IncrementClicks(ctx, map[string]int64{old.ID: 3}))

	clock.Advance(25 * time.Hour)

	fresh, created, err := svc.ShortenURL(ctx, "https://example.com", "MD5", "bob")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, old.ID, fresh.ID)
	assert.Zero(t, fresh.ClickCount)
	assert.Equal(t, "bob", fresh.OwnerID)
	assert.Equal(t, clock.Now(), fresh.CreatedDate)
}

func TestURLService_ShortenURL_Base62IsNotDeduplicated(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	a, createdA, err := svc.ShortenURL(ctx, "https://example.com", "BASE62", "")
	require.NoError(t, err)
	b, createdB, err := svc.ShortenURL(ctx, "https://example.com", "BASE62", "")
	require.NoError(t, err)

	assert.True(t, createdA)
	assert.True(t, createdB)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestURLService_ShortenURL_NoTTL(t *testing.T) {
	store := memory.NewStorage()
	svc := NewURLService(store, baseURL, 0)

	got, _, err := svc.ShortenURL(context.Background(), "https://example.com", "MD5", "")
	require.NoError(t, err)
	assert.True(t, got.ExpiryDate.IsZero())
}

func TestURLService_ShortenURL_StorageErrors(t *testing.T) {
	boom := errors.New("boom")

	svc := NewURLService(&failingStorage{URLStorage: memory.NewStorage(), getErr: boom}, baseURL, time.Hour)
	_, _, err := svc.ShortenURL(context.Background(), "https://example.com", "MD5", "")
	assert.ErrorIs(t, err, boom)

	svc = NewURLService(&failingStorage{URLStorage: memory.NewStorage(), saveErr: boom}, baseURL, time.Hour)
	_, _, err = svc.ShortenURL(context.Background(), "https://example.com", "MD5", "")
	assert.ErrorIs(t, err, boom)
}

func TestURLService_Resolve(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()

	withScheme, _, err := svc.ShortenURL(ctx, "https://example.com/page", "MD5", "")
	require.NoError(t, err)
	bare, _, err := svc.ShortenURL(ctx, "example.org/path", "CRC32", "")
	require.NoError(t, err)

	target, err := svc.Resolve(ctx, withScheme.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/page", target)

	target, err = svc.Resolve(ctx, bare.ID)
	require.NoError(t, err)
	assert.Equal(t, "http://example.org/path", target)

	_, err = svc.Resolve(ctx, withScheme.ID)
	require.NoError(t, err)

	got, err := store.Get(ctx, withScheme.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ClickCount)

	_, err = svc.Resolve(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	clock.Advance(24 * time.Hour)
	_, err = svc.Resolve(ctx, withScheme.ID)
	assert.ErrorIs(t, err, ErrExpired)

	got, err = store.Get(ctx, withScheme.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ClickCount, "expired links do not count clicks")
}

func TestURLService_Resolve_UsesRecorder(t *testing.T) {
	var recorded []string
	recorder := recorderFunc(func(id string) error {
		recorded = append(recorded, id)
		return nil
	})

	svc, store, _ := newTestService(t, WithClickRecorder(recorder))
	ctx := context.Background()

	m, _, err := svc.ShortenURL(ctx, "https://example.com", "MD5", "")
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, m.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{m.ID}, recorded)

	got, err := store.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Zero(t, got.ClickCount)
}

func TestURLService_RankingsAndStats(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()

	clicks := map[string]int64{
		"https://a.example": 5,
		"https://b.example": 50,
		"https://c.example": 1,
	}
	ids := make(map[string]string)
	for u, n := range clicks {
		m, _, err := svc.ShortenURL(ctx, u, "MD5", "")
		require.NoError(t, err)
		ids[u] = m.ID
		require.NoError(t, store.IncrementClicks(ctx, map[string]int64{m.ID: n}))
	}

	// an expired link with many clicks never ranks
	require.NoError(t, store.Save(ctx, model.URLMapping{
		ID:          "stale",
		OriginalURL: "https://stale.example",
		CreatedDate: clock.Now().Add(-48 * time.Hour),
		ExpiryDate:  clock.Now().Add(-time.Hour),
		ClickCount:  1000,
	}))

	top, err := svc.Rankings(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, ids["https://b.example"], top[0].ID)
	assert.Equal(t, ids["https://a.example"], top[1].ID)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.RankingStats{
		TotalURLs:     3,
		TotalClicks:   56,
		AverageClicks: 56.0 / 3.0,
		MaxClicks:     50,
	}, stats)
}

func TestURLService_RankingsEmpty(t *testing.T) {
	svc, _, _ := newTestService(t)

	top, err := svc.Rankings(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, top)
	assert.Empty(t, top)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RankingStats{}, stats)
}

func TestURLService_RankingsStorageError(t *testing.T) {
	boom := errors.New("boom")
	svc := NewURLService(&failingStorage{URLStorage: memory.NewStorage(), listErr: boom}, baseURL, time.Hour)

	_, err := svc.Rankings(context.Background(), 10)
	assert.ErrorIs(t, err, boom)

	_, err = svc.Stats(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestURLService_DeleteURL(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	owned, _, err := svc.ShortenURL(ctx, "https://owned.example", "MD5", "alice")
	require.NoError(t, err)
	anonymous, _, err := svc.ShortenURL(ctx, "https://anon.example", "MD5", "")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteURL(ctx, owned.ID, "bob"), ErrForbidden)
	assert.ErrorIs(t, svc.DeleteURL(ctx, anonymous.ID, ""), ErrForbidden)
	assert.ErrorIs(t, svc.DeleteURL(ctx, "missing", "alice"), storage.ErrNotFound)

	require.NoError(t, svc.DeleteURL(ctx, owned.ID, "alice"))
	_, err = svc.GetURL(ctx, owned.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestURLService_UserURLs(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	first, _, err := svc.ShortenURL(ctx, "https://first.example", "MD5", "alice")
	require.NoError(t, err)
	clock.Advance(time.Minute)
	second, _, err := svc.ShortenURL(ctx, "https://second.example", "MD5", "alice")
	require.NoError(t, err)
	_, _, err = svc.ShortenURL(ctx, "https://other.example", "MD5", "bob")
	require.NoError(t, err)

	urls, err := svc.UserURLs(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, urls, 2)
	assert.Equal(t, second.ID, urls[0].ID)
	assert.Equal(t, first.ID, urls[1].ID)
}

func TestURLService_ShortURL(t *testing.T) {
	svc := NewURLService(memory.NewStorage(), "http://sho.rt/", time.Hour)
	assert.Equal(t, "http://sho.rt/r/abc", svc.ShortURL("abc"))
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{url: "https://example.com", wantErr: false},
		{url: "http://example.com/a?b=c#d", wantErr: false},
		{url: "HTTPS://EXAMPLE.COM", wantErr: false},
		{url: "example.com", wantErr: false},
		{url: "example.com/path", wantErr: false},
		{url: "", wantErr: true},
		{url: "https://", wantErr: true},
		{url: "mailto://someone", wantErr: true},
		{url: "javascript://alert(1)", wantErr: true},
		{url: "https://exa mple.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidURL)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRedirectTarget(t *testing.T) {
	assert.Equal(t, "https://example.com", RedirectTarget("https://example.com"))
	assert.Equal(t, "http://example.com", RedirectTarget("http://example.com"))
	assert.Equal(t, "HTTPS://EXAMPLE.COM", RedirectTarget("HTTPS://EXAMPLE.COM"))
	assert.Equal(t, "http://example.com", RedirectTarget("example.com"))
	assert.Equal(t, "http://httpbin.org/get", RedirectTarget("httpbin.org/get"))
}
