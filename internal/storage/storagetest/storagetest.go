// Package storagetest holds the behaviour every storage.URLStorage backend must share.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikhailRaia/shortlinks/internal/model"
	"github.com/MikhailRaia/shortlinks/internal/storage"
)

// Factory returns an empty storage. Run closes it when the subtest ends.
type Factory func(t *testing.T) storage.URLStorage

var baseTime = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

// Mapping builds a mapping created at baseTime plus offset and expiring after ttl.
func Mapping(id, originalURL string, offset, ttl time.Duration) model.URLMapping {
	created := baseTime.Add(offset)
	return model.URLMapping{
		ID:          id,
		OriginalURL: originalURL,
		Algorithm:   "MD5",
		CreatedDate: created,
		ExpiryDate:  created.Add(ttl),
	}
}

// AssertMapping compares mappings, treating timestamps by instant rather than location.
func AssertMapping(t *testing.T, want, got model.URLMapping) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.OriginalURL, got.OriginalURL)
	assert.Equal(t, want.Algorithm, got.Algorithm)
	assert.Equal(t, want.ClickCount, got.ClickCount)
	assert.Equal(t, want.OwnerID, got.OwnerID)
	assert.True(t, want.CreatedDate.Equal(got.CreatedDate), "createdDate: want %v, got %v", want.CreatedDate, got.CreatedDate)
	assert.True(t, want.ExpiryDate.Equal(got.ExpiryDate), "expiryDate: want %v, got %v", want.ExpiryDate, got.ExpiryDate)
}

// Run executes the shared storage behaviour against backends produced by newStorage.
func Run(t *testing.T, newStorage Factory) {
	open := func(t *testing.T) storage.URLStorage {
		s := newStorage(t)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	t.Run("save and get", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		m := Mapping("abc12345", "https://example.com", 0, 24*time.Hour)
		m.OwnerID = "user-1"
		require.NoError(t, s.Save(ctx, m))

		got, err := s.Get(ctx, "abc12345")
		require.NoError(t, err)
		AssertMapping(t, m, got)
	})

	t.Run("save duplicate id", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		require.NoError(t, s.Save(ctx, Mapping("dup", "https://a.example", 0, time.Hour)))
		err := s.Save(ctx, Mapping("dup", "https://b.example", 0, time.Hour))
		assert.ErrorIs(t, err, storage.ErrURLExists)

		got, err := s.Get(ctx, "dup")
		require.NoError(t, err)
		assert.Equal(t, "https://a.example", got.OriginalURL)
	})

	t.Run("get missing", func(t *testing.T) {
		s := open(t)

		_, err := s.Get(context.Background(), "nonexistent")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("list", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		all, err := s.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)

		require.NoError(t, s.Save(ctx, Mapping("one", "https://one.example", 0, time.Hour)))
		require.NoError(t, s.Save(ctx, Mapping("two", "https://two.example", time.Minute, time.Hour)))

		all, err = s.List(ctx)
		require.NoError(t, err)
		ids := make([]string, 0, len(all))
		for _, m := range all {
			ids = append(ids, m.ID)
		}
		assert.ElementsMatch(t, []string{"one", "two"}, ids)
	})

	t.Run("list by owner newest first", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		older := Mapping("older", "https://older.example", 0, time.Hour)
		older.OwnerID = "alice"
		newer := Mapping("newer", "https://newer.example", time.Minute, time.Hour)
		newer.OwnerID = "alice"
		other := Mapping("other", "https://other.example", 2*time.Minute, time.Hour)
		other.OwnerID = "bob"

		for _, m := range []model.URLMapping{older, newer, other} {
			require.NoError(t, s.Save(ctx, m))
		}

		got, err := s.ListByOwner(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "newer", got[0].ID)
		assert.Equal(t, "older", got[1].ID)

		got, err = s.ListByOwner(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("increment clicks", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		require.NoError(t, s.Save(ctx, Mapping("a", "https://a.example", 0, time.Hour)))
		require.NoError(t, s.Save(ctx, Mapping("b", "https://b.example", 0, time.Hour)))

		require.NoError(t, s.IncrementClicks(ctx, map[string]int64{"a": 3, "b": 1, "ghost": 7}))
		require.NoError(t, s.IncrementClicks(ctx, map[string]int64{"a": 2}))
		require.NoError(t, s.IncrementClicks(ctx, nil))

		a, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, int64(5), a.ClickCount)

		b, err := s.Get(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, int64(1), b.ClickCount)

		_, err = s.Get(ctx, "ghost")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		require.NoError(t, s.Save(ctx, Mapping("gone", "https://gone.example", 0, time.Hour)))
		require.NoError(t, s.Delete(ctx, "gone"))

		_, err := s.Get(ctx, "gone")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		assert.ErrorIs(t, s.Delete(ctx, "gone"), storage.ErrNotFound)

		// the id can be reused once deleted
		require.NoError(t, s.Save(ctx, Mapping("gone", "https://back.example", 0, time.Hour)))
	})

	t.Run("delete expired", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		expired := Mapping("expired", "https://expired.example", 0, time.Hour)
		alive := Mapping("alive", "https://alive.example", 0, 48*time.Hour)
		forever := Mapping("forever", "https://forever.example", 0, 0)
		forever.ExpiryDate = time.Time{}

		for _, m := range []model.URLMapping{expired, alive, forever} {
			require.NoError(t, s.Save(ctx, m))
		}

		removed, err := s.DeleteExpired(ctx, baseTime.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		_, err = s.Get(ctx, "expired")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		_, err = s.Get(ctx, "alive")
		assert.NoError(t, err)

		got, err := s.Get(ctx, "forever")
		require.NoError(t, err)
		assert.True(t, got.ExpiryDate.IsZero())

		removed, err = s.DeleteExpired(ctx, baseTime.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 0, removed)
	})

	t.Run("ping", func(t *testing.T) {
		s := open(t)
		assert.NoError(t, s.Ping(context.Background()))
	})
}
