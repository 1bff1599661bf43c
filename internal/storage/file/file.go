package file

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/MikhailRaia/shortlinks/internal/model"
	"github.com/MikhailRaia/shortlinks/internal/storage"
	"github.com/MikhailRaia/shortlinks/internal/storage/memory"
)

const (
	opSave   = "save"
	opClick  = "click"
	opDelete = "delete"
)

// record is one line of the append-only log.
type record struct {
	UUID        string    `json:"uuid"`
	Op          string    `json:"op"`
	ShortURL    string    `json:"short_url"`
	OriginalURL string    `json:"original_url,omitempty"`
	Algorithm   string    `json:"algorithm,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Clicks      int64     `json:"clicks,omitempty"`
}

// Storage implements URLStorage backed by an append-only JSONL file.
// The full state is replayed into memory on start.
type Storage struct {
	filePath  string
	state     *memory.Storage
	file      *os.File
	idCounter int
	mu        sync.Mutex
}

// NewStorage creates a file-backed storage at the provided path.
func NewStorage(filePath string) (*Storage, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	s := &Storage{
		filePath: filePath,
		state:    memory.NewStorage(),
	}

	if err := s.loadFromFile(); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file for writing: %w", err)
	}
	s.file = file

	return s, nil
}

func (s *Storage) Save(ctx context.Context, mapping model.URLMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.state.Save(ctx, mapping); err != nil {
		return err
	}

	if err := s.appendRecord(saveRecord(mapping)); err != nil {
		_ = s.state.Delete(ctx, mapping.ID)
		return err
	}
	return nil
}

func (s *Storage) Get(ctx context.Context, id string) (model.URLMapping, error) {
	return s.state.Get(ctx, id)
}

func (s *Storage) List(ctx context.Context) ([]model.URLMapping, error) {
	return s.state.List(ctx)
}

func (s *Storage) ListByOwner(ctx context.Context, ownerID string) ([]model.URLMapping, error) {
	return s.state.ListByOwner(ctx, ownerID)
}

func (s *Storage) IncrementClicks(ctx context.Context, counts map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, n := range counts {
		if _, err := s.state.Get(ctx, id); err != nil {
			continue
		}
		if err := s.appendRecord(record{Op: opClick, ShortURL: id, Clicks: n}); err != nil {
			return fmt.Errorf("failed to save click record: %w", err)
		}
		if err := s.state.IncrementClicks(ctx, map[string]int64{id: n}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.delete(ctx, id)
}

func (s *Storage) delete(ctx context.Context, id string) error {
	if _, err := s.state.Get(ctx, id); err != nil {
		return err
	}
	if err := s.appendRecord(record{Op: opDelete, ShortURL: id}); err != nil {
		return fmt.Errorf("failed to save deletion record: %w", err)
	}
	return s.state.Delete(ctx, id)
}

func (s *Storage) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.state.List(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, mapping := range all {
		if !mapping.Expired(now) {
			continue
		}
		if err := s.delete(ctx, mapping.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Ping checks that the log file is still reachable.
func (s *Storage) Ping(context.Context) error {
	_, err := os.Stat(s.filePath)
	return err
}

func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *Storage) loadFromFile() error {
	file, err := os.OpenFile(s.filePath, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	ctx := context.Background()
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	maxID := 0

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal record: %w", err)
		}

		switch rec.Op {
		case opSave:
			_ = s.state.Delete(ctx, rec.ShortURL)
			if err := s.state.Save(ctx, rec.mapping()); err != nil {
				return fmt.Errorf("failed to restore %s: %w", rec.ShortURL, err)
			}
		case opClick:
			_ = s.state.IncrementClicks(ctx, map[string]int64{rec.ShortURL: rec.Clicks})
		case opDelete:
			if err := s.state.Delete(ctx, rec.ShortURL); err != nil && !errors.Is(err, storage.ErrNotFound) {
				return err
			}
		default:
			return fmt.Errorf("unknown record operation %q", rec.Op)
		}

		if id, err := strconv.Atoi(rec.UUID); err == nil && id > maxID {
			maxID = id
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading file: %w", err)
	}

	s.idCounter = maxID
	return nil
}

func (s *Storage) appendRecord(rec record) error {
	if s.file == nil {
		return errors.New("storage is closed")
	}

	s.idCounter++
	rec.UUID = strconv.Itoa(s.idCounter)

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	return nil
}

func saveRecord(m model.URLMapping) record {
	return record{
		Op:          opSave,
		ShortURL:    m.ID,
		OriginalURL: m.OriginalURL,
		Algorithm:   m.Algorithm,
		UserID:      m.OwnerID,
		CreatedAt:   m.CreatedDate,
		ExpiresAt:   m.ExpiryDate,
		Clicks:      m.ClickCount,
	}
}

func (r record) mapping() model.URLMapping {
	return model.URLMapping{
		ID:          r.ShortURL,
		OriginalURL: r.OriginalURL,
		Algorithm:   r.Algorithm,
		CreatedDate: r.CreatedAt,
		ExpiryDate:  r.ExpiresAt,
		ClickCount:  r.Clicks,
		OwnerID:     r.UserID,
	}
}
