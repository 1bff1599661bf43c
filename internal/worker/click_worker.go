package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MikhailRaia/shortlinks/internal/pool"
)

// ErrPoolClosed is returned by Record after Shutdown has started.
var ErrPoolClosed = errors.New("click worker pool is closed")

const flushTimeout = 5 * time.Second

// ClickStore persists aggregated click counts. The counts map is reused
// after IncrementClicks returns and must not be retained.
type ClickStore interface {
	IncrementClicks(ctx context.Context, counts map[string]int64) error
}

// clickBatch is the per-worker aggregate of clicks awaiting a flush.
type clickBatch struct {
	counts map[string]int64 // short code -> clicks
	clicks int
}

func newClickBatch() *clickBatch {
	return &clickBatch{counts: make(map[string]int64)}
}

func (b *clickBatch) Reset() {
	clear(b.counts)
	b.clicks = 0
}

// ClickWorkerPool aggregates redirect clicks and writes them to storage in batches.
type ClickWorkerPool struct {
	store        ClickStore
	requestChan  chan string
	batchSize    int
	batchTimeout time.Duration
	workerCount  int
	batches      *pool.Pool[*clickBatch]
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	closeMu      sync.RWMutex
	closed       bool
	shutdownOnce sync.Once
}

type Config struct {
	WorkerCount  int           // number of workers
	BufferSize   int           // click queue capacity
	BatchSize    int           // clicks per flush
	BatchTimeout time.Duration // max time a click waits before flushing
}

func DefaultConfig() Config {
	return Config{
		WorkerCount:  4,
		BufferSize:   1024,
		BatchSize:    100,
		BatchTimeout: time.Second,
	}
}

func NewClickWorkerPool(store ClickStore, config Config) *ClickWorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	return &ClickWorkerPool{
		store:        store,
		requestChan:  make(chan string, config.BufferSize),
		batchSize:    config.BatchSize,
		batchTimeout: config.BatchTimeout,
		workerCount:  config.WorkerCount,
		batches:      pool.New(config.WorkerCount, newClickBatch),
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (p *ClickWorkerPool) Start() {
	log.Info().
		Int("workers", p.workerCount).
		Int("batchSize", p.batchSize).
		Dur("batchTimeout", p.batchTimeout).
		Msg("Starting click worker pool")

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

func (p *ClickWorkerPool) worker(id int) {
	defer p.wg.Done()

	log.Debug().Int("workerID", id).Msg("Worker started")

	batch := p.batches.Get()
	defer func() { p.batches.Put(batch) }()
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if batch.clicks == 0 {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()

		if err := p.store.IncrementClicks(ctx, batch.counts); err != nil {
			log.Error().
				Err(err).
				Int("workerID", id).
				Int("links", len(batch.counts)).
				Int("clicks", batch.clicks).
				Msg("Failed to flush clicks")
		} else {
			log.Debug().
				Int("workerID", id).
				Int("links", len(batch.counts)).
				Int("clicks", batch.clicks).
				Msg("Flushed clicks")
		}

		p.batches.Put(batch)
		batch = p.batches.Get()
	}

	startTimer := func() {
		if timer == nil {
			timer = time.NewTimer(p.batchTimeout)
		} else {
			timer.Reset(p.batchTimeout)
		}
		timerC = timer.C
	}

	stopTimer := func() {
		if timer == nil {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timerC = nil
	}

	for {
		// a forced shutdown wins over queued clicks
		select {
		case <-p.ctx.Done():
			log.Debug().Int("workerID", id).Msg("Worker shutting down")
			flush()
			stopTimer()
			return
		default:
		}

		select {
		case <-p.ctx.Done():
			log.Debug().Int("workerID", id).Msg("Worker shutting down")
			flush()
			stopTimer()
			return

		case shortID, ok := <-p.requestChan:
			if !ok {
				log.Debug().Int("workerID", id).Msg("Click channel closed, flushing remaining batch")
				flush()
				stopTimer()
				return
			}

			if batch.clicks == 0 {
				startTimer()
			}
			batch.counts[shortID]++
			batch.clicks++

			if batch.clicks >= p.batchSize {
				flush()
				stopTimer()
			}

		case <-timerC:
			timerC = nil
			flush()
		}
	}
}

// Record queues one click for shortID. It blocks while the queue is full.
func (p *ClickWorkerPool) Record(shortID string) error {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.requestChan <- shortID:
		return nil
	default:
		log.Warn().Str("id", shortID).Msg("Click channel is full, blocking")

		select {
		case <-p.ctx.Done():
			return context.Canceled
		case p.requestChan <- shortID:
			return nil
		}
	}
}

// Shutdown stops accepting clicks and waits for queued ones to be flushed.
// After timeout the workers are cancelled and flush what they already hold.
func (p *ClickWorkerPool) Shutdown(timeout time.Duration) error {
	var shutdownErr error

	p.shutdownOnce.Do(func() {
		log.Info().Msg("Shutting down click worker pool")

		// unblock senders waiting on a full queue before taking the write lock
		timer := time.AfterFunc(timeout, p.cancel)
		p.closeMu.Lock()
		p.closed = true
		close(p.requestChan)
		p.closeMu.Unlock()

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			timer.Stop()
			log.Info().Msg("Click worker pool shut down gracefully")
		case <-p.ctx.Done():
			log.Warn().Msg("Click worker pool shutdown timeout, forcing shutdown")
			<-done
			shutdownErr = context.DeadlineExceeded
		}
		p.cancel()
	})

	return shutdownErr
}

func (p *ClickWorkerPool) Stats() PoolStats {
	return PoolStats{
		QueueSize:   len(p.requestChan),
		QueueCap:    cap(p.requestChan),
		WorkerCount: p.workerCount,
	}
}

type PoolStats struct {
	QueueSize   int
	QueueCap    int
	WorkerCount int
}
