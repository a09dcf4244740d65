package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ShimantoKabir/ABTestingToolServer/internal/domain"
	"github.com/ShimantoKabir/ABTestingToolServer/internal/pkg/logger"
	"github.com/ShimantoKabir/ABTestingToolServer/internal/service/decision"
)

// RetryPolicy controls how a failed assignment write is handled.
// MaxAttempts <= 1 means log-and-drop on the first failure; anything higher
// retries with a fixed backoff between attempts. Dropping is safe: the next
// request for the same visitor re-buckets deterministically and retries
// persistence.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// AssignmentWriterConfig holds tunables for the writer pool.
type AssignmentWriterConfig struct {
	NumWorkers   int
	QueueSize    int
	WriteTimeout time.Duration
	Retry        RetryPolicy
}

// AssignmentWriter persists assignments off the decision path. The decision
// engine enqueues fire-and-forget; a fixed pool of workers drains the
// buffered channel and writes through the assignment repository, which
// absorbs duplicate-key races.
//
// Writers run on their own context: a caller disconnecting mid-decision
// never cancels an in-flight persistence.
type AssignmentWriter struct {
	repo         decision.AssignmentRepository
	workerID     string
	numWorkers   int
	writeTimeout time.Duration
	retry        RetryPolicy
	queue        chan domain.Assignment

	// Stats
	totalWritten   int64
	totalDuplicate int64
	totalFailed    int64
	totalDropped   int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewAssignmentWriter creates a writer pool with the given config.
func NewAssignmentWriter(repo decision.AssignmentRepository, cfg AssignmentWriterConfig) *AssignmentWriter {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 1
	}
	return &AssignmentWriter{
		repo:         repo,
		workerID:     fmt.Sprintf("abwriter-%s", uuid.New().String()[:8]),
		numWorkers:   cfg.NumWorkers,
		writeTimeout: cfg.WriteTimeout,
		retry:        cfg.Retry,
		queue:        make(chan domain.Assignment, cfg.QueueSize),
	}
}

// Start launches the worker goroutines.
func (w *AssignmentWriter) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("assignment writer already running")
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.running = true

	for i := 0; i < w.numWorkers; i++ {
		w.wg.Add(1)
		go w.run()
	}
	logger.Info("assignment writer started",
		"worker_id", w.workerID, "workers", w.numWorkers)
	return nil
}

// Stop shuts the pool down, waiting for in-flight writes to finish.
// Entries still buffered in the queue are dropped and counted.
func (w *AssignmentWriter) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()

	dropped := len(w.queue)
	if dropped > 0 {
		atomic.AddInt64(&w.totalDropped, int64(dropped))
		logger.Warn("assignment writer stopped with queued writes",
			"worker_id", w.workerID, "dropped", dropped)
	}
}

// Enqueue hands an assignment to the pool without blocking. Returns false
// when the queue is full or the pool is stopped; the write is dropped and
// counted, never retried here.
func (w *AssignmentWriter) Enqueue(a domain.Assignment) bool {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()
	if !running {
		atomic.AddInt64(&w.totalDropped, 1)
		return false
	}

	select {
	case w.queue <- a:
		return true
	default:
		atomic.AddInt64(&w.totalDropped, 1)
		return false
	}
}

func (w *AssignmentWriter) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case a := <-w.queue:
			w.persist(a)
		}
	}
}

// persist writes one assignment. An existing row for the pair means a
// concurrent writer or an earlier request won; that is the expected outcome,
// not a failure.
func (w *AssignmentWriter) persist(a domain.Assignment) {
	ctx, cancel := context.WithTimeout(context.Background(), w.writeTimeout)
	defer cancel()

	if _, err := w.repo.Get(ctx, a.ExperimentID, a.EndUserID); err == nil {
		atomic.AddInt64(&w.totalDuplicate, 1)
		return
	} else if !errors.Is(err, decision.ErrAssignmentNotFound) {
		logger.Warn("assignment pre-check failed, attempting insert anyway",
			"experiment_id", a.ExperimentID, "error", err)
	}

	var lastErr error
	for attempt := 1; attempt <= w.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(w.retry.Backoff):
			case <-w.ctx.Done():
				// Shutdown during backoff: finish this write without
				// waiting out the delay.
			}
		}
		committed, err := w.repo.Create(ctx, &a)
		if err == nil {
			if committed.VariationID != a.VariationID {
				atomic.AddInt64(&w.totalDuplicate, 1)
			} else {
				atomic.AddInt64(&w.totalWritten, 1)
			}
			return
		}
		lastErr = err
	}

	atomic.AddInt64(&w.totalFailed, 1)
	logger.Error("assignment write failed, dropping",
		"experiment_id", a.ExperimentID, "attempts", w.retry.MaxAttempts,
		"error", lastErr)
}

// Stats is a snapshot of writer counters.
type Stats struct {
	Written   int64 `json:"written"`
	Duplicate int64 `json:"duplicate"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
	Queued    int   `json:"queued"`
}

// Stats returns current counters.
func (w *AssignmentWriter) Stats() Stats {
	return Stats{
		Written:   atomic.LoadInt64(&w.totalWritten),
		Duplicate: atomic.LoadInt64(&w.totalDuplicate),
		Failed:    atomic.LoadInt64(&w.totalFailed),
		Dropped:   atomic.LoadInt64(&w.totalDropped),
		Queued:    len(w.queue),
	}
}
