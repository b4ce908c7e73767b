package journal

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/socket-client/internal/connection"
	"github.com/rickgao/socket-client/internal/router"
)

// Recorder turns routed messages into journal entries and writes them to a
// Store in batches.
type Recorder struct {
	cfg     Config
	store   Store
	logger  *slog.Logger
	metrics Metrics

	router *router.Router
	queue  *Queue[Entry]

	// Serializes batch writes
	flushMu sync.Mutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	statsMu sync.Mutex
	stats   Stats

	now func() time.Time
}

// NewRecorder creates a Recorder. A nil metrics disables telemetry.
func NewRecorder(cfg Config, store Store, m Metrics, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = nopMetrics{}
	}
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}

	r := &Recorder{
		cfg:     cfg,
		store:   store,
		logger:  logger.With("component", "journal"),
		metrics: m,
		router:  router.New(),
		queue:   NewQueue[Entry](min(cfg.BatchSize, cfg.BufferSize)),
		now:     time.Now,
	}

	r.router.OnText(func(s string) {
		r.record(KindText, []byte(s))
	})
	r.router.OnStructured(func(v any) {
		b, err := json.Marshal(v)
		if err != nil {
			r.logger.Warn("re-encode structured payload", "error", err)
			return
		}
		r.record(KindStructured, b)
	})
	r.router.OnBinary(func(b []byte) {
		r.record(KindBinary, append([]byte(nil), b...))
	})
	return r
}

// Router returns the router feeding the journal.
func (r *Recorder) Router() *router.Router {
	return r.router
}

// Attach starts recording messages received on c.
func (r *Recorder) Attach(c *connection.Conn) {
	c.AttachRouter(r.router)
}

// Detach stops recording messages received on c.
func (r *Recorder) Detach(c *connection.Conn) {
	c.DetachRouter(r.router)
}

// Start begins writing entries to the store.
func (r *Recorder) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.run()

	r.logger.Info("journal started",
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
		"buffer_size", r.cfg.BufferSize,
	)
	return nil
}

// Stop halts the write loop and flushes everything still pending using ctx.
func (r *Recorder) Stop(ctx context.Context) error {
	r.logger.Info("stopping journal")

	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		r.logger.Warn("journal stop timed out")
	}

	r.queue.Close()

	// Final flush
	for r.flushBatch(ctx) > 0 {
	}

	st := r.Stats()
	r.logger.Info("journal stopped",
		"inserts", st.Inserts,
		"errors", st.Errors,
		"dropped", st.Dropped,
	)
	return nil
}

// Stats returns current counters.
func (r *Recorder) Stats() Stats {
	r.statsMu.Lock()
	st := r.stats
	r.statsMu.Unlock()
	st.Pending = r.queue.Len()
	return st
}

// record enqueues one entry, dropping it if the queue is full or closed.
func (r *Recorder) record(kind string, payload []byte) {
	e := Entry{
		ID:         uuid.New(),
		Source:     r.cfg.Source,
		Kind:       kind,
		Payload:    payload,
		ReceivedAt: r.now(),
	}

	if r.queue.Len() >= r.cfg.BufferSize || !r.queue.Push(e) {
		r.statsMu.Lock()
		r.stats.Dropped++
		r.statsMu.Unlock()
		r.metrics.JournalDropped(1)
		return
	}
	r.metrics.JournalPending(r.queue.Len())
}

// run flushes full batches as they fill and everything pending on each tick.
func (r *Recorder) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.queue.Ready():
			for r.queue.Len() >= r.cfg.BatchSize {
				if r.flushBatch(r.ctx) == 0 {
					break
				}
			}
		case <-ticker.C:
			for r.flushBatch(r.ctx) > 0 {
			}
		}
	}
}

// flushBatch writes up to BatchSize pending entries and returns how many it
// took off the queue. Entries of a failed write are discarded.
func (r *Recorder) flushBatch(ctx context.Context) int {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	batch := r.queue.Drain(r.cfg.BatchSize)
	if len(batch) == 0 {
		return 0
	}

	start := time.Now()
	inserted, err := r.store.InsertBatch(ctx, batch)
	r.metrics.JournalFlushed(inserted, err)
	r.metrics.JournalPending(r.queue.Len())

	r.statsMu.Lock()
	if err != nil {
		r.stats.Errors++
	} else {
		r.stats.Inserts += int64(inserted)
		r.stats.Flushes++
	}
	r.statsMu.Unlock()

	if err != nil {
		r.logger.Error("journal batch insert failed", "error", err, "count", len(batch))
		return len(batch)
	}

	r.logger.Debug("flushed journal",
		"count", len(batch),
		"inserted", inserted,
		"duration", time.Since(start),
	)
	return len(batch)
}
