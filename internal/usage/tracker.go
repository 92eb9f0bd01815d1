// Package usage implements the Usage Tracker (spec.md C8, §4.8): an
// async, buffered writer that appends UsageEvent rows without blocking
// the orchestrator's hot path. Grounded on the teacher's audit log
// writer (internal/audit/audit.go): buffered channel, periodic ticker
// flush, batch writes, drop-on-full with a warning instead of blocking.
package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pulsekeeper/pulsekeeper/internal/pulse"
)

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// Repo is the subset of *pulse.Repository the tracker needs.
type Repo interface {
	AppendUsageEvent(ctx context.Context, e pulse.UsageEvent) error
}

// Writer is an async, buffered UsageEvent writer.
type Writer struct {
	repo    Repo
	logger  *slog.Logger
	events  chan pulse.UsageEvent
	wg      sync.WaitGroup
}

// NewWriter creates a usage-event Writer. Call Start to begin processing.
func NewWriter(repo Repo, logger *slog.Logger) *Writer {
	return &Writer{
		repo:   repo,
		logger: logger,
		events: make(chan pulse.UsageEvent, bufferSize),
	}
}

// Start begins the background flush loop. It returns once ctx is
// cancelled and all pending events are flushed.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close waits for all pending events to be flushed.
func (w *Writer) Close() {
	close(w.events)
	w.wg.Wait()
}

// Record enqueues a usage event for async writing. Never blocks; if the
// buffer is full the event is dropped and a warning is logged.
func (w *Writer) Record(e pulse.UsageEvent) {
	select {
	case w.events <- e:
	default:
		w.logger.Warn("usage event buffer full, dropping event",
			"pulse_id", e.PulseID, "kind", e.Kind)
	}
}

func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]pulse.UsageEvent, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case e, ok := <-w.events:
			if !ok {
				flush()
				return
			}
			batch = append(batch, e)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case e, ok := <-w.events:
					if !ok {
						flush()
						return
					}
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (w *Writer) flush(batch []pulse.UsageEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, e := range batch {
		if err := w.repo.AppendUsageEvent(ctx, e); err != nil {
			w.logger.Error("writing usage event", "error", err,
				"pulse_id", e.PulseID, "kind", e.Kind)
		}
	}
}
