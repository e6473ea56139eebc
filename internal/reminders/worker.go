package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dentalops/booking-engine/internal/clinic"
	"github.com/dentalops/booking-engine/internal/observability/metrics"
	"github.com/dentalops/booking-engine/pkg/logging"
)

// Sender delivers one reminder over a specific channel.
type Sender interface {
	Send(ctx context.Context, r DueReminder, loc *time.Location) error
}

// dispatchStore is the subset of Store the worker needs.
type dispatchStore interface {
	ClaimDue(ctx context.Context, asOf time.Time, limit int) ([]DueReminder, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	SweepStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// Worker is the periodic dispatch loop. Delivery is fire-once best-effort:
// rows are claimed before sending and a failure is terminal.
type Worker struct {
	store    dispatchStore
	settings settingsSource
	senders  map[clinic.Channel]Sender
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger

	interval   time.Duration
	batchSize  int
	staleAfter time.Duration
}

// NewWorker creates a reminder dispatch worker.
func NewWorker(store dispatchStore, settings settingsSource, senders map[clinic.Channel]Sender, m *metrics.BookingMetrics, logger *logging.Logger) *Worker {
	if store == nil || settings == nil {
		panic("reminders: store and settings required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Worker{
		store:      store,
		settings:   settings,
		senders:    senders,
		metrics:    m,
		logger:     logger,
		interval:   5 * time.Minute,
		batchSize:  50,
		staleAfter: 30 * time.Minute,
	}
}

// WithInterval overrides the scan interval.
func (w *Worker) WithInterval(d time.Duration) *Worker {
	if d > 0 {
		w.interval = d
	}
	return w
}

// WithBatchSize overrides how many reminders one pass claims.
func (w *Worker) WithBatchSize(n int) *Worker {
	if n > 0 {
		w.batchSize = n
	}
	return w
}

// WithStaleAfter overrides how long a claimed row may sit in "sending"
// before the sweep fails it.
func (w *Worker) WithStaleAfter(d time.Duration) *Worker {
	if d > 0 {
		w.staleAfter = d
	}
	return w
}

// Run processes due reminders on a fixed interval until the context ends.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("reminder worker started", "interval", w.interval)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("reminder worker stopped")
			return
		case <-ticker.C:
			if _, err := w.ProcessDue(ctx); err != nil {
				w.logger.Error("reminder pass failed", "error", err)
			}
		}
	}
}

// ProcessDue claims and dispatches one batch of due reminders. Returns how
// many were delivered.
func (w *Worker) ProcessDue(ctx context.Context) (int, error) {
	now := time.Now().UTC()

	if swept, err := w.store.SweepStale(ctx, now.Add(-w.staleAfter)); err != nil {
		w.logger.Error("stale reminder sweep failed", "error", err)
	} else if swept > 0 {
		w.logger.Warn("stale in-flight reminders failed", "count", swept)
	}

	due, err := w.store.ClaimDue(ctx, now, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("reminders: claim due: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	st, err := w.settings.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("reminders: load settings: %w", err)
	}
	loc := st.Location()

	sent := 0
	for i := range due {
		if w.dispatchOne(ctx, &due[i], loc) {
			sent++
		}
	}
	w.logger.Info("reminder pass complete", "claimed", len(due), "sent", sent)
	return sent, nil
}

func (w *Worker) dispatchOne(ctx context.Context, r *DueReminder, loc *time.Location) bool {
	sender, ok := w.senders[r.Channel]
	if !ok {
		w.fail(ctx, r, fmt.Sprintf("no sender for channel %q", r.Channel))
		return false
	}

	if err := sender.Send(ctx, *r, loc); err != nil {
		w.fail(ctx, r, err.Error())
		return false
	}

	if err := w.store.MarkSent(ctx, r.ID); err != nil {
		w.logger.Error("reminder sent but not marked", "id", r.ID, "error", err)
		return false
	}
	w.metrics.ObserveReminder(string(r.Channel), "sent")
	return true
}

func (w *Worker) fail(ctx context.Context, r *DueReminder, reason string) {
	w.logger.Error("reminder dispatch failed",
		"id", r.ID, "channel", r.Channel, "reference", r.Reference, "reason", reason)
	if err := w.store.MarkFailed(ctx, r.ID, reason); err != nil {
		w.logger.Error("reminder not marked failed", "id", r.ID, "error", err)
	}
	w.metrics.ObserveReminder(string(r.Channel), "failed")
}
