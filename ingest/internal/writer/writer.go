// Package writer appends validated events to their hourly partition object.
package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lensai/lensai-stack/common/logging"
	"github.com/lensai/lensai-stack/ingest/internal/metrics"
	"github.com/lensai/lensai-stack/ingest/internal/objectstore"
	"github.com/lensai/lensai-stack/ingest/internal/partition"
	"github.com/lensai/lensai-stack/ingest/pkg/dlq"
	"github.com/lensai/lensai-stack/ingest/pkg/models"
)

const maxBackoff = 2 * time.Second

// Ack describes a committed append.
type Ack struct {
	Key   string
	Bytes int
}

// StoreError is returned when the object store rejected the append on every attempt.
type StoreError struct {
	Key      string
	Attempts int
	Err      error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("append %s failed after %d attempt(s): %v", e.Key, e.Attempts, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Config tunes retries and timeouts. Zero values fall back to defaults.
type Config struct {
	Backend       string
	RetryAttempts int
	RetryBackoff  time.Duration
	Timeout       time.Duration
}

// Writer serializes events and appends them to the store.
type Writer struct {
	store   objectstore.Store
	dlq     dlq.Writer
	logger  *logging.Logger
	backend string

	attempts int
	backoff  time.Duration
	timeout  time.Duration
}

// New creates a Writer. dlqWriter may be nil.
func New(store objectstore.Store, dlqWriter dlq.Writer, cfg Config, logger *logging.Logger) *Writer {
	if logger == nil {
		logger = logging.Default()
	}
	w := &Writer{
		store:    store,
		dlq:      dlqWriter,
		logger:   logger,
		backend:  cfg.Backend,
		attempts: cfg.RetryAttempts,
		backoff:  cfg.RetryBackoff,
		timeout:  cfg.Timeout,
	}
	if w.backend == "" {
		w.backend = "unknown"
	}
	if w.attempts < 1 {
		w.attempts = 1
	}
	if w.backoff <= 0 {
		w.backoff = 100 * time.Millisecond
	}
	if w.timeout <= 0 {
		w.timeout = 30 * time.Second
	}
	return w
}

// Write appends ev as one NDJSON line to its partition object.
// It returns *models.ValidationError when ts cannot be placed in a partition
// and *StoreError when the append fails.
func (w *Writer) Write(ctx context.Context, ev *models.Event) (*Ack, error) {
	key, err := partition.Key(ev)
	if err != nil {
		return nil, err
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	line = append(line, '\n')

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	attempts, err := w.append(ctx, key, line)
	if err != nil {
		metrics.StoreErrors.WithLabelValues(w.backend).Inc()
		storeErr := &StoreError{Key: key, Attempts: attempts, Err: err}
		w.logger.ErrorContext(ctx, "Failed to append event",
			logging.PartitionKey(key),
			logging.ProjectID(ev.ProjectID),
			logging.Backend(w.backend),
			logging.Attempt(attempts),
			logging.Error(err))
		w.deadLetter(ctx, key, ev, err, attempts)
		return nil, storeErr
	}

	metrics.EventBytesTotal.Add(float64(len(line)))
	w.logger.DebugContext(ctx, "Event appended",
		logging.PartitionKey(key),
		logging.ProjectID(ev.ProjectID),
		slog.Int("bytes", len(line)))

	return &Ack{Key: key, Bytes: len(line)}, nil
}

// append tries the store up to w.attempts times with exponential backoff.
func (w *Writer) append(ctx context.Context, key string, line []byte) (int, error) {
	delay := w.backoff
	var err error
	for attempt := 1; ; attempt++ {
		start := time.Now()
		err = w.store.Append(ctx, key, line, models.NDJSONContentType)
		metrics.StoreDuration.WithLabelValues(w.backend).Observe(time.Since(start).Seconds())
		if err == nil {
			return attempt, nil
		}
		if attempt >= w.attempts {
			return attempt, err
		}

		w.logger.WarnContext(ctx, "Append failed, retrying",
			logging.PartitionKey(key),
			logging.Attempt(attempt),
			logging.Error(err))
		metrics.StoreRetries.WithLabelValues(w.backend).Inc()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, fmt.Errorf("%w (retry aborted: %v)", err, ctx.Err())
		case <-timer.C:
		}
		delay = min(delay*2, maxBackoff)
	}
}

func (w *Writer) deadLetter(ctx context.Context, key string, ev *models.Event, cause error, attempts int) {
	if w.dlq == nil {
		return
	}
	// The append may have consumed the request deadline; the DLQ gets its own.
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.dlq.Write(dctx, key, ev, cause, attempts); err != nil {
		metrics.DLQErrors.Inc()
		w.logger.ErrorContext(ctx, "Failed to write event to DLQ",
			logging.PartitionKey(key),
			logging.Error(err))
		return
	}
	metrics.DLQPublished.Inc()
}
