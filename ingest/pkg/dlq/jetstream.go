package dlq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/lensai/lensai-stack/common/messaging/nats"
	"github.com/lensai/lensai-stack/ingest/pkg/models"
)

const (
	defaultListLimit = 100
	fetchWait        = 2 * time.Second
)

// JetStreamQueue keeps failed events in a JetStream stream, one subject per reason and project.
// Any number of ingest instances may share it.
type JetStreamQueue struct {
	js      *nats.JetStreamClient
	stream  jetstream.Stream
	written atomic.Uint64
}

// NewJetStreamQueue creates or updates the DLQ stream and returns a queue on it.
func NewJetStreamQueue(ctx context.Context, js *nats.JetStreamClient) (*JetStreamQueue, error) {
	if js == nil {
		return nil, errors.New("jetstream client is nil")
	}
	stream, err := js.CreateOrUpdateStream(ctx, nats.IngestDLQStream)
	if err != nil {
		return nil, fmt.Errorf("create dlq stream: %w", err)
	}
	slog.Info("DLQ stream ready", slog.String("stream", nats.IngestDLQStream.Name))
	return &JetStreamQueue{js: js, stream: stream}, nil
}

// Write publishes a failed event on its reason and project subject and waits for the server ack.
func (q *JetStreamQueue) Write(ctx context.Context, key string, event *models.Event, cause error, attempts int) error {
	if q == nil {
		return nil
	}

	failed := FailedEvent{
		Timestamp: time.Now().UTC(),
		Key:       key,
		Event:     event,
		Reason:    ReasonStoreError,
		Attempts:  attempts,
	}
	if cause != nil {
		failed.Error = cause.Error()
	}

	data, err := json.Marshal(failed)
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}
	if _, err := q.js.PublishSync(ctx, Subject(failed.Reason, failed.ProjectID()), data); err != nil {
		return fmt.Errorf("publish dlq entry: %w", err)
	}
	q.written.Add(1)
	return nil
}

// Stats reports stream totals broken down by reason and project.
func (q *JetStreamQueue) Stats(ctx context.Context) Stats {
	if q == nil {
		return Stats{Backend: "jetstream"}
	}

	s := Stats{Enabled: true, Backend: "jetstream", WrittenLocal: q.written.Load()}
	info, err := q.stream.Info(ctx, jetstream.WithSubjectFilter(subjectPrefix+">"))
	if err != nil {
		s.Error = err.Error()
		return s
	}
	s.Messages = info.State.Msgs
	s.Bytes = info.State.Bytes
	s.ByReason, s.ByProject = countSubjects(info.State.Subjects)
	return s
}

// List returns up to limit failed events matching f, oldest first.
func (q *JetStreamQueue) List(ctx context.Context, f Filter, limit int) ([]FailedEvent, error) {
	if q == nil {
		return nil, errors.New("dlq not enabled")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	consumer, err := q.stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{f.Subject()},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create list consumer: %w", err)
	}

	// Token collisions can deliver records for other projects, so keep
	// fetching until enough exact matches are found or a batch comes back short.
	var events []FailedEvent
	for len(events) < limit {
		batch := limit - len(events)
		msgs, err := consumer.Fetch(batch, jetstream.FetchMaxWait(fetchWait))
		if err != nil {
			return nil, fmt.Errorf("fetch messages: %w", err)
		}
		received := 0
		for msg := range msgs.Messages() {
			received++
			var failed FailedEvent
			if err := json.Unmarshal(msg.Data(), &failed); err != nil {
				slog.Error("Failed to parse DLQ message",
					slog.String("subject", msg.Subject()),
					slog.String("error", err.Error()))
				continue
			}
			if f.Match(failed) {
				events = append(events, failed)
			}
		}
		if err := msgs.Error(); err != nil && !errors.Is(err, jetstream.ErrNoMessages) {
			slog.Warn("DLQ fetch completed with error", slog.String("error", err.Error()))
		}
		if received < batch {
			break
		}
	}
	return events, nil
}

// Purge removes the events matching f. Project filters purge by subject
// token, so ids sharing a token are purged together.
func (q *JetStreamQueue) Purge(ctx context.Context, f Filter) error {
	if q == nil {
		return errors.New("dlq not enabled")
	}
	var opts []jetstream.StreamPurgeOpt
	if f != (Filter{}) {
		opts = append(opts, jetstream.WithPurgeSubject(f.Subject()))
	}
	if err := q.stream.Purge(ctx, opts...); err != nil {
		return fmt.Errorf("purge dlq stream: %w", err)
	}
	slog.Info("DLQ purged",
		slog.String("stream", nats.IngestDLQStream.Name),
		slog.String("subject", f.Subject()))
	return nil
}
