package usage

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	inats "github.com/snaplist-app/snaplist/internal/nats"
)

// Consumer listens on the usage event NATS subject and persists records
// to the database. Persistence is best-effort bookkeeping: the gate
// decision already happened, so a failed insert is retried via Nak, never
// surfaced to the caller.
type Consumer struct {
	repo        *Repository
	consumerMgr *inats.ConsumerManager
}

// NewConsumer creates a new usage event Consumer.
func NewConsumer(repo *Repository, consumerMgr *inats.ConsumerManager) *Consumer {
	return &Consumer{
		repo:        repo,
		consumerMgr: consumerMgr,
	}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.consumerMgr.EnsureConsumer(ctx, inats.StreamEvents, "usage-persister", inats.SubjectUsageEvent)
	if err != nil {
		return err
	}

	slog.Info("usage consumer started", "consumer", "usage-persister")

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("usage consumer: fetching events", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handleEvent(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) handleEvent(ctx context.Context, msg jetstream.Msg) {
	var event inats.UsageEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		slog.Error("usage consumer: unmarshaling event", "error", err)
		_ = msg.Nak()
		return
	}

	rec := convertEventToRecord(event)

	if err := c.repo.Insert(ctx, rec); err != nil {
		slog.Error("usage consumer: persisting usage record", "error", err, "identifier", event.Identifier)
		_ = msg.Nak()
		return
	}

	_ = msg.Ack()

	slog.Debug("usage consumer: persisted event",
		"identifier", event.Identifier,
		"action", event.Action,
		"allowed", event.Allowed,
	)
}

// convertEventToRecord maps a wire event to a usage_log row. ListingID
// may be absent or a non-UUID placeholder; nil on parse failure.
func convertEventToRecord(event inats.UsageEvent) *Record {
	rec := &Record{
		ID:         uuid.New(),
		UserID:     event.UserID,
		Identifier: event.Identifier,
		Action:     event.Action,
		Allowed:    event.Allowed,
		ErrorCode:  event.ErrorCode,
		IPAddress:  event.IPAddress,
		CreatedAt:  event.Timestamp,
	}

	if event.ListingID != "" {
		if parsed, err := uuid.Parse(event.ListingID); err == nil {
			rec.ListingID = &parsed
		}
	}

	return rec
}
