package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	"github.com/angelmondragon/restaurant-backend/pkg/outbox"
)

type dlqStore interface {
	List(ctx context.Context, filter outbox.DLQFilter) ([]models.OutboxDLQ, error)
	Requeue(ctx context.Context, id uuid.UUID) (models.OutboxEvent, error)
}

type dlqCommand struct {
	action string
	id     string
	reason string
	limit  int
}

// run prints dead letters as JSON lines or requeues one by id.
func (c dlqCommand) run(ctx context.Context, store dlqStore, out io.Writer) error {
	switch c.action {
	case "list":
		filter := outbox.DLQFilter{Limit: c.limit}
		if c.reason != "" {
			reason, err := enums.ParseOutboxDLQErrorReason(c.reason)
			if err != nil {
				return err
			}
			filter.Reason = reason
		}
		rows, err := store.List(ctx, filter)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		for _, row := range rows {
			line := map[string]any{
				"id":            row.ID,
				"event_id":      row.EventID,
				"event_type":    row.EventType,
				"aggregate_id":  row.AggregateID,
				"reason":        row.ErrorReason,
				"attempt_count": row.AttemptCount,
				"failed_at":     row.FailedAt.Format(time.RFC3339),
			}
			if row.ErrorMessage != nil {
				line["error"] = *row.ErrorMessage
			}
			if err := enc.Encode(line); err != nil {
				return err
			}
		}
		return nil
	case "requeue":
		id, err := uuid.Parse(c.id)
		if err != nil {
			return fmt.Errorf("-id must be a dead-letter uuid: %w", err)
		}
		event, err := store.Requeue(ctx, id)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "requeued %s %s\n", event.EventType, event.ID)
		return err
	}
	return fmt.Errorf("unknown -dlq action %q (want list or requeue)", c.action)
}
