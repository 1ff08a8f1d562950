// Package worker consumes entry change notifications and records them in
// the audit log.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tracker/internal/amqp"
	"tracker/internal/storage"
)

// ChangeRecorder stores audit log records.
type ChangeRecorder interface {
	RecordChange(ctx context.Context, c storage.Change) (bool, error)
}

// AuditWorker writes one audit record per entries.updated message.
type AuditWorker struct {
	recorder ChangeRecorder
	now      func() time.Time
}

// NewAuditWorker creates a worker writing to recorder.
func NewAuditWorker(recorder ChangeRecorder) *AuditWorker {
	return &AuditWorker{recorder: recorder, now: time.Now}
}

// HandleEntriesUpdated records msg. Redelivered messages are recorded once.
func (w *AuditWorker) HandleEntriesUpdated(ctx context.Context, msg *amqp.EntriesUpdatedMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	inserted, err := w.recorder.RecordChange(ctx, storage.Change{
		MessageID:  msg.MessageID,
		ReceivedAt: w.now(),
		Deletions:  len(msg.Deleted),
		Edits:      len(msg.Edited) + len(msg.Created),
		Payload:    string(body),
	})
	if err != nil {
		return fmt.Errorf("record change: %w", err)
	}

	if !inserted {
		slog.InfoContext(ctx, "Duplicate change message ignored",
			"component", "worker", "message_id", msg.MessageID)
		return nil
	}
	slog.InfoContext(ctx, "Change recorded",
		"component", "worker",
		"message_id", msg.MessageID,
		"created", len(msg.Created),
		"edited", len(msg.Edited),
		"deleted", len(msg.Deleted))
	return nil
}
