package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tracker/internal/amqp"
	"tracker/internal/storage"
)

type fakeRecorder struct {
	seen    map[string]storage.Change
	failErr error
}

func (f *fakeRecorder) RecordChange(_ context.Context, c storage.Change) (bool, error) {
	if f.failErr != nil {
		return false, f.failErr
	}
	if _, dup := f.seen[c.MessageID]; dup {
		return false, nil
	}
	f.seen[c.MessageID] = c
	return true, nil
}

func TestAuditWorker_HandleEntriesUpdated(t *testing.T) {
	rec := &fakeRecorder{seen: make(map[string]storage.Change)}
	w := NewAuditWorker(rec)
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	msg := amqp.NewEntriesUpdatedMessage([]int64{5}, []int64{1, 2}, []int64{3})
	if err := w.HandleEntriesUpdated(context.Background(), msg); err != nil {
		t.Fatalf("HandleEntriesUpdated() error = %v", err)
	}
	if err := w.HandleEntriesUpdated(context.Background(), msg); err != nil {
		t.Fatalf("redelivery should succeed, got %v", err)
	}

	if len(rec.seen) != 1 {
		t.Fatalf("expected one record, got %d", len(rec.seen))
	}
	c := rec.seen[msg.MessageID]
	if c.Edits != 3 || c.Deletions != 1 || !c.ReceivedAt.Equal(fixed) {
		t.Errorf("unexpected change %+v", c)
	}
	if !strings.Contains(c.Payload, msg.MessageID) {
		t.Errorf("payload missing message id: %s", c.Payload)
	}
}

func TestAuditWorker_StoreFailureIsReturned(t *testing.T) {
	boom := errors.New("database is locked")
	w := NewAuditWorker(&fakeRecorder{failErr: boom})
	err := w.HandleEntriesUpdated(context.Background(), amqp.NewEntriesUpdatedMessage(nil, nil, []int64{1}))
	if !errors.Is(err, boom) {
		t.Errorf("HandleEntriesUpdated() error = %v, want %v", err, boom)
	}
}
