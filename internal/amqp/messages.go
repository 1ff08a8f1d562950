package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// KindEntriesUpdated is the type of the message published after entries
// are created, edited or deleted.
const KindEntriesUpdated = "entries.updated"

// EntriesUpdatedMessage names the entries touched by one write. Consumers
// fetch current values from the database if they need them.
type EntriesUpdatedMessage struct {
	MessageID string    `json:"message_id"`
	Kind      string    `json:"kind"`
	Created   []int64   `json:"created,omitempty"`
	Edited    []int64   `json:"edited,omitempty"`
	Deleted   []int64   `json:"deleted,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEntriesUpdatedMessage creates a message with a fresh id and the current time.
func NewEntriesUpdatedMessage(created, edited, deleted []int64) *EntriesUpdatedMessage {
	return &EntriesUpdatedMessage{
		MessageID: uuid.NewString(),
		Kind:      KindEntriesUpdated,
		Created:   created,
		Edited:    edited,
		Deleted:   deleted,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON serializes the message to JSON.
func (m *EntriesUpdatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EntriesUpdatedMessageFromJSON decodes and checks a message body.
func EntriesUpdatedMessageFromJSON(data []byte) (*EntriesUpdatedMessage, error) {
	var msg EntriesUpdatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Kind != KindEntriesUpdated {
		return nil, fmt.Errorf("unexpected message kind %q", msg.Kind)
	}
	if msg.MessageID == "" {
		return nil, fmt.Errorf("message without id")
	}
	return &msg, nil
}
