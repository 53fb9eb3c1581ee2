package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Op names the kind of committed mutation an event describes.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

var ErrInvalidEvent = errors.New("invalid transaction event")

// TransactionEvent is a lightweight change notification. It carries only the
// transaction ID; consumers read the record from storage. Source identifies
// the publishing process so it can skip its own events.
type TransactionEvent struct {
	Op        Op        `json:"op"`
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
}

func NewTransactionEvent(op Op, id string) TransactionEvent {
	return TransactionEvent{
		Op:        op,
		ID:        id,
		Timestamp: time.Now(),
	}
}

func (e TransactionEvent) Validate() error {
	if e.Op != OpUpsert && e.Op != OpDelete {
		return fmt.Errorf("%w: unknown op %q", ErrInvalidEvent, e.Op)
	}
	if e.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidEvent)
	}
	return nil
}

func (e TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TransactionEventFromJSON decodes and validates an event body.
func TransactionEventFromJSON(data []byte) (TransactionEvent, error) {
	var ev TransactionEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return TransactionEvent{}, err
	}
	if err := ev.Validate(); err != nil {
		return TransactionEvent{}, err
	}
	return ev, nil
}
