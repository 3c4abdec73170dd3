package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names a ledger change.
type EventType string

const (
	EventTransactionCreated EventType = "transaction.created"
	EventTransactionDeleted EventType = "transaction.deleted"
	EventCategoryDeleted    EventType = "category.deleted"
)

// LedgerEvent is the message body published for every ledger change. It
// carries ids only; consumers load the rest from storage.
type LedgerEvent struct {
	Type          EventType `json:"type"`
	UserID        string    `json:"user_id"`
	TransactionID string    `json:"transaction_id,omitempty"`
	CategoryID    string    `json:"category_id,omitempty"`
	// Removed counts the transactions dropped with a deleted category.
	Removed   int       `json:"removed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTransactionEvent(t EventType, userID, transactionID, categoryID string) *LedgerEvent {
	return &LedgerEvent{
		Type:          t,
		UserID:        userID,
		TransactionID: transactionID,
		CategoryID:    categoryID,
		Timestamp:     time.Now(),
	}
}

func NewCategoryDeletedEvent(userID, categoryID string, removed int) *LedgerEvent {
	return &LedgerEvent{
		Type:       EventCategoryDeleted,
		UserID:     userID,
		CategoryID: categoryID,
		Removed:    removed,
		Timestamp:  time.Now(),
	}
}

func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventFromJSON decodes and checks an event body.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Type {
	case EventTransactionCreated, EventTransactionDeleted:
		if msg.TransactionID == "" {
			return nil, fmt.Errorf("%s event without transaction id", msg.Type)
		}
	case EventCategoryDeleted:
		if msg.CategoryID == "" {
			return nil, fmt.Errorf("%s event without category id", msg.Type)
		}
	default:
		return nil, fmt.Errorf("unknown event type %q", msg.Type)
	}
	return &msg, nil
}
