package amqp

import (
	"encoding/json"
	"time"
)

// Entity names carried in change messages.
const (
	EntityExpense     = "expense"
	EntityCategory    = "category"
	EntitySubcategory = "subcategory"
	EntityShift       = "shift"
	EntityRecurring   = "recurring_expense"
	EntityNote        = "note"
)

// Actions carried in change messages.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// EntityChangeMessage announces that one user-owned entity changed.
// It is intentionally lightweight: consumers that need the full row
// fetch it from the database by entity id.
type EntityChangeMessage struct {
	UserID     string    `json:"user_id"`
	Entity     string    `json:"entity"`
	EntityID   string    `json:"entity_id"`
	Action     string    `json:"action"`
	OccurredAt time.Time `json:"occurred_at"`
	Version    int64     `json:"version"`
}

// NewEntityChangeMessage stamps a change message with the current time.
func NewEntityChangeMessage(userID, entity, entityID, action string) *EntityChangeMessage {
	return &EntityChangeMessage{
		UserID:     userID,
		Entity:     entity,
		EntityID:   entityID,
		Action:     action,
		OccurredAt: time.Now(),
		Version:    1,
	}
}

// ToJSON converts the message to JSON bytes
func (m *EntityChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EntityChangeMessageFromJSON creates a message from JSON bytes
func EntityChangeMessageFromJSON(data []byte) (*EntityChangeMessage, error) {
	var msg EntityChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
