package comm

import (
	"encoding/json"
	"time"
)

// Subjects shared by the publishing services and the socket relay.
const (
	SubjectCardEvents   = "card.events"
	SubjectExpiringSoon = "cards.expiring-soon"
)

// Event types carried in WSMessage.Type.
const (
	EventCreated      = "created"
	EventUpdated      = "updated"
	EventDeleted      = "deleted"
	EventUsed         = "used"
	EventExpired      = "expired"
	EventExpiringSoon = "expiring_soon"
)

type WSMessage struct {
	Type     string          `json:"type"` // e.g. "init", "expired"
	Data     json.RawMessage `json:"data"`
	SocketId string          `json:"socketid,omitempty"`
}

// CardEvent describes a single card lifecycle change.
type CardEvent struct {
	Type           string    `json:"type"`
	CardID         int64     `json:"card_id"`
	Name           string    `json:"name"`
	Status         string    `json:"status"`
	ExpirationDate string    `json:"expiration_date"` // YYYY-MM-DD
	UserID         string    `json:"user_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type ReminderCard struct {
	CardID         int64  `json:"card_id"`
	Name           string `json:"name"`
	ExpirationDate string `json:"expiration_date"`
	DaysLeft       int    `json:"days_left"`
}

// ReminderEvent lists one user's cards that expire within Days days.
type ReminderEvent struct {
	UserID    string         `json:"user_id,omitempty"`
	Days      int            `json:"days"`
	Cards     []ReminderCard `json:"cards"`
	Timestamp time.Time      `json:"timestamp"`
}

// Subscription is sent by a socket client in its "init" message.
type Subscription struct {
	UserID string `json:"user_id"`
}
