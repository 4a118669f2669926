package domain

import (
	"time"

	"github.com/google/uuid"
)

type DeliveryStatus string

const (
	StatusReceived         DeliveryStatus = "received"
	StatusValidationFailed DeliveryStatus = "validation_failed"
	StatusProcessed        DeliveryStatus = "processed"
	StatusError            DeliveryStatus = "error"
	StatusUnhandled        DeliveryStatus = "unhandled"
)

// Terminal reports whether s is a final pipeline outcome.
// A delivery in a terminal status receives no further transitions.
func (s DeliveryStatus) Terminal() bool {
	return s != StatusReceived
}

// Delivery is one inbound notification attempt, identified by the
// sender-assigned delivery id. One row per delivery id; per-stage history
// lives in the transition log.
type Delivery struct {
	DeliveryID string
	Event      EventType
	Action     string

	RepositoryID   string
	RepositoryName string
	SenderID       string
	SenderLogin    string

	Status  DeliveryStatus
	Payload []byte // raw request body, exactly as received

	RecordedAt time.Time
}

// Transition is one append-only status change for a delivery.
// (DeliveryID, Seq) is unique; Seq is assigned by the store.
type Transition struct {
	ID         uuid.UUID
	DeliveryID string
	Seq        int
	Status     DeliveryStatus
	Detail     string // error text for failed stages, empty otherwise
	RecordedAt time.Time
}
