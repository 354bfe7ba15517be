package db

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusValid   = "valid"
	StatusInvalid = "invalid"
)

// BatteryReading represents a stored battery reading row
type BatteryReading struct {
	ID               uuid.UUID
	RequestID        uuid.UUID
	SiteID           *int
	BatteryLevel     *float64
	OperatorID       *string
	SerialNumber     *string
	ReadingTimestamp *time.Time
	ReadingOffset    *int
	ReceivedAt       time.Time
	ValidationStatus string
	RejectionReason  *string
	RawPayload       []byte
}
