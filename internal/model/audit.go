package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Audit categories.
const (
	CategoryStatus      = "status"
	CategoryMessage     = "message"
	CategoryUnsupported = "unsupported"
)

// AuditRecord is one row of the append-only webhook event log.
type AuditRecord struct {
	ID                uuid.UUID       `db:"id" json:"id"`
	TenantID          *uuid.UUID      `db:"tenant_id" json:"tenant_id,omitempty"`
	Category          string          `db:"category" json:"category"`
	ProviderMessageID string          `db:"provider_message_id" json:"provider_message_id,omitempty"`
	Status            string          `db:"status" json:"status,omitempty"`
	EventTimestamp    *time.Time      `db:"event_timestamp" json:"event_timestamp,omitempty"`
	RawPayload        json.RawMessage `db:"raw_payload" json:"raw_payload"`
	Processed         bool            `db:"processed" json:"processed"`
	Error             *string         `db:"error" json:"error,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt       *time.Time      `db:"processed_at" json:"processed_at,omitempty"`

	// Set once the replay tool has handled the row, successfully or not.
	ReplayedAt  *time.Time `db:"replayed_at" json:"replayed_at,omitempty"`
	ReplayError *string    `db:"replay_error" json:"replay_error,omitempty"`
}
