// internal/model/message.go
package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// MessageLedgerEntry tracks one provider message through its delivery lifecycle.
// Rows are created by the sending path; reconciliation only updates them.
type MessageLedgerEntry struct {
	ID                int64      `db:"id" json:"id"`
	TenantID          uuid.UUID  `db:"tenant_id" json:"tenant_id"`
	ProviderMessageID string     `db:"provider_message_id" json:"provider_message_id"`
	Direction         string     `db:"direction" json:"direction"`
	CampaignID        *int       `db:"campaign_id" json:"campaign_id,omitempty"`
	Status            string     `db:"status" json:"status"` // pending, sent, delivered, read, failed
	SentAt            *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	DeliveredAt       *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	ReadAt            *time.Time `db:"read_at" json:"read_at,omitempty"`
	FailedAt          *time.Time `db:"failed_at" json:"failed_at,omitempty"`
	FailureReason     *string    `db:"failure_reason" json:"failure_reason,omitempty"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}
