// internal/model/campaign_audience.go
package model

import "time"

// CampaignAudienceEntry is the per-recipient projection of a campaign send.
type CampaignAudienceEntry struct {
	ID                int64      `db:"id" json:"id"`
	CampaignID        int        `db:"campaign_id" json:"campaign_id"`
	CustomerID        *int       `db:"customer_id" json:"customer_id,omitempty"`
	Phone             string     `db:"phone" json:"phone,omitempty"`
	ProviderMessageID string     `db:"provider_message_id" json:"provider_message_id"`
	Status            string     `db:"status" json:"status"`
	SentAt            *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	DeliveredAt       *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	ReadAt            *time.Time `db:"read_at" json:"read_at,omitempty"`
	FailedAt          *time.Time `db:"failed_at" json:"failed_at,omitempty"`
	FailureReason     *string    `db:"failure_reason,omitempty" json:"failure_reason,omitempty"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}
