// internal/model/incoming_message.go
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MediaDescriptor points at provider-hosted media. Nothing is downloaded.
type MediaDescriptor struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// InteractiveSelection is the structured answer to a button or list prompt.
type InteractiveSelection struct {
	Type        string `json:"type"` // button_reply, list_reply, button
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// IncomingMessageRecord is created once per provider message id.
type IncomingMessageRecord struct {
	ID                int64                 `db:"id" json:"id"`
	TenantID          uuid.UUID             `db:"tenant_id" json:"tenant_id"`
	ProviderMessageID string                `db:"provider_message_id" json:"provider_message_id"`
	FromNumber        string                `db:"from_number" json:"from_number"`
	ToNumber          string                `db:"to_number" json:"to_number,omitempty"`
	ContactName       string                `db:"contact_name" json:"contact_name,omitempty"`
	MessageType       string                `db:"message_type" json:"message_type"`
	Content           string                `db:"content" json:"content"`
	Media             *MediaDescriptor      `json:"media,omitempty"`
	Selection         *InteractiveSelection `json:"selection,omitempty"`
	ContextMessageID  string                `db:"context_message_id" json:"context_message_id,omitempty"`
	ContextCampaignID *int                  `db:"context_campaign_id" json:"context_campaign_id,omitempty"`
	SentAt            *time.Time            `db:"sent_at" json:"sent_at,omitempty"`
	RawPayload        json.RawMessage       `db:"raw_payload" json:"raw_payload"`
	Processed         bool                  `db:"processed" json:"processed"`
	CreatedAt         time.Time             `db:"created_at" json:"created_at"`
}
