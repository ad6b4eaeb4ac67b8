package model

import (
	"encoding/json"
	"time"
)

// Event kinds carried in envelope metadata.
const (
	EventKindMessages = "messages"
	EventKindStatuses = "statuses"
	EventKindMixed    = "mixed"
	EventKindOther    = "other"
)

// WebhookEnvelope is the unit placed on the durable queue by the receiver.
type WebhookEnvelope struct {
	Payload    json.RawMessage   `json:"payload"`
	Metadata   EnvelopeMetadata  `json:"metadata"`
	ReceivedAt time.Time         `json:"receivedAt"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// EnvelopeMetadata is the lightweight routing summary extracted at receipt.
type EnvelopeMetadata struct {
	EventKind    string `json:"eventKind"`
	AccountID    string `json:"accountId,omitempty"`
	ChannelID    string `json:"channelId,omitempty"`
	HasMessages  bool   `json:"hasMessages"`
	HasStatuses  bool   `json:"hasStatuses"`
	MessageCount int    `json:"messageCount"`
	StatusCount  int    `json:"statusCount"`
}

// ExtractMetadata summarises a parsed payload. Routing ids come from the
// first entry; counts cover every entry and change.
func ExtractMetadata(p *WebhookPayload) EnvelopeMetadata {
	var meta EnvelopeMetadata

	if len(p.Entry) > 0 {
		first := p.Entry[0]
		meta.AccountID = first.ID
		for _, change := range first.Changes {
			if id := change.Value.Metadata.PhoneNumberID; id != "" {
				meta.ChannelID = id
				break
			}
		}
	}

	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			meta.MessageCount += len(change.Value.Messages)
			meta.StatusCount += len(change.Value.Statuses)
		}
	}
	meta.HasMessages = meta.MessageCount > 0
	meta.HasStatuses = meta.StatusCount > 0

	switch {
	case meta.HasMessages && meta.HasStatuses:
		meta.EventKind = EventKindMixed
	case meta.HasMessages:
		meta.EventKind = EventKindMessages
	case meta.HasStatuses:
		meta.EventKind = EventKindStatuses
	default:
		meta.EventKind = EventKindOther
	}
	return meta
}
