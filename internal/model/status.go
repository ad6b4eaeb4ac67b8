package model

import (
	"time"

	"github.com/google/uuid"
)

// Delivery lifecycle states shared by the message ledger and campaign audience.
const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

var statusRank = map[string]int{
	StatusPending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
	StatusFailed:    4,
}

// StatusRank orders lifecycle states; ok is false for statuses the ledgers
// do not track (deleted, warning, ...).
func StatusRank(status string) (rank int, ok bool) {
	rank, ok = statusRank[status]
	return rank, ok
}

// TrackedStatuses lists every status the ledgers store, in no particular order.
func TrackedStatuses() []string {
	out := make([]string, 0, len(statusRank))
	for s := range statusRank {
		out = append(out, s)
	}
	return out
}

// AdvanceStatus returns the state a row should hold after an incoming status.
// State never moves backwards, so replays and out-of-order arrivals converge.
func AdvanceStatus(current, incoming string) string {
	in, ok := StatusRank(incoming)
	if !ok {
		return current
	}
	cur, ok := StatusRank(current)
	if !ok || in >= cur {
		return incoming
	}
	return current
}

// StatusUpdate is a normalized status event applied to both ledgers.
// Rows owned by another tenant are never touched.
type StatusUpdate struct {
	TenantID          uuid.UUID
	ProviderMessageID string
	Status            string
	Timestamp         time.Time
	FailureReason     string
}

// StageColumn names the per-stage timestamp column for a status.
func StageColumn(status string) string {
	switch status {
	case StatusSent:
		return "sent_at"
	case StatusDelivered:
		return "delivered_at"
	case StatusRead:
		return "read_at"
	case StatusFailed:
		return "failed_at"
	}
	return ""
}
