// internal/model/tenant.go
package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	TenantActive    = "active"
	TenantInactive  = "inactive"
	TenantSuspended = "suspended"
)

// Tenant is an organization with its own WhatsApp credentials. Rows are
// owned by the admin system; this service only reads them.
type Tenant struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Status      string    `db:"status" json:"status"`
	AccountID   string    `db:"account_id" json:"account_id,omitempty"`
	ChannelID   string    `db:"channel_id" json:"channel_id,omitempty"`
	VerifyToken string    `db:"verify_token" json:"verify_token,omitempty"`
	AppSecret   string    `db:"app_secret" json:"app_secret,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

func (t *Tenant) IsActive() bool {
	return t != nil && t.Status == TenantActive
}
