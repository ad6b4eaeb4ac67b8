// internal/model/campaign.go
package model

import "time"

type Campaign struct {
	ID        int           `db:"id" json:"id"`
	Name      string        `db:"name" json:"name"`
	Status    string        `db:"status" json:"status"`
	Stats     CampaignStats `json:"stats"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time    `db:"updated_at" json:"updated_at,omitempty"`
}

// CampaignStats are derived counters, always recomputed from campaign_audience.
type CampaignStats struct {
	Targeted  int `db:"targeted" json:"targeted"`
	Sent      int `db:"sent" json:"sent"`
	Delivered int `db:"delivered" json:"delivered"`
	Read      int `db:"read" json:"read"`
	Failed    int `db:"failed" json:"failed"`
}
