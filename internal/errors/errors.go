// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

var (
	// ErrTenantNotFound means no active tenant matched a token or routing id.
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrVerificationRejected means a subscription handshake used the wrong mode.
	ErrVerificationRejected = errors.New("verification rejected")
	// ErrSignatureInvalid means the payload digest did not match the tenant secret.
	ErrSignatureInvalid = errors.New("signature invalid")
	// ErrMalformedPayload means the body or envelope could not be decoded.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrDuplicateEvent is returned by stores when a provider message id already exists.
	ErrDuplicateEvent = errors.New("duplicate event")
)

// ErrCampaignNotFound is returned when an aggregate recompute targets a missing campaign.
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// Malformed wraps err so that errors.Is(err, ErrMalformedPayload) holds.
func Malformed(err error) error {
	if err == nil {
		return ErrMalformedPayload
	}
	return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
}
