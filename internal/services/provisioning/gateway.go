// Package provisioning talks to the carrier API that creates and manages eSIM
// resources, phone numbers and SMS.
package provisioning

import (
	"context"
	"errors"

	"airswitch/internal/models"
)

// ErrOutcomeUnknown marks a call that may or may not have taken effect
// upstream, typically a timeout. Callers must not assume failure.
var ErrOutcomeUnknown = errors.New("provisioning outcome unknown")

type Resource struct {
	ExternalID     string `json:"id"`
	ICCID          string `json:"iccid"`
	Status         string `json:"status"`
	ActivationCode string `json:"activation_code"`
	SMDPAddress    string `json:"smdp_address"`
	QRCodeURL      string `json:"qr_code_url"`
}

type Gateway interface {
	CreateResource(ctx context.Context, quantity int) (*Resource, error)
	// Activate and Deactivate succeed when the resource is already in the
	// requested state.
	Activate(ctx context.Context, externalID string) error
	Deactivate(ctx context.Context, externalID string) error
	Usage(ctx context.Context, externalID string) (models.JSON, error)
}

// NumberGateway searches and orders carrier phone numbers.
type NumberGateway interface {
	SearchNumbers(ctx context.Context, q NumberQuery) ([]AvailableNumber, error)
	PurchaseNumber(ctx context.Context, phoneNumber string) (*NumberOrder, error)
}

// Messenger sends SMS through the carrier.
type Messenger interface {
	SendMessage(ctx context.Context, msg OutboundMessage) (*SentMessage, error)
}

// TokenSource supplies the bearer credential. RefreshStale is called once
// after a 401 with the token that was rejected.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	RefreshStale(ctx context.Context, stale string) (string, error)
}
