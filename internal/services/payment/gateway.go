// Package payment puts the card and bank-transfer processors behind one
// Gateway interface. Amounts cross this interface in major units; minor units
// exist only on the wire.
package payment

import (
	"context"
	"strings"

	apperrors "airswitch/internal/errors"

	"github.com/shopspring/decimal"
)

type Method string

const (
	MethodStripe   Method = "stripe"
	MethodPaystack Method = "paystack"
	MethodWallet   Method = "wallet"
)

func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case MethodStripe, MethodPaystack, MethodWallet:
		return m, nil
	}
	return "", apperrors.ErrUnsupportedMethod
}

// Metadata keys written into every charge so a webhook can route it without
// a lookup.
const (
	MetaUserID  = "userId"
	MetaPlanID  = "planId"
	MetaPurpose = "purpose"
	MetaPoints  = "points"

	PurposeESim  = "esim"
	PurposeTopUp = "topup"
)

type ChargeRequest struct {
	Amount   decimal.Decimal
	Currency string
	UserID   uint
	Email    string
	Metadata map[string]string
}

// Charge is a created, not yet confirmed, payment. ClientHandle is what the
// client needs to complete it: a Stripe client secret or a Paystack
// authorization URL.
type Charge struct {
	Provider     string          `json:"provider"`
	Reference    string          `json:"reference"`
	ClientHandle string          `json:"client_handle"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
}

// ChargeResult is one of ChargeSucceeded, ChargePending or ChargeFailed.
type ChargeResult interface {
	ChargeReference() string
	chargeResult()
}

type ChargeSucceeded struct {
	Reference string
	Amount    decimal.Decimal
	Currency  string
	Metadata  map[string]string
}

type ChargePending struct {
	Reference string
	Status    string
}

type ChargeFailed struct {
	Reference string
	Reason    string
}

func (c ChargeSucceeded) ChargeReference() string { return c.Reference }
func (c ChargePending) ChargeReference() string   { return c.Reference }
func (c ChargeFailed) ChargeReference() string    { return c.Reference }

func (ChargeSucceeded) chargeResult() {}
func (ChargePending) chargeResult()   {}
func (ChargeFailed) chargeResult()    {}

type Gateway interface {
	Name() string
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	// VerifyCharge is the source of truth for whether money moved. Errors are
	// GATEWAY DomainErrors and say nothing about the charge itself.
	VerifyCharge(ctx context.Context, reference string) (ChargeResult, error)
}

// Registry resolves a Gateway by payment method.
type Registry struct {
	gateways map[Method]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[Method]Gateway, len(gateways))}
	for _, g := range gateways {
		if g != nil {
			r.gateways[Method(g.Name())] = g
		}
	}
	return r
}

func (r *Registry) Get(m Method) (Gateway, error) {
	g, ok := r.gateways[m]
	if !ok {
		return nil, apperrors.ErrUnsupportedMethod.WithMessage("payment method %q is not available", m)
	}
	return g, nil
}

// ToMinor converts a major-unit amount to the provider's minor unit.
func ToMinor(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

func cloneMetadata(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
