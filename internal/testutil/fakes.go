package testutil

import (
	"context"
	"fmt"
	"sync"

	"airswitch/internal/models"
	"airswitch/internal/services/payment"
	"airswitch/internal/services/provisioning"

	"github.com/shopspring/decimal"
)

// FakeProvisioner is a scriptable provisioning.Gateway.
type FakeProvisioner struct {
	mu sync.Mutex

	CreateErr     error
	ActivateErr   error
	DeactivateErr error
	// OnCreate runs inside CreateResource before it returns.
	OnCreate func()

	created     int
	activated   []string
	deactivated []string
}

var _ provisioning.Gateway = (*FakeProvisioner)(nil)

func (f *FakeProvisioner) CreateResource(ctx context.Context, quantity int) (*provisioning.Resource, error) {
	f.mu.Lock()
	f.created++
	n := f.created
	hook, err := f.OnCreate, f.CreateErr
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	iccid := fmt.Sprintf("89000000000000%04d", n)
	return &provisioning.Resource{
		ExternalID:     fmt.Sprintf("sim_%d", n),
		ICCID:          iccid,
		Status:         "enabled",
		ActivationCode: "LPA:1$" + provisioning.DefaultSMDPAddress + "$" + iccid,
		SMDPAddress:    provisioning.DefaultSMDPAddress,
	}, nil
}

func (f *FakeProvisioner) Activate(ctx context.Context, externalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activated = append(f.activated, externalID)
	return f.ActivateErr
}

func (f *FakeProvisioner) Deactivate(ctx context.Context, externalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivated = append(f.deactivated, externalID)
	return f.DeactivateErr
}

func (f *FakeProvisioner) Usage(ctx context.Context, externalID string) (models.JSON, error) {
	return models.JSON{"external_id": externalID, "data_usage": 12.5, "unit": "MB"}, nil
}

func (f *FakeProvisioner) SetDeactivateErr(err error) {
	f.mu.Lock()
	f.DeactivateErr = err
	f.mu.Unlock()
}

func (f *FakeProvisioner) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

func (f *FakeProvisioner) Activated() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.activated...)
}

func (f *FakeProvisioner) Deactivated() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deactivated...)
}

// FakeGateway is a scriptable payment.Gateway.
type FakeGateway struct {
	mu sync.Mutex

	Method    payment.Method
	Results   map[string]payment.ChargeResult
	VerifyErr error

	charges  []payment.ChargeRequest
	verifies int
}

var _ payment.Gateway = (*FakeGateway)(nil)

func NewFakeGateway(m payment.Method) *FakeGateway {
	return &FakeGateway{Method: m, Results: map[string]payment.ChargeResult{}}
}

// Succeed scripts a captured charge for reference.
func (g *FakeGateway) Succeed(reference, amount, currency string, md map[string]string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Results[reference] = payment.ChargeSucceeded{
		Reference: reference,
		Amount:    decimal.RequireFromString(amount),
		Currency:  currency,
		Metadata:  md,
	}
}

func (g *FakeGateway) Name() string { return string(g.Method) }

func (g *FakeGateway) CreateCharge(ctx context.Context, req payment.ChargeRequest) (*payment.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charges = append(g.charges, req)
	ref := fmt.Sprintf("%s_ref_%d", g.Method, len(g.charges))
	return &payment.Charge{
		Provider:     g.Name(),
		Reference:    ref,
		ClientHandle: ref + "_handle",
		Amount:       req.Amount,
		Currency:     req.Currency,
	}, nil
}

func (g *FakeGateway) VerifyCharge(ctx context.Context, reference string) (payment.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifies++
	if g.VerifyErr != nil {
		return nil, g.VerifyErr
	}
	if r, ok := g.Results[reference]; ok {
		return r, nil
	}
	return payment.ChargePending{Reference: reference, Status: "processing"}, nil
}

func (g *FakeGateway) Charges() []payment.ChargeRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]payment.ChargeRequest(nil), g.charges...)
}

func (g *FakeGateway) Verifies() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.verifies
}

// FakeCache is an in-memory wallet cache that records invalidations.
type FakeCache struct {
	mu          sync.Mutex
	wallets     map[uint]models.Wallet
	invalidated []uint
	hits        int
}

func (c *FakeCache) GetWallet(ctx context.Context, userID uint) (*models.Wallet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.wallets[userID]
	if !ok {
		return nil, nil
	}
	c.hits++
	return &w, nil
}

func (c *FakeCache) CacheWallet(ctx context.Context, wallet *models.Wallet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wallets == nil {
		c.wallets = map[uint]models.Wallet{}
	}
	c.wallets[wallet.UserID] = *wallet
	return nil
}

func (c *FakeCache) InvalidateWallet(ctx context.Context, userID uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.wallets, userID)
	c.invalidated = append(c.invalidated, userID)
	return nil
}

func (c *FakeCache) Invalidated() []uint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint(nil), c.invalidated...)
}

// Hits counts reads served from the cache.
func (c *FakeCache) Hits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}

// FakeCarrier is a scriptable provisioning.NumberGateway and Messenger.
type FakeCarrier struct {
	mu sync.Mutex

	Available   []provisioning.AvailableNumber
	OrderStatus string
	OrderErr    error
	SendErr     error

	orders []string
	sent   []provisioning.OutboundMessage
}

var (
	_ provisioning.NumberGateway = (*FakeCarrier)(nil)
	_ provisioning.Messenger     = (*FakeCarrier)(nil)
)

func (f *FakeCarrier) SearchNumbers(ctx context.Context, q provisioning.NumberQuery) ([]provisioning.AvailableNumber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if q.Limit > 0 && q.Limit < len(f.Available) {
		return append([]provisioning.AvailableNumber(nil), f.Available[:q.Limit]...), nil
	}
	return append([]provisioning.AvailableNumber(nil), f.Available...), nil
}

func (f *FakeCarrier) PurchaseNumber(ctx context.Context, phoneNumber string) (*provisioning.NumberOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, phoneNumber)
	if f.OrderErr != nil {
		return nil, f.OrderErr
	}
	status := f.OrderStatus
	if status == "" {
		status = provisioning.NumberOrderSuccess
	}
	return &provisioning.NumberOrder{
		ID:          fmt.Sprintf("ord_%d", len(f.orders)),
		Status:      status,
		PhoneNumber: phoneNumber,
	}, nil
}

func (f *FakeCarrier) SendMessage(ctx context.Context, msg provisioning.OutboundMessage) (*provisioning.SentMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return nil, f.SendErr
	}
	f.sent = append(f.sent, msg)
	return &provisioning.SentMessage{ID: fmt.Sprintf("msg_%d", len(f.sent)), Status: "queued", Parts: 1}, nil
}

func (f *FakeCarrier) Orders() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.orders...)
}

func (f *FakeCarrier) Sent() []provisioning.OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provisioning.OutboundMessage(nil), f.sent...)
}
