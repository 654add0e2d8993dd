package esim

import (
	apperrors "airswitch/internal/errors"
	"airswitch/internal/models"

	"github.com/shopspring/decimal"
)

type Plan struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	Region       string          `json:"region"`
	DataGB       int             `json:"data_gb"`
	ValidityDays int             `json:"validity_days"`
}

// Catalog is the fixed list of sellable plans, priced in USD.
type Catalog struct {
	plans map[string]Plan
	order []string
}

func NewCatalog(plans ...Plan) *Catalog {
	c := &Catalog{plans: make(map[string]Plan, len(plans))}
	for _, p := range plans {
		if _, dup := c.plans[p.ID]; !dup {
			c.order = append(c.order, p.ID)
		}
		c.plans[p.ID] = p
	}
	return c
}

func DefaultCatalog() *Catalog {
	return NewCatalog(
		Plan{
			ID:           "AIRSWITCH_NG_TEST",
			Name:         "Nigeria 1GB",
			Price:        decimal.NewFromInt(3),
			Currency:     models.CurrencyUSD,
			Region:       "Nigeria",
			DataGB:       1,
			ValidityDays: 30,
		},
		Plan{
			ID:           "AIRSWITCH_GLOBAL_TEST",
			Name:         "Global 1GB",
			Price:        decimal.NewFromInt(5),
			Currency:     models.CurrencyUSD,
			Region:       "Global",
			DataGB:       1,
			ValidityDays: 30,
		},
	)
}

func (c *Catalog) Get(id string) (Plan, error) {
	p, ok := c.plans[id]
	if !ok {
		return Plan{}, apperrors.ErrPlanNotFound
	}
	return p, nil
}

func (c *Catalog) List() []Plan {
	out := make([]Plan, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.plans[id])
	}
	return out
}
