// Package metrics records business counters for purchases, ledger operations,
// compensations and webhooks.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Collector interface {
	Purchase(method, outcome string, took time.Duration)
	LedgerOp(op, outcome string)
	Compensation(outcome string)
	Webhook(provider, outcome string)
}

// Noop discards everything.
type Noop struct{}

func (Noop) Purchase(string, string, time.Duration) {}
func (Noop) LedgerOp(string, string)                {}
func (Noop) Compensation(string)                    {}
func (Noop) Webhook(string, string)                 {}

// OrNoop returns c, or Noop when c is nil.
func OrNoop(c Collector) Collector {
	if c == nil {
		return Noop{}
	}
	return c
}

type Prometheus struct {
	purchases        *prometheus.CounterVec
	purchaseDuration *prometheus.HistogramVec
	ledgerOps        *prometheus.CounterVec
	compensations    *prometheus.CounterVec
	webhooks         *prometheus.CounterVec
}

// NewPrometheus registers the collectors on reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	f := promauto.With(reg)
	return &Prometheus{
		purchases: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "airswitch_esim_purchases_total",
				Help: "eSIM purchase attempts by payment method and outcome",
			},
			[]string{"method", "outcome"},
		),
		purchaseDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "airswitch_esim_purchase_duration_seconds",
				Help:    "Time spent in the purchase orchestrator",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		ledgerOps: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "airswitch_ledger_operations_total",
				Help: "Ledger operations by kind and outcome",
			},
			[]string{"op", "outcome"},
		),
		compensations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "airswitch_compensations_total",
				Help: "Compensating deactivations by outcome",
			},
			[]string{"outcome"},
		),
		webhooks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "airswitch_webhooks_total",
				Help: "Inbound webhooks by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
	}
}

func (p *Prometheus) Purchase(method, outcome string, took time.Duration) {
	p.purchases.WithLabelValues(method, outcome).Inc()
	p.purchaseDuration.WithLabelValues(method).Observe(took.Seconds())
}

func (p *Prometheus) LedgerOp(op, outcome string) {
	p.ledgerOps.WithLabelValues(op, outcome).Inc()
}

func (p *Prometheus) Compensation(outcome string) {
	p.compensations.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) Webhook(provider, outcome string) {
	p.webhooks.WithLabelValues(provider, outcome).Inc()
}
