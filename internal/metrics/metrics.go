// Package metrics holds the Prometheus instruments of the ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "expense_ledger"

// Recorder counts payment transitions and failed ledger operations. A nil
// *Recorder is valid and records nothing.
type Recorder struct {
	paymentsMarked    *prometheus.CounterVec
	paymentsConfirmed *prometheus.CounterVec
	paymentsReverted  *prometheus.CounterVec
	ledgerErrors      *prometheus.CounterVec
	remindersSent     prometheus.Counter
}

// NewRecorder creates the instruments and registers them with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		paymentsMarked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_marked_total",
			Help:      "Payments recorded against a settlement suggestion.",
		}, []string{"kind"}),
		paymentsConfirmed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_confirmed_total",
			Help:      "Payments confirmed by their creditor.",
		}, []string{"kind"}),
		paymentsReverted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_reverted_total",
			Help:      "Confirmations that were reverted.",
		}, []string{"kind"}),
		ledgerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Failed ledger operations by operation and error code.",
		}, []string{"operation", "code"}),
		remindersSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_published_total",
			Help:      "Settlement reminders handed to the notifier.",
		}),
	}

	for _, c := range []prometheus.Collector{
		r.paymentsMarked, r.paymentsConfirmed, r.paymentsReverted, r.ledgerErrors, r.remindersSent,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *Recorder) PaymentMarked(kind string) {
	if r == nil {
		return
	}
	r.paymentsMarked.WithLabelValues(kind).Inc()
}

func (r *Recorder) PaymentConfirmed(kind string) {
	if r == nil {
		return
	}
	r.paymentsConfirmed.WithLabelValues(kind).Inc()
}

func (r *Recorder) PaymentReverted(kind string) {
	if r == nil {
		return
	}
	r.paymentsReverted.WithLabelValues(kind).Inc()
}

// Failure counts a failed operation. An empty code is reported as "INTERNAL".
func (r *Recorder) Failure(operation, code string) {
	if r == nil {
		return
	}
	if code == "" {
		code = "INTERNAL"
	}
	r.ledgerErrors.WithLabelValues(operation, code).Inc()
}

func (r *Recorder) ReminderPublished() {
	if r == nil {
		return
	}
	r.remindersSent.Inc()
}
