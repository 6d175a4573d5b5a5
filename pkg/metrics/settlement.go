package metrics

import "github.com/prometheus/client_golang/prometheus"

// SettlementMetrics counts the degraded and compensating paths of order settlement.
type SettlementMetrics struct {
	courierFallbacks *prometheus.CounterVec
	renewals         *prometheus.CounterVec
	compensations    *prometheus.CounterVec
	stockConflicts   prometheus.Counter
	notifications    *prometheus.CounterVec
}

func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	m := &SettlementMetrics{
		courierFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "courier",
			Name:      "consignment_fallbacks_total",
			Help:      "Consignments generated locally because the courier API was unavailable or unconfigured.",
		}, []string{"reason"}),
		renewals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscriptions",
			Name:      "renewals_total",
			Help:      "Subscription renewal attempts by outcome.",
		}, []string{"status"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "compensations_total",
			Help:      "Checkouts rolled back after partial side effects.",
		}, []string{"stage"}),
		stockConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "reservation_conflicts_total",
			Help:      "Reservations rejected because stock was insufficient.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "deliveries_total",
			Help:      "Outbox notification deliveries by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.courierFallbacks, m.renewals, m.compensations, m.stockConflicts, m.notifications)
	return m
}

// IncCourierFallback records a locally generated consignment.
func (m *SettlementMetrics) IncCourierFallback(reason string) {
	if m == nil || m.courierFallbacks == nil {
		return
	}
	m.courierFallbacks.WithLabelValues(normalizeLabel(reason)).Inc()
}

// IncRenewal records one renewal attempt outcome (created, skipped, failed).
func (m *SettlementMetrics) IncRenewal(status string) {
	if m == nil || m.renewals == nil {
		return
	}
	m.renewals.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncCompensation records a checkout rollback at the given stage.
func (m *SettlementMetrics) IncCompensation(stage string) {
	if m == nil || m.compensations == nil {
		return
	}
	m.compensations.WithLabelValues(normalizeLabel(stage)).Inc()
}

func (m *SettlementMetrics) IncStockConflict() {
	if m == nil || m.stockConflicts == nil {
		return
	}
	m.stockConflicts.Inc()
}

// IncNotification records a delivery outcome (delivered, failed, parked).
func (m *SettlementMetrics) IncNotification(outcome string) {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.WithLabelValues(normalizeLabel(outcome)).Inc()
}
