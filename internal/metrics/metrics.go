// Package metrics счётчики Prometheus, отдаваемые на /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "member_ledger"

var (
	// TransactionsReconciled исход сверки банковских транзакций.
	TransactionsReconciled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transactions_reconciled_total",
		Help:      "Bank transactions processed by the reconciliation engine, by outcome.",
	}, []string{"outcome"})

	// SweepTransitions изменения, сделанные периодическим обходом подписок.
	SweepTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_transitions_total",
		Help:      "Subscription changes made by the periodic sweep, by kind.",
	}, []string{"kind"})

	// NotificationsPublished опубликованные события, по виду и результату.
	NotificationsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_published_total",
		Help:      "Notification events handed to the broker, by kind and result.",
	}, []string{"kind", "result"})

	// ReferenceCollisions повторы при назначении ссылочного номера.
	ReferenceCollisions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reference_collisions_total",
		Help:      "Reference number assignments retried because of a uniqueness conflict.",
	})
)
