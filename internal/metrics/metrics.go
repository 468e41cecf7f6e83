// Package metrics exposes prometheus collectors for the payout pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentsDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payouts_payments_dispatched_total",
		Help: "Payments submitted to the processor.",
	})

	DispatchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payouts_dispatch_failures_total",
		Help: "Payment submissions that errored.",
	})

	SplitTransfersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payouts_split_transfers_created_total",
		Help: "Sub-transfers created for oversized payments.",
	})

	ConfirmationEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payouts_confirmation_events_total",
		Help: "Confirmation events processed, by delivery status.",
	}, []string{"status"})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payouts_confirmation_events_dropped_total",
		Help: "Confirmation events referencing unknown or malformed transfers.",
	})

	PendingProbes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payouts_pending_probes_total",
		Help: "Reconciliation lookups for transfers stuck in processing.",
	})
)
