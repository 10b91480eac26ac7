package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SignalsTotal counts ledger writes by operation (send, edit, delete) and result.
	SignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lovesignal_signals_total",
		Help: "Signal ledger operations by operation and result",
	}, []string{"operation", "result"})

	// ContactTransitionsTotal counts contact state machine transitions by result.
	ContactTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lovesignal_contact_transitions_total",
		Help: "Contact transitions (request, accept, decline, remove) by result",
	}, []string{"transition", "result"})

	// RegistrationsTotal counts registration attempts by result.
	RegistrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lovesignal_registrations_total",
		Help: "Registration attempts by result",
	}, []string{"result"})

	// LiveSubscriptions tracks open log and contact streams.
	LiveSubscriptions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lovesignal_live_subscriptions",
		Help: "Open realtime subscriptions by stream",
	}, []string{"stream"})

	// StreamEmissions counts views pushed to subscribers.
	StreamEmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lovesignal_stream_emissions_total",
		Help: "Views emitted by realtime streams",
	}, []string{"stream"})
)

// Result labels a metric with the outcome of an operation.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
