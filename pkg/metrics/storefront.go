package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storefront"

// Storefront records state-core activity. A nil receiver or one built without a registerer
// is a no-op, so components may run without metrics wired.
type Storefront struct {
	authEvents         *prometheus.CounterVec
	sessionTransitions *prometheus.CounterVec
	resolveDuration    *prometheus.HistogramVec
	orderStatusChanges *prometheus.CounterVec
	addressMutations   *prometheus.CounterVec
	remoteFailures     *prometheus.CounterVec
}

// NewStorefront registers the storefront metrics on the provided registerer.
func NewStorefront(reg prometheus.Registerer) *Storefront {
	if reg == nil {
		return &Storefront{}
	}
	authEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_events_total",
		Help:      "Auth change notifications consumed by the session store.",
	}, []string{"event"})
	sessionTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_transitions_total",
		Help:      "Session phase transitions applied.",
	}, []string{"phase"})
	resolveDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "profile_resolve_duration_seconds",
		Help:      "Duration of profile and role resolution.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})
	orderStatusChanges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_status_changes_total",
		Help:      "Order status updates written by admins.",
	}, []string{"from", "to"})
	addressMutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "address_mutations_total",
		Help:      "Address book writes confirmed by the backend.",
	}, []string{"op"})
	remoteFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "remote_failures_total",
		Help:      "Backend calls that failed.",
	}, []string{"op"})
	reg.MustRegister(authEvents, sessionTransitions, resolveDuration, orderStatusChanges, addressMutations, remoteFailures)
	return &Storefront{
		authEvents:         authEvents,
		sessionTransitions: sessionTransitions,
		resolveDuration:    resolveDuration,
		orderStatusChanges: orderStatusChanges,
		addressMutations:   addressMutations,
		remoteFailures:     remoteFailures,
	}
}

func (s *Storefront) IncAuthEvent(event string) {
	if s == nil || s.authEvents == nil {
		return
	}
	s.authEvents.WithLabelValues(normalizeLabel(event)).Inc()
}

func (s *Storefront) IncSessionTransition(phase string) {
	if s == nil || s.sessionTransitions == nil {
		return
	}
	s.sessionTransitions.WithLabelValues(normalizeLabel(phase)).Inc()
}

// ObserveResolve records how long a profile resolution took; outcome is "ok" or "error".
func (s *Storefront) ObserveResolve(outcome string, d time.Duration) {
	if s == nil || s.resolveDuration == nil {
		return
	}
	s.resolveDuration.WithLabelValues(normalizeLabel(outcome)).Observe(d.Seconds())
}

func (s *Storefront) IncOrderStatusChange(from, to string) {
	if s == nil || s.orderStatusChanges == nil {
		return
	}
	s.orderStatusChanges.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

func (s *Storefront) IncAddressMutation(op string) {
	if s == nil || s.addressMutations == nil {
		return
	}
	s.addressMutations.WithLabelValues(normalizeLabel(op)).Inc()
}

func (s *Storefront) IncRemoteFailure(op string) {
	if s == nil || s.remoteFailures == nil {
		return
	}
	s.remoteFailures.WithLabelValues(normalizeLabel(op)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
