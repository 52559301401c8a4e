package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InvitationsCreated counts issued invitations by kind.
	InvitationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rosterinvites_invitations_created_total",
			Help: "Total number of invitations issued",
		},
		[]string{"kind"},
	)

	// InvitationResponses counts respond attempts by kind, decision and outcome
	// (applied|already_responded|expired|forbidden|not_found|error).
	InvitationResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rosterinvites_invitation_responses_total",
			Help: "Total number of invitation responses by outcome",
		},
		[]string{"kind", "decision", "outcome"},
	)

	// GrantFailures counts grant side effects that failed after an accept committed.
	GrantFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rosterinvites_grant_failures_total",
			Help: "Total number of failed grant executions",
		},
		[]string{"kind"},
	)

	// ExpiredPendingInvitations tracks pending invitations whose window has closed.
	ExpiredPendingInvitations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rosterinvites_expired_pending_invitations",
			Help: "Number of pending invitations past their expiry",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rosterinvites_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
