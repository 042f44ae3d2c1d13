// Package metrics defines the portal's custom Prometheus metrics. HTTP
// request metrics come from echoprometheus; everything here is domain level.
//
// All metrics register with the default registry on package init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "portal"

// ── Routing ──────────────────────────────────────────────────────────────────

// GuardDecisionsTotal counts route guard outcomes.
// Labels:
//   - path: the guarded route (e.g. "/inbox")
//   - decision: "allow", "redirect" or "deny_unauthenticated"
var GuardDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "guard_decisions_total",
		Help:      "Total number of route guard decisions, by path and outcome.",
	},
	[]string{"path", "decision"},
)

// ScopesIssuedTotal counts new client scopes handed out to browsers.
var ScopesIssuedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scopes_issued_total",
		Help:      "Total number of client scope cookies issued.",
	},
)

// ── Approval workflow ────────────────────────────────────────────────────────

// PendingFetchTotal counts pending-list refreshes requested by a page or API call.
// Label:
//   - result: "ok" or "error"
var PendingFetchTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pending_fetch_total",
		Help:      "Total number of pending request list fetches, by result.",
	},
	[]string{"result"},
)

// PendingRequests is the size of the last list fetched, by request kind.
var PendingRequests = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_requests",
		Help:      "Number of pending requests in the most recent fetch.",
	},
	[]string{"kind"},
)

// DecisionsTotal counts approve/reject attempts.
// Labels:
//   - kind: "registration" or "role_change"
//   - action: "approve" or "reject"
//   - result: "ok", "in_flight", "error" or "invalid"
var DecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decisions_total",
		Help:      "Total number of approve/reject attempts, by kind, action and result.",
	},
	[]string{"kind", "action", "result"},
)

// DecisionDuration measures an approve/reject round trip including the refresh.
var DecisionDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "decision_duration_seconds",
		Help:      "Duration of approve/reject calls including the list refresh.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"action"},
)

// ── Authentication ───────────────────────────────────────────────────────────

// LoginsTotal counts login attempts.
// Labels:
//   - result: "ok" or "error"
//   - role: the role logged in as, empty on failure
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts, by result and role.",
	},
	[]string{"result", "role"},
)
