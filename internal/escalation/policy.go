// Package escalation runs the SLA escalation worker: a perpetual per-tenant
// poll loop that finds overdue non-terminal decisions, notifies the people
// who can unblock them, and records an idempotency-guarding log row.
package escalation

import (
	"encoding/json"
	"strings"
	"time"
)

// De-dup strategies. StrategyOnce escalates each request at most once over
// its lifetime, guarded by the ApprovalSlaEscalated log row. StrategyCooldown
// re-escalates after a cooldown window, tracked in a timestamp store.
const (
	StrategyOnce     = "once"
	StrategyCooldown = "cooldown"
)

const defaultFallbackRole = "Sales Manager"

// Policy is a tenant's escalation configuration, stored as JSON on the
// tenant row.
type Policy struct {
	Enabled               bool          `json:"enabled"`
	NotifyCurrentAssignee bool          `json:"notifyCurrentAssignee"`
	NotifyPendingStepRole bool          `json:"notifyPendingStepRole"`
	FallbackRoleName      string        `json:"fallbackRoleName"`
	SendEmails            bool          `json:"sendEmails"`
	DedupStrategy         string        `json:"dedupStrategy"`
	CooldownWindow        time.Duration `json:"cooldownWindow"`
}

// DefaultPolicy returns the policy applied when a tenant has none configured.
func DefaultPolicy() Policy {
	return Policy{
		Enabled:               true,
		NotifyCurrentAssignee: true,
		NotifyPendingStepRole: true,
		FallbackRoleName:      defaultFallbackRole,
		SendEmails:            true,
		DedupStrategy:         StrategyOnce,
		CooldownWindow:        24 * time.Hour,
	}
}

// ResolvePolicy parses a tenant's policy JSON, falling back to the default
// policy on blank or malformed input. Parsed policies are normalized: a blank
// fallback role and unknown de-dup strategies revert to the defaults.
func ResolvePolicy(policyJSON string) Policy {
	if strings.TrimSpace(policyJSON) == "" {
		return DefaultPolicy()
	}
	var p Policy
	if err := json.Unmarshal([]byte(policyJSON), &p); err != nil {
		return DefaultPolicy()
	}
	return normalize(p)
}

func normalize(p Policy) Policy {
	if strings.TrimSpace(p.FallbackRoleName) == "" {
		p.FallbackRoleName = defaultFallbackRole
	} else {
		p.FallbackRoleName = strings.TrimSpace(p.FallbackRoleName)
	}
	switch strings.ToLower(strings.TrimSpace(p.DedupStrategy)) {
	case StrategyCooldown:
		p.DedupStrategy = StrategyCooldown
	default:
		p.DedupStrategy = StrategyOnce
	}
	if p.CooldownWindow <= 0 {
		p.CooldownWindow = 24 * time.Hour
	}
	return p
}
