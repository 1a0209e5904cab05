package escalation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"arbiter/internal/escalation"
)

func TestResolvePolicyDefaults(t *testing.T) {
	def := escalation.DefaultPolicy()
	assert.True(t, def.Enabled)
	assert.True(t, def.NotifyCurrentAssignee)
	assert.True(t, def.NotifyPendingStepRole)
	assert.True(t, def.SendEmails)
	assert.Equal(t, "Sales Manager", def.FallbackRoleName)
	assert.Equal(t, escalation.StrategyOnce, def.DedupStrategy)

	assert.Equal(t, def, escalation.ResolvePolicy(""))
	assert.Equal(t, def, escalation.ResolvePolicy("   "))
	assert.Equal(t, def, escalation.ResolvePolicy("{not valid json"))
}

func TestResolvePolicyNormalization(t *testing.T) {
	p := escalation.ResolvePolicy(`{"enabled":true,"fallbackRoleName":"  ","dedupStrategy":"UNKNOWN","cooldownWindow":-5}`)
	assert.Equal(t, "Sales Manager", p.FallbackRoleName)
	assert.Equal(t, escalation.StrategyOnce, p.DedupStrategy)
	assert.Equal(t, 24*time.Hour, p.CooldownWindow)

	p = escalation.ResolvePolicy(`{"enabled":false,"fallbackRoleName":" Ops Lead ","dedupStrategy":"Cooldown"}`)
	assert.False(t, p.Enabled)
	assert.Equal(t, "Ops Lead", p.FallbackRoleName)
	assert.Equal(t, escalation.StrategyCooldown, p.DedupStrategy)
}
