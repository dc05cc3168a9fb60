package policy

import (
	"testing"

	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_TierTable(t *testing.T) {
	e := NewEngine([]string{"tier0", "tier1"}, nil)

	assert.Equal(t, store.DecisionAllow, e.Check("get_time", Tier0, nil).Decision)
	assert.Equal(t, store.DecisionRequireApproval, e.Check("request_email", Tier1, nil).Decision)
	assert.Equal(t, store.DecisionDeny, e.Check("jason_core_action", Tier2, nil).Decision)
	assert.Equal(t, store.DecisionDeny, e.Check("mystery", Tier("tier9"), nil).Decision)
}

func TestEngine_DeniesUnpermittedTier(t *testing.T) {
	e := NewEngine([]string{"tier0"}, nil)
	result := e.Check("request_email", Tier1, nil)
	assert.Equal(t, store.DecisionDeny, result.Decision)
}

func TestCheckSkillPermissions(t *testing.T) {
	assert.Equal(t, store.DecisionAllow, CheckSkillPermissions([]string{"read_memory"}).Decision)
	assert.Equal(t, store.DecisionRequireApproval, CheckSkillPermissions([]string{"read_memory", "filesystem_write"}).Decision)
}

func TestCELOverlay_CanOnlyTighten(t *testing.T) {
	overlay, err := NewCELOverlay([]string{`tier == "tier0" ? "deny" : "allow"`})
	require.NoError(t, err)
	e := NewEngine([]string{"tier0"}, overlay)

	result := e.Check("get_time", Tier0, nil)
	assert.Equal(t, store.DecisionDeny, result.Decision, "overlay tightens an allow to deny")
}

func TestCELOverlay_CannotRelax(t *testing.T) {
	overlay, err := NewCELOverlay([]string{`"allow"`})
	require.NoError(t, err)
	e := NewEngine([]string{"tier1"}, overlay)

	result := e.Check("request_email", Tier1, nil)
	assert.Equal(t, store.DecisionRequireApproval, result.Decision, "overlay voting allow cannot relax a require_approval base decision")
}

func TestCELOverlay_MalformedExpressionFailsToLoad(t *testing.T) {
	_, err := NewCELOverlay([]string{`this is not valid cel (`})
	assert.Error(t, err)
}

func TestCELOverlay_ErroringRuleDeniesAtEval(t *testing.T) {
	overlay, err := NewCELOverlay([]string{`payload.nonexistent_field`})
	require.NoError(t, err)
	e := NewEngine([]string{"tier0"}, overlay)

	result := e.Check("get_time", Tier0, map[string]interface{}{})
	assert.Equal(t, store.DecisionDeny, result.Decision)
}
