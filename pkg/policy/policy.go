// Package policy implements the tier-table decision engine gating tool
// invocation, plus an optional CEL overlay that may only tighten a decision.
package policy

import (
	"fmt"

	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/store"
)

// Tier is one of the three tool-tier levels a profile may permit.
type Tier string

const (
	Tier0 Tier = "tier0"
	Tier1 Tier = "tier1"
	Tier2 Tier = "tier2"
)

// riskySkillPermissions triggers require_approval when requested by a skill,
// regardless of the skill's own declared tier.
var riskySkillPermissions = map[string]struct{}{
	"screen":           {},
	"filesystem_write": {},
	"network_external": {},
	"secrets_access":   {},
}

// Result is a policy decision plus its human-readable reason.
type Result struct {
	Decision store.Decision
	Reason   string
}

// Engine evaluates tool invocations against a profile's permitted tier set.
type Engine struct {
	allowed map[Tier]struct{}
	overlay *CELOverlay
}

// NewEngine builds an Engine from a profile's allowed_tool_tiers list
// (values "tier0"/"tier1"/"tier2") and an optional compiled CEL overlay.
func NewEngine(allowedToolTiers []string, overlay *CELOverlay) *Engine {
	allowed := make(map[Tier]struct{}, len(allowedToolTiers))
	for _, raw := range allowedToolTiers {
		allowed[Tier(raw)] = struct{}{}
	}
	return &Engine{allowed: allowed, overlay: overlay}
}

// Check evaluates the tier table for toolName at tier, then applies the CEL
// overlay (if configured) — the overlay may only move the result toward a
// stricter decision, never relax it.
func (e *Engine) Check(toolName string, tier Tier, payload map[string]interface{}) Result {
	base := e.checkTier(toolName, tier)
	if e.overlay == nil {
		return base
	}
	overlayDecision, err := e.overlay.Evaluate(toolName, string(tier), payload)
	if err != nil {
		return Result{Decision: store.DecisionDeny, Reason: fmt.Sprintf("CEL overlay error: %v", err)}
	}
	final := stricter(base.Decision, overlayDecision)
	if final == base.Decision {
		return base
	}
	return Result{Decision: final, Reason: fmt.Sprintf("%s (tightened by policy overlay)", base.Reason)}
}

func (e *Engine) checkTier(toolName string, tier Tier) Result {
	_, permitted := e.allowed[tier]
	switch tier {
	case Tier0:
		if permitted {
			return Result{store.DecisionAllow, fmt.Sprintf("%s is Tier 0", toolName)}
		}
		return Result{store.DecisionDeny, "T0 not permitted for this profile"}
	case Tier1:
		if permitted {
			return Result{store.DecisionRequireApproval, fmt.Sprintf("%s requires human approval (T1)", toolName)}
		}
		return Result{store.DecisionDeny, "T1 not permitted for this profile"}
	case Tier2:
		if permitted {
			return Result{store.DecisionRequireApproval, fmt.Sprintf("%s requires Tier 2 approval", toolName)}
		}
		return Result{store.DecisionDeny, "Tier 2 is restricted"}
	default:
		return Result{store.DecisionDeny, "unknown tier"}
	}
}

// CheckSkillPermissions returns require_approval iff requested intersects
// the risky permission set.
func CheckSkillPermissions(requested []string) Result {
	var risky []string
	for _, perm := range requested {
		if perm == "" {
			continue
		}
		if _, isRisky := riskySkillPermissions[perm]; isRisky {
			risky = append(risky, perm)
		}
	}
	if len(risky) == 0 {
		return Result{store.DecisionAllow, "no risky skill permissions requested"}
	}
	return Result{store.DecisionRequireApproval, fmt.Sprintf("skill permissions require approval: %v", risky)}
}

// rank orders decisions from loosest to strictest.
func rank(d store.Decision) int {
	switch d {
	case store.DecisionAllow:
		return 0
	case store.DecisionRequireApproval:
		return 1
	case store.DecisionDeny:
		return 2
	default:
		return 2
	}
}

func stricter(a, b store.Decision) store.Decision {
	if rank(b) > rank(a) {
		return b
	}
	return a
}
