package policy

import (
	"fmt"
	"sync"

	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/store"
	"github.com/google/cel-go/cel"
)

// CELOverlay holds zero or more compiled CEL expressions evaluated, in
// order, against a small binding of (tool_name, tier, payload). Each
// expression must return "allow", "require_approval", or "deny".
type CELOverlay struct {
	env   *cel.Env
	mu    sync.Mutex
	progs []cel.Program
}

// NewCELOverlay compiles each expression once at load time. A malformed
// expression fails the whole overlay load, since a silently-skipped rule
// would defeat the "can only tighten" guarantee.
func NewCELOverlay(expressions []string) (*CELOverlay, error) {
	if len(expressions) == 0 {
		return nil, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("tool_name", cel.StringType),
		cel.Variable("tier", cel.StringType),
		cel.Variable("payload", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("policy: building CEL environment: %w", err)
	}

	overlay := &CELOverlay{env: env}
	for i, expr := range expressions {
		ast, issues := env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("policy: compiling overlay rule %d: %w", i, issues.Err())
		}
		prg, err := env.Program(ast, cel.InterruptCheckFrequency(100), cel.CostLimit(10000))
		if err != nil {
			return nil, fmt.Errorf("policy: building overlay program %d: %w", i, err)
		}
		overlay.progs = append(overlay.progs, prg)
	}
	return overlay, nil
}

// Evaluate runs every compiled rule and returns the strictest outcome
// across all of them. A rule that errors or returns anything other than
// the three known decision strings is treated as deny.
func (o *CELOverlay) Evaluate(toolName, tier string, payload map[string]interface{}) (store.Decision, error) {
	if o == nil {
		return store.DecisionAllow, nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	input := map[string]interface{}{
		"tool_name": toolName,
		"tier":      tier,
		"payload":   payload,
	}

	result := store.DecisionAllow
	for i, prg := range o.progs {
		out, _, err := prg.Eval(input)
		if err != nil {
			return store.DecisionDeny, fmt.Errorf("overlay rule %d: %w", i, err)
		}
		raw, ok := out.Value().(string)
		if !ok {
			return store.DecisionDeny, fmt.Errorf("overlay rule %d: result is not a string", i)
		}
		decision := store.Decision(raw)
		switch decision {
		case store.DecisionAllow, store.DecisionRequireApproval, store.DecisionDeny:
			result = stricter(result, decision)
		default:
			return store.DecisionDeny, fmt.Errorf("overlay rule %d: unrecognized decision %q", i, raw)
		}
	}
	return result, nil
}
