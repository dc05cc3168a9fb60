// Package tools implements the Tool Registry: a name->tool map gated by the
// Policy Engine and Approval Queue, executing either native Go tools or
// WASM modules behind a single Tool interface.
package tools

import (
	"context"

	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/policy"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Result is a tool invocation's outcome.
type Result struct {
	OK     bool                   `json:"ok"`
	Output map[string]interface{} `json:"output"`
}

// Tool is a single invocable action, either a native Go implementation or a
// WASM module. It must be side-effect-isolated: idempotent retries may
// duplicate external effects, which is the tool's responsibility, not the
// registry's.
type Tool interface {
	Name() string
	Tier() policy.Tier
	Schema() *jsonschema.Schema // nil if the tool takes no validated payload
	Execute(ctx context.Context, payload map[string]interface{}) (Result, error)
}
