package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/policy"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// WASMTool runs a precompiled WebAssembly module inside a wazero runtime
// scoped to the profile's sandbox directory. Deny-by-default: no
// filesystem, no network, no ambient authority beyond stdin/stdout.
// Payload goes to the module's stdin as JSON; its stdout must be a JSON
// object decodable into Result.
type WASMTool struct {
	name       string
	tier       policy.Tier
	schema     *jsonschema.Schema
	modulePath string
	runtime    wazero.Runtime
}

// NewWASMTool checks that the WASM module at modulePath (relative to
// sandboxDir) exists and prepares its runtime; the module file is read and
// compiled on every Execute call.
func NewWASMTool(ctx context.Context, name string, tier policy.Tier, schema *jsonschema.Schema, sandboxDir, modulePath string) (*WASMTool, error) {
	fullPath := filepath.Join(sandboxDir, modulePath)
	if _, err := os.Stat(fullPath); err != nil {
		return nil, fmt.Errorf("tools: wasm module %s: %w", fullPath, err)
	}

	runtimeCfg := wazero.NewRuntimeConfig().WithMemoryLimitPages(16) // 1 MiB
	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	wasi_snapshot_preview1.MustInstantiate(ctx, runtime)

	return &WASMTool{
		name:       name,
		tier:       tier,
		schema:     schema,
		modulePath: fullPath,
		runtime:    runtime,
	}, nil
}

func (t *WASMTool) Name() string              { return t.name }
func (t *WASMTool) Tier() policy.Tier         { return t.tier }
func (t *WASMTool) Schema() *jsonschema.Schema { return t.schema }

func (t *WASMTool) Close(ctx context.Context) error {
	return t.runtime.Close(ctx)
}

func (t *WASMTool) Execute(ctx context.Context, payload map[string]interface{}) (Result, error) {
	wasmBytes, err := os.ReadFile(t.modulePath)
	if err != nil {
		return Result{}, fmt.Errorf("tools: reading wasm module: %w", err)
	}

	input, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("tools: marshaling payload: %w", err)
	}

	compiled, err := t.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return Result{}, fmt.Errorf("tools: compiling %s: %w", t.name, err)
	}
	defer compiled.Close(ctx)

	var stdout, stderr bytes.Buffer
	modCfg := wazero.NewModuleConfig().
		WithName(t.name).
		WithStdin(bytes.NewReader(input)).
		WithStdout(&stdout).
		WithStderr(&stderr).
		WithStartFunctions("_start")
		// deny-by-default: no WithFSConfig, no WithSysNanotime, no
		// WithRandSource, no environment inheritance.

	mod, err := t.runtime.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("tools: %s timed out: %w", t.name, ctx.Err())
		}
		return Result{}, fmt.Errorf("tools: instantiating %s: %w", t.name, err)
	}
	defer mod.Close(ctx)

	if stderr.Len() > 0 {
		return Result{OK: false, Output: map[string]interface{}{"error": stderr.String()}}, nil
	}

	var result Result
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return Result{}, fmt.Errorf("tools: %s produced non-JSON output: %w", t.name, err)
	}
	return result, nil
}
