package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/policy"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/tools"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// registerNativeTools wires the always-available in-process tools.
func registerNativeTools(registry *tools.Registry) {
	registry.Register(tools.NewMathTool())
	registry.Register(tools.NewGetTimeTool())
	registry.Register(tools.NewRequestEmailTool())
}

type wasmToolSpec struct {
	Name       string `yaml:"name"`
	Tier       string `yaml:"tier"`
	SchemaPath string `yaml:"schema_path"`
	Module     string `yaml:"module"`
}

type wasmManifest struct {
	Tools []wasmToolSpec `yaml:"tools"`
}

// registerWASMTools reads <sandboxDir>/wasm_tools.yaml, compiling and
// registering every listed sandboxed tool. A missing manifest means no
// WASM tools are configured, matching this tree's tolerant bootstrap
// behavior for optional components.
func registerWASMTools(ctx context.Context, registry *tools.Registry, sandboxDir string, _ *policy.Engine) error {
	manifestPath := filepath.Join(sandboxDir, "wasm_tools.yaml")
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", manifestPath, err)
	}

	var manifest wasmManifest
	if err := yaml.Unmarshal(raw, &manifest); err != nil {
		return fmt.Errorf("parsing %s: %w", manifestPath, err)
	}

	for _, spec := range manifest.Tools {
		schema, err := compileSchemaFile(filepath.Join(sandboxDir, spec.SchemaPath))
		if err != nil {
			return fmt.Errorf("wasm tool %s: %w", spec.Name, err)
		}
		tool, err := tools.NewWASMTool(ctx, spec.Name, policy.Tier(spec.Tier), schema, sandboxDir, spec.Module)
		if err != nil {
			return fmt.Errorf("wasm tool %s: %w", spec.Name, err)
		}
		registry.Register(tool)
	}
	return nil
}

func compileSchemaFile(path string) (*jsonschema.Schema, error) {
	if path == "" {
		return nil, nil
	}
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(path)
	if err != nil {
		return nil, fmt.Errorf("compiling schema %s: %w", path, err)
	}
	return schema, nil
}
