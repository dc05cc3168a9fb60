package tools

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
	"time"

	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/policy"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// nativeTool adapts a plain function into the Tool interface.
type nativeTool struct {
	name    string
	tier    policy.Tier
	schema  *jsonschema.Schema
	execute func(ctx context.Context, payload map[string]interface{}) (Result, error)
}

func (t *nativeTool) Name() string                   { return t.name }
func (t *nativeTool) Tier() policy.Tier               { return t.tier }
func (t *nativeTool) Schema() *jsonschema.Schema      { return t.schema }
func (t *nativeTool) Execute(ctx context.Context, payload map[string]interface{}) (Result, error) {
	return t.execute(ctx, payload)
}

// NewGetTimeTool is a Tier 0 read-only tool returning the current time.
func NewGetTimeTool() Tool {
	return &nativeTool{
		name: "get_time",
		tier: policy.Tier0,
		execute: func(_ context.Context, _ map[string]interface{}) (Result, error) {
			now := time.Now().UTC()
			return Result{OK: true, Output: map[string]interface{}{
				"epoch_seconds": now.Unix(),
				"iso8601":       now.Format("2006-01-02T15:04:05Z"),
			}}, nil
		},
	}
}

// NewMathTool is a Tier 0 tool evaluating a restricted arithmetic
// expression: numeric literals and + - * / with standard precedence, no
// identifiers or calls.
func NewMathTool() Tool {
	return &nativeTool{
		name: "math",
		tier: policy.Tier0,
		execute: func(_ context.Context, payload map[string]interface{}) (Result, error) {
			expr, _ := payload["expression"].(string)
			if expr == "" {
				expr, _ = payload["expr"].(string)
			}
			expr = strings.TrimSpace(expr)
			if expr == "" {
				return Result{OK: false, Output: map[string]interface{}{"error": "missing 'expression' or 'expr'"}}, nil
			}
			value, err := safeEvalMath(expr)
			if err != nil {
				return Result{OK: false, Output: map[string]interface{}{"error": err.Error()}}, nil
			}
			return Result{OK: true, Output: map[string]interface{}{"expression": expr, "result": value}}, nil
		},
	}
}

func safeEvalMath(expr string) (float64, error) {
	node, err := parser.ParseExpr(expr)
	if err != nil {
		return 0, fmt.Errorf("invalid expression")
	}
	return evalMathNode(node)
}

func evalMathNode(node ast.Expr) (float64, error) {
	switch n := node.(type) {
	case *ast.BasicLit:
		if n.Kind != token.INT && n.Kind != token.FLOAT {
			return 0, fmt.Errorf("only numbers allowed")
		}
		var value float64
		if _, err := fmt.Sscanf(n.Value, "%g", &value); err != nil {
			return 0, fmt.Errorf("invalid numeric literal")
		}
		return value, nil
	case *ast.ParenExpr:
		return evalMathNode(n.X)
	case *ast.UnaryExpr:
		if n.Op != token.SUB {
			return 0, fmt.Errorf("operator not allowed")
		}
		v, err := evalMathNode(n.X)
		return -v, err
	case *ast.BinaryExpr:
		left, err := evalMathNode(n.X)
		if err != nil {
			return 0, err
		}
		right, err := evalMathNode(n.Y)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case token.ADD:
			return left + right, nil
		case token.SUB:
			return left - right, nil
		case token.MUL:
			return left * right, nil
		case token.QUO:
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			return left / right, nil
		default:
			return 0, fmt.Errorf("operator not allowed")
		}
	default:
		return 0, fmt.Errorf("invalid expression")
	}
}

// requestEmailSchemaJSON requires a non-empty "to" address; subject/body are
// optional free text.
var requestEmailSchemaJSON = `{
	"type": "object",
	"required": ["to"],
	"properties": {
		"to": {"type": "string", "minLength": 1},
		"subject": {"type": "string"},
		"body": {"type": "string"}
	}
}`

// NewRequestEmailTool is a Tier 1 tool: it never sends mail itself, it only
// formats the queued request. Dispatch happens only after human approval,
// outside this tool's scope.
func NewRequestEmailTool() Tool {
	schema := mustCompileSchema("request_email", requestEmailSchemaJSON)
	return &nativeTool{
		name:   "request_email",
		tier:   policy.Tier1,
		schema: schema,
		execute: func(_ context.Context, payload map[string]interface{}) (Result, error) {
			to, _ := payload["to"].(string)
			subject, _ := payload["subject"].(string)
			body, _ := payload["body"].(string)
			preview := body
			if len(preview) > 200 {
				preview = preview[:200] + "..."
			}
			return Result{OK: true, Output: map[string]interface{}{
				"message":      "email request queued for approval",
				"to":           to,
				"subject":      strings.TrimSpace(subject),
				"body_preview": preview,
			}}, nil
		},
	}
}

func mustCompileSchema(name, schemaJSON string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	url := "mem://" + name + ".schema.json"
	if err := compiler.AddResource(url, strings.NewReader(schemaJSON)); err != nil {
		panic(fmt.Sprintf("tools: bad schema for %s: %v", name, err))
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("tools: compiling schema for %s: %v", name, err))
	}
	return schema
}
