package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/policy"
)

// loadCELOverlay reads one CEL expression per non-blank, non-comment line
// from path. An empty path or a missing file means no overlay is
// configured, which NewCELOverlay already treats as a no-op.
func loadCELOverlay(path string) (*policy.CELOverlay, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("agentnode: reading CEL overlay file %s: %w", path, err)
	}

	var expressions []string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		expressions = append(expressions, line)
	}
	return policy.NewCELOverlay(expressions)
}
