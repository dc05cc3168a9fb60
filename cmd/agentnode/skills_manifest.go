package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/bridge"
	"gopkg.in/yaml.v3"
)

// loadSkillManifest reads <baseDataDir>/skills_manifest.yaml, the list of
// skills this node advertises in its Daily Check-in payload. A missing
// file means an empty manifest, not a startup failure.
func loadSkillManifest(baseDataDir string) ([]bridge.SkillManifestEntry, error) {
	path := filepath.Join(baseDataDir, "skills_manifest.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var parsed struct {
		Skills []bridge.SkillManifestEntry `yaml:"skills"`
	}
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return parsed.Skills, nil
}
