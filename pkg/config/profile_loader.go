package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/faults"
	"gopkg.in/yaml.v3"
)

// ProfilePaths resolves the per-profile data layout under the data root:
// memory.db, logs/, secrets/, sandbox/.
type ProfilePaths struct {
	BaseDataDir string
	DBPath      string
	LogsDir     string
	SecretsDir  string
	SandboxDir  string
}

// Profile is one node's identity and policy configuration.
type Profile struct {
	Name                      string   `yaml:"name"`
	DisplayName               string   `yaml:"display_name"`
	PolicyTier                string   `yaml:"policy_tier"`
	AllowedToolTiers          []string `yaml:"allowed_tool_tiers"`
	HealthPort                int      `yaml:"health_port"`
	LLMDefaultModel           string   `yaml:"llm_default_model"`
	PublicReadonlyMode        bool     `yaml:"public_readonly_mode"`
	PublicReadonlyGetEndpoints []string `yaml:"public_readonly_get_endpoints"`

	Paths ProfilePaths `yaml:"-"`
}

var defaultReadonlyEndpoints = []string{"/health", "/status", "/api-usage", "/backup/status"}

func validateRawProfile(raw map[string]interface{}, expectedName string) error {
	required := []string{"name", "display_name", "policy_tier", "allowed_tool_tiers"}
	var missing []string
	for _, key := range required {
		if _, ok := raw[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return faults.NewConfigError("profile", fmt.Sprintf("missing required keys: %s", strings.Join(missing, ", ")))
	}
	if name, _ := raw["name"].(string); name != expectedName {
		return faults.NewConfigError("profile.name", fmt.Sprintf("filename/name mismatch: expected %q, got %q", expectedName, name))
	}
	tiers, ok := raw["allowed_tool_tiers"].([]interface{})
	if !ok || len(tiers) == 0 {
		return faults.NewConfigError("profile.allowed_tool_tiers", "must be a non-empty list")
	}
	return nil
}

// LoadProfile loads <profilesDir>/<name>.yaml and resolves its data paths
// under dataRoot/<name>.
func LoadProfile(profilesDir, name, dataRoot string) (*Profile, error) {
	path := filepath.Join(profilesDir, name+".yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, faults.NewConfigError("profile", fmt.Sprintf("profile not found: %s", path))
	}

	var generic map[string]interface{}
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, faults.NewConfigError("profile", fmt.Sprintf("invalid YAML in %s: %v", path, err))
	}
	if err := validateRawProfile(generic, name); err != nil {
		return nil, err
	}

	var profile Profile
	if err := yaml.Unmarshal(raw, &profile); err != nil {
		return nil, faults.NewConfigError("profile", fmt.Sprintf("invalid YAML in %s: %v", path, err))
	}

	if profile.HealthPort == 0 {
		profile.HealthPort = 8600
	}
	if strings.TrimSpace(profile.LLMDefaultModel) == "" {
		profile.LLMDefaultModel = "gpt-4o-mini"
	}
	if len(profile.PublicReadonlyGetEndpoints) == 0 {
		profile.PublicReadonlyGetEndpoints = append([]string(nil), defaultReadonlyEndpoints...)
	}

	base := filepath.Join(dataRoot, name)
	profile.Paths = ProfilePaths{
		BaseDataDir: base,
		DBPath:      filepath.Join(base, "memory.db"),
		LogsDir:     filepath.Join(base, "logs"),
		SecretsDir:  filepath.Join(base, "secrets"),
		SandboxDir:  filepath.Join(base, "sandbox"),
	}
	return &profile, nil
}

// EnsureDirectories creates the profile's data layout without touching
// existing files.
func EnsureDirectories(p *Profile) error {
	for _, dir := range []string{p.Paths.BaseDataDir, p.Paths.LogsDir, p.Paths.SecretsDir, p.Paths.SandboxDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return faults.NewConfigError("profile.paths", fmt.Sprintf("creating %s: %v", dir, err))
		}
	}
	return nil
}

// DefaultDataRoot returns $HOME/agentdata, the conventional profile data root.
func DefaultDataRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", faults.NewConfigError("data_root", err.Error())
	}
	return filepath.Join(home, "agentdata"), nil
}

// AllowedTier reports whether tier (e.g. "tier1") is in the profile's
// permitted set.
func (p *Profile) AllowedTier(tier string) bool {
	for _, t := range p.AllowedToolTiers {
		if t == tier {
			return true
		}
	}
	return false
}

// ReadonlyEndpointAllowed reports whether path is in the public-readonly GET
// allowlist.
func (p *Profile) ReadonlyEndpointAllowed(path string) bool {
	for _, allowed := range p.PublicReadonlyGetEndpoints {
		if allowed == path {
			return true
		}
	}
	return false
}
