package config

import (
	"os"
	"strings"

	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/faults"
	"gopkg.in/yaml.v3"
)

// NodeDirectoryEntry is one configured or placeholder peer.
type NodeDirectoryEntry struct {
	NodeID            string
	Profile           string
	Host              string
	User              string
	SigningPublicKeyB64 string
}

// Configured reports whether this entry has a usable host (non-empty, not a
// ".TBD" placeholder).
func (e NodeDirectoryEntry) Configured() bool {
	return e.Host != "" && !strings.HasSuffix(e.Host, ".TBD")
}

// NodeDirectory is the parsed peer routing table: a hub designation plus the
// full set of node entries, keyed by node id.
type NodeDirectory struct {
	HubProfile string
	Nodes      map[string]NodeDirectoryEntry
}

type nodeDirectoryYAML struct {
	Routing struct {
		HubProfile string `yaml:"hub_profile"`
	} `yaml:"routing"`
	Nodes map[string]struct {
		Host              string `yaml:"host"`
		Profile           string `yaml:"profile"`
		User              string `yaml:"user"`
		SigningPublicKey  string `yaml:"signing_public_key"`
	} `yaml:"nodes"`
}

// LoadNodeDirectory reads the node directory YAML at path. A missing file
// yields an empty directory (no peers configured), matching this tree's
// tolerant bootstrap behavior for a brand-new profile.
func LoadNodeDirectory(path string) (*NodeDirectory, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &NodeDirectory{Nodes: map[string]NodeDirectoryEntry{}}, nil
	}
	if err != nil {
		return nil, faults.NewConfigError("nodes_file", err.Error())
	}

	var parsed nodeDirectoryYAML
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, faults.NewConfigError("nodes_file", "invalid YAML: "+err.Error())
	}

	dir := &NodeDirectory{
		HubProfile: parsed.Routing.HubProfile,
		Nodes:      make(map[string]NodeDirectoryEntry, len(parsed.Nodes)),
	}
	for nodeID, spec := range parsed.Nodes {
		profile := strings.TrimSpace(spec.Profile)
		if profile == "" {
			profile = nodeID
		}
		dir.Nodes[nodeID] = NodeDirectoryEntry{
			NodeID:              nodeID,
			Profile:             profile,
			Host:                strings.TrimSpace(spec.Host),
			User:                strings.TrimSpace(spec.User),
			SigningPublicKeyB64: strings.TrimSpace(spec.SigningPublicKey),
		}
	}
	return dir, nil
}

// ConfiguredTargets returns configured peers keyed by profile name,
// excluding selfProfile and any entry whose profile equals selfProfile.
func (d *NodeDirectory) ConfiguredTargets(selfProfile string) map[string]NodeDirectoryEntry {
	out := make(map[string]NodeDirectoryEntry)
	for _, entry := range d.Nodes {
		if entry.Profile == "" || entry.Profile == selfProfile {
			continue
		}
		if !entry.Configured() {
			continue
		}
		out[entry.Profile] = entry
	}
	return out
}

// ByProfile looks up a node entry by its profile name.
func (d *NodeDirectory) ByProfile(profile string) (NodeDirectoryEntry, bool) {
	for _, entry := range d.Nodes {
		if entry.Profile == profile {
			return entry, true
		}
	}
	return NodeDirectoryEntry{}, false
}

// List returns every configured-or-placeholder entry, for /fleet/status.
func (d *NodeDirectory) List() []NodeDirectoryEntry {
	out := make([]NodeDirectoryEntry, 0, len(d.Nodes))
	for _, entry := range d.Nodes {
		out = append(out, entry)
	}
	return out
}
