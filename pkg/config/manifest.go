package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest is the host's session manifest, reduced to what the runner needs:
// each component's name and its jump table.
type Manifest struct {
	Components []ManifestEntry `yaml:"components"`
}

// ManifestEntry describes one component of the session
type ManifestEntry struct {
	Name  string   `yaml:"name"`
	Jumps []string `yaml:"jumps"`
}

// LoadManifest reads a manifest file
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest parses manifest YAML
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	seen := make(map[string]bool, len(m.Components))
	for i, c := range m.Components {
		if c.Name == "" {
			return nil, fmt.Errorf("manifest component %d has no name", i)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("manifest lists component %q twice", c.Name)
		}
		seen[c.Name] = true
	}
	return &m, nil
}

// Jumps returns the jump table for a component
func (m *Manifest) Jumps(name string) ([]string, bool) {
	for _, c := range m.Components {
		if c.Name == name {
			return c.Jumps, true
		}
	}
	return nil, false
}
