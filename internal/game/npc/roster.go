package npc

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Definition is one roster entry loaded from YAML.
type Definition struct {
	Name    string `yaml:"name"`
	Avatar  string `yaml:"avatar"`
	Persona string `yaml:"persona"`
}

type rosterFile struct {
	NPCs []Definition `yaml:"npcs"`
}

// LoadRoster reads the NPC roster from a YAML file.
//
// Precondition: path must point to a readable YAML file.
// Postcondition: Returns at least one validated Definition or a non-nil
// error; names are non-empty and unique.
func LoadRoster(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading npc roster %s: %w", path, err)
	}

	var file rosterFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing npc roster %s: %w", path, err)
	}

	if err := validateRoster(file.NPCs); err != nil {
		return nil, fmt.Errorf("npc roster %s: %w", path, err)
	}
	return file.NPCs, nil
}

func validateRoster(defs []Definition) error {
	if len(defs) == 0 {
		return fmt.Errorf("roster must define at least one npc")
	}
	seen := make(map[string]bool, len(defs))
	for i, def := range defs {
		if def.Name == "" {
			return fmt.Errorf("npc %d: name must not be empty", i)
		}
		if seen[def.Name] {
			return fmt.Errorf("npc %d: duplicate name %q", i, def.Name)
		}
		seen[def.Name] = true
	}
	return nil
}
