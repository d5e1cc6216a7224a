package schema

import (
	"encoding/json"
	"fmt"
	"os"
)

// Metadata carries the hand-maintained column descriptions, agronomic
// thresholds, and prompt hints that cannot be introspected from the database.
// It is loaded once from a JSON file named in the config.
type Metadata struct {
	Columns     map[string]ColumnMetadata `json:"columns"`
	Hints       []string                  `json:"hints"`
	DomainFacts []string                  `json:"domain_facts"`
}

type ColumnMetadata struct {
	Description string      `json:"description"`
	Unit        string      `json:"unit"`
	DisplayName string      `json:"display_name"`
	Thresholds  *Thresholds `json:"thresholds"`
}

// LoadMetadata reads the metadata file. An empty path is allowed and yields
// empty metadata; a path that cannot be read or parsed is a hard error since
// it points at misconfiguration.
func LoadMetadata(path string) (Metadata, error) {
	if path == "" {
		return Metadata{}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("read schema metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Metadata{}, fmt.Errorf("decode schema metadata: %w", err)
	}
	return meta, nil
}
