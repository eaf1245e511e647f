package roster

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Load reads a roster from YAML.
func Load(reader io.Reader) (Roster, error) {
	if reader == nil {
		return Roster{}, fmt.Errorf("roster reader is nil")
	}

	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	var loaded Roster
	if err := decoder.Decode(&loaded); err != nil {
		return Roster{}, fmt.Errorf("unmarshal roster yaml: %w", err)
	}
	return loaded, nil
}
