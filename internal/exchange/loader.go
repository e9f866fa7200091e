package exchange

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default_schedule.yaml
var defaultSchedule []byte

// DefaultSchedule returns the fee schedule bundled with the binary.
func DefaultSchedule() (*Schedule, error) {
	return ParseSchedule(bytes.NewReader(defaultSchedule))
}

// LoadSchedule reads a fee schedule from a YAML file. An empty path selects the
// bundled default schedule.
func LoadSchedule(path string) (*Schedule, error) {
	if path == "" {
		return DefaultSchedule()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fee schedule: %w", err)
	}
	defer f.Close()
	return ParseSchedule(f)
}

// ParseSchedule decodes a YAML document of exchange -> fee structure.
func ParseSchedule(r io.Reader) (*Schedule, error) {
	var fees map[string]FeeStructure
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fees); err != nil {
		return nil, fmt.Errorf("decode fee schedule: %w", err)
	}
	return NewSchedule(fees)
}
