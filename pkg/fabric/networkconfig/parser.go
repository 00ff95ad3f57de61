package networkconfig

import (
	"bytes"
	"errors"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	apperrors "github.com/ledgermart/ledgermart/pkg/errors"
)

// LoadFromFile loads a connection profile from a YAML file. Legacy
// profiles sometimes carry several concatenated YAML documents in one
// file; every document is parsed and the single one containing a
// top-level `organizations` mapping is taken as authoritative. A
// profile with more than one such document is rejected as ambiguous.
func LoadFromFile(path string) (*NetworkConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewConfigError("failed to open connection profile", err, map[string]interface{}{
			"path": path,
		})
	}
	defer file.Close()

	return LoadFromReader(file)
}

// LoadFromReader loads a connection profile from an io.Reader.
func LoadFromReader(reader io.Reader) (*NetworkConfig, error) {
	decoder := yaml.NewDecoder(reader)
	var selected *NetworkConfig
	for {
		var config NetworkConfig
		err := decoder.Decode(&config)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperrors.NewConfigError("failed to parse connection profile document", err, nil)
		}
		if len(config.Organizations) == 0 {
			continue
		}
		if selected != nil {
			return nil, apperrors.NewConfigError("connection profile contains multiple documents with organizations", nil, nil)
		}
		selected = &config
	}
	if selected == nil {
		return nil, apperrors.NewConfigError("no connection profile document contains organizations", nil, nil)
	}
	if err := selected.Validate(); err != nil {
		return nil, err
	}
	return selected, nil
}

// LoadFromBytes loads a connection profile from a byte slice.
func LoadFromBytes(data []byte) (*NetworkConfig, error) {
	return LoadFromReader(bytes.NewReader(data))
}

// SaveToFile writes the profile back out as a single YAML document.
func (c *NetworkConfig) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// SaveToBytes converts a connection profile to a byte slice.
func (c *NetworkConfig) SaveToBytes() ([]byte, error) {
	return yaml.Marshal(c)
}
