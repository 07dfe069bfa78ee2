package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// TOMLFile is the alternative project configuration file name
const TOMLFile = ".tmxmatch.toml"

// LoadTOML attempts to load configuration from .tmxmatch.toml in dir. A
// missing file returns nil without error.
func LoadTOML(dir string) (*Config, error) {
	tomlPath := filepath.Join(dir, TOMLFile)

	if _, err := os.Stat(tomlPath); os.IsNotExist(err) {
		return nil, nil
	}
	return loadTOMLFile(tomlPath, dir)
}

func loadTOMLFile(path, dir string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg, err := parseTOML(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	resolveRoot(cfg, dir)
	return cfg, nil
}

// parseTOML decodes onto the defaults, so absent keys keep their default
// values. Unknown keys are rejected.
func parseTOML(content []byte) (*Config, error) {
	cfg := Default("")
	dec := toml.NewDecoder(bytes.NewReader(content))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}
	return cfg, nil
}
