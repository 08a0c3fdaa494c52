package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format names the syntax of a settings file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ErrUnknownFormat is returned for files whose extension names no Format.
var ErrUnknownFormat = errors.New("unknown config format")

// FormatOf infers the format from path's extension (.yaml, .yml, .json).
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, filepath.Base(path))
}

// FromFile reads a settings file. ${VAR} and $VAR references are expanded
// from the environment before parsing, so directories can be written as
// ${HOME}/.parallelkit/checkpoints.
func FromFile(path string) (Config, error) {
	f, err := FormatOf(path)
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	cfg, err := Parse([]byte(os.ExpandEnv(string(data))), f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data in format f. An empty document yields an empty Config.
// The top level must be a mapping.
func Parse(data []byte, f Format) (Config, error) {
	var (
		m   map[string]any
		err error
	)
	switch f {
	case FormatYAML:
		err = yaml.Unmarshal(data, &m)
	case FormatJSON:
		if len(strings.TrimSpace(string(data))) == 0 {
			return New(nil), nil
		}
		err = json.Unmarshal(data, &m)
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
	if err != nil {
		return Config{}, fmt.Errorf("parse %s config: %w", f, err)
	}
	return New(m), nil
}
