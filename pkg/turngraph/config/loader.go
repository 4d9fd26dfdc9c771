package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// FromFile loads configuration from a file, auto-detecting format by extension.
// Supported extensions: .yaml, .yml, .json
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json":
		return FromJSON(data)
	default:
		return Config{}, fmt.Errorf("unsupported config file extension: %s", ext)
	}
}

// FromYAML parses YAML data into a Config.
func FromYAML(data []byte) (Config, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	return New(m), nil
}

// FromJSON parses JSON data into a Config.
func FromJSON(data []byte) (Config, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse json: %w", err)
	}
	return New(m), nil
}

// FromEnv builds a Config from environment entries ("KEY=value") that
// start with prefix. The remainder of the name is lower-cased and its
// first underscore becomes a section separator, so with prefix "EVCHAT_"
// EVCHAT_LLM_BASE_URL becomes "llm.base_url". Names without a section
// stay top level. Pass os.Environ() for the process environment.
func FromEnv(prefix string, environ []string) Config {
	data := make(map[string]any)
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := strings.ToLower(strings.TrimPrefix(name, prefix))
		if rest == "" {
			continue
		}
		section, key, nested := strings.Cut(rest, "_")
		if !nested || key == "" {
			data[rest] = value
			continue
		}
		m, ok := data[section].(map[string]any)
		if !ok {
			m = make(map[string]any)
			data[section] = m
		}
		m[key] = value
	}
	return New(data)
}

// Decode fills out (a pointer to a struct) from the config using
// `mapstructure` tags. Strings are converted to numbers, booleans and
// durations so environment overlays decode cleanly.
//
// Example:
//
//	var cfg struct {
//	    Server struct {
//	        Addr string `mapstructure:"addr"`
//	    } `mapstructure:"server"`
//	}
//	err := c.Decode(&cfg)
func (c Config) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	if err := dec.Decode(c.data); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}
