package config

import "gopkg.in/yaml.v3"

// DumpYAML renders cfg as YAML for operator-facing diagnostics (the
// config-example CLI's --yaml flag), independent of the TOML format
// WriteSnapshot persists recovery snapshots in.
func DumpYAML(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
