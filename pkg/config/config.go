package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Config is the full runtime configuration.
//
// Precedence, highest first: INFRABOT_* environment variables, then
// ~/.infrabot/config.yaml, then built-in defaults.
type Config struct {
	Model   ModelConfig   `koanf:"model"`
	Memory  MemoryConfig  `koanf:"memory"`
	Journal JournalConfig `koanf:"journal"`
	Ansible AnsibleConfig `koanf:"ansible"`
	Verbose bool          `koanf:"verbose"`
}

type ModelConfig struct {
	Name       string `koanf:"name"`
	BaseURL    string `koanf:"base_url"`
	EmbedModel string `koanf:"embed_model"`
}

type MemoryConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

type JournalConfig struct {
	Path string `koanf:"path"`
}

type AnsibleConfig struct {
	Inventory           string `koanf:"inventory"`
	AdHocTimeoutSecs    int    `koanf:"adhoc_timeout_secs"`
	PlaybookTimeoutSecs int    `koanf:"playbook_timeout_secs"`
}

// defaultYAML holds the built-in defaults. Paths containing ~ are expanded
// after unmarshaling.
const defaultYAML = `
model:
  name: deepseek-coder
  base_url: http://localhost:11434
  embed_model: nomic-embed-text
memory:
  path: ~/.infrabot/memory
  compress: false
journal:
  path: ~/.infrabot/journal.db
ansible:
  inventory: ""
  adhoc_timeout_secs: 60
  playbook_timeout_secs: 300
verbose: false
`

// Load builds the configuration from defaults, an optional YAML file and
// environment overrides. An empty path means ~/.infrabot/config.yaml; a
// missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider([]byte(defaultYAML)), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		path = filepath.Join(home, ".infrabot", "config.yaml")
	}

	if data, err := os.ReadFile(path); err == nil {
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	// INFRABOT_MODEL_NAME -> model.name
	if err := k.Load(env.Provider("INFRABOT_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "INFRABOT_")), "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Memory.Path = expandHome(cfg.Memory.Path)
	cfg.Journal.Path = expandHome(cfg.Journal.Path)

	return &cfg, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
