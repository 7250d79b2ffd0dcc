package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"sitebrief/internal/domain"
)

// Config models sitebrief.yml.
type Config struct {
	Project struct {
		ID       string `yaml:"id"`
		Name     string `yaml:"name"`
		Timezone string `yaml:"timezone"`
	} `yaml:"project"`
	Defaults struct {
		Priority         string `yaml:"priority"`
		ContractorStatus string `yaml:"contractor_status"`
	} `yaml:"defaults"`
	Stats struct {
		RollingWindowDays int `yaml:"rolling_window_days"`
	} `yaml:"stats"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Secret         string   `yaml:"secret" json:"secret,omitempty"`
	Events         []string `yaml:"events" json:"events,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled" json:"enabled,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with sb project config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Project.ID == "" {
		return fmt.Errorf("config.project.id is required")
	}
	if c.Defaults.Priority != "" && !domain.ValidPriority(c.Defaults.Priority) {
		return fmt.Errorf("config.defaults.priority %q is not a known priority", c.Defaults.Priority)
	}
	if c.Defaults.ContractorStatus != "" && !domain.ValidContractorStatus(c.Defaults.ContractorStatus) {
		return fmt.Errorf("config.defaults.contractor_status %q is not a known status", c.Defaults.ContractorStatus)
	}
	if c.Stats.RollingWindowDays < 0 {
		return fmt.Errorf("config.stats.rolling_window_days must not be negative")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// Priority returns the coercion default for unrecognized activity priorities.
func (c *Config) Priority() string {
	if c != nil && c.Defaults.Priority != "" {
		return c.Defaults.Priority
	}
	return "medium"
}

// ContractorStatus returns the coercion default for unrecognized contractor statuses.
func (c *Config) ContractorStatus() string {
	if c != nil && c.Defaults.ContractorStatus != "" {
		return c.Defaults.ContractorStatus
	}
	return "Active"
}

// RollingWindowDays returns the default window for rolling contractor stats.
func (c *Config) RollingWindowDays() int {
	if c != nil && c.Stats.RollingWindowDays > 0 {
		return c.Stats.RollingWindowDays
	}
	return 7
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "sitebrief.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectID string) string {
	return fmt.Sprintf(defaultTemplate, projectID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a project.
func Default(projectID string) *Config {
	var cfg Config
	cfg.Project.ID = projectID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, projectID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `project:
  id: %s
  name: ""
  timezone: UTC

defaults:
  priority: medium
  contractor_status: Active

stats:
  rolling_window_days: 7
`
