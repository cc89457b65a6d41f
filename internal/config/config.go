package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"bookline/internal/domain"
)

// Config models bookline.yml.
type Config struct {
	Board struct {
		BaseURL    string                    `yaml:"base_url"`
		Token      string                    `yaml:"token"`
		BoardID    string                    `yaml:"board_id"`
		Categories map[string]CategoryFields `yaml:"categories"`
		Fields     struct {
			ClientName string `yaml:"client_name"`
			EventDate  string `yaml:"event_date"`
			Venue      string `yaml:"venue"`
			Details    string `yaml:"details"`
		} `yaml:"fields"`
		ArtistAliases map[string]string `yaml:"artist_aliases"`
	} `yaml:"board"`
	Proposals struct {
		WindowHours int `yaml:"window_hours"`
	} `yaml:"proposals"`
	Phrases struct {
		Qualifying     []string `yaml:"qualifying"`
		OptionsSent    string   `yaml:"options_sent"`
		NoAvailability string   `yaml:"no_availability"`
	} `yaml:"phrases"`
	Automations struct {
		SendOptions    WebhookConfig `yaml:"send_options"`
		NoAvailability WebhookConfig `yaml:"no_availability"`
	} `yaml:"automations"`
	Notifications struct {
		ArtistWebhook WebhookConfig `yaml:"artist_webhook"`
	} `yaml:"notifications"`
	Admins []string `yaml:"admins"`
}

// CategoryFields maps one service category to its board columns.
type CategoryFields struct {
	StatusField string `yaml:"status_field"`
	ArtistField string `yaml:"artist_field"`
}

type WebhookConfig struct {
	URL            string `yaml:"url"`
	Secret         string `yaml:"secret"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        *bool  `yaml:"enabled"`
}

// On reports whether a webhook is configured and not explicitly disabled.
func (w WebhookConfig) On() bool {
	if w.URL == "" {
		return false
	}
	return w.Enabled == nil || *w.Enabled
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Proposals.WindowHours <= 0 {
		return fmt.Errorf("config.proposals.window_hours must be positive")
	}
	if c.Board.Categories == nil {
		return fmt.Errorf("config.board.categories is required")
	}
	for _, cat := range []string{domain.CategoryMakeup, domain.CategoryHair} {
		fields, ok := c.Board.Categories[cat]
		if !ok {
			return fmt.Errorf("config.board.categories missing %s", cat)
		}
		if fields.StatusField == "" {
			return fmt.Errorf("category %s has empty status_field", cat)
		}
	}
	for cat := range c.Board.Categories {
		if cat != domain.CategoryMakeup && cat != domain.CategoryHair {
			return fmt.Errorf("unknown category %s in config.board.categories", cat)
		}
	}
	for name, alias := range c.Board.ArtistAliases {
		if name == "" || alias == "" {
			return fmt.Errorf("config.board.artist_aliases contains empty entry")
		}
	}
	return nil
}

// WindowHours returns the proposal response window.
func (c *Config) WindowHours() int {
	if c.Proposals.WindowHours <= 0 {
		return 24
	}
	return c.Proposals.WindowHours
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "bookline.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found", path)
		}
		return nil, err
	}
	return FromYAML(data)
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

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `board:
  base_url: ""
  token: ""
  board_id: ""
  categories:
    makeup:
      status_field: status_makeup
      artist_field: makeup_artist
    hair:
      status_field: status_hair
      artist_field: hair_artist
  fields:
    client_name: name
    event_date: event_date
    venue: venue
    details: details
  artist_aliases: {}

proposals:
  window_hours: 24

phrases:
  qualifying:
    - "offer sent"
    - "waiting for artists"
  options_sent: "options sent to client"
  no_availability: "no availability"

automations:
  send_options:
    url: ""
  no_availability:
    url: ""

notifications:
  artist_webhook:
    url: ""

admins: []
`
