// Package config loads the fankeeper YAML configuration with ${ENV_VAR}
// expansion and provides the read-modify-write persistence used by the
// token manager when a refreshed credential must survive a restart.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level fankeeper configuration.
type Config struct {
	// AccessToken is the bearer token used on every remote call. May be
	// a ${VAR} reference resolved from the environment at load time.
	AccessToken string `yaml:"access_token"`

	// AppID and AppSecret enable automated token exchange. Both optional;
	// without them expired tokens can only be recovered interactively.
	AppID     string `yaml:"app_id"`
	AppSecret string `yaml:"app_secret"`

	// PageID is the fanpage whose comments are moderated.
	PageID string `yaml:"page_id"`

	// APIBaseURL overrides the remote API host. Default: the public graph host.
	APIBaseURL string `yaml:"api_base_url"`

	// GraphVersion is the API version path segment. Default: v24.0.
	GraphVersion string `yaml:"graph_version"`

	// Demo must be set explicitly. In demo mode no network or browser
	// call is made; every action is simulated and logged.
	Demo *bool `yaml:"demo"`

	// Interval between poll cycles. Default: 90s.
	Interval time.Duration `yaml:"interval"`

	// MaxActionsPerCycle caps executed actions per cycle. Default: 20.
	MaxActionsPerCycle int `yaml:"max_actions_per_cycle"`

	// DatabasePath is the SQLite audit log location. Default: db/agent.db.
	DatabasePath string `yaml:"database_path"`

	// ListenAddr enables the local status API when non-empty.
	ListenAddr string `yaml:"listen_addr"`

	Browser BrowserConfig `yaml:"browser"`
	LLM     LLMConfig     `yaml:"llm"`

	// path the config was loaded from, kept for Save.
	path string
}

// BrowserConfig controls the rod fallback session.
type BrowserConfig struct {
	// Remote is the WebSocket URL of an external Chrome. Empty = launch local.
	Remote   string `yaml:"remote"`
	Headless *bool  `yaml:"headless"`
}

// LLMConfig selects the optional LLM classifier.
type LLMConfig struct {
	Provider string `yaml:"provider"` // "" = rule-based only, "gemini" = genai
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
}

func (c *Config) defaults() {
	if c.APIBaseURL == "" {
		c.APIBaseURL = "https://graph.facebook.com"
	}
	if c.GraphVersion == "" {
		c.GraphVersion = "v24.0"
	}
	if c.Interval <= 0 {
		c.Interval = 90 * time.Second
	}
	if c.MaxActionsPerCycle <= 0 {
		c.MaxActionsPerCycle = 20
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "db/agent.db"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gemini-2.0-flash"
	}
}

// Load reads a YAML configuration file. ${VAR} references anywhere in the
// file are expanded from the environment before decoding; unknown variables
// are left as-is so placeholder detection downstream still works.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	rendered := expandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(rendered), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.path = path
	cfg.defaults()

	if cfg.Demo == nil {
		return nil, fmt.Errorf("config: %s: demo must be set explicitly (true or false)", path)
	}

	return &cfg, nil
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string { return c.path }

// IsDemo reports the resolved demo flag.
func (c *Config) IsDemo() bool { return c.Demo != nil && *c.Demo }

// SaveAccessToken persists a new bearer token back into the config file.
// Read-modify-write on the YAML document node tree so unrelated keys,
// comments and ordering survive. Not safe for concurrent writers; the
// process is the single owner of its config file.
func (c *Config) SaveAccessToken(token string) error {
	if c.path == "" {
		return fmt.Errorf("config: no backing file to save token into")
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", c.path, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("config: parse %s: %w", c.path, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return fmt.Errorf("config: %s: not a YAML document", c.path)
	}

	setMappingValue(doc.Content[0], "access_token", token)

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("config: marshal %s: %w", c.path, err)
	}
	if err := os.WriteFile(c.path, out, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", c.path, err)
	}

	c.AccessToken = token
	return nil
}

func setMappingValue(m *yaml.Node, key, value string) {
	if m.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content[i+1].SetString(value)
			return
		}
	}
	var k, v yaml.Node
	k.SetString(key)
	v.SetString(value)
	m.Content = append(m.Content, &k, &v)
}

// expandEnv replaces ${VAR} with the environment value. Unset variables
// keep their literal ${VAR} form.
func expandEnv(s string) string {
	var b strings.Builder
	for {
		start := strings.Index(s, "${")
		if start == -1 {
			b.WriteString(s)
			return b.String()
		}
		end := strings.Index(s[start:], "}")
		if end == -1 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:start])
		name := s[start+2 : start+end]
		if val, ok := os.LookupEnv(name); ok {
			b.WriteString(val)
		} else {
			b.WriteString(s[start : start+end+1])
		}
		s = s[start+end+1:]
	}
}
