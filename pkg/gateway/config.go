// Package gateway wires the pieces together: configuration, the session
// registry and reaper, resume tokens, and the accept loop.
package gateway

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xenonsan/eagpaas/pkg/auth"
	"github.com/xenonsan/eagpaas/pkg/command"
)

// Config holds the complete gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Gate      GateConfig      `yaml:"gate"`
	Connect   ConnectConfig   `yaml:"connect"`
	Auth      AuthConfig      `yaml:"auth"`
	Bookmarks BookmarksConfig `yaml:"bookmarks"`
	Reaper    ReaperConfig    `yaml:"reaper"`
	Resume    ResumeConfig    `yaml:"resume"`
}

// ServerConfig configures the listener.
type ServerConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// GateConfig configures the instance password.
type GateConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"` // bcrypt; takes precedence over password
}

// ConnectConfig configures destination policy and onboarding UI.
type ConnectConfig struct {
	AllowCustomPorts bool          `yaml:"allow_custom_ports"`
	DisallowHypixel  bool          `yaml:"disallow_hypixel"`
	ShowDisclaimers  bool          `yaml:"show_disclaimers"`
	DisclaimerDelay  time.Duration `yaml:"disclaimer_delay"`
}

// AuthConfig configures the upstream auth providers.
type AuthConfig struct {
	Microsoft   MicrosoftConfig   `yaml:"microsoft"`
	TheAltening TheAlteningConfig `yaml:"thealtening"`
}

// MicrosoftConfig configures the device-code flow.
type MicrosoftConfig struct {
	ClientID string `yaml:"client_id"`
}

// TheAlteningConfig configures the alt token exchange.
type TheAlteningConfig struct {
	AuthURL string `yaml:"auth_url"`
}

// BookmarksConfig selects and configures the bookmark store.
type BookmarksConfig struct {
	Mode string `yaml:"mode"` // "file" or "postgres"
	Path string `yaml:"path"` // file mode
	DSN  string `yaml:"dsn"`  // postgres mode
}

// ReaperConfig configures idle eviction.
type ReaperConfig struct {
	Interval      time.Duration `yaml:"interval"`
	AuthIdle      time.Duration `yaml:"auth_idle"`
	ConnectedIdle time.Duration `yaml:"connected_idle"`
}

// ResumeConfig configures signed resume tokens.
type ResumeConfig struct {
	SigningKey string        `yaml:"signing_key"`
	TTL        time.Duration `yaml:"ttl"`
}

// DefaultConfig returns a config with every default applied: a file-backed
// bookmark store, no gate, and the public auth endpoints.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// LoadConfig loads configuration from a file.
// The path is expected to come from command line arguments, controlled by the administrator.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by admin
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.Server.Name == "" {
		cfg.Server.Name = "eagpaas"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":25565"
	}
	if cfg.Connect.DisclaimerDelay == 0 {
		cfg.Connect.DisclaimerDelay = 2 * time.Second
	}
	if cfg.Auth.Microsoft.ClientID == "" {
		cfg.Auth.Microsoft.ClientID = auth.DefaultClientID
	}
	if cfg.Bookmarks.Mode == "" {
		cfg.Bookmarks.Mode = "file"
	}
	if cfg.Bookmarks.Path == "" {
		cfg.Bookmarks.Path = "serverlist.json"
	}
	if cfg.Reaper.Interval == 0 {
		cfg.Reaper.Interval = 10 * time.Second
	}
	if cfg.Reaper.AuthIdle == 0 {
		cfg.Reaper.AuthIdle = 5 * time.Minute
	}
	if cfg.Reaper.ConnectedIdle == 0 {
		cfg.Reaper.ConnectedIdle = 10 * time.Minute
	}
	if cfg.Resume.TTL == 0 {
		cfg.Resume.TTL = time.Hour
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Gate.Enabled && c.Gate.Password == "" && c.Gate.PasswordHash == "" {
		errs = append(errs, "gate.password or gate.password_hash is required when the gate is enabled")
	}

	switch c.Bookmarks.Mode {
	case "file":
		if c.Bookmarks.Path == "" {
			errs = append(errs, "bookmarks.path is required in file mode")
		}
	case "postgres":
		if c.Bookmarks.DSN == "" {
			errs = append(errs, "bookmarks.dsn is required in postgres mode")
		}
	default:
		errs = append(errs, fmt.Sprintf("bookmarks.mode must be \"file\" or \"postgres\", got %q", c.Bookmarks.Mode))
	}

	if c.Resume.SigningKey != "" && len(c.Resume.SigningKey) < 32 {
		errs = append(errs, "resume.signing_key must be at least 32 bytes")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Policy builds the destination policy shared by the router and the flow.
func (c *Config) Policy() command.Policy {
	return command.Policy{
		AllowCustomPorts: c.Connect.AllowCustomPorts,
		DisallowHypixel:  c.Connect.DisallowHypixel,
	}
}
