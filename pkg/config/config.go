package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"

	"yap/pkg/identity"
)

const (
	envConfigPath = "YAP_CONFIG"
	envOrgURL     = "SLACK_ORG_URL"
	envChannelID  = "SLACK_CHANNEL_ID"
	envTeamID     = "SLACK_TEAM_ID"
	envXOXCToken  = "SLACK_XOXC_TOKEN"
	envXOXDToken  = "SLACK_XOXD_TOKEN"
	envCookies    = "SLACK_COOKIES"

	defaultUserName = "default"
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Workspace    WorkspaceConfig `json:"workspace"`
	Users        []UserConfig    `json:"users"`
	Strategy     string          `json:"strategy,omitempty"`
	Delivery     DeliveryConfig  `json:"delivery"`
	MessagesPath string          `json:"messages_path,omitempty"`
	Logging      LoggingConfig   `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// WorkspaceConfig names the remote workspace and target channel.
type WorkspaceConfig struct {
	OrgURL    string `json:"org_url"`
	ChannelID string `json:"channel_id"`
	TeamID    string `json:"team_id,omitempty"`
}

// UserConfig is one posting identity's browser-session credentials.
type UserConfig struct {
	Name      string `json:"name"`
	XOXCToken string `json:"xoxc_token"`
	XOXDToken string `json:"xoxd_token"`
	Cookies   string `json:"cookies,omitempty"`
}

// DeliveryConfig tunes pacing and request limits. An omitted delay falls
// back to its default; zero disables it. Zero timeouts keep the client's
// own defaults.
type DeliveryConfig struct {
	DelaySeconds           *float64 `json:"delay_seconds,omitempty"`
	ReplyDelaySeconds      *float64 `json:"reply_delay_seconds,omitempty"`
	ReactionDelaySeconds   *float64 `json:"reaction_delay_seconds,omitempty"`
	RequestTimeoutSeconds  float64  `json:"request_timeout_seconds,omitempty"`
	ReactionTimeoutSeconds float64  `json:"reaction_timeout_seconds,omitempty"`
	RequestsPerSecond      float64  `json:"requests_per_second,omitempty"`
	UserAgent              string   `json:"user_agent,omitempty"`
}

func (d DeliveryConfig) MessageDelay() time.Duration {
	return delay(d.DelaySeconds, 2)
}

func (d DeliveryConfig) ReplyDelay() time.Duration {
	return delay(d.ReplyDelaySeconds, 1)
}

func (d DeliveryConfig) ReactionDelay() time.Duration {
	return delay(d.ReactionDelaySeconds, 0.5)
}

func delay(value *float64, fallback float64) time.Duration {
	if value == nil {
		return seconds(fallback, 0)
	}
	if *value <= 0 {
		return 0
	}
	return seconds(*value, 0)
}

// RequestTimeout is zero when unset so the client keeps its own default.
func (d DeliveryConfig) RequestTimeout() time.Duration {
	return seconds(d.RequestTimeoutSeconds, 0)
}

func (d DeliveryConfig) ReactionTimeout() time.Duration {
	return seconds(d.ReactionTimeoutSeconds, 0)
}

func seconds(value float64, fallback float64) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value * float64(time.Second))
}

// LoadConfig resolves config.json, unmarshals it, and applies environment
// overrides. Without a config file the environment alone is used.
func LoadConfig() (*Config, error) {
	var cfg Config

	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := json.Unmarshal(jsonc.ToJSON(content), &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// LoadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if value := strings.TrimSpace(os.Getenv(envOrgURL)); value != "" {
		cfg.Workspace.OrgURL = value
	}
	if value := strings.TrimSpace(os.Getenv(envChannelID)); value != "" {
		cfg.Workspace.ChannelID = value
	}
	if value := strings.TrimSpace(os.Getenv(envTeamID)); value != "" {
		cfg.Workspace.TeamID = value
	}

	// Single-user setups configure credentials through the environment only.
	xoxc := strings.TrimSpace(os.Getenv(envXOXCToken))
	xoxd := strings.TrimSpace(os.Getenv(envXOXDToken))
	if len(cfg.Users) == 0 && xoxc != "" && xoxd != "" {
		cfg.Users = []UserConfig{{
			Name:      defaultUserName,
			XOXCToken: xoxc,
			XOXDToken: xoxd,
			Cookies:   strings.TrimSpace(os.Getenv(envCookies)),
		}}
	}
}

// Validate reports the first configuration problem that would stop a run.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if !strings.HasPrefix(c.Workspace.OrgURL, "https://") {
		return fmt.Errorf("workspace.org_url must start with https:// (got %q)", c.Workspace.OrgURL)
	}
	if strings.TrimSpace(c.Workspace.ChannelID) == "" {
		return errors.New("workspace.channel_id is required")
	}
	if len(c.Users) == 0 {
		return fmt.Errorf("no users configured: add users to config.json or set %s and %s", envXOXCToken, envXOXDToken)
	}

	seen := make(map[string]struct{}, len(c.Users))
	for i, user := range c.Users {
		name := strings.TrimSpace(user.Name)
		if name == "" {
			return fmt.Errorf("users[%d].name is required", i)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("duplicate user name %q", name)
		}
		seen[name] = struct{}{}
		if user.XOXCToken == "" || user.XOXDToken == "" {
			return fmt.Errorf("user %q needs both xoxc_token and xoxd_token", name)
		}
	}

	if _, err := identity.ParseStrategy(c.Strategy); err != nil {
		return err
	}
	return nil
}

// Identities converts configured users into posting identities, in order.
func (c *Config) Identities() []identity.Identity {
	ids := make([]identity.Identity, 0, len(c.Users))
	for _, user := range c.Users {
		ids = append(ids, identity.Identity{
			Name:         strings.TrimSpace(user.Name),
			Token:        user.XOXCToken,
			SessionToken: user.XOXDToken,
			Cookies:      user.Cookies,
		})
	}
	return ids
}

// findConfigPath resolves the active config file location.
//
// Precedence is YAP_CONFIG first, then cwd-local fallback paths. An empty
// path means no file was found.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", nil
}
