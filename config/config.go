package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"
)

type SystemConfig struct {
	DataDirectory string `toml:"data_directory"`
}

type GenerationConfig struct {
	Provider            string `toml:"provider"`
	Model               string `toml:"model"`
	Timeout             string `toml:"timeout"`
	MaxParallelVariants int    `toml:"max_parallel_variants"`
	RemoteURL           string `toml:"remote_url,omitempty"`
}

type VoiceConfig struct {
	Agent          string `toml:"agent"` // "elevenlabs" or "local"
	AgentID        string `toml:"agent_id"`
	ConnectionType string `toml:"connection_type"`
	Provider       string `toml:"provider,omitempty"` // local agent only
	Model          string `toml:"model,omitempty"`
	MaxToolSteps   int    `toml:"max_tool_steps"`
	Microphone     string `toml:"microphone"` // "device", "allow" or "deny"
}

type ServerConfig struct {
	Addr     string `toml:"addr"`
	BaseHTML string `toml:"base_html,omitempty"`
}

type SecurityConfig struct {
	CredentialStorage string `toml:"credential_storage"`
	SSHKeyPath        string `toml:"ssh_key_path,omitempty"`
}

type ProviderConfig struct {
	ID      string `toml:"id"`
	BaseURL string `toml:"base_url,omitempty"`
}

type UserConfig struct {
	Generation GenerationConfig `toml:"generation"`
	Voice      VoiceConfig      `toml:"voice"`
	Server     ServerConfig     `toml:"server"`
	Security   SecurityConfig   `toml:"security"`
	Providers  []ProviderConfig `toml:"providers"`
}

type Config struct {
	DataDirectory string

	Provider            string
	Model               string
	GenerationTimeout   time.Duration
	MaxParallelVariants int
	RemoteURL           string

	Agent          string
	AgentID        string
	ConnectionType string
	AgentProvider  string
	AgentModel     string
	MaxToolSteps   int
	Microphone     string

	Addr         string
	BaseHTMLPath string

	Providers       []ProviderConfig
	Security        SecurityConfig
	CredentialStore *CredentialStore

	Debug bool
}

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

// ProviderBaseURL returns the configured base URL for a provider, or "" to
// let the provider pick its default.
func (c *Config) ProviderBaseURL(id string) string {
	for _, p := range c.Providers {
		if p.ID == id {
			return p.BaseURL
		}
	}
	return ""
}

// APIKey returns the key for a provider. Environment variables win over
// stored credentials.
func (c *Config) APIKey(id string) string {
	if env, ok := apiKeyEnv[id]; ok {
		if key := os.Getenv(env); key != "" {
			return key
		}
	}
	if c.CredentialStore != nil {
		return c.CredentialStore.Get(id)
	}
	return ""
}

// AgentProviderID returns the provider used by the local voice agent,
// falling back to the generation provider.
func (c *Config) AgentProviderID() string {
	if c.AgentProvider != "" {
		return c.AgentProvider
	}
	return c.Provider
}

// CredentialIDs lists the providers an API key can be stored for, sorted
func CredentialIDs() []string {
	ids := make([]string, 0, len(apiKeyEnv))
	for id := range apiKeyEnv {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// APIKeyEnv returns the environment variable that overrides the stored key
func APIKeyEnv(id string) (string, bool) {
	env, ok := apiKeyEnv[id]
	return env, ok
}

var apiKeyEnv = map[string]string{
	"gemini":     "GEMINI_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
	"elevenlabs": "ELEVENLABS_API_KEY",
}

func (c *Config) applyUserConfig(u *UserConfig) error {
	c.Provider = u.Generation.Provider
	c.Model = u.Generation.Model
	c.MaxParallelVariants = u.Generation.MaxParallelVariants
	c.RemoteURL = u.Generation.RemoteURL
	if u.Generation.Timeout != "" {
		d, err := time.ParseDuration(u.Generation.Timeout)
		if err != nil {
			return fmt.Errorf("invalid generation timeout %q: %w", u.Generation.Timeout, err)
		}
		c.GenerationTimeout = d
	}

	c.Agent = u.Voice.Agent
	c.AgentID = u.Voice.AgentID
	c.ConnectionType = u.Voice.ConnectionType
	c.AgentProvider = u.Voice.Provider
	c.AgentModel = u.Voice.Model
	c.MaxToolSteps = u.Voice.MaxToolSteps
	c.Microphone = u.Voice.Microphone

	c.Addr = u.Server.Addr
	c.BaseHTMLPath = u.Server.BaseHTML
	c.Security = u.Security
	c.Providers = u.Providers
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("OSCAR_DATA_DIR"); v != "" {
		c.DataDirectory = v
	}
	if v := os.Getenv("OSCAR_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("OSCAR_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("OSCAR_AGENT"); v != "" {
		c.Agent = v
	}
	if v := os.Getenv("OSCAR_AGENT_ID"); v != "" {
		c.AgentID = v
	}
	if v := os.Getenv("OSCAR_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("OSCAR_REMOTE_URL"); v != "" {
		c.RemoteURL = v
	}
	if v := os.Getenv("OSCAR_MICROPHONE"); v != "" {
		c.Microphone = v
	}
	if CheckDebug() {
		c.Debug = true
	}
}

func (c *Config) applyDefaults() {
	d := DefaultUserConfig()
	if c.Provider == "" {
		c.Provider = d.Generation.Provider
	}
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = 2 * time.Minute
	}
	if c.MaxParallelVariants <= 0 {
		c.MaxParallelVariants = d.Generation.MaxParallelVariants
	}
	if c.Agent == "" {
		c.Agent = d.Voice.Agent
	}
	if c.ConnectionType == "" {
		c.ConnectionType = d.Voice.ConnectionType
	}
	if c.MaxToolSteps <= 0 {
		c.MaxToolSteps = d.Voice.MaxToolSteps
	}
	if c.Microphone == "" {
		c.Microphone = d.Voice.Microphone
	}
	if c.Addr == "" {
		c.Addr = d.Server.Addr
	}
	if c.Security.CredentialStorage == "" {
		c.Security.CredentialStorage = string(SecurityPlainText)
	}
}

func CheckDebug() bool {
	debug := os.Getenv("OSCAR_DEBUG")
	if b, err := strconv.ParseBool(debug); err == nil {
		return b
	}
	return false
}

// Load reads settings.toml for the data directory, then the user config
// inside it. A non-empty path reads the user config from that file instead.
func Load(path string) (*Config, error) {
	cfg := &Config{
		DataDirectory: DefaultSystemConfig().DataDirectory,
	}

	var userCfg *UserConfig
	if path != "" {
		u, err := LoadUserConfigFromPath(path)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		userCfg = u
	} else {
		systemCfg, err := LoadSystemConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load system config: %w", err)
		}
		cfg.DataDirectory = systemCfg.DataDirectory
		if v := os.Getenv("OSCAR_DATA_DIR"); v != "" {
			cfg.DataDirectory = v
		}

		userCfg, err = LoadUserConfig(cfg.DataDir())
		if err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if err := cfg.applyUserConfig(userCfg); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	dataDir := cfg.DataDir()
	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to prepare data directory: %w", err)
	}

	store := NewCredentialStore(SecurityMethod(cfg.Security.CredentialStorage), ExpandPath(cfg.Security.SSHKeyPath))
	store.SetPassphrase(os.Getenv("OSCAR_SSH_PASSPHRASE"))
	if err := store.Load(dataDir); err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	cfg.CredentialStore = store

	return cfg, nil
}
