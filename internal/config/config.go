// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/jeranaias/visionchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete visionchat configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	Endpoint    EndpointConfig    `toml:"endpoint" json:"endpoint"`
	Credentials CredentialsConfig `toml:"credentials" json:"credentials"`
	Attachments AttachmentsConfig `toml:"attachments" json:"attachments"`
	UI          UIConfig          `toml:"ui" json:"ui"`
	Log         LogConfig         `toml:"log" json:"log"`
	Metrics     MetricsConfig     `toml:"metrics" json:"metrics"`
}

// EndpointConfig describes the chat-completions endpoint.
type EndpointConfig struct {
	// URL is the full chat-completions URL, e.g. https://host/v1/chat/completions
	URL string `toml:"url" json:"url"`
	// Model is sent verbatim in every request.
	Model string `toml:"model" json:"model"`
	// Stream selects incremental (true) or buffered (false) responses.
	Stream bool `toml:"stream" json:"stream"`
	// TimeoutSecs bounds buffered requests and stream setup. 0 disables it.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
}

// Timeout returns TimeoutSecs as a duration.
func (e EndpointConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSecs) * time.Second
}

// CredentialsConfig says where the bearer token lives. The token itself is
// never part of the configuration file.
type CredentialsConfig struct {
	// APIKeyEnv names the environment variable holding the token.
	APIKeyEnv string `toml:"api_key_env" json:"api_key_env"`
	// KeyFile is the path of the owner-only token file.
	KeyFile string `toml:"key_file" json:"key_file"`
}

// AttachmentsConfig contains file attachment settings.
type AttachmentsConfig struct {
	// MaxBytes is the largest file accepted for inline encoding.
	MaxBytes int64 `toml:"max_bytes" json:"max_bytes"`
	// DropDir, when set, is watched for new files to attach.
	DropDir string `toml:"drop_dir" json:"drop_dir"`
}

// UIConfig contains front end settings.
type UIConfig struct {
	// Theme is "auto", "dark" or "light".
	Theme string `toml:"theme" json:"theme"`
	// FlushIntervalMs is the coalescing window for streamed updates.
	FlushIntervalMs int `toml:"flush_interval_ms" json:"flush_interval_ms"`
	// WordWrap is the Markdown wrap width; 0 follows the terminal width.
	WordWrap int `toml:"word_wrap" json:"word_wrap"`
}

// FlushInterval returns FlushIntervalMs as a duration.
func (u UIConfig) FlushInterval() time.Duration {
	return time.Duration(u.FlushIntervalMs) * time.Millisecond
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `toml:"level" json:"level"`
	// File receives log records. The TUI owns the terminal, so logs never go to stdout.
	File string `toml:"file" json:"file"`
}

// MetricsConfig contains the optional Prometheus listener.
type MetricsConfig struct {
	// Listen is a host:port for GET /metrics. Empty disables the listener.
	Listen string `toml:"listen" json:"listen"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

const (
	// DefaultURL points at a local OpenAI-compatible proxy.
	DefaultURL = "http://localhost:8000/v1/chat/completions"

	// DefaultModel is the vision model the client was built around.
	DefaultModel = "llama3.2-vision:latest"

	// DefaultAPIKeyEnv is the variable consulted for the bearer token.
	DefaultAPIKeyEnv = "VISIONCHAT_API_KEY"

	// DefaultMaxBytes is the attachment size limit (20MB).
	DefaultMaxBytes = 20 * 1024 * 1024

	// DefaultFlushIntervalMs is the stream coalescing window.
	DefaultFlushIntervalMs = 50

	// DefaultTimeoutSecs bounds buffered requests.
	DefaultTimeoutSecs = 300
)

// Default returns the default configuration.
func Default() *Config {
	dir, err := ConfigDir()
	if err != nil {
		dir = ".visionchat"
	}
	return &Config{
		Version: "1",
		Endpoint: EndpointConfig{
			URL:         DefaultURL,
			Model:       DefaultModel,
			Stream:      true,
			TimeoutSecs: DefaultTimeoutSecs,
		},
		Credentials: CredentialsConfig{
			APIKeyEnv: DefaultAPIKeyEnv,
			KeyFile:   filepath.Join(dir, "api.key"),
		},
		Attachments: AttachmentsConfig{
			MaxBytes: DefaultMaxBytes,
		},
		UI: UIConfig{
			Theme:           "auto",
			FlushIntervalMs: DefaultFlushIntervalMs,
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(dir, "visionchat.log"),
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the visionchat configuration directory path.
func ConfigDir() (string, error) {
	if dir := os.Getenv("VISIONCHAT_HOME"); dir != "" {
		return util.ExpandHome(dir), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".visionchat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// HistoryPath returns the path of the chat REPL line history.
func HistoryPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "chat_history"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ensureSecurePermissions tightens a config file to 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode&0077 != 0 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// LoadDotEnv loads .env from the working directory. Variables that are
// already set keep their values. A missing file is not an error.
func LoadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// .env is loaded before environment overrides are applied.
func Load() (*Config, error) {
	var loadErr error
	if err := LoadDotEnv(); err != nil {
		loadErr = err
	}

	if path, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			cfg, err := LoadFromPath(path)
			if err != nil {
				return nil, err
			}
			return cfg, loadErr
		}
	}

	if path, err := ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			cfg, err := LoadFromPath(path)
			if err != nil {
				return nil, err
			}
			return cfg, loadErr
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, loadErr
}

// LoadTOML decodes a TOML file into cfg.
// SECURITY: Checks and fixes file permissions on load.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		fmt.Fprintf(os.Stderr, "Warning: unknown config keys in %s: %s\n", path, strings.Join(keys, ", "))
	}
	return nil
}

// LoadJSON decodes a JSON file into cfg.
// SECURITY: Checks and fixes file permissions on load.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file path with full validation.
// Values absent from the file keep their defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// SECURITY: Config files are written 0600 (owner read/write only).
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func SaveTOML(cfg *Config, path string) error {
	var b strings.Builder
	b.WriteString("# visionchat configuration file\n")
	b.WriteString("# The API key is not stored here: set VISIONCHAT_API_KEY or run `visionchat key set`.\n\n")

	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	u, err := url.Parse(c.Endpoint.URL)
	switch {
	case c.Endpoint.URL == "":
		errs = append(errs, ValidationError{"endpoint.url", "must not be empty"})
	case err != nil:
		errs = append(errs, ValidationError{"endpoint.url", err.Error()})
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, ValidationError{"endpoint.url", "scheme must be http or https"})
	case u.Host == "":
		errs = append(errs, ValidationError{"endpoint.url", "missing host"})
	case u.User != nil:
		// SECURITY: credentials embedded in the URL would end up in logs
		errs = append(errs, ValidationError{"endpoint.url", "must not contain credentials"})
	}

	if strings.TrimSpace(c.Endpoint.Model) == "" {
		errs = append(errs, ValidationError{"endpoint.model", "must not be empty"})
	}
	if c.Endpoint.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{"endpoint.timeout_secs", "must not be negative"})
	}
	if c.Attachments.MaxBytes <= 0 {
		errs = append(errs, ValidationError{"attachments.max_bytes", "must be positive"})
	}
	if c.UI.FlushIntervalMs < 1 || c.UI.FlushIntervalMs > 1000 {
		errs = append(errs, ValidationError{"ui.flush_interval_ms", "must be between 1 and 1000"})
	}
	switch c.UI.Theme {
	case "auto", "dark", "light":
	default:
		errs = append(errs, ValidationError{"ui.theme", fmt.Sprintf("unknown theme %q", c.UI.Theme)})
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{"log.level", fmt.Sprintf("unknown level %q", c.Log.Level)})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills zero values that validation would otherwise reject.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Version == "" {
		c.Version = d.Version
	}
	if c.Endpoint.URL == "" {
		c.Endpoint.URL = d.Endpoint.URL
	}
	if c.Endpoint.Model == "" {
		c.Endpoint.Model = d.Endpoint.Model
	}
	if c.Credentials.APIKeyEnv == "" {
		c.Credentials.APIKeyEnv = d.Credentials.APIKeyEnv
	}
	if c.Credentials.KeyFile == "" {
		c.Credentials.KeyFile = d.Credentials.KeyFile
	}
	if c.Attachments.MaxBytes == 0 {
		c.Attachments.MaxBytes = d.Attachments.MaxBytes
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	if c.UI.FlushIntervalMs == 0 {
		c.UI.FlushIntervalMs = d.UI.FlushIntervalMs
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}

	c.Credentials.KeyFile = util.ExpandHome(c.Credentials.KeyFile)
	c.Attachments.DropDir = util.ExpandHome(c.Attachments.DropDir)
	c.Log.File = util.ExpandHome(c.Log.File)
}

// ApplyEnvOverrides applies VISIONCHAT_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("VISIONCHAT_URL"); v != "" {
		c.Endpoint.URL = v
	}
	if v := os.Getenv("VISIONCHAT_MODEL"); v != "" {
		c.Endpoint.Model = v
	}
	if v := os.Getenv("VISIONCHAT_STREAM"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Endpoint.Stream = b
		}
	}
	if v := os.Getenv("VISIONCHAT_DROP_DIR"); v != "" {
		c.Attachments.DropDir = v
	}
	if v := os.Getenv("VISIONCHAT_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("VISIONCHAT_LOG_FILE"); v != "" {
		c.Log.File = v
	}
	if v := os.Getenv("VISIONCHAT_METRICS_ADDR"); v != "" {
		c.Metrics.Listen = v
	}
}

// String renders the configuration as TOML.
func (c *Config) String() string {
	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(c); err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return b.String()
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
		if cfg == nil {
			cfg = Default()
		}
		globalConfigMu.Lock()
		globalConfig = cfg
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if cfg == nil {
		return err
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return err
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigOnce.Do(func() {})
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
