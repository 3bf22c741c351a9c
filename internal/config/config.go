// Package config provides the signing profile for devtoken: built-in
// defaults matching the local backend, plus optional YAML loading with
// validation and environment variable substitution.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Built-in profile. These match the secret, subject and endpoint the local
// backend is seeded with.
const (
	DefaultSecret   = "secret"
	DefaultMethod   = "HS256"
	DefaultValidity = time.Hour
	DefaultUserID   = int64(1)
	DefaultBaseURL  = "http://localhost:8080"
	DefaultPath     = "/api/group-members"
	DefaultQuery    = "groupID=8"

	// MaxUserID is the largest subject a float64 sub claim carries exactly.
	MaxUserID = int64(1) << 53
)

// Config is the top-level devtoken profile.
type Config struct {
	Signing SigningConfig `yaml:"signing" json:"signing"`
	Subject SubjectConfig `yaml:"subject" json:"subject"`
	Target  TargetConfig  `yaml:"target" json:"target"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Watch   WatchConfig   `yaml:"watch" json:"watch"`
	Stub    StubConfig    `yaml:"stub" json:"stub"`

	// Warnings holds non-fatal issues detected during loading.
	Warnings []string `yaml:"-" json:"-"`
}

// SigningConfig holds the shared secret and algorithm the backend verifies with.
type SigningConfig struct {
	Secret   string        `yaml:"secret" json:"-"`
	Method   string        `yaml:"method" json:"method"`
	Validity time.Duration `yaml:"validity" json:"validity"`
}

// SubjectConfig identifies the user the token is minted for.
type SubjectConfig struct {
	UserID int64 `yaml:"user_id" json:"user_id"`
}

// TargetConfig describes the endpoint used in the printed test command.
type TargetConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	Path    string `yaml:"path" json:"path"`
	Query   string `yaml:"query" json:"query"`
}

// LoggingConfig holds diagnostic log settings. Diagnostics never go to
// stdout unless asked for, since stdout carries the token.
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`             // debug, info, warn, error; default: warn
	Output     string `yaml:"output" json:"output"`           // "stderr", "stdout", or file path; default: "stderr"
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"` // default: 10
	MaxBackups int    `yaml:"max_backups" json:"max_backups"` // default: 3
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
}

// WatchConfig controls re-minting in watch mode.
type WatchConfig struct {
	Debounce    time.Duration `yaml:"debounce" json:"debounce"`
	MinInterval time.Duration `yaml:"min_interval" json:"min_interval"`
}

// StubConfig holds settings for the stub backend.
type StubConfig struct {
	Addr            string        `yaml:"addr" json:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// ValidLogLevels are the accepted logging.level strings.
var ValidLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// TargetURL returns the full URL of the test endpoint.
func (t TargetConfig) TargetURL() string {
	u := strings.TrimRight(t.BaseURL, "/") + t.Path
	if t.Query != "" {
		u += "?" + t.Query
	}
	return u
}

// Default returns the built-in profile. It reads no files and no environment.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

var envVarRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns in s with the corresponding
// environment variable value. Unset variables are left as-is.
func expandEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		key := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return match
	})
}

// Load reads a YAML profile, applies environment variable substitution,
// sets defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg, err := LoadFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromBytes parses a profile from raw YAML bytes.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	cfg.Warnings = collectWarnings(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Signing.Secret == "" {
		cfg.Signing.Secret = DefaultSecret
	}
	if cfg.Signing.Method == "" {
		cfg.Signing.Method = DefaultMethod
	}
	if cfg.Signing.Validity == 0 {
		cfg.Signing.Validity = DefaultValidity
	}
	if cfg.Subject.UserID == 0 {
		cfg.Subject.UserID = DefaultUserID
	}

	if cfg.Target.BaseURL == "" {
		cfg.Target.BaseURL = DefaultBaseURL
	}
	if cfg.Target.Path == "" {
		cfg.Target.Path = DefaultPath
	}
	if cfg.Target.Query == "" {
		cfg.Target.Query = DefaultQuery
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "warn"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 10
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 3
	}
	if cfg.Logging.MaxAgeDays == 0 {
		cfg.Logging.MaxAgeDays = 7
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 300 * time.Millisecond
	}
	if cfg.Watch.MinInterval == 0 {
		cfg.Watch.MinInterval = time.Second
	}

	if cfg.Stub.Addr == "" {
		cfg.Stub.Addr = stubAddrFor(cfg.Target.BaseURL)
	}
	if cfg.Stub.ShutdownTimeout == 0 {
		cfg.Stub.ShutdownTimeout = 5 * time.Second
	}
}

// stubAddrFor derives a listen address from the target base URL so the
// stub backend answers the printed command without extra configuration.
func stubAddrFor(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Port() == "" {
		return ":8080"
	}
	return ":" + u.Port()
}

func validate(cfg *Config) error {
	if cfg.Signing.Method != DefaultMethod {
		return fmt.Errorf("signing.method must be %q, got %q", DefaultMethod, cfg.Signing.Method)
	}
	if cfg.Signing.Validity <= 0 {
		return fmt.Errorf("signing.validity must be positive")
	}
	if cfg.Signing.Validity%time.Second != 0 {
		return fmt.Errorf("signing.validity must be a whole number of seconds, got %s", cfg.Signing.Validity)
	}
	if cfg.Subject.UserID < 0 {
		return fmt.Errorf("subject.user_id must be positive, got %d", cfg.Subject.UserID)
	}
	if cfg.Subject.UserID > MaxUserID {
		return fmt.Errorf("subject.user_id must be at most %d, got %d", MaxUserID, cfg.Subject.UserID)
	}

	u, err := url.Parse(cfg.Target.BaseURL)
	if err != nil {
		return fmt.Errorf("target.base_url: invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("target.base_url: scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("target.base_url: host is required")
	}
	if !strings.HasPrefix(cfg.Target.Path, "/") {
		return fmt.Errorf("target.path must start with /")
	}
	if strings.HasPrefix(cfg.Target.Query, "?") {
		return fmt.Errorf("target.query must not start with ?")
	}
	if _, err := url.ParseQuery(cfg.Target.Query); err != nil {
		return fmt.Errorf("target.query: %w", err)
	}

	if !ValidLogLevels[strings.ToLower(cfg.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Output != "stdout" && cfg.Logging.Output != "stderr" {
		if cfg.Logging.MaxSizeMB < 1 {
			return fmt.Errorf("logging.max_size_mb must be positive when output is a file path")
		}
	}

	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must be non-negative")
	}
	if cfg.Watch.MinInterval < 0 {
		return fmt.Errorf("watch.min_interval must be non-negative")
	}

	if _, _, err := net.SplitHostPort(cfg.Stub.Addr); err != nil {
		return fmt.Errorf("stub.addr: %w", err)
	}
	if cfg.Stub.ShutdownTimeout < 0 {
		return fmt.Errorf("stub.shutdown_timeout must be non-negative")
	}

	return nil
}

func collectWarnings(cfg *Config) []string {
	var warnings []string
	if strings.Contains(cfg.Signing.Secret, "${") {
		warnings = append(warnings, "signing.secret contains unresolved environment variable")
	}
	if cfg.Signing.Secret == DefaultSecret && !isLoopback(cfg.Target.BaseURL) {
		warnings = append(warnings, "signing.secret is the development default but target.base_url is not a loopback host")
	}
	return warnings
}

func isLoopback(baseURL string) bool {
	u, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
