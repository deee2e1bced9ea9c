// Package config provides configuration loading for all Meridian services.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/meridian-cd/meridian/domain"
	"gopkg.in/yaml.v3"
)

const DataDir = ".meridian"

// EnvProvider abstracts environment variable access for testing
type EnvProvider interface {
	Getenv(key string) string
	UserHomeDir() (string, error)
}

// DefaultEnvProvider implements EnvProvider using real OS functions
type DefaultEnvProvider struct{}

func (p *DefaultEnvProvider) Getenv(key string) string {
	return os.Getenv(key)
}

func (p *DefaultEnvProvider) UserHomeDir() (string, error) {
	return os.UserHomeDir()
}

// GetDefaultDataDir returns the default Meridian data directory following
// the XDG Base Directory specification
func GetDefaultDataDir() string {
	return getDefaultDataDirWithEnv(&DefaultEnvProvider{})
}

func getDefaultDataDirWithEnv(env EnvProvider) string {
	xdgDataHome := env.Getenv("XDG_DATA_HOME")
	if xdgDataHome != "" {
		return filepath.Join(xdgDataHome, "meridian")
	}

	homeDir, _ := env.UserHomeDir()
	return filepath.Join(homeDir, ".local", "share", "meridian")
}

// DriftConfig holds drift detector settings
type DriftConfig struct {
	ScanInterval       time.Duration                  `yaml:"scan_interval"`
	DefaultInterval    time.Duration                  `yaml:"default_interval"`
	SeverityOverrides  map[string]string              `yaml:"severity_overrides"` // property name -> severity
	ActionOverrides    map[string]string              `yaml:"action_overrides"`   // property name -> action
	AutoFixEnabled     bool                           `yaml:"auto_fix_enabled"`
	severityOverridesP map[string]domain.Severity     // parsed
	actionOverridesP   map[string]domain.DriftAction  // parsed
}

// ParseOverrides validates and indexes the string-typed override maps.
// Must be called before SeverityOverride or ActionOverride are consulted.
func (c *DriftConfig) ParseOverrides() error {
	c.severityOverridesP = make(map[string]domain.Severity, len(c.SeverityOverrides))
	for prop, s := range c.SeverityOverrides {
		sev, err := domain.ParseSeverity(s)
		if err != nil {
			return fmt.Errorf("drift severity override for %q: %w", prop, err)
		}
		c.severityOverridesP[prop] = sev
	}
	c.actionOverridesP = make(map[string]domain.DriftAction, len(c.ActionOverrides))
	for prop, a := range c.ActionOverrides {
		action, err := domain.ParseDriftAction(a)
		if err != nil {
			return fmt.Errorf("drift action override for %q: %w", prop, err)
		}
		c.actionOverridesP[prop] = action
	}
	return nil
}

// SeverityOverride returns the parsed severity override for a property, if any
func (c *DriftConfig) SeverityOverride(property string) (domain.Severity, bool) {
	sev, ok := c.severityOverridesP[property]
	return sev, ok
}

// ActionOverride returns the parsed action override for a property, if any
func (c *DriftConfig) ActionOverride(property string) (domain.DriftAction, bool) {
	action, ok := c.actionOverridesP[property]
	return action, ok
}

// OrchestratorConfig holds deployment execution settings
type OrchestratorConfig struct {
	PlanTimeout     time.Duration `yaml:"plan_timeout"`
	ApplyTimeout    time.Duration `yaml:"apply_timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
	RollbackEnabled bool          `yaml:"rollback_enabled"`
	AutomationLevel int           `yaml:"automation_level"`
}

// yamlConfig mirrors the YAML file layout
type yamlConfig struct {
	DataDir      string                        `yaml:"data_dir"`
	DatabasePath string                        `yaml:"database_path"`
	LogLevel     string                        `yaml:"log_level"`
	ColorEnabled *bool                         `yaml:"color_enabled"`
	HTTPHost     string                        `yaml:"http_host"`
	HTTPPort     int                           `yaml:"http_port"`
	PolicyFile   string                        `yaml:"policy_file"`
	GitTimeout   time.Duration                 `yaml:"git_timeout"`
	Encryption   struct {
		Key string `yaml:"key"`
	} `yaml:"encryption"`
	Thresholds   map[string]thresholdYAML      `yaml:"approval_thresholds"`
	Orchestrator *OrchestratorConfig           `yaml:"orchestrator"`
	Drift        *DriftConfig                  `yaml:"drift"`
}

type thresholdYAML struct {
	MinSecurityScore int `yaml:"min_security_score"`
	MaxRiskLevel     int `yaml:"max_risk_level"`
}

// Config holds configuration for all services
type Config struct {
	// Core paths
	DataDir      string
	DatabasePath string
	TmpDir       string

	// Logging
	LogLevel     string
	ColorEnabled bool

	// HTTP server
	HTTPHost string
	HTTPPort int

	// Policies
	PolicyFile string

	// Artifact fetching
	GitTimeout time.Duration

	// Encryption
	EncryptionKey string

	// Approval gate thresholds, keyed by environment
	Thresholds map[domain.Environment]domain.ApprovalThresholds

	Orchestrator OrchestratorConfig
	Drift        DriftConfig

	// Environment provider for testing
	env EnvProvider
}

// NewConfig creates a new configuration from defaults and environment
// variables only
func NewConfig() (*Config, error) {
	return newConfig(&DefaultEnvProvider{}, "")
}

// NewConfigFromFile creates a new configuration from a YAML file with
// environment variable overrides. An empty path skips the file step.
func NewConfigFromFile(path string) (*Config, error) {
	return newConfig(&DefaultEnvProvider{}, path)
}

// NewConfigWithEnv creates a new configuration with a custom environment
// provider (for testing)
func NewConfigWithEnv(env EnvProvider, path string) (*Config, error) {
	return newConfig(env, path)
}

func newConfig(env EnvProvider, path string) (*Config, error) {
	c := &Config{env: env}

	// Set defaults first
	c.setDefaults()

	// Override with config file (if provided)
	if path != "" {
		if err := c.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Override with environment variables
	c.loadFromEnv()

	// Derive dependent paths
	c.derivePaths()

	// Validate
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return c, nil
}

// setDefaults sets sensible default values. The approval threshold baseline
// (dev 70/50, staging 80/30, prod 90/20) is operator-tunable; these are
// shipped defaults, not invariants.
func (c *Config) setDefaults() {
	c.DataDir = getDefaultDataDirWithEnv(c.env)
	c.LogLevel = "info"
	c.ColorEnabled = true
	c.HTTPHost = "127.0.0.1"
	c.HTTPPort = 8080
	c.GitTimeout = 5 * time.Minute
	c.Thresholds = map[domain.Environment]domain.ApprovalThresholds{
		domain.EnvironmentDev:     {MinSecurityScore: 70, MaxRiskLevel: 50},
		domain.EnvironmentStaging: {MinSecurityScore: 80, MaxRiskLevel: 30},
		domain.EnvironmentProd:    {MinSecurityScore: 90, MaxRiskLevel: 20},
	}
	c.Orchestrator = OrchestratorConfig{
		PlanTimeout:     10 * time.Minute,
		ApplyTimeout:    30 * time.Minute,
		MaxRetries:      3,
		RetryBackoff:    2 * time.Second,
		RollbackEnabled: true,
		AutomationLevel: int(domain.AutomationAutoNonProd),
	}
	c.Drift = DriftConfig{
		ScanInterval:    time.Minute,
		DefaultInterval: 5 * time.Minute,
		AutoFixEnabled:  true,
	}
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fileCfg yamlConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	if fileCfg.DataDir != "" {
		c.DataDir = fileCfg.DataDir
	}
	if fileCfg.DatabasePath != "" {
		c.DatabasePath = fileCfg.DatabasePath
	}
	if fileCfg.LogLevel != "" {
		c.LogLevel = fileCfg.LogLevel
	}
	if fileCfg.ColorEnabled != nil {
		c.ColorEnabled = *fileCfg.ColorEnabled
	}
	if fileCfg.HTTPHost != "" {
		c.HTTPHost = fileCfg.HTTPHost
	}
	if fileCfg.HTTPPort != 0 {
		c.HTTPPort = fileCfg.HTTPPort
	}
	if fileCfg.PolicyFile != "" {
		c.PolicyFile = fileCfg.PolicyFile
	}
	if fileCfg.GitTimeout != 0 {
		c.GitTimeout = fileCfg.GitTimeout
	}
	if fileCfg.Encryption.Key != "" {
		c.EncryptionKey = fileCfg.Encryption.Key
	}
	for envName, t := range fileCfg.Thresholds {
		env, err := domain.ParseEnvironment(envName)
		if err != nil {
			return fmt.Errorf("approval_thresholds: %w", err)
		}
		c.Thresholds[env] = domain.ApprovalThresholds{
			MinSecurityScore: t.MinSecurityScore,
			MaxRiskLevel:     t.MaxRiskLevel,
		}
	}
	if fileCfg.Orchestrator != nil {
		o := fileCfg.Orchestrator
		if o.PlanTimeout != 0 {
			c.Orchestrator.PlanTimeout = o.PlanTimeout
		}
		if o.ApplyTimeout != 0 {
			c.Orchestrator.ApplyTimeout = o.ApplyTimeout
		}
		if o.MaxRetries != 0 {
			c.Orchestrator.MaxRetries = o.MaxRetries
		}
		if o.RetryBackoff != 0 {
			c.Orchestrator.RetryBackoff = o.RetryBackoff
		}
		c.Orchestrator.RollbackEnabled = o.RollbackEnabled
		c.Orchestrator.AutomationLevel = o.AutomationLevel
	}
	if fileCfg.Drift != nil {
		d := fileCfg.Drift
		if d.ScanInterval != 0 {
			c.Drift.ScanInterval = d.ScanInterval
		}
		if d.DefaultInterval != 0 {
			c.Drift.DefaultInterval = d.DefaultInterval
		}
		c.Drift.SeverityOverrides = d.SeverityOverrides
		c.Drift.ActionOverrides = d.ActionOverrides
		c.Drift.AutoFixEnabled = d.AutoFixEnabled
	}

	return nil
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	if v := c.env.Getenv("MERIDIAN_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := c.env.Getenv("MERIDIAN_DATABASE_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := c.env.Getenv("MERIDIAN_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := c.env.Getenv("MERIDIAN_COLOR_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.ColorEnabled = enabled
		}
	}
	if v := c.env.Getenv("MERIDIAN_HTTP_HOST"); v != "" {
		c.HTTPHost = v
	}
	if v := c.env.Getenv("MERIDIAN_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HTTPPort = port
		}
	}
	if v := c.env.Getenv("MERIDIAN_POLICY_FILE"); v != "" {
		c.PolicyFile = v
	}
	if v := c.env.Getenv("MERIDIAN_GIT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.GitTimeout = d
		}
	}
	if v := c.env.Getenv("MERIDIAN_ENCRYPTION_KEY"); v != "" {
		c.EncryptionKey = v
	}
	if v := c.env.Getenv("MERIDIAN_AUTOMATION_LEVEL"); v != "" {
		if level, err := strconv.Atoi(v); err == nil {
			c.Orchestrator.AutomationLevel = level
		}
	}
	if v := c.env.Getenv("MERIDIAN_DRIFT_SCAN_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Drift.ScanInterval = d
		}
	}
}

// derivePaths calculates dependent paths from the base DataDir
func (c *Config) derivePaths() {
	c.TmpDir = filepath.Join(c.DataDir, "tmp")

	// Set default database path if not explicitly configured
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(c.DataDir, "meridian.db")
	}
}

// validate ensures configuration values are valid
func (c *Config) validate() error {
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warning": true, "error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warning, or error)", c.LogLevel)
	}

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d (must be 1-65535)", c.HTTPPort)
	}

	if c.GitTimeout <= 0 {
		return fmt.Errorf("git timeout must be positive, got: %v", c.GitTimeout)
	}

	if c.Orchestrator.PlanTimeout <= 0 {
		return fmt.Errorf("plan timeout must be positive, got: %v", c.Orchestrator.PlanTimeout)
	}
	if c.Orchestrator.ApplyTimeout <= 0 {
		return fmt.Errorf("apply timeout must be positive, got: %v", c.Orchestrator.ApplyTimeout)
	}
	if c.Orchestrator.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got: %d", c.Orchestrator.MaxRetries)
	}
	if !domain.AutomationLevel(c.Orchestrator.AutomationLevel).IsValid() {
		return fmt.Errorf("invalid automation level: %d (must be 0-3)", c.Orchestrator.AutomationLevel)
	}

	if c.Drift.ScanInterval <= 0 {
		return fmt.Errorf("drift scan interval must be positive, got: %v", c.Drift.ScanInterval)
	}

	for env, t := range c.Thresholds {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("approval thresholds for %s: %w", env, err)
		}
	}
	for _, env := range []domain.Environment{domain.EnvironmentDev, domain.EnvironmentStaging, domain.EnvironmentProd} {
		if _, ok := c.Thresholds[env]; !ok {
			return fmt.Errorf("missing approval thresholds for environment %s", env)
		}
	}

	// Parse drift overrides up front so malformed config fails at startup,
	// not mid-scan
	if err := c.Drift.ParseOverrides(); err != nil {
		return err
	}

	return nil
}

// GetLogLevel returns the configured log level
func (c *Config) GetLogLevel() string {
	return c.LogLevel
}

// ThresholdsFor returns the approval thresholds for an environment
func (c *Config) ThresholdsFor(env domain.Environment) domain.ApprovalThresholds {
	return c.Thresholds[env]
}
