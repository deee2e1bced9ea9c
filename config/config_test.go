package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/meridian-cd/meridian/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockEnvProvider implements EnvProvider for testing
type MockEnvProvider struct {
	envVars map[string]string
	homeDir string
}

func NewMockEnvProvider() *MockEnvProvider {
	return &MockEnvProvider{
		envVars: make(map[string]string),
		homeDir: "/home/testuser",
	}
}

func (m *MockEnvProvider) Getenv(key string) string {
	return m.envVars[key]
}

func (m *MockEnvProvider) UserHomeDir() (string, error) {
	return m.homeDir, nil
}

func (m *MockEnvProvider) SetEnv(key, value string) {
	m.envVars[key] = value
}

func TestNewConfig_Defaults(t *testing.T) {
	env := NewMockEnvProvider()

	cfg, err := NewConfigWithEnv(env, "")
	require.NoError(t, err)

	assert.Equal(t, "/home/testuser/.local/share/meridian", cfg.DataDir)
	assert.Equal(t, filepath.Join(cfg.DataDir, "meridian.db"), cfg.DatabasePath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1", cfg.HTTPHost)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 10*time.Minute, cfg.Orchestrator.PlanTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Orchestrator.ApplyTimeout)
	assert.Equal(t, 3, cfg.Orchestrator.MaxRetries)
	assert.True(t, cfg.Orchestrator.RollbackEnabled)
	assert.Equal(t, int(domain.AutomationAutoNonProd), cfg.Orchestrator.AutomationLevel)
}

func TestNewConfig_DefaultThresholds(t *testing.T) {
	env := NewMockEnvProvider()

	cfg, err := NewConfigWithEnv(env, "")
	require.NoError(t, err)

	assert.Equal(t, domain.ApprovalThresholds{MinSecurityScore: 70, MaxRiskLevel: 50}, cfg.ThresholdsFor(domain.EnvironmentDev))
	assert.Equal(t, domain.ApprovalThresholds{MinSecurityScore: 80, MaxRiskLevel: 30}, cfg.ThresholdsFor(domain.EnvironmentStaging))
	assert.Equal(t, domain.ApprovalThresholds{MinSecurityScore: 90, MaxRiskLevel: 20}, cfg.ThresholdsFor(domain.EnvironmentProd))
}

func TestNewConfig_XDGDataHome(t *testing.T) {
	env := NewMockEnvProvider()
	env.SetEnv("XDG_DATA_HOME", "/custom/data")

	cfg, err := NewConfigWithEnv(env, "")
	require.NoError(t, err)

	assert.Equal(t, "/custom/data/meridian", cfg.DataDir)
}

func TestNewConfig_EnvOverrides(t *testing.T) {
	env := NewMockEnvProvider()
	env.SetEnv("MERIDIAN_DATA_DIR", "/var/lib/meridian")
	env.SetEnv("MERIDIAN_LOG_LEVEL", "debug")
	env.SetEnv("MERIDIAN_HTTP_PORT", "9090")
	env.SetEnv("MERIDIAN_AUTOMATION_LEVEL", "3")
	env.SetEnv("MERIDIAN_DRIFT_SCAN_INTERVAL", "30s")

	cfg, err := NewConfigWithEnv(env, "")
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/meridian", cfg.DataDir)
	assert.Equal(t, "/var/lib/meridian/meridian.db", cfg.DatabasePath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, 3, cfg.Orchestrator.AutomationLevel)
	assert.Equal(t, 30*time.Second, cfg.Drift.ScanInterval)
}

func TestNewConfig_FromFile(t *testing.T) {
	content := `
log_level: debug
http_port: 9000
policy_file: /etc/meridian/policies.yaml
approval_thresholds:
  prod:
    min_security_score: 95
    max_risk_level: 10
orchestrator:
  plan_timeout: 5m
  apply_timeout: 15m
  max_retries: 5
  retry_backoff: 1s
  rollback_enabled: true
  automation_level: 1
drift:
  scan_interval: 2m
  default_interval: 10m
  auto_fix_enabled: false
  severity_overrides:
    instanceType: critical
  action_overrides:
    tags: ignore
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	env := NewMockEnvProvider()
	cfg, err := NewConfigWithEnv(env, path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9000, cfg.HTTPPort)
	assert.Equal(t, "/etc/meridian/policies.yaml", cfg.PolicyFile)
	assert.Equal(t, domain.ApprovalThresholds{MinSecurityScore: 95, MaxRiskLevel: 10}, cfg.ThresholdsFor(domain.EnvironmentProd))
	// Environments absent from the file keep defaults
	assert.Equal(t, domain.ApprovalThresholds{MinSecurityScore: 70, MaxRiskLevel: 50}, cfg.ThresholdsFor(domain.EnvironmentDev))
	assert.Equal(t, 5*time.Minute, cfg.Orchestrator.PlanTimeout)
	assert.Equal(t, 5, cfg.Orchestrator.MaxRetries)
	assert.Equal(t, 1, cfg.Orchestrator.AutomationLevel)
	assert.Equal(t, 2*time.Minute, cfg.Drift.ScanInterval)
	assert.False(t, cfg.Drift.AutoFixEnabled)

	sev, ok := cfg.Drift.SeverityOverride("instanceType")
	require.True(t, ok)
	assert.Equal(t, domain.SeverityCritical, sev)

	action, ok := cfg.Drift.ActionOverride("tags")
	require.True(t, ok)
	assert.Equal(t, domain.DriftActionIgnore, action)
}

func TestNewConfig_EnvBeatsFile(t *testing.T) {
	content := "log_level: debug\nhttp_port: 9000\n"
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	env := NewMockEnvProvider()
	env.SetEnv("MERIDIAN_HTTP_PORT", "7070")

	cfg, err := NewConfigWithEnv(env, path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 7070, cfg.HTTPPort)
}

func TestNewConfig_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(env *MockEnvProvider)
		wantErr string
	}{
		{
			name: "invalid log level",
			setup: func(env *MockEnvProvider) {
				env.SetEnv("MERIDIAN_LOG_LEVEL", "verbose")
			},
			wantErr: "invalid log level",
		},
		{
			name: "invalid port",
			setup: func(env *MockEnvProvider) {
				env.SetEnv("MERIDIAN_HTTP_PORT", "70000")
			},
			wantErr: "invalid HTTP port",
		},
		{
			name: "invalid automation level",
			setup: func(env *MockEnvProvider) {
				env.SetEnv("MERIDIAN_AUTOMATION_LEVEL", "7")
			},
			wantErr: "invalid automation level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := NewMockEnvProvider()
			tt.setup(env)

			_, err := NewConfigWithEnv(env, "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewConfig_BadDriftOverride(t *testing.T) {
	content := `
drift:
  scan_interval: 1m
  auto_fix_enabled: true
  severity_overrides:
    instanceType: catastrophic
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := NewConfigWithEnv(NewMockEnvProvider(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "severity override")
}

func TestNewConfig_MissingFile(t *testing.T) {
	_, err := NewConfigWithEnv(NewMockEnvProvider(), "/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config file")
}
