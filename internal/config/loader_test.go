package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("LF_TEST_HOST", "db.internal")

	tests := []struct {
		in   string
		want string
	}{
		{"host: ${LF_TEST_HOST}", "host: db.internal"},
		{"host: ${LF_TEST_HOST:localhost}", "host: db.internal"},
		{"port: ${LF_TEST_UNSET_PORT:5432}", "port: 5432"},
		{"password: ${LF_TEST_UNSET_PW:}", "password: "},
		{"key: ${LF_TEST_UNSET_KEY}", "key: ${LF_TEST_UNSET_KEY}"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, expandEnv(tt.in))
	}
}

func writeConfig(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func TestLoadFromDir_MergesEnvFileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("APP_ENV", "staging")
	t.Setenv("LF_TEST_RULE_DIR", "/etc/lesson-forge/rulesets")
	writeConfig(t, dir, "config.yaml", `
app:
  name: lesson-api
guardrail:
  max_attempts: 3
  rule_dir: ${LF_TEST_RULE_DIR:configs/rulesets}
`)
	writeConfig(t, dir, "config.staging.yaml", `
guardrail:
  rule_source: postgres
`)

	cfg, err := LoadFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "lesson-api", cfg.App.Name)
	assert.Equal(t, 3, cfg.Guardrail.MaxAttempts)
	assert.Equal(t, "postgres", cfg.Guardrail.RuleSource)
	assert.Equal(t, "/etc/lesson-forge/rulesets", cfg.Guardrail.RuleDir)
	assert.Equal(t, 180*time.Second, cfg.Guardrail.OverallTimeout)
	assert.Equal(t, "lesson-forge", cfg.Cache.Redis.KeyPrefix)
}

func TestLoadFromDir_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero attempts", "guardrail:\n  max_attempts: 0\n"},
		{"unknown source", "guardrail:\n  rule_source: s3\n"},
		{"non-positive timeout", "guardrail:\n  overall_timeout: 0s\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			t.Setenv("APP_ENV", "test")
			writeConfig(t, dir, "config.yaml", tt.body)
			_, err := LoadFromDir(dir)
			assert.Error(t, err)
		})
	}
}

func TestLoadFromDir_MissingBaseFile(t *testing.T) {
	_, err := LoadFromDir(t.TempDir())
	assert.Error(t, err)
}

func TestValidate_ReportsConfigKeys(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("APP_ENV", "test")
	writeConfig(t, dir, "config.yaml", "guardrail:\n  rule_source: s3\n")

	_, err := LoadFromDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "guardrail.rule_source=s3 fails oneof")
}
