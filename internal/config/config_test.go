package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GEMA_DATABASE_URL", "postgres://grader@localhost/gema")
	t.Setenv("GEMA_OPENAI_API_KEY", "sk-test")
}

func TestLoadAppliesDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, DocumentBackendAFS, cfg.DocumentsBackend)
	require.Equal(t, "gpt-3.5-turbo", cfg.AIModel)
	require.Equal(t, 60*time.Second, cfg.AIRequestTimeout)
	require.Equal(t, 1500, cfg.SynthesisMaxTokens)
	require.Equal(t, 2000, cfg.GradingMaxTokens)
	require.Greater(t, cfg.GradingMaxTokens, cfg.SynthesisMaxTokens)
	require.InDelta(t, 0.7, cfg.AITemperature, 1e-6)
	require.Equal(t, 5*time.Minute, cfg.GradingLockTTL)
	require.Equal(t, "gema", cfg.EventsChannel)
}

func TestLoadReadsOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GEMA_AI_REQUEST_TIMEOUT", "15s")
	t.Setenv("GEMA_AI_GRADING_MAX_TOKENS", "2400")
	t.Setenv("GEMA_AI_BASE_URL", "http://localhost:11434/v1")
	t.Setenv("GEMA_APP_PORT", ":9090")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 15*time.Second, cfg.AIRequestTimeout)
	require.Equal(t, 2400, cfg.GradingMaxTokens)
	require.Equal(t, "http://localhost:11434/v1", cfg.AIBaseURL)
	require.Equal(t, ":9090", cfg.HTTPAddress())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GEMA_AI_REQUEST_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRequiresCloudinaryCredentials(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GEMA_DOCUMENTS_BACKEND", "cloudinary")

	_, err := Load()
	require.ErrorContains(t, err, "cloudinary.cloud_name failed required_if")
	require.ErrorContains(t, err, "cloudinary.api_secret failed required_if")
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("GEMA_OPENAI_API_KEY", "sk-test")
	t.Setenv("GEMA_DATABASE_URL", "")

	_, err := Load()
	require.ErrorContains(t, err, "database.url failed required")
}

func TestLoadRejectsGradingBudgetNotAboveSynthesis(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GEMA_AI_SYNTHESIS_MAX_TOKENS", "1500")
	t.Setenv("GEMA_AI_GRADING_MAX_TOKENS", "1500")

	_, err := Load()
	require.ErrorContains(t, err, "ai.grading_max_tokens failed gtfield=SynthesisMaxTokens")
}

func TestLoadRejectsOutOfRangeValues(t *testing.T) {
	cases := map[string]struct {
		key, value, want string
	}{
		"temperature":      {"GEMA_AI_TEMPERATURE", "2.5", "ai.temperature failed lte"},
		"backend":          {"GEMA_DOCUMENTS_BACKEND", "ftp", "documents.backend failed oneof"},
		"provider":         {"GEMA_AI_PROVIDER", "anthropic", "ai.provider failed eq"},
		"rate limit":       {"GEMA_GRADING_RATE_LIMIT", "-1", "grading.rate_limit failed gte"},
		"synthesis budget": {"GEMA_AI_SYNTHESIS_MAX_TOKENS", "-10", "ai.synthesis_max_tokens failed gt"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tc.key, tc.value)

			_, err := Load()
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestLoadAcceptsBaseURLWithoutAPIKey(t *testing.T) {
	t.Setenv("GEMA_DATABASE_URL", "postgres://grader@localhost/gema")
	t.Setenv("GEMA_OPENAI_API_KEY", "")
	t.Setenv("GEMA_AI_BASE_URL", "http://localhost:11434/v1")

	_, err := Load()
	require.NoError(t, err)

	t.Setenv("GEMA_AI_BASE_URL", "")
	_, err = Load()
	require.ErrorContains(t, err, "openai_api_key failed required_without")
}
