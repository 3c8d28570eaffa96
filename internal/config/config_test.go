package config

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/philosophers/agora/backend/internal/adapter/openai"
	"github.com/philosophers/agora/backend/internal/model/persona"
)

var managedEnv = []string{
	"PORT", "LLM_PROVIDER", "LLM_MODEL", "LLM_BASE_URL", "LLM_TEMPERATURE", "LLM_TOP_P", "LLM_MAX_TOKENS",
	"GEMINI_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY",
	"ARK_API_KEY", "ARK_ACCESS_KEY", "ARK_SECRET_KEY", "ARK_REGION",
	"STORAGE_DRIVER", "STORAGE_DSN", "DEFAULT_PERSONA", "LOG_LEVEL", "LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range managedEnv {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, ProviderGemini, cfg.AI.Provider)
	assert.Equal(t, "gemini-2.5-flash-lite", cfg.AI.Model)
	assert.Equal(t, openai.GeminiBaseURL, cfg.AI.BaseURL)
	assert.False(t, cfg.AI.Enabled())
	assert.Equal(t, StorageConfig{Driver: DriverSQLite, DSN: "philosophers.db"}, cfg.Storage)
	assert.Equal(t, persona.Socrates, cfg.DefaultPersona)
	assert.Equal(t, logrus.InfoLevel, cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("LLM_PROVIDER", "OpenAI")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LLM_TEMPERATURE", "0.7")
	t.Setenv("LLM_MAX_TOKENS", "256")
	t.Setenv("STORAGE_DRIVER", "afs")
	t.Setenv("DEFAULT_PERSONA", "plato")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, ProviderOpenAI, cfg.AI.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.AI.Model)
	assert.True(t, cfg.AI.Enabled())
	require.NotNil(t, cfg.AI.Temperature)
	assert.InDelta(t, 0.7, *cfg.AI.Temperature, 1e-9)
	require.NotNil(t, cfg.AI.MaxTokens)
	assert.Equal(t, 256, *cfg.AI.MaxTokens)
	assert.Equal(t, StorageConfig{Driver: DriverAFS, DSN: "file://./data"}, cfg.Storage)
	assert.Equal(t, persona.Plato, cfg.DefaultPersona)
	assert.Equal(t, logrus.DebugLevel, cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":            "80 80",
		"LLM_PROVIDER":    "mystery",
		"LLM_TEMPERATURE": "warm",
		"LLM_MAX_TOKENS":  "many",
		"STORAGE_DRIVER":  "tape",
		"DEFAULT_PERSONA": "KANT",
		"LOG_LEVEL":       "chatty",
		"LOG_FORMAT":      "xml",
	}

	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestArkRequiresModelAndCredential(t *testing.T) {
	cfg := AIConfig{Provider: ProviderArk, APIKey: "key"}
	assert.False(t, cfg.Enabled())

	cfg.Model = "doubao-pro"
	assert.True(t, cfg.Enabled())

	cfg.APIKey = ""
	cfg.AccessKey = "ak"
	assert.False(t, cfg.Enabled())
	cfg.SecretKey = "sk"
	assert.True(t, cfg.Enabled())
}

func TestNewChatModelWithoutCredential(t *testing.T) {
	for _, provider := range []string{ProviderGemini, ProviderOpenAI, ProviderAnthropic, ProviderArk} {
		m, err := AIConfig{Provider: provider, Model: "m"}.NewChatModel(context.Background())
		require.NoError(t, err)
		assert.Nil(t, m, provider)
	}
}

func TestNewChatModelBuildsAdapters(t *testing.T) {
	for _, provider := range []string{ProviderGemini, ProviderOpenAI, ProviderAnthropic} {
		m, err := AIConfig{Provider: provider, APIKey: "key", Model: "m"}.NewChatModel(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, m, provider)
	}
}

func TestStorageOpen(t *testing.T) {
	ctx := context.Background()

	for _, cfg := range []StorageConfig{
		{Driver: DriverMemory},
		{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "db", "kv.sqlite")},
		{Driver: DriverAFS, DSN: "mem://localhost/config-test"},
	} {
		kv, err := cfg.Open(ctx)
		require.NoError(t, err, cfg.Driver)

		require.NoError(t, kv.Put(ctx, "k", []byte("v")))
		got, ok, err := kv.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("v"), got)
		require.NoError(t, kv.Close())
	}

	_, err := StorageConfig{Driver: "tape"}.Open(ctx)
	assert.Error(t, err)
}

func TestLogConfigApply(t *testing.T) {
	previous := logrus.GetLevel()
	t.Cleanup(func() {
		logrus.SetLevel(previous)
		logrus.SetFormatter(&logrus.TextFormatter{})
	})

	LogConfig{Level: logrus.WarnLevel, Format: "json"}.Apply()
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())
	_, isJSON := logrus.StandardLogger().Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)
}
