package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearBotEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TELEGRAM_BOT_TOKEN", "BOT_MODE", "PORT",
		"RAILWAY_STATIC_URL", "RAILWAY_PUBLIC_DOMAIN",
		"REDIS_URL", "REDIS_ADDR", "REDIS_PASS",
		"PROBE_URL", "PROXY_SOURCES",
	} {
		t.Setenv(k, "")
	}
}

func TestParseConfig_MissingToken(t *testing.T) {
	clearBotEnv(t)

	_, err := ParseConfig()
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestParseConfig_Defaults(t *testing.T) {
	clearBotEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "12345:TESTTOKEN")

	cfg, err := ParseConfig()
	require.NoError(t, err)

	assert.Equal(t, "12345:TESTTOKEN", cfg.Token)
	assert.False(t, cfg.WebhookMode)
	assert.Empty(t, cfg.WebhookBase)
	assert.Empty(t, cfg.Port)
	assert.Nil(t, cfg.ProxySources)
}

func TestParseConfig_WebhookMode(t *testing.T) {
	clearBotEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "12345:TESTTOKEN")
	t.Setenv("BOT_MODE", "webhook")
	t.Setenv("RAILWAY_STATIC_URL", "https://bot.up.railway.app/")
	t.Setenv("PORT", "9000")

	cfg, err := ParseConfig()
	require.NoError(t, err)

	assert.True(t, cfg.WebhookMode)
	assert.Equal(t, "https://bot.up.railway.app", cfg.WebhookBase)
	assert.Equal(t, "9000", cfg.Port)
}

func TestParseConfig_BareDomainGetsScheme(t *testing.T) {
	clearBotEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "12345:TESTTOKEN")
	t.Setenv("RAILWAY_PUBLIC_DOMAIN", "bot.up.railway.app")

	cfg, err := ParseConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://bot.up.railway.app", cfg.WebhookBase)
}

func TestParseConfig_StaticURLWinsOverDomain(t *testing.T) {
	clearBotEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "12345:TESTTOKEN")
	t.Setenv("RAILWAY_STATIC_URL", "https://primary.example")
	t.Setenv("RAILWAY_PUBLIC_DOMAIN", "secondary.example")

	cfg, err := ParseConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://primary.example", cfg.WebhookBase)
}

func TestParseConfig_ProxySources(t *testing.T) {
	clearBotEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "12345:TESTTOKEN")
	t.Setenv("PROXY_SOURCES", "https://a.example/list.txt, https://b.example/list.txt ,,")

	cfg, err := ParseConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://a.example/list.txt",
		"https://b.example/list.txt",
	}, cfg.ProxySources)
}
