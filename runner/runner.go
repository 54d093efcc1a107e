package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	// ErrMissingToken means no bot credential was supplied.
	ErrMissingToken = errors.New("TELEGRAM_BOT_TOKEN is required")
)

// Runner is a long-lived mode of the binary.
type Runner interface {
	Run(context.Context) error
	Close(context.Context) error
}

// Config is populated from the environment only; the binary takes no
// positional arguments.
type Config struct {
	Token       string
	WebhookMode bool
	WebhookBase string
	Port        string

	// optional verified-proxy cache
	RedisURL  string
	RedisAddr string
	RedisPass string

	// proxy pool overrides
	ProbeURL     string
	ProxySources []string
}

// ParseConfig reads the environment. It fails only on a missing
// credential; everything else has a default.
func ParseConfig() (*Config, error) {
	cfg := &Config{
		Token:     os.Getenv("TELEGRAM_BOT_TOKEN"),
		Port:      os.Getenv("PORT"),
		RedisURL:  os.Getenv("REDIS_URL"),
		RedisAddr: os.Getenv("REDIS_ADDR"),
		RedisPass: os.Getenv("REDIS_PASS"),
		ProbeURL:  os.Getenv("PROBE_URL"),
	}

	if cfg.Token == "" {
		return nil, ErrMissingToken
	}

	cfg.WebhookMode = os.Getenv("BOT_MODE") == "webhook"

	base := os.Getenv("RAILWAY_STATIC_URL")
	if base == "" {
		base = os.Getenv("RAILWAY_PUBLIC_DOMAIN")
	}
	if base != "" && !strings.Contains(base, "://") {
		base = "https://" + base
	}
	cfg.WebhookBase = strings.TrimSuffix(base, "/")

	if s := os.Getenv("PROXY_SOURCES"); s != "" {
		for _, u := range strings.Split(s, ",") {
			if u = strings.TrimSpace(u); u != "" {
				cfg.ProxySources = append(cfg.ProxySources, u)
			}
		}
	}

	return cfg, nil
}

// Banner prints the version line at startup.
func Banner() {
	fmt.Fprintf(os.Stderr, "tgproxybot v%s (%s)\n", Version, BuildDate)
}
