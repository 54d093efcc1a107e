// Package botrunner assembles the bot: single-instance guard, proxy
// pool, transport and dispatcher, supervised together.
package botrunner

import (
	"context"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/sadewadee/tgproxybot/internal/bot"
	"github.com/sadewadee/tgproxybot/internal/cache"
	"github.com/sadewadee/tgproxybot/internal/dispatcher"
	"github.com/sadewadee/tgproxybot/internal/domain"
	"github.com/sadewadee/tgproxybot/internal/guard"
	"github.com/sadewadee/tgproxybot/internal/proxypool"
	"github.com/sadewadee/tgproxybot/internal/telegram"
	"github.com/sadewadee/tgproxybot/runner"
)

type BotRunner struct {
	guard      *guard.Guard
	store      cache.Cache
	transport  *telegram.Transport
	dispatcher *dispatcher.Dispatcher
}

// New acquires the instance lock and performs the credential check.
// Either failure aborts startup.
func New(cfg *runner.Config) (*BotRunner, error) {
	g, err := guard.Acquire(guard.LockPath(cfg.Token))
	if err != nil {
		return nil, err
	}

	store := newStore(cfg)

	poolCfg := proxypool.DefaultConfig()
	if cfg.ProbeURL != "" {
		poolCfg.ProbeURL = cfg.ProbeURL
	}
	if len(cfg.ProxySources) > 0 {
		poolCfg.Sources = nil
		for _, u := range cfg.ProxySources {
			poolCfg.Sources = append(poolCfg.Sources, domain.ProxySource{URL: u, DefaultScheme: domain.SchemeSOCKS5})
		}
	}

	pool := proxypool.NewManager(poolCfg, store)

	mode := telegram.ModePolling
	if cfg.WebhookMode {
		mode = telegram.ModeWebhook
	}

	transport, err := telegram.New(telegram.Config{
		Token:       cfg.Token,
		Mode:        mode,
		WebhookBase: cfg.WebhookBase,
		Port:        cfg.Port,
	})
	if err != nil {
		_ = g.Release()
		return nil, err
	}

	disp := dispatcher.New(transport, transport)
	bot.NewHandlers(transport, pool).Register(disp)

	return &BotRunner{
		guard:      g,
		store:      store,
		transport:  transport,
		dispatcher: disp,
	}, nil
}

func newStore(cfg *runner.Config) cache.Cache {
	if cfg.RedisURL == "" && cfg.RedisAddr == "" {
		return cache.NewMemoryCache()
	}

	store, err := cache.NewRedisCache(cache.Config{
		URL:      cfg.RedisURL,
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
	})
	if err != nil {
		log.Printf("[Runner] redis unavailable, using in-memory cache: %v", err)
		return cache.NewMemoryCache()
	}

	return store
}

// Run pumps transport envelopes into the dispatcher until ctx is
// cancelled or the transport gives up.
func (r *BotRunner) Run(ctx context.Context) error {
	egroup, ctx := errgroup.WithContext(ctx)

	egroup.Go(func() error {
		return r.transport.Run(ctx)
	})

	egroup.Go(func() error {
		for env := range r.transport.Updates() {
			r.dispatcher.Dispatch(ctx, env)
		}
		return nil
	})

	return egroup.Wait()
}

func (r *BotRunner) Close(context.Context) error {
	if err := r.store.Close(); err != nil {
		log.Printf("[Runner] cache close: %v", err)
	}
	return r.guard.Release()
}
