package proxypool

import (
	"context"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sadewadee/tgproxybot/internal/cache"
	"github.com/sadewadee/tgproxybot/internal/domain"
)

// Manager orchestrates fetcher, parser and prober. All failures below
// it are local; the only visible outcome of a bad batch is "no working
// proxy found".
type Manager struct {
	cfg     *Config
	fetcher *Fetcher
	prober  prober
	store   cache.Cache
}

// prober is what the manager needs from the probe layer.
type prober interface {
	Probe(ctx context.Context, p domain.Proxy, timeout time.Duration) domain.ProbeResult
}

// NewManager builds a manager. store may be nil; verified proxies are
// then not retained between calls.
func NewManager(cfg *Config, store cache.Cache) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if store == nil {
		store = cache.NewNoOpCache()
	}

	return &Manager{
		cfg:     cfg,
		fetcher: NewFetcher(cfg.FetchTimeout, cfg.MaxBodyBytes, cfg.FetchConcurrency),
		prober:  NewProber(cfg.ProbeURL),
		store:   store,
	}
}

// WorkingProxies probes candidates and returns up to n reachable ones.
// Schedule: HTTP/HTTPS candidates first, hard cap of 50, a sequential
// warm-up over the first 10 with 0.2 s spacing, then chunks of 10 on a
// worker pool of size parallelism with 0.5 s between chunks. The whole
// batch is bounded by the configured wall-clock budget; on expiry the
// partial result is returned. Result order is completion order.
func (m *Manager) WorkingProxies(ctx context.Context, candidates []domain.Proxy, n int, timeout time.Duration, parallelism int) []domain.Proxy {
	if n <= 0 || len(candidates) == 0 {
		return nil
	}
	if timeout == 0 {
		timeout = m.cfg.FastTimeout
	}
	if parallelism <= 0 {
		parallelism = m.cfg.Parallelism
	}

	candidates = orderCandidates(candidates)
	if len(candidates) > defaultCandCap {
		candidates = candidates[:defaultCandCap]
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.BatchBudget)
	defer cancel()

	var found []domain.Proxy

	// Sequential warm-up contains pathological batches before any
	// parallelism is spent on them.
	warmup := min(warmupCount, len(candidates))
	for i := 0; i < warmup; i++ {
		if ctx.Err() != nil {
			return found
		}

		if res := m.prober.Probe(ctx, candidates[i], timeout); res.Reachable {
			found = append(found, res.Proxy)
			if len(found) >= n {
				return found
			}
		}

		if !sleepCtx(ctx, probeSpacing) {
			return found
		}
	}

	rest := candidates[warmup:]
	for start := 0; start < len(rest); start += chunkSize {
		if ctx.Err() != nil {
			return found
		}

		chunk := rest[start:min(start+chunkSize, len(rest))]

		var mu sync.Mutex
		egroup, gctx := errgroup.WithContext(ctx)
		egroup.SetLimit(parallelism)

		for _, p := range chunk {
			p := p
			egroup.Go(func() error {
				mu.Lock()
				done := len(found) >= n
				mu.Unlock()
				if done || gctx.Err() != nil {
					return nil
				}

				if res := m.prober.Probe(gctx, p, timeout); res.Reachable {
					mu.Lock()
					if len(found) < n {
						found = append(found, res.Proxy)
					}
					mu.Unlock()
				}

				return nil
			})
		}

		_ = egroup.Wait()

		if len(found) >= n {
			return found
		}

		if !sleepCtx(ctx, chunkSpacing) {
			return found
		}
	}

	return found
}

// WorkingProxy returns one verified proxy or nil. Dispatch order:
// explicit API URL, multi-line user input, user input that is itself an
// inventory URL, user input as a single candidate, then the built-in
// source list.
func (m *Manager) WorkingProxy(ctx context.Context, userInput, apiURL string) *domain.Proxy {
	if strings.TrimSpace(userInput) == "" && apiURL == "" {
		if p := m.cached(ctx); p != nil {
			return p
		}
	}

	if apiURL != "" {
		if p := m.FromAPI(ctx, apiURL); p != nil {
			return m.remember(ctx, p)
		}
	}

	input := strings.TrimSpace(userInput)

	switch {
	case input == "":
		// fall through to the default list

	case strings.Contains(input, "\n"):
		got := m.WorkingProxies(ctx, ParseList(input, domain.SchemeSOCKS5), 1, m.cfg.FastTimeout, m.cfg.Parallelism)
		if len(got) > 0 {
			return m.remember(ctx, &got[0])
		}

	default:
		if p, err := ParseLine(input, domain.SchemeSOCKS5); err == nil {
			if res := m.prober.Probe(ctx, p, m.cfg.SlowTimeout); res.Reachable {
				return m.remember(ctx, &p)
			}
		} else if strings.Contains(input, "://") {
			if p := m.FromAPI(ctx, input); p != nil {
				return m.remember(ctx, p)
			}
		}
	}

	return m.DefaultProxy(ctx)
}

// DefaultProxy draws from the built-in source list, shuffling the
// parsed inventories before probing.
func (m *Manager) DefaultProxy(ctx context.Context) *domain.Proxy {
	candidates := m.fetcher.FetchAll(ctx, m.cfg.Sources)
	if len(candidates) == 0 {
		return nil
	}

	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	got := m.WorkingProxies(ctx, candidates, 1, m.cfg.FastTimeout, m.cfg.Parallelism)
	if len(got) == 0 {
		log.Printf("[Pool] no working proxy in default sources")
		return nil
	}

	return m.remember(ctx, &got[0])
}

// FromAPI fetches a single source URL and probes up to 10 candidates
// sequentially, returning the first reachable one.
func (m *Manager) FromAPI(ctx context.Context, url string) *domain.Proxy {
	src := domain.ProxySource{URL: url, DefaultScheme: domain.SchemeSOCKS5}

	candidates := ParseList(m.fetcher.Fetch(ctx, src), src.DefaultScheme)
	if len(candidates) > apiProbeLimit {
		candidates = candidates[:apiProbeLimit]
	}

	for _, p := range candidates {
		if ctx.Err() != nil {
			return nil
		}

		if res := m.prober.Probe(ctx, p, m.cfg.FastTimeout); res.Reachable {
			return &p
		}

		if !sleepCtx(ctx, probeSpacing) {
			return nil
		}
	}

	return nil
}

// cached returns a previously verified proxy if it still probes
// reachable; a stale entry is evicted.
func (m *Manager) cached(ctx context.Context) *domain.Proxy {
	raw, err := m.store.Get(ctx, cacheKeyWorking)
	if err != nil {
		return nil
	}

	p, err := ParseLine(string(raw), domain.SchemeSOCKS5)
	if err != nil {
		_ = m.store.Delete(ctx, cacheKeyWorking)
		return nil
	}

	if res := m.prober.Probe(ctx, p, m.cfg.FastTimeout); !res.Reachable {
		_ = m.store.Delete(ctx, cacheKeyWorking)
		return nil
	}

	return &p
}

func (m *Manager) remember(ctx context.Context, p *domain.Proxy) *domain.Proxy {
	ttl := m.cfg.CacheTTL
	if ttl == 0 {
		ttl = defaultCacheTTL
	}

	if err := m.store.Set(ctx, cacheKeyWorking, []byte(p.URL()), ttl); err != nil {
		log.Printf("[Pool] cache set failed: %v", err)
	}

	return p
}

// orderCandidates puts HTTP/HTTPS candidates before SOCKS ones; under
// the default probe target HTTP proxies answer faster.
func orderCandidates(in []domain.Proxy) []domain.Proxy {
	out := make([]domain.Proxy, 0, len(in))
	for _, p := range in {
		if !p.IsSOCKS() {
			out = append(out, p)
		}
	}
	for _, p := range in {
		if p.IsSOCKS() {
			out = append(out, p)
		}
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
