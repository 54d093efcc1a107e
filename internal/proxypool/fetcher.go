package proxypool

import (
	"context"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sadewadee/tgproxybot/internal/domain"
)

// Fetcher downloads proxy inventories. Bodies are plain newline text;
// no content negotiation is attempted.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	workers  int
}

func NewFetcher(timeout time.Duration, maxBytes int64, workers int) *Fetcher {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if maxBytes == 0 {
		maxBytes = 256 << 10
	}
	if workers == 0 {
		workers = 10
	}

	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
		workers:  workers,
	}
}

// Fetch returns the body of one source, or "" on any error. Callers
// must tolerate empty results.
func (f *Fetcher) Fetch(ctx context.Context, src domain.ProxySource) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		log.Printf("[Fetcher] bad source URL %s: %v", src.URL, err)
		return ""
	}

	resp, err := f.client.Do(req)
	if err != nil {
		log.Printf("[Fetcher] fetch %s failed: %v", src.URL, err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[Fetcher] fetch %s: status %d", src.URL, resp.StatusCode)
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		log.Printf("[Fetcher] read %s failed: %v", src.URL, err)
		return ""
	}

	return string(body)
}

// FetchAll downloads every source over a bounded worker pool and parses
// the bodies with each source's scheme hint. Failed sources contribute
// nothing.
func (f *Fetcher) FetchAll(ctx context.Context, sources []domain.ProxySource) []domain.Proxy {
	var (
		mu  sync.Mutex
		out []domain.Proxy
	)

	egroup, ctx := errgroup.WithContext(ctx)
	egroup.SetLimit(f.workers)

	for _, src := range sources {
		src := src
		egroup.Go(func() error {
			parsed := ParseList(f.Fetch(ctx, src), src.DefaultScheme)
			if len(parsed) == 0 {
				return nil
			}

			mu.Lock()
			out = append(out, parsed...)
			mu.Unlock()

			return nil
		})
	}

	_ = egroup.Wait()

	return out
}
