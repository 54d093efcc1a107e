package proxypool

import (
	"time"

	"github.com/sadewadee/tgproxybot/internal/domain"
)

// Config tunes the pool manager. Zero values fall back to the defaults
// below at use sites.
type Config struct {
	ProbeURL         string
	Sources          []domain.ProxySource
	FastTimeout      time.Duration // batch probe timeout (WorkingProxies, FromAPI)
	SlowTimeout      time.Duration // single-candidate probe timeout (WorkingProxy)
	Parallelism      int
	BatchBudget      time.Duration // wall-clock ceiling for WorkingProxies
	FetchTimeout     time.Duration
	FetchConcurrency int
	MaxBodyBytes     int64
	CacheTTL         time.Duration
}

const (
	defaultProbeURL = "http://httpbin.org/status/200"
	defaultCandCap  = 50 // candidates beyond this are dropped up front
	warmupCount     = 10
	chunkSize       = 10
	probeSpacing    = 200 * time.Millisecond
	chunkSpacing    = 500 * time.Millisecond
	apiProbeLimit   = 10
	defaultCacheTTL = 10 * time.Minute
	cacheKeyWorking = "proxy:working"
)

func DefaultConfig() *Config {
	return &Config{
		ProbeURL: defaultProbeURL,
		Sources: []domain.ProxySource{
			{URL: "https://raw.githubusercontent.com/TheSpeedX/SOCKS-List/master/socks5.txt", DefaultScheme: domain.SchemeSOCKS5},
			{URL: "https://raw.githubusercontent.com/monosans/proxy-list/main/proxies/socks5.txt", DefaultScheme: domain.SchemeSOCKS5},
			{URL: "https://raw.githubusercontent.com/hookzof/socks5_list/master/proxy.txt", DefaultScheme: domain.SchemeSOCKS5},
			{URL: "https://raw.githubusercontent.com/TheSpeedX/SOCKS-List/master/http.txt", DefaultScheme: domain.SchemeHTTP},
			{URL: "https://raw.githubusercontent.com/zloi-user/hideip.me/main/socks5.txt", DefaultScheme: domain.SchemeSOCKS5},
		},
		FastTimeout:      1 * time.Second,
		SlowTimeout:      3 * time.Second,
		Parallelism:      3,
		BatchBudget:      20 * time.Second,
		FetchTimeout:     10 * time.Second,
		FetchConcurrency: 10,
		MaxBodyBytes:     256 << 10,
		CacheTTL:         defaultCacheTTL,
	}
}
