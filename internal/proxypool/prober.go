package proxypool

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"github.com/sadewadee/tgproxybot/internal/domain"
)

// Prober validates a single proxy by issuing a GET through it to the
// probe target. The target is intentionally plain HTTP so the probe
// exercises the proxy's TCP/HTTP plumbing, not its TLS stack.
type Prober struct {
	target string
}

func NewProber(target string) *Prober {
	if target == "" {
		target = defaultProbeURL
	}
	return &Prober{target: target}
}

// Probe returns within timeout plus a small slack. Redirects are not
// followed and certificate verification is disabled so that
// transparent-intercept proxies are still probed honestly. No
// connection survives the call.
func (pr *Prober) Probe(ctx context.Context, p domain.Proxy, timeout time.Duration) domain.ProbeResult {
	res := domain.ProbeResult{Proxy: p}
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	transport, err := pr.transportFor(p, timeout)
	if err != nil {
		res.Elapsed = time.Since(start)
		res.Failure = domain.FailureProxyError
		return res
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pr.target, nil)
	if err != nil {
		res.Elapsed = time.Since(start)
		res.Failure = domain.FailureOther
		return res
	}

	resp, err := client.Do(req)
	res.Elapsed = time.Since(start)
	if err != nil {
		res.Failure = classifyProbeError(err)
		return res
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		res.Failure = domain.FailureHTTPStatus
		return res
	}

	res.Reachable = true
	return res
}

func (pr *Prober) transportFor(p domain.Proxy, timeout time.Duration) (*http.Transport, error) {
	transport := &http.Transport{
		TLSClientConfig:   &tls.Config{InsecureSkipVerify: true},
		DisableKeepAlives: true,
	}

	switch p.Scheme {
	case domain.SchemeHTTP, domain.SchemeHTTPS:
		u, err := url.Parse(p.URL())
		if err != nil {
			return nil, err
		}
		transport.Proxy = http.ProxyURL(u)

	case domain.SchemeSOCKS5:
		var auth *proxy.Auth
		if p.HasAuth() {
			auth = &proxy.Auth{User: p.Username, Password: p.Password}
		}
		dialer, err := proxy.SOCKS5("tcp", p.Addr(), auth, &net.Dialer{Timeout: timeout})
		if err != nil {
			return nil, err
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		}

	case domain.SchemeSOCKS4:
		transport.DialContext = func(ctx context.Context, _, addr string) (net.Conn, error) {
			return dialSOCKS4(ctx, p, addr)
		}

	default:
		return nil, fmt.Errorf("unsupported scheme %q", p.Scheme)
	}

	return transport, nil
}

// dialSOCKS4 performs the fixed 8-byte SOCKS4 CONNECT handshake.
// x/net/proxy only speaks SOCKS5, and the target must resolve to IPv4.
func dialSOCKS4(ctx context.Context, p domain.Proxy, addr string) (net.Conn, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", host)
	if err != nil || len(ips) == 0 {
		return nil, fmt.Errorf("socks4: resolve %s: %w", host, err)
	}
	ip4 := ips[0].To4()
	if ip4 == nil {
		return nil, fmt.Errorf("socks4: %s is not IPv4", host)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.Addr())
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	req := make([]byte, 0, 9+len(p.Username))
	req = append(req, 0x04, 0x01)
	req = binary.BigEndian.AppendUint16(req, uint16(port))
	req = append(req, ip4...)
	req = append(req, p.Username...)
	req = append(req, 0x00)

	if _, err := conn.Write(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("socks4: write request: %w", err)
	}

	reply := make([]byte, 8)
	if _, err := io.ReadFull(conn, reply); err != nil {
		conn.Close()
		return nil, fmt.Errorf("socks4: read reply: %w", err)
	}
	if reply[1] != 0x5a {
		conn.Close()
		return nil, fmt.Errorf("socks4: request rejected (code %#x)", reply[1])
	}

	_ = conn.SetDeadline(time.Time{})

	return conn, nil
}

func classifyProbeError(err error) domain.FailureKind {
	msg := err.Error()

	var netErr net.Error
	timeout := errors.As(err, &netErr) && netErr.Timeout() ||
		errors.Is(err, context.DeadlineExceeded)

	dialing := strings.Contains(msg, "dial") ||
		strings.Contains(msg, "proxyconnect") ||
		strings.Contains(msg, "connect")

	switch {
	case timeout && dialing:
		return domain.FailureConnectTimeout
	case timeout:
		return domain.FailureReadTimeout
	case isTLSError(err):
		return domain.FailureTLS
	case strings.Contains(msg, "socks") || strings.Contains(msg, "proxy"):
		return domain.FailureProxyError
	case dialing:
		// proxy itself unreachable or refusing
		return domain.FailureProxyError
	default:
		return domain.FailureOther
	}
}

func isTLSError(err error) bool {
	var (
		recordErr tls.RecordHeaderError
		certErr   x509.CertificateInvalidError
		authErr   x509.UnknownAuthorityError
		hostErr   x509.HostnameError
	)

	return errors.As(err, &recordErr) ||
		errors.As(err, &certErr) ||
		errors.As(err, &authErr) ||
		errors.As(err, &hostErr) ||
		strings.Contains(err.Error(), "tls:")
}
