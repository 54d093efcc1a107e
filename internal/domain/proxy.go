package domain

import (
	"fmt"
	"time"
)

// Scheme is the proxy protocol.
type Scheme string

const (
	SchemeHTTP   Scheme = "http"
	SchemeHTTPS  Scheme = "https"
	SchemeSOCKS4 Scheme = "socks4"
	SchemeSOCKS5 Scheme = "socks5"
)

// ValidScheme reports whether s is one of the supported proxy schemes.
func ValidScheme(s Scheme) bool {
	switch s {
	case SchemeHTTP, SchemeHTTPS, SchemeSOCKS4, SchemeSOCKS5:
		return true
	}
	return false
}

// Proxy is a normalized proxy record. Credentials are either both set
// or both empty. Records are immutable once built; the parser is the
// only production constructor.
type Proxy struct {
	Scheme   Scheme
	Host     string
	Port     int
	Username string
	Password string
}

// Addr returns "host:port".
func (p Proxy) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// URL renders the canonical form scheme://[user:pass@]host:port.
func (p Proxy) URL() string {
	if p.Username != "" {
		return fmt.Sprintf("%s://%s:%s@%s:%d", p.Scheme, p.Username, p.Password, p.Host, p.Port)
	}
	return fmt.Sprintf("%s://%s:%d", p.Scheme, p.Host, p.Port)
}

// HasAuth reports whether the record carries credentials.
func (p Proxy) HasAuth() bool {
	return p.Username != "" && p.Password != ""
}

// IsSOCKS reports whether the record uses a SOCKS scheme.
func (p Proxy) IsSOCKS() bool {
	return p.Scheme == SchemeSOCKS4 || p.Scheme == SchemeSOCKS5
}

// ProxySource is an inventory endpoint plus the scheme applied to bare
// host:port lines in its body.
type ProxySource struct {
	URL           string
	DefaultScheme Scheme
}

// FailureKind classifies why a probe failed.
type FailureKind string

const (
	FailureNone           FailureKind = ""
	FailureConnectTimeout FailureKind = "connect-timeout"
	FailureReadTimeout    FailureKind = "read-timeout"
	FailureTLS            FailureKind = "tls"
	FailureProxyError     FailureKind = "proxy-error"
	FailureHTTPStatus     FailureKind = "http-status"
	FailureOther          FailureKind = "other"
)

// ProbeResult is the outcome of probing a single proxy.
type ProbeResult struct {
	Proxy     Proxy
	Reachable bool
	Elapsed   time.Duration
	Failure   FailureKind
}
