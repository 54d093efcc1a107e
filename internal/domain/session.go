package domain

import "time"

// SessionState is the closed set of per-user dialog states.
type SessionState string

const (
	StateIdle                SessionState = "idle"
	StateAwaitingProxyText   SessionState = "awaiting_proxy_text"
	StateAwaitingProxyURL    SessionState = "awaiting_proxy_url"
	StateAwaitingProxyChoice SessionState = "awaiting_proxy_choice"
)

// AccountSnapshot is opaque to the core: handlers store whatever the
// external signup flow hands them.
type AccountSnapshot struct {
	Gmail     string
	Secret    string
	APIKey    string
	Status    string
	CreatedAt time.Time
}

// Session is per-user in-memory state. Sessions are created lazily on
// first contact and live for the process lifetime.
type Session struct {
	UserID       int64
	ChatID       int64
	State        SessionState
	PendingProxy *Proxy
	Accounts     []AccountSnapshot
}
