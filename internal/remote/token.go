package remote

import (
	"sync"
	"time"
)

// TokenSource tracks a bearer token by age instead of parsing it.
// The platform's tokens carry no usable expiry claim, so expiry is
// derived from a configured lifetime minus a safety buffer.
type TokenSource struct {
	mu         sync.Mutex
	token      string
	obtainedAt time.Time
	lifetime   time.Duration
	buffer     time.Duration
}

// NewTokenSource creates a token source with the given assumed lifetime
// and expiry buffer.
func NewTokenSource(lifetime, buffer time.Duration) *TokenSource {
	if lifetime <= 0 {
		lifetime = 100 * time.Hour
	}
	if buffer < 0 {
		buffer = 0
	}
	return &TokenSource{lifetime: lifetime, buffer: buffer}
}

// Set stores a freshly obtained token.
func (t *TokenSource) Set(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = token
	t.obtainedAt = time.Now()
}

// Token returns the current token, or ok=false when absent or expired.
func (t *TokenSource) Token() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token == "" {
		return "", false
	}
	if time.Since(t.obtainedAt) >= t.lifetime-t.buffer {
		return "", false
	}
	return t.token, true
}

// TimeUntilExpiry returns the remaining useful life of the token.
func (t *TokenSource) TimeUntilExpiry() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token == "" {
		return 0
	}
	remaining := t.lifetime - t.buffer - time.Since(t.obtainedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Clear drops the stored token, forcing a re-login on next use.
func (t *TokenSource) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = ""
	t.obtainedAt = time.Time{}
}
