// Package token holds the OAuth credential bundle for one linked-bank
// session and its sealed at-rest persistence.
package token

import "time"

// ExpirySafetyMargin is subtracted from the provider's stated lifetime so a
// refresh happens strictly before the access token actually dies, covering
// clock skew and request latency.
const ExpirySafetyMargin = 30 * time.Second

// Bundle is the credential material for one linked-bank session. It only
// ever exists in plaintext inside the memory of an active request; at rest
// it lives sealed inside a scoped storage slot.
type Bundle struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scope        string    `json:"scope,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
}

// Valid reports whether the access token is still usable at the given
// instant. ExpiresAt already carries the safety margin.
func (b *Bundle) Valid(now time.Time) bool {
	return b.ExpiresAt.After(now)
}
