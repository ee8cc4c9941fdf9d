// Package csrf issues and consumes the one-time state token that binds an
// outbound bank-authorization redirect to its callback.
package csrf

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/openbanklink/banklink/pkg/storage"
)

// StateTTL bounds how long a connect attempt can wait for its callback.
const StateTTL = 15 * time.Minute

const slotName = "bl_oauth_state"

// Ledger stores a single pending state per slot store. Issuing a new state
// replaces any previous one.
type Ledger struct {
	slots storage.SlotStore
}

// NewLedger creates a ledger over the given slot store.
func NewLedger(slots storage.SlotStore) *Ledger {
	return &Ledger{slots: slots}
}

// Issue generates a random state token, stores it with a bounded lifetime
// and returns it for embedding in the authorization URL.
func (l *Ledger) Issue() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	state := base64.RawURLEncoding.EncodeToString(b)

	if err := l.slots.Set(slotName, state, StateTTL); err != nil {
		return "", fmt.Errorf("failed to store state: %w", err)
	}
	return state, nil
}

// Consume reads the stored state, deletes it unconditionally, and reports
// whether the presented value matches. Absence, expiry, an empty presented
// value and a mismatch all take the same rejection path so a caller cannot
// probe which one occurred.
func (l *Ledger) Consume(presented string) bool {
	stored, exists := l.slots.Get(slotName)
	l.slots.Delete(slotName)

	if !exists || stored == "" || presented == "" {
		return false
	}
	return stored == presented
}
