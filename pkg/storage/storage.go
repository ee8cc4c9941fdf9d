// Package storage models the scoped key/value slots that hold sealed
// credential material between stateless invocations. The HTTP layer binds
// the same interface to browser cookies; the backends here cover tests and
// the long-running daemon mode.
package storage

import "time"

// SlotSizeWarnBytes is the value size beyond which a write should be
// flagged. Cookie-backed slots are commonly capped around 4KB per cookie;
// operators seeing this warning should move to server-side storage.
const SlotSizeWarnBytes = 4096

// SlotStore is a scoped key/value capability with per-slot max age. Values
// are opaque sealed strings; implementations never inspect them.
type SlotStore interface {
	// Set writes a slot. A maxAge of zero means session-scoped (no
	// explicit expiry).
	Set(name, value string, maxAge time.Duration) error

	// Get reads a slot. The second return is false when the slot is
	// absent or expired.
	Get(name string) (string, bool)

	// Delete removes a slot. Deleting an absent slot is a no-op.
	Delete(name string)
}
