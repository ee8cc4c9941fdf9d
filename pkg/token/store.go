package token

import (
	"encoding/json"
	"log"
	"time"

	"github.com/openbanklink/banklink/pkg/sealbox"
	"github.com/openbanklink/banklink/pkg/storage"
)

// SlotMaxAge keeps the sealed bundle around long enough to cover refresh
// tokens that outlive many access tokens.
const SlotMaxAge = 30 * 24 * time.Hour

const slotName = "bl_bank_token"

// Store persists a Bundle as a sealed string in a scoped storage slot.
type Store struct {
	slots storage.SlotStore
	codec *sealbox.Codec
}

// NewStore creates a store over the given slots and codec.
func NewStore(slots storage.SlotStore, codec *sealbox.Codec) *Store {
	return &Store{slots: slots, codec: codec}
}

// Persist serializes and seals the bundle into its slot. Oversized sealed
// values are written anyway; the warning is the operational signal to move
// off cookie-sized storage.
func (s *Store) Persist(bundle *Bundle) error {
	plaintext, err := json.Marshal(bundle)
	if err != nil {
		return err
	}

	sealed, err := s.codec.Seal(plaintext)
	if err != nil {
		return err
	}

	if len(sealed) > storage.SlotSizeWarnBytes {
		log.Printf("WARNING: sealed token bundle is %d bytes, exceeding the %d byte slot limit", len(sealed), storage.SlotSizeWarnBytes)
	}

	return s.slots.Set(slotName, sealed, SlotMaxAge)
}

// Read returns the stored bundle, or nil when the slot is empty. A sealed
// value that fails to open or parse, or that lacks any required field, is
// also reported as nil — a caller cannot tell "never connected" apart from
// "corrupted session", and does not need to.
func (s *Store) Read() *Bundle {
	sealed, exists := s.slots.Get(slotName)
	if !exists || sealed == "" {
		return nil
	}

	plaintext, err := s.codec.Open(sealed)
	if err != nil {
		return nil
	}

	var bundle Bundle
	if err := json.Unmarshal(plaintext, &bundle); err != nil {
		return nil
	}

	if bundle.AccessToken == "" || bundle.RefreshToken == "" || bundle.ExpiresAt.IsZero() {
		return nil
	}

	return &bundle
}

// Clear drops the slot. Safe to call when nothing is stored.
func (s *Store) Clear() {
	s.slots.Delete(slotName)
}
