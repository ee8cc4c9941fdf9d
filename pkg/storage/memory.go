package storage

import (
	"sync"
	"time"
)

type memorySlot struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// MemorySlots is a process-lifetime slot store. It does not survive a
// restart; it exists as the fallback when no external store is configured,
// and as the backing for tests.
type MemorySlots struct {
	slots map[string]memorySlot
	mu    sync.RWMutex
	now   func() time.Time
}

// NewMemorySlots creates an empty in-memory slot store.
func NewMemorySlots() *MemorySlots {
	return &MemorySlots{
		slots: make(map[string]memorySlot),
		now:   time.Now,
	}
}

// Set writes a slot, replacing any previous value.
func (m *MemorySlots) Set(name, value string, maxAge time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot := memorySlot{value: value}
	if maxAge > 0 {
		slot.expiresAt = m.now().Add(maxAge)
	}
	m.slots[name] = slot
	return nil
}

// Get reads a slot, reporting expired slots as absent.
func (m *MemorySlots) Get(name string) (string, bool) {
	m.mu.RLock()
	slot, exists := m.slots[name]
	m.mu.RUnlock()

	if !exists {
		return "", false
	}
	if !slot.expiresAt.IsZero() && m.now().After(slot.expiresAt) {
		m.Delete(name)
		return "", false
	}
	return slot.value, true
}

// Delete removes a slot.
func (m *MemorySlots) Delete(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, name)
}

var _ SlotStore = (*MemorySlots)(nil)
