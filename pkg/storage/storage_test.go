package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySlots_SetGetDelete(t *testing.T) {
	slots := NewMemorySlots()

	_, exists := slots.Get("missing")
	assert.False(t, exists)

	require.NoError(t, slots.Set("token", "sealed-value", time.Hour))

	value, exists := slots.Get("token")
	assert.True(t, exists)
	assert.Equal(t, "sealed-value", value)

	slots.Delete("token")
	_, exists = slots.Get("token")
	assert.False(t, exists)

	// Deleting again is a no-op.
	slots.Delete("token")
}

func TestMemorySlots_Expiry(t *testing.T) {
	slots := NewMemorySlots()
	current := time.Now()
	slots.now = func() time.Time { return current }

	require.NoError(t, slots.Set("state", "abc", 15*time.Minute))

	_, exists := slots.Get("state")
	assert.True(t, exists)

	current = current.Add(16 * time.Minute)
	_, exists = slots.Get("state")
	assert.False(t, exists)
}

func TestMemorySlots_ZeroMaxAgeNeverExpires(t *testing.T) {
	slots := NewMemorySlots()
	current := time.Now()
	slots.now = func() time.Time { return current }

	require.NoError(t, slots.Set("session", "abc", 0))

	current = current.Add(1000 * time.Hour)
	value, exists := slots.Get("session")
	assert.True(t, exists)
	assert.Equal(t, "abc", value)
}

func TestFileSlots_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slots.json")

	first, err := NewFileSlots(path)
	require.NoError(t, err)
	require.NoError(t, first.Set("token", "sealed-value", 30*24*time.Hour))

	second, err := NewFileSlots(path)
	require.NoError(t, err)

	value, exists := second.Get("token")
	assert.True(t, exists)
	assert.Equal(t, "sealed-value", value)
}

func TestFileSlots_Expiry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slots.json")

	slots, err := NewFileSlots(path)
	require.NoError(t, err)

	current := time.Now()
	slots.now = func() time.Time { return current }

	require.NoError(t, slots.Set("state", "abc", 15*time.Minute))

	current = current.Add(16 * time.Minute)
	_, exists := slots.Get("state")
	assert.False(t, exists)

	// The expired slot must not come back after a reload.
	reloaded, err := NewFileSlots(path)
	require.NoError(t, err)
	_, exists = reloaded.Get("state")
	assert.False(t, exists)
}

func TestFileSlots_Delete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slots.json")

	slots, err := NewFileSlots(path)
	require.NoError(t, err)
	require.NoError(t, slots.Set("token", "x", 0))

	slots.Delete("token")
	_, exists := slots.Get("token")
	assert.False(t, exists)
}
