package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type fileSlot struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// FileSlots persists slots to a single JSON file so the daemon mode keeps
// its linked-bank session across restarts. Writes go through a temp file
// and an atomic rename.
type FileSlots struct {
	filePath string
	slots    map[string]fileSlot
	mu       sync.Mutex
	now      func() time.Time
}

// NewFileSlots creates a file-backed slot store at filePath, loading any
// existing contents.
func NewFileSlots(filePath string) (*FileSlots, error) {
	fs := &FileSlots{
		filePath: filePath,
		slots:    make(map[string]fileSlot),
		now:      time.Now,
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	if err := fs.loadFromFile(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load existing slots: %w", err)
	}

	return fs, nil
}

// Set writes a slot and syncs to disk.
func (fs *FileSlots) Set(name, value string, maxAge time.Duration) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	slot := fileSlot{Value: value}
	if maxAge > 0 {
		slot.ExpiresAt = fs.now().Add(maxAge)
	}
	fs.slots[name] = slot
	return fs.syncToFile()
}

// Get reads a slot, reporting expired slots as absent.
func (fs *FileSlots) Get(name string) (string, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	slot, exists := fs.slots[name]
	if !exists {
		return "", false
	}
	if !slot.ExpiresAt.IsZero() && fs.now().After(slot.ExpiresAt) {
		delete(fs.slots, name)
		// Expiry cleanup is best effort; the slot is gone either way.
		_ = fs.syncToFile()
		return "", false
	}
	return slot.Value, true
}

// Delete removes a slot and syncs to disk.
func (fs *FileSlots) Delete(name string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	delete(fs.slots, name)
	_ = fs.syncToFile()
}

func (fs *FileSlots) syncToFile() error {
	tempFile := fs.filePath + ".tmp"
	file, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	data := struct {
		Slots     map[string]fileSlot `json:"slots"`
		UpdatedAt time.Time           `json:"updated_at"`
	}{
		Slots:     fs.slots,
		UpdatedAt: fs.now(),
	}

	if err := encoder.Encode(&data); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to encode slots: %w", err)
	}

	if err := file.Sync(); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to sync file: %w", err)
	}

	if err := os.Rename(tempFile, fs.filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

func (fs *FileSlots) loadFromFile() error {
	file, err := os.Open(fs.filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	var data struct {
		Slots map[string]fileSlot `json:"slots"`
	}

	if err := json.NewDecoder(file).Decode(&data); err != nil {
		return fmt.Errorf("failed to decode slots: %w", err)
	}

	fs.slots = data.Slots
	if fs.slots == nil {
		fs.slots = make(map[string]fileSlot)
	}

	return nil
}

var _ SlotStore = (*FileSlots)(nil)
