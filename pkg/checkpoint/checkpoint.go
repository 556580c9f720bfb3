// Package checkpoint persists small marker files that let workers
// resume after a crash: each OCR slot records the media row it is
// working on, and a daily marker remembers whether the maintenance
// reboot already ran.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const dayLayout = "2006-01-02"

// SlotMarker is the on-disk record of a slot's in-flight work.
type SlotMarker struct {
	MediaID   int64     `json:"media_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Manager reads and writes markers under a single directory.
type Manager struct {
	dir string
}

func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating marker directory: %w", err)
	}
	return &Manager{dir: dir}, nil
}

func (m *Manager) slotPath(slot string) string {
	return filepath.Join(m.dir, slot+".marker")
}

// WriteSlot records the media row the slot is about to process. Written
// via rename so a crash never leaves a torn marker.
func (m *Manager) WriteSlot(slot string, mediaID int64) error {
	data, err := json.Marshal(SlotMarker{MediaID: mediaID, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	tmp := m.slotPath(slot) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, m.slotPath(slot))
}

// ReadSlot returns the slot's marker, reporting found=false when the
// slot has no in-flight work recorded.
func (m *Manager) ReadSlot(slot string) (SlotMarker, bool, error) {
	data, err := os.ReadFile(m.slotPath(slot))
	if errors.Is(err, fs.ErrNotExist) {
		return SlotMarker{}, false, nil
	}
	if err != nil {
		return SlotMarker{}, false, err
	}
	var mk SlotMarker
	if err := json.Unmarshal(data, &mk); err != nil {
		// A corrupt marker is treated as absent; the row it named
		// stays locked until the watchdog cannot resolve it.
		return SlotMarker{}, false, nil
	}
	return mk, true, nil
}

// ClearSlot removes the slot's marker after its work is persisted.
func (m *Manager) ClearSlot(slot string) error {
	err := os.Remove(m.slotPath(slot))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (m *Manager) rebootPath() string {
	return filepath.Join(m.dir, "reboot.marker")
}

// RebootDoneToday reports whether the daily reboot already ran on the
// calendar day of now.
func (m *Manager) RebootDoneToday(now time.Time) bool {
	data, err := os.ReadFile(m.rebootPath())
	if err != nil {
		return false
	}
	return string(data) == now.Format(dayLayout)
}

// MarkRebootDone stamps today's date so the reboot fires at most once
// per day.
func (m *Manager) MarkRebootDone(now time.Time) error {
	return os.WriteFile(m.rebootPath(), []byte(now.Format(dayLayout)), 0o644)
}
