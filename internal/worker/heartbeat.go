package worker

import (
	"sync"
	"time"
)

// heartbeats tracks per-slot liveness. Every worker loop beats at the
// top of each iteration; the watchdog reads the ages.
type heartbeats struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func newHeartbeats() *heartbeats {
	return &heartbeats{last: make(map[string]time.Time)}
}

func (h *heartbeats) beat(slot string) {
	h.mu.Lock()
	h.last[slot] = time.Now()
	h.mu.Unlock()
}

// age returns the time since the slot's last beat. Slots that never
// beat report a zero age so freshly launched workers are not respawned.
func (h *heartbeats) age(slot string) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.last[slot]
	if !ok {
		return 0
	}
	return time.Since(t)
}

func (h *heartbeats) slots() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.last))
	for s := range h.last {
		out = append(out, s)
	}
	return out
}
