package worker

import (
	"context"
	"strings"
	"time"
)

// rebootHour is the quiet hour in which the daily maintenance reboot
// may fire; the crawl window covers the rest of the day.
const rebootHour = 4

// staleFactor scales the watchdog interval into the liveness deadline.
const staleFactor = 3

// watchdog polls slot liveness and respawns slots that stopped
// beating. For a dead OCR slot the row named by its marker file is
// unlocked first, so the respawned slot (or any other) can claim it.
// It also fires the daily reboot, at most once per calendar day and
// only in the quiet hour.
func (m *Manager) watchdog(ctx context.Context) {
	interval := m.cfg.Workers.WatchdogInterval
	if interval <= 0 {
		interval = time.Minute
	}
	deadline := staleFactor * interval

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.checkSlots(ctx, deadline)
		m.maybeReboot(time.Now())
	}
}

// checkSlots respawns slots whose goroutine has exited and logs the
// ones that stopped beating but are still alive. Only an exited slot
// is restarted: spawning next to a live loop would double its claims.
func (m *Manager) checkSlots(ctx context.Context, deadline time.Duration) {
	for _, slot := range m.hb.slots() {
		if m.slotRunning(slot) {
			if age := m.hb.age(slot); age > deadline {
				m.log.WithFields(map[string]interface{}{
					"slot": slot,
					"age":  age.String(),
				}).Warn("worker slot went silent")
			}
			continue
		}
		if ctx.Err() != nil {
			return
		}
		m.log.WithField("slot", slot).Warn("worker slot exited")
		if strings.HasPrefix(slot, "ocr-") {
			m.releaseSlotClaim(ctx, slot)
		}
		m.respawn(ctx, slot)
	}
}

// releaseSlotClaim unlocks the media row a dead OCR slot was holding,
// per its resumption marker.
func (m *Manager) releaseSlotClaim(ctx context.Context, slot string) {
	mark, found, err := m.marks.ReadSlot(slot)
	if err != nil {
		m.log.WithError(err).Warn("reading slot marker failed")
		return
	}
	if !found {
		return
	}
	if err := m.store.UnlockMedia(ctx, mark.MediaID); err != nil {
		m.log.WithError(err).Warn("unlocking orphaned media failed")
		return
	}
	if err := m.marks.ClearSlot(slot); err != nil {
		m.log.WithError(err).Warn("clearing orphaned marker failed")
	}
}

func (m *Manager) maybeReboot(now time.Time) {
	if m.rebootFn == nil || now.Hour() != rebootHour {
		return
	}
	if m.marks.RebootDoneToday(now) {
		return
	}
	if err := m.marks.MarkRebootDone(now); err != nil {
		m.log.WithError(err).Error("stamping reboot marker failed")
		return
	}
	m.log.Info("daily maintenance reboot")
	m.rebootFn()
}
