// Package worker runs the harvest: the crawl loop, the image
// downloader, horizontally scaled likes and OCR slots, and the
// watchdog that keeps them alive.
package worker

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"fbharvest/pkg/checkpoint"
	"fbharvest/pkg/config"
	"fbharvest/pkg/crawler"
	"fbharvest/pkg/logger"
	"fbharvest/pkg/ocr"
	"fbharvest/pkg/store"
)

// Manager owns all worker goroutines for one process.
type Manager struct {
	cfg     *config.Config
	store   *store.Store
	crawler *crawler.Crawler
	rec     *ocr.Recognizer
	marks   *checkpoint.Manager
	log     logger.Logger

	hb         *heartbeats
	httpClient *http.Client

	// rebootFn, when set, is invoked by the daily reboot trigger. The
	// CLI wires it to a graceful shutdown + restart.
	rebootFn func()

	mu      sync.Mutex
	runners map[string]func(ctx context.Context)
	running map[string]bool
	wg      sync.WaitGroup
}

func NewManager(cfg *config.Config, st *store.Store, cr *crawler.Crawler, rec *ocr.Recognizer, marks *checkpoint.Manager, log logger.Logger) *Manager {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Manager{
		cfg:        cfg,
		store:      st,
		crawler:    cr,
		rec:        rec,
		marks:      marks,
		log:        log,
		hb:         newHeartbeats(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		runners:    make(map[string]func(ctx context.Context)),
		running:    make(map[string]bool),
	}
}

// SetRebootFunc installs the callback invoked by the daily reboot
// trigger.
func (m *Manager) SetRebootFunc(fn func()) {
	m.rebootFn = fn
}

// Run launches every worker and blocks until ctx is cancelled and all
// workers have drained.
func (m *Manager) Run(ctx context.Context) {
	m.launch(ctx, "crawl", m.crawlLoop)
	m.launch(ctx, "download", m.downloadLoop)

	for i := 0; i < m.cfg.Workers.LikesSlots; i++ {
		slot := fmt.Sprintf("likes-%d", i)
		m.launch(ctx, slot, func(ctx context.Context) { m.likesLoop(ctx, slot) })
	}
	if m.rec != nil {
		for i := 0; i < m.cfg.Workers.OCRSlots; i++ {
			slot := fmt.Sprintf("ocr-%d", i)
			m.launch(ctx, slot, func(ctx context.Context) { m.ocrLoop(ctx, slot) })
		}
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.watchdog(ctx)
	}()

	m.wg.Wait()
}

// launch registers the runner for watchdog respawn and starts it.
func (m *Manager) launch(ctx context.Context, slot string, fn func(ctx context.Context)) {
	m.mu.Lock()
	m.runners[slot] = fn
	m.running[slot] = true
	m.mu.Unlock()
	m.hb.beat(slot)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.setRunning(slot, false)
		fn(ctx)
	}()
}

// respawn restarts a slot's registered runner. A slot whose previous
// goroutine is still alive is left alone: doubling a live loop would
// leak a competitor for the same claims.
func (m *Manager) respawn(ctx context.Context, slot string) {
	m.mu.Lock()
	fn, ok := m.runners[slot]
	if !ok || m.running[slot] {
		m.mu.Unlock()
		return
	}
	m.running[slot] = true
	m.mu.Unlock()

	m.log.WithField("slot", slot).Warn("respawning worker slot")
	m.hb.beat(slot)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.setRunning(slot, false)
		fn(ctx)
	}()
}

func (m *Manager) setRunning(slot string, v bool) {
	m.mu.Lock()
	m.running[slot] = v
	m.mu.Unlock()
}

func (m *Manager) slotRunning(slot string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running[slot]
}

// backlogSleep scales a worker's idle pause to its queue depth: an
// empty queue sleeps minutes, a deep one barely pauses.
func backlogSleep(backlog int) time.Duration {
	switch {
	case backlog <= 0:
		return 5 * time.Minute
	case backlog < 10:
		return time.Minute
	case backlog < 100:
		return 10 * time.Second
	default:
		return time.Second
	}
}

// idleChunk bounds how long an idle worker goes without a heartbeat.
// It must stay well under the watchdog's liveness deadline.
const idleChunk = 20 * time.Second

// idle pauses the slot for d, beating its heartbeat along the way so a
// long backlog or cycle sleep does not read as a dead worker.
func (m *Manager) idle(ctx context.Context, slot string, d time.Duration) bool {
	for d > 0 {
		step := d
		if step > idleChunk {
			step = idleChunk
		}
		if !sleepCtx(ctx, step) {
			return false
		}
		d -= step
		m.hb.beat(slot)
	}
	return true
}

// sleepCtx pauses for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
