package worker

import (
	"context"
)

// crawlLoop runs full harvest cycles: refresh the page registry, walk
// every enabled page's feed, refresh recent posts, then traverse new
// shares. One failing page aborts only that page's pass.
func (m *Manager) crawlLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		m.hb.beat("crawl")
		m.runCycle(ctx)
		if !m.idle(ctx, "crawl", m.cfg.Workers.CycleSleep) {
			return
		}
	}
}

func (m *Manager) runCycle(ctx context.Context) {
	log := m.log.WithField("worker", "crawl")
	log.Info("starting crawl cycle")

	if err := m.crawler.GetPages(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.WithError(err).Error("page registry refresh failed")
	}

	pages, err := m.store.EnabledPages(ctx)
	if err != nil {
		log.WithError(err).Error("listing pages failed")
		return
	}
	for _, p := range pages {
		if ctx.Err() != nil {
			return
		}
		m.hb.beat("crawl")
		if err := m.crawler.GetPostsFromPage(ctx, p.PageID); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithFields(map[string]interface{}{
				"page":  p.PageID,
				"error": err.Error(),
			}).Error("page crawl failed")
		}
	}

	if err := m.crawler.UpdatePosts(ctx); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("update pass failed")
	}
	if err := m.crawler.UpdateShares(ctx); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("shares pass failed")
	}
	log.Info("crawl cycle complete")
}
