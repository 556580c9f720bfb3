package worker

import (
	"context"
	"time"
)

// likesLoop is one likes slot: claim a batch of objects, harvest each
// one's likers, release or finish every claim. Multiple slots scale
// horizontally through the claim protocol alone.
func (m *Manager) likesLoop(ctx context.Context, slot string) {
	log := m.log.WithField("slot", slot)
	for {
		if ctx.Err() != nil {
			return
		}
		m.hb.beat(slot)

		// Like counts keep moving on fresh posts; only settled ones
		// are worth a full liker harvest.
		cutoff := time.Now().UTC().AddDate(0, 0, -m.cfg.API.LikesDepth)
		batch, err := m.store.ClaimLikesBatch(ctx, cutoff, m.cfg.Workers.LikesBatchSize)
		if err != nil {
			log.WithError(err).Error("claiming likes batch failed")
			if !m.idle(ctx, slot, time.Minute) {
				return
			}
			continue
		}

		for _, obj := range batch {
			if ctx.Err() != nil {
				// Drain: release unprocessed claims so the next run
				// picks them up immediately.
				if err := m.store.UnlockObject(context.Background(), obj.ExternalID); err != nil {
					log.WithError(err).Warn("releasing claim failed")
				}
				continue
			}
			m.hb.beat(slot)
			if err := m.crawler.HarvestLikes(ctx, obj.ExternalID); err != nil {
				log.WithFields(map[string]interface{}{
					"object": obj.ExternalID,
					"error":  err.Error(),
				}).Warn("liker harvest failed")
				if err := m.store.UnlockObject(ctx, obj.ExternalID); err != nil {
					log.WithError(err).Warn("releasing claim failed")
				}
			}
		}
		if ctx.Err() != nil {
			return
		}

		backlog, err := m.store.LikesBacklog(ctx, cutoff)
		if err != nil {
			backlog = len(batch)
		}
		if !m.idle(ctx, slot, backlogSleep(backlog)) {
			return
		}
	}
}
