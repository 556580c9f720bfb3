package worker

import (
	"context"
	"strings"
	"time"

	"fbharvest/pkg/logger"
	"fbharvest/pkg/ocr"
	"fbharvest/pkg/store"
)

// ocrLoop is one OCR slot: claim a batch of downloaded media rows and
// recognize each one. Before touching a row the slot writes its marker
// file, so a crash leaves behind exactly which row to unlock.
func (m *Manager) ocrLoop(ctx context.Context, slot string) {
	log := m.log.WithField("slot", slot)

	// A marker surviving from a previous run names a row this slot
	// died on. Unlock it so this run claims it again.
	if mark, found, err := m.marks.ReadSlot(slot); err == nil && found {
		if err := m.store.UnlockMedia(ctx, mark.MediaID); err != nil {
			log.WithError(err).Warn("unlocking marked media failed")
		}
		if err := m.marks.ClearSlot(slot); err != nil {
			log.WithError(err).Warn("clearing stale marker failed")
		}
	}

	for {
		if ctx.Err() != nil {
			return
		}
		m.hb.beat(slot)

		batch, err := m.store.ClaimOCRBatch(ctx, slot, m.cfg.Workers.OCRBatchSize)
		if err != nil {
			log.WithError(err).Error("claiming OCR batch failed")
			if !m.idle(ctx, slot, time.Minute) {
				return
			}
			continue
		}

		for _, media := range batch {
			if ctx.Err() != nil {
				if err := m.store.UnlockMedia(context.Background(), media.InternalID); err != nil {
					log.WithError(err).Warn("releasing claim failed")
				}
				continue
			}
			m.hb.beat(slot)
			m.recognizeOne(ctx, slot, media, log)
		}
		if ctx.Err() != nil {
			return
		}

		backlog, err := m.store.OCRBacklog(ctx)
		if err != nil {
			backlog = len(batch)
		}
		if !m.idle(ctx, slot, backlogSleep(backlog)) {
			return
		}
	}
}

// recognizeOne runs the consensus pipeline on one claimed row. Every
// failure mode ends in ocr_done: an unreadable or unrecognizable image
// is a final answer, and retrying a crashing engine on the same image
// would wedge the slot forever.
func (m *Manager) recognizeOne(ctx context.Context, slot string, media store.Media, log logger.Logger) {
	if err := m.marks.WriteSlot(slot, media.InternalID); err != nil {
		log.WithError(err).Warn("writing slot marker failed")
	}
	defer func() {
		if err := m.marks.ClearSlot(slot); err != nil {
			log.WithError(err).Warn("clearing slot marker failed")
		}
	}()

	finish := func(text string, vocab []string) {
		if err := m.store.MarkMediaOCRDone(ctx, media.InternalID, text, strings.Join(vocab, " ")); err != nil {
			log.WithError(err).Error("persisting OCR result failed")
		}
	}

	payload, _, payloadFull, _, err := m.store.MediaPayloads(ctx, media.InternalID)
	if err != nil {
		log.WithError(err).Error("loading payloads failed")
		return
	}
	siblings, err := m.store.MediaSiblingCount(ctx, media.OwnerID)
	if err != nil {
		siblings = 1
	}
	chosen := ocr.SelectPayload(siblings, media.Src, payload, payloadFull)
	if chosen == "" {
		finish("", nil)
		return
	}

	img, err := ocr.DecodePayload(chosen)
	if err != nil {
		log.WithError(err).Warn("undecodable payload")
		finish("", nil)
		return
	}

	text, vocab, err := m.rec.Recognize(img)
	if err != nil {
		log.WithError(err).Warn("recognition failed")
		finish("", nil)
		return
	}
	finish(text, vocab)
}
