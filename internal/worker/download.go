package worker

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"fbharvest/pkg/store"
)

const downloadAttempts = 10

// errGone marks a permanently unavailable image: no retry will help.
var errGone = errors.New("image gone")

// downloadLoop fetches payloads for pending media rows. Each row gets
// its primary source and, when present, its full-resolution picture,
// both stored base64 with a format tag.
func (m *Manager) downloadLoop(ctx context.Context) {
	log := m.log.WithField("worker", "download")
	for {
		if ctx.Err() != nil {
			return
		}
		m.hb.beat("download")

		batch, err := m.store.PendingMedia(ctx, m.cfg.Workers.ImageBatchSize)
		if err != nil {
			log.WithError(err).Error("listing pending media failed")
			if !m.idle(ctx, "download", time.Minute) {
				return
			}
			continue
		}

		for _, media := range batch {
			if ctx.Err() != nil {
				return
			}
			m.hb.beat("download")
			if err := m.downloadOne(ctx, media); err != nil {
				log.WithFields(map[string]interface{}{
					"media": media.InternalID,
					"error": err.Error(),
				}).Warn("media download failed")
			}
		}

		backlog, err := m.store.DownloadBacklog(ctx)
		if err != nil {
			backlog = len(batch)
		}
		if !m.idle(ctx, "download", backlogSleep(backlog)) {
			return
		}
	}
}

func (m *Manager) downloadOne(ctx context.Context, media store.Media) error {
	primary := media.Src
	if primary == "" {
		primary = media.Picture
	}
	if primary == "" && media.FullPicture == "" {
		return m.store.MarkMediaError(ctx, media.InternalID)
	}

	var payload, format, payloadFull, formatFull string
	if primary != "" {
		data, err := m.fetchImage(ctx, primary)
		if errors.Is(err, errGone) {
			return m.store.MarkMediaError(ctx, media.InternalID)
		}
		if err != nil {
			return err
		}
		payload = base64.StdEncoding.EncodeToString(data)
		format = formatFromURL(primary)
		m.mirrorToDisk(media.InternalID, format, data)
	}
	if media.FullPicture != "" && media.FullPicture != primary {
		data, err := m.fetchImage(ctx, media.FullPicture)
		switch {
		case errors.Is(err, errGone):
			// The primary payload still stands on its own.
		case err != nil:
			return err
		default:
			payloadFull = base64.StdEncoding.EncodeToString(data)
			formatFull = formatFromURL(media.FullPicture)
		}
	}
	if payload == "" && payloadFull == "" {
		return m.store.MarkMediaError(ctx, media.InternalID)
	}
	return m.store.MarkMediaLoaded(ctx, media.InternalID, payload, format, payloadFull, formatFull)
}

// fetchImage downloads one URL with bounded retries. A 404 is
// permanent: the platform purged the image.
func (m *Manager) fetchImage(ctx context.Context, rawurl string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= downloadAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
		if err != nil {
			return nil, err
		}
		resp, err := m.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if !m.idle(ctx, "download", time.Duration(attempt)*time.Second) {
				return nil, ctx.Err()
			}
			continue
		}
		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return nil, errGone
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			if !m.idle(ctx, "download", time.Duration(attempt)*time.Second) {
				return nil, ctx.Err()
			}
			continue
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return data, nil
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", downloadAttempts, lastErr)
}

// mirrorToDisk keeps a plain-file copy of the payload when an image
// directory is configured. Failure to mirror is not failure to harvest.
func (m *Manager) mirrorToDisk(id int64, format string, data []byte) {
	dir := m.cfg.Workers.ImageDir
	if dir == "" {
		return
	}
	name := filepath.Join(dir, fmt.Sprintf("%d.%s", id, format))
	if err := os.WriteFile(name, data, 0o644); err != nil {
		m.log.WithError(err).Warn("mirroring image to disk failed")
	}
}

// formatFromURL extracts the image format from the URL path extension,
// defaulting to jpg when the path reveals nothing.
func formatFromURL(rawurl string) string {
	u, err := url.Parse(rawurl)
	if err != nil {
		return "jpg"
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
	switch ext {
	case "jpg", "jpeg", "png", "gif", "webp", "bmp":
		return ext
	default:
		return "jpg"
	}
}
