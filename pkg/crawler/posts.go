package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"fbharvest/pkg/graph"
	"fbharvest/pkg/store"
)

func decodePost(raw json.RawMessage) (*graph.Post, error) {
	var p graph.Post
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	if _, err := p.MandatoryID(); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPostsFromPage walks a page feed newest-first, storing each post
// with its full subtree. Pagination stops at the age horizon, at the
// first already-known post, or at the per-page post cap.
func (c *Crawler) GetPostsFromPage(ctx context.Context, pageID string) error {
	horizon := c.horizon(time.Now())
	url := c.ep.Feed(pageID, c.pageLimit)
	stored := 0

	for url != "" {
		if err := ctx.Err(); err != nil {
			return err
		}
		env, err := c.client.GetEnvelope(ctx, url)

		var notFound *graph.NotFoundError
		var migrated *graph.MigratedError
		switch {
		case errors.As(err, &notFound):
			c.log.WithField("page", pageID).Warn("page feed gone")
			return c.store.SetPageNonExist(ctx, pageID)
		case errors.As(err, &migrated):
			if err := c.store.MigratePage(ctx, migrated.OldID, migrated.NewID); err != nil {
				return err
			}
			if err := c.seedPageObject(ctx, migrated.NewID, ""); err != nil {
				return err
			}
			return c.GetPostsFromPage(ctx, migrated.NewID)
		case err != nil:
			return err
		}

		for _, raw := range env.Data {
			post, err := decodePost(raw)
			if err != nil {
				c.log.WithError(err).Warn("skipping malformed post")
				continue
			}
			if created := post.Created(); !created.IsZero() && created.Before(horizon) {
				c.log.WithField("page", pageID).Debug("reached age horizon")
				return nil
			}
			inserted, err := c.handlePost(ctx, post, pageID, false)
			if err != nil {
				return err
			}
			if !inserted {
				// Feed is newest-first: a known post means the rest
				// of the feed was harvested by an earlier cycle.
				c.log.WithField("page", pageID).Debug("reached known post")
				return nil
			}
			stored++
			if c.maxPosts > 0 && stored >= c.maxPosts {
				c.log.WithField("page", pageID).Debug("reached per-page post cap")
				return nil
			}
		}
		url = nextURL(env)
	}
	return nil
}

// handlePost stores the post and, when it is new, its author, media,
// comments, and the parent post's attachments. Returns whether the
// post was new. viaShares marks posts reached through a sharedposts
// edge as shared copies.
func (c *Crawler) handlePost(ctx context.Context, post *graph.Post, pageID string, viaShares bool) (bool, error) {
	obj := postToObject(post, pageID)
	obj.IsSharedCopy = viaShares

	inserted, err := c.store.StoreObject(ctx, obj)
	if err != nil || !inserted {
		return inserted, err
	}

	if post.From != nil && post.From.ID != "" {
		u := &store.User{ExternalID: post.From.ID, Name: post.From.Name}
		if _, err := c.store.StoreUser(ctx, u); err != nil {
			return true, err
		}
	}

	if post.Picture != "" || post.FullPicture != "" {
		m := &store.Media{
			OwnerID:     post.ID,
			Picture:     post.Picture,
			FullPicture: post.FullPicture,
		}
		if _, err := c.store.StoreMedia(ctx, m); err != nil {
			return true, err
		}
	}

	if err := c.ScanAttachments(ctx, post.ID, post.ID, false); err != nil {
		return true, err
	}
	if err := c.GetComments(ctx, post.ID, post.ID, pageID); err != nil {
		return true, err
	}

	// A share's own attachments are thin; the substance lives on the
	// parent post. Shared copies skip this, their parent is the post
	// that led here.
	if post.ParentID != "" && !viaShares {
		if err := c.scanParentAttachments(ctx, post.ParentID, post.ID); err != nil {
			return true, err
		}
	}
	return true, nil
}

// scanParentAttachments fetches the parent post of a share and stores
// its attachments tagged from_parent against the sharing post.
func (c *Crawler) scanParentAttachments(ctx context.Context, parentID, ownerID string) error {
	var parent graph.Post
	err := c.client.GetJSON(ctx, c.ep.Post(parentID), &parent)

	var notFound *graph.NotFoundError
	if errors.As(err, &notFound) {
		c.log.WithField("post", parentID).Debug("parent post gone")
		return nil
	}
	if err != nil {
		return err
	}
	return c.ScanAttachments(ctx, parentID, ownerID, true)
}

func postToObject(post *graph.Post, pageID string) *store.Object {
	obj := &store.Object{
		ExternalID: post.ID,
		Kind:       store.KindPost,
		PageID:     pageID,
		Created:    post.Created(),
		Modified:   post.Updated(),
		Story:      post.Story,
		Message:    post.Message,
		FBParentID: post.ParentID,
	}
	if post.From != nil {
		obj.UserID = post.From.ID
	}
	if post.Shares != nil {
		obj.ShareCount = post.Shares.Count
	}
	return obj
}
