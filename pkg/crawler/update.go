package crawler

import (
	"context"
	"errors"
	"time"

	"fbharvest/pkg/graph"
	"fbharvest/pkg/store"
)

const (
	updateBatch    = 100
	updateStaleAge = 48 * time.Hour
)

// UpdatePosts refreshes recent posts whose counters may still move:
// posts younger than the age horizon, not refreshed within the stale
// window, in batches of up to 100. Comments are refetched only for
// posts older than the current day; same-day comment threads are still
// growing and get picked up by the next cycle anyway.
func (c *Crawler) UpdatePosts(ctx context.Context) error {
	now := time.Now()
	posts, err := c.store.PostsToUpdate(ctx, c.horizon(now), now.Add(-updateStaleAge), updateBatch)
	if err != nil {
		return err
	}
	for _, p := range posts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.refreshPost(ctx, p, now); err != nil {
			return err
		}
	}
	return nil
}

func (c *Crawler) refreshPost(ctx context.Context, p store.Object, now time.Time) error {
	var post graph.Post
	err := c.client.GetJSON(ctx, c.ep.Post(p.ExternalID), &post)

	var notFound *graph.NotFoundError
	if errors.As(err, &notFound) {
		return c.store.SetNonExist(ctx, p.ExternalID)
	}
	if err != nil {
		return err
	}

	obj := postToObject(&post, p.PageID)

	// Summary fetch: one request yields the current total like count
	// without paging through likers.
	var likes graph.LikesEnvelope
	if err := c.client.GetJSON(ctx, c.ep.Likes(p.ExternalID, 1), &likes); err == nil && likes.Summary != nil {
		obj.LikeCount = likes.Summary.TotalCount
	}

	if err := c.store.UpdateObject(ctx, obj); err != nil {
		return err
	}

	sameDay := post.Created().Format("2006-01-02") == now.Format("2006-01-02")
	if !sameDay {
		return c.GetComments(ctx, p.ExternalID, p.ExternalID, p.PageID)
	}
	return nil
}

// UpdateShares walks the sharedposts edge of posts that report shares
// but have not had them traversed. Shared copies are stored without the
// age or known-post stop rules: the edge is not ordered by the copy's
// age, so early exit would lose data.
func (c *Crawler) UpdateShares(ctx context.Context) error {
	posts, err := c.store.PostsWithShares(ctx, updateBatch)
	if err != nil {
		return err
	}
	for _, p := range posts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.harvestShares(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (c *Crawler) harvestShares(ctx context.Context, p store.Object) error {
	url := c.ep.SharedPosts(p.ExternalID, c.pageLimit)
	for url != "" {
		if err := ctx.Err(); err != nil {
			return err
		}
		env, err := c.client.GetEnvelope(ctx, url)

		var notFound *graph.NotFoundError
		if errors.As(err, &notFound) {
			return c.store.SetNonExist(ctx, p.ExternalID)
		}
		if err != nil {
			return err
		}

		for _, raw := range env.Data {
			post, err := decodePost(raw)
			if err != nil {
				c.log.WithError(err).Warn("skipping malformed shared post")
				continue
			}
			if _, err := c.handlePost(ctx, post, pagePart(post.ID), true); err != nil {
				return err
			}
		}
		url = nextURL(env)
	}
	return c.store.SetSharesDownloaded(ctx, p.ExternalID)
}

// HarvestLikes pages through an object's likers, storing each user and
// the like link, then marks the object fetched. Called from the likes
// worker slots against claimed objects.
func (c *Crawler) HarvestLikes(ctx context.Context, externalID string) error {
	objectInternal, err := c.store.ObjectInternalID(ctx, externalID)
	if err != nil {
		return err
	}

	url := c.ep.Likes(externalID, c.pageLimit)
	for url != "" {
		if err := ctx.Err(); err != nil {
			return err
		}
		var env graph.LikesEnvelope
		err := c.client.GetJSON(ctx, url, &env)

		var notFound *graph.NotFoundError
		if errors.As(err, &notFound) {
			return c.store.SetNonExist(ctx, externalID)
		}
		if err != nil {
			return err
		}

		for i := range env.Data {
			liker := &env.Data[i]
			if liker.ID == "" {
				continue
			}
			u := &store.User{ExternalID: liker.ID, Name: liker.Name}
			if _, err := c.store.StoreUser(ctx, u); err != nil {
				return err
			}
			if _, err := c.store.CreateLikeLink(ctx, u.InternalID, objectInternal); err != nil {
				return err
			}
		}
		if env.Paging == nil || env.Paging.Next == "" {
			break
		}
		url = env.Paging.Next
	}
	return c.store.SetLikeDetailFetched(ctx, externalID)
}
