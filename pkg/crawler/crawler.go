// Package crawler walks the remote content tree: page registry, feeds,
// comments, attachments, likers, and the update and shares passes.
package crawler

import (
	"context"
	"errors"
	"strings"
	"time"

	"fbharvest/pkg/config"
	"fbharvest/pkg/graph"
	"fbharvest/pkg/logger"
	"fbharvest/pkg/store"
)

// Crawler drives the harvest against one store. Safe for use from a
// single crawl loop; liker harvest is additionally called from the
// likes worker slots.
type Crawler struct {
	client *graph.Client
	ep     *graph.Endpoints
	store  *store.Store
	log    logger.Logger

	aggregatorID string
	pageLimit    int
	daysDepth    int
	maxPosts     int
}

func New(cfg config.APIConfig, client *graph.Client, st *store.Store, log logger.Logger) *Crawler {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Crawler{
		client:       client,
		ep:           graph.NewEndpoints(cfg.BaseURL, cfg.APIVersion),
		store:        st,
		log:          log,
		aggregatorID: cfg.AggregatorPageID,
		pageLimit:    cfg.PageLimit,
		daysDepth:    cfg.DaysDepth,
		maxPosts:     cfg.MaxPostsPerPage,
	}
}

// horizon is the oldest created_time the crawl still cares about.
func (c *Crawler) horizon(now time.Time) time.Time {
	return now.AddDate(0, 0, -c.daysDepth)
}

// GetPages seeds the page registry from the aggregator's feed: every
// story the aggregator shares points, through its parent id, at a page
// worth harvesting.
func (c *Crawler) GetPages(ctx context.Context) error {
	if c.aggregatorID == "" {
		return nil
	}
	url := c.ep.Feed(c.aggregatorID, c.pageLimit)
	seen := make(map[string]bool)
	for url != "" {
		if err := ctx.Err(); err != nil {
			return err
		}
		env, err := c.client.GetEnvelope(ctx, url)
		if err != nil {
			return err
		}
		for _, raw := range env.Data {
			post, err := decodePost(raw)
			if err != nil {
				c.log.WithError(err).Warn("skipping malformed aggregator story")
				continue
			}
			pageID := pagePart(post.ParentID)
			if pageID == "" || seen[pageID] {
				continue
			}
			seen[pageID] = true
			if err := c.registerPage(ctx, pageID); err != nil {
				return err
			}
		}
		url = nextURL(env)
	}
	return nil
}

// registerPage fetches page metadata and upserts the registry row.
// Migration and disappearance are absorbed here.
func (c *Crawler) registerPage(ctx context.Context, pageID string) error {
	var page graph.Page
	err := c.client.GetJSON(ctx, c.ep.Page(pageID), &page)

	var notFound *graph.NotFoundError
	var migrated *graph.MigratedError
	switch {
	case errors.As(err, &notFound):
		c.log.WithField("page", pageID).Warn("page gone, closing registry row")
		return c.store.SetPageNonExist(ctx, pageID)
	case errors.As(err, &migrated):
		c.log.InfoWithFields("page migrated", map[string]interface{}{
			"old": migrated.OldID, "new": migrated.NewID,
		})
		if err := c.store.MigratePage(ctx, migrated.OldID, migrated.NewID); err != nil {
			return err
		}
		return c.registerPage(ctx, migrated.NewID)
	case err != nil:
		return err
	}
	if err := c.store.UpsertPage(ctx, page.ID, page.Name); err != nil {
		return err
	}
	return c.seedPageObject(ctx, page.ID, page.Name)
}

// seedPageObject mirrors a registry row into the objects table, so
// pages live alongside the posts and comments hanging off them.
func (c *Crawler) seedPageObject(ctx context.Context, pageID, name string) error {
	_, err := c.store.StoreObject(ctx, &store.Object{
		ExternalID:   pageID,
		Kind:         store.KindPage,
		Name:         name,
		FBType:       "Page",
		FBStatusType: "Page",
	})
	return err
}

// pagePart extracts the page component of a composite object id
// ("pageid_postid").
func pagePart(id string) string {
	if id == "" {
		return ""
	}
	if i := strings.IndexByte(id, '_'); i > 0 {
		return id[:i]
	}
	return id
}

func nextURL(env *graph.Envelope) string {
	if env.Paging == nil {
		return ""
	}
	return env.Paging.Next
}
