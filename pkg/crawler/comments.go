package crawler

import (
	"context"
	"encoding/json"
	"errors"

	"fbharvest/pkg/graph"
	"fbharvest/pkg/store"
)

// GetComments paginates the comments edge of a post or comment,
// storing each new comment and recursing into its replies when the
// platform reports sub-comments.
func (c *Crawler) GetComments(ctx context.Context, objectID, postID, pageID string) error {
	url := c.ep.Comments(objectID, c.pageLimit)
	for url != "" {
		if err := ctx.Err(); err != nil {
			return err
		}
		env, err := c.client.GetEnvelope(ctx, url)

		var notFound *graph.NotFoundError
		if errors.As(err, &notFound) {
			return c.store.SetNonExist(ctx, objectID)
		}
		if err != nil {
			return err
		}

		for _, raw := range env.Data {
			var cm graph.Comment
			if err := json.Unmarshal(raw, &cm); err != nil {
				c.log.WithError(err).Warn("skipping malformed comment")
				continue
			}
			if _, err := cm.MandatoryID(); err != nil {
				c.log.WithError(err).Warn("skipping comment without id")
				continue
			}
			if err := c.handleComment(ctx, &cm, objectID, postID, pageID); err != nil {
				return err
			}
		}
		url = nextURL(env)
	}
	return nil
}

func (c *Crawler) handleComment(ctx context.Context, cm *graph.Comment, parentID, postID, pageID string) error {
	obj := &store.Object{
		ExternalID:   cm.ID,
		Kind:         store.KindComment,
		ParentID:     parentID,
		PostID:       postID,
		PageID:       pageID,
		Created:      cm.Created(),
		Message:      cm.Message,
		LikeCount:    cm.LikeCount,
		CommentCount: cm.CommentCount,
	}
	if cm.From != nil {
		obj.UserID = cm.From.ID
	}
	inserted, err := c.store.StoreObject(ctx, obj)
	if err != nil || !inserted {
		return err
	}

	if cm.From != nil && cm.From.ID != "" {
		u := &store.User{ExternalID: cm.From.ID, Name: cm.From.Name}
		if _, err := c.store.StoreUser(ctx, u); err != nil {
			return err
		}
	}
	if err := c.ScanAttachments(ctx, cm.ID, cm.ID, false); err != nil {
		return err
	}
	if cm.CommentCount > 0 {
		return c.GetComments(ctx, cm.ID, postID, pageID)
	}
	return nil
}

// ScanAttachments fetches the attachments edge of an object and stores
// one media row per attachment, descending into subattachment albums.
// fromParent tags rows harvested off a share's parent post.
func (c *Crawler) ScanAttachments(ctx context.Context, objectID, ownerID string, fromParent bool) error {
	env, err := c.client.GetEnvelope(ctx, c.ep.Attachments(objectID))

	var notFound *graph.NotFoundError
	if errors.As(err, &notFound) {
		return c.store.SetNonExist(ctx, objectID)
	}
	if err != nil {
		return err
	}

	for _, raw := range env.Data {
		var att graph.Attachment
		if err := json.Unmarshal(raw, &att); err != nil {
			c.log.WithError(err).Warn("skipping malformed attachment")
			continue
		}
		if err := c.storeAttachment(ctx, &att, raw, ownerID, fromParent); err != nil {
			return err
		}
	}
	return nil
}

func (c *Crawler) storeAttachment(ctx context.Context, att *graph.Attachment, raw json.RawMessage, ownerID string, fromParent bool) error {
	if att.Subattachments != nil {
		for i := range att.Subattachments.Data {
			sub := &att.Subattachments.Data[i]
			subRaw, err := json.Marshal(sub)
			if err != nil {
				return err
			}
			if err := c.storeAttachment(ctx, sub, subRaw, ownerID, fromParent); err != nil {
				return err
			}
		}
		return nil
	}

	m := &store.Media{
		OwnerID:     ownerID,
		FBType:      att.Type,
		Title:       att.Title,
		Description: att.Description,
		Raw:         string(raw),
		FromParent:  fromParent,
	}
	if att.Target != nil {
		m.Target = att.Target.URL
	}
	if att.Media != nil && att.Media.Image != nil {
		m.Src = att.Media.Image.Src
		m.Width = att.Media.Image.Width
		m.Height = att.Media.Image.Height
	}
	_, err := c.store.StoreMedia(ctx, m)
	return err
}
