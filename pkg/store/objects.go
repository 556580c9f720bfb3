package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound indicates a lookup for a row that does not exist.
var ErrNotFound = errors.New("store: not found")

// Object is a row of the objects table: a page, post or comment in the
// harvested content tree.
type Object struct {
	InternalID   int64
	ExternalID   string
	Kind         string
	ParentID     string
	PageID       string
	PostID       string
	Created      time.Time
	Modified     time.Time
	LastUpdate   time.Time
	Permalink    string
	FBType       string
	FBStatusType string
	Name         string
	Caption      string
	Description  string
	Story        string
	Message      string
	UserID       string
	LikeCount    int
	ShareCount   int
	CommentCount int
	Place        string
	Tags         string
	WithTags     string
	Properties   string
	FBParentID   string
	FBObjectID   string
	Link         string
	Source       string
	NonExist     bool
	IsSharedCopy bool
}

// StoreObject inserts the object if its external id is new. Returns
// whether a row was actually inserted; a duplicate is not an error.
// On insert the object's InternalID is filled in.
func (s *Store) StoreObject(ctx context.Context, o *Object) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO objects (
			external_id, kind, parent_id, page_id, post_id,
			created, modified, last_update, permalink,
			fb_type, fb_status_type, name, caption, description,
			story, message, user_id, like_count, share_count,
			comment_count, place, tags, with_tags, properties,
			fb_parent_id, fb_object_id, link, source, is_shared_copy
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.ExternalID, o.Kind, nullString(o.ParentID), nullString(o.PageID), nullString(o.PostID),
		nullTime(o.Created), nullTime(o.Modified), nullTime(o.LastUpdate), nullString(o.Permalink),
		nullString(o.FBType), nullString(o.FBStatusType), nullString(o.Name), nullString(o.Caption), nullString(o.Description),
		nullString(o.Story), nullString(o.Message), nullString(o.UserID), o.LikeCount, o.ShareCount,
		o.CommentCount, nullString(o.Place), nullString(o.Tags), nullString(o.WithTags), nullString(o.Properties),
		nullString(o.FBParentID), nullString(o.FBObjectID), nullString(o.Link), nullString(o.Source), boolInt(o.IsSharedCopy),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, err
	}
	o.InternalID = id
	return true, nil
}

// UpdateObject refreshes the mutable columns of an existing object and
// stamps last_update.
func (s *Store) UpdateObject(ctx context.Context, o *Object) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE objects SET
			modified = ?, last_update = ?, message = ?, story = ?,
			like_count = ?, share_count = ?, comment_count = ?
		WHERE external_id = ?`,
		nullTime(o.Modified), time.Now().UTC(), nullString(o.Message), nullString(o.Story),
		o.LikeCount, o.ShareCount, o.CommentCount, o.ExternalID,
	)
	return err
}

// ObjectInternalID resolves an external id to the internal row id.
func (s *Store) ObjectInternalID(ctx context.Context, externalID string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM objects WHERE external_id = ?`, externalID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return id, err
}

// ObjectExists reports whether the external id is already known.
func (s *Store) ObjectExists(ctx context.Context, externalID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM objects WHERE external_id = ?`, externalID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// SetNonExist flags an object the platform no longer serves. The row is
// kept; the flag just stops every future pass from touching it.
func (s *Store) SetNonExist(ctx context.Context, externalID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE objects SET non_exist = 1, locked = 0 WHERE external_id = ?`, externalID)
	return err
}

// SetSharesDownloaded marks a post's sharedposts edge as traversed.
func (s *Store) SetSharesDownloaded(ctx context.Context, externalID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE objects SET shares_downloaded = 1 WHERE external_id = ?`, externalID)
	return err
}

// SetLikeDetailFetched marks an object's likers as harvested and drops
// the claim lock in the same statement.
func (s *Store) SetLikeDetailFetched(ctx context.Context, externalID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE objects SET like_detail_fetched = 1, locked = 0 WHERE external_id = ?`, externalID)
	return err
}

// UnlockObject releases a claim without marking the work done.
func (s *Store) UnlockObject(ctx context.Context, externalID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE objects SET locked = 0 WHERE external_id = ?`, externalID)
	return err
}

// PostsToUpdate returns posts younger than horizon whose last refresh is
// older than staleBefore, up to limit rows.
func (s *Store) PostsToUpdate(ctx context.Context, horizon, staleBefore time.Time, limit int) ([]Object, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT external_id, kind, page_id, created, last_update, comment_count, share_count
		FROM objects
		WHERE kind = ? AND non_exist = 0 AND is_shared_copy = 0
		  AND created >= ? AND (last_update IS NULL OR last_update <= ?)
		ORDER BY created DESC LIMIT ?`,
		KindPost, horizon, staleBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanObjectRows(rows)
}

// PostsWithShares returns posts that report shares but whose sharedposts
// edge has not been traversed yet.
func (s *Store) PostsWithShares(ctx context.Context, limit int) ([]Object, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT external_id, kind, page_id, created, last_update, comment_count, share_count
		FROM objects
		WHERE kind = ? AND non_exist = 0 AND share_count > 0 AND shares_downloaded = 0
		ORDER BY created DESC LIMIT ?`,
		KindPost, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanObjectRows(rows)
}

// ClaimLikesBatch atomically claims up to n objects awaiting liker
// harvest by setting their lock flag inside one transaction. Pages are
// never claimed, and neither are objects created after createdBefore:
// their counts are still moving.
func (s *Store) ClaimLikesBatch(ctx context.Context, createdBefore time.Time, n int) ([]Object, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT external_id, kind, page_id, created, last_update, comment_count, share_count
		FROM objects
		WHERE like_detail_fetched = 0 AND locked = 0 AND non_exist = 0
		  AND kind != ? AND created <= ?
		ORDER BY id LIMIT ?`, KindPage, createdBefore.UTC(), n)
	if err != nil {
		return nil, err
	}
	claimed, err := scanObjectRows(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	for _, o := range claimed {
		if _, err := tx.ExecContext(ctx,
			`UPDATE objects SET locked = 1 WHERE external_id = ?`, o.ExternalID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return claimed, nil
}

// LikesBacklog counts objects currently claimable for liker harvest.
func (s *Store) LikesBacklog(ctx context.Context, createdBefore time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM objects
		WHERE like_detail_fetched = 0 AND locked = 0 AND non_exist = 0
		  AND kind != ? AND created <= ?`, KindPage, createdBefore.UTC()).Scan(&n)
	return n, err
}

func scanObjectRows(rows *sql.Rows) ([]Object, error) {
	var out []Object
	for rows.Next() {
		var (
			o          Object
			pageID     sql.NullString
			created    sql.NullTime
			lastUpdate sql.NullTime
		)
		if err := rows.Scan(&o.ExternalID, &o.Kind, &pageID, &created, &lastUpdate,
			&o.CommentCount, &o.ShareCount); err != nil {
			return nil, err
		}
		o.PageID = pageID.String
		o.Created = created.Time
		o.LastUpdate = lastUpdate.Time
		out = append(out, o)
	}
	return out, rows.Err()
}
