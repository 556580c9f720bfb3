package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// User is a row of the users table: an account seen authoring or liking
// harvested content.
type User struct {
	InternalID int64
	ExternalID string
	Name       string
	Kind       string
}

// StoreUser inserts the user if unseen and fills in InternalID either
// way. Returns whether a new row was created.
func (s *Store) StoreUser(ctx context.Context, u *User) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO users (external_id, name, kind, first_seen_at)
		VALUES (?,?,?,?)`,
		u.ExternalID, nullString(u.Name), nullString(u.Kind), time.Now().UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return false, err
		}
		u.InternalID = id
		return true, nil
	}
	id, err := s.UserInternalID(ctx, u.ExternalID)
	if err != nil {
		return false, err
	}
	u.InternalID = id
	return false, nil
}

// UserInternalID resolves a user external id to the internal row id.
func (s *Store) UserInternalID(ctx context.Context, externalID string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM users WHERE external_id = ?`, externalID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return id, err
}

// CreateLikeLink records that a user likes an object. The uniqueness
// constraint arbitrates races; a pre-existing link is not an error.
func (s *Store) CreateLikeLink(ctx context.Context, userInternal, objectInternal int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO likes (user_internal, object_internal, liked_at)
		VALUES (?,?,?)`,
		userInternal, objectInternal, time.Now().UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// LikeCount counts stored like links for an object.
func (s *Store) LikeCount(ctx context.Context, objectInternal int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM likes WHERE object_internal = ?`, objectInternal).Scan(&n)
	return n, err
}
