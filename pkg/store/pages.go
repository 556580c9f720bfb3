package store

import (
	"context"
	"database/sql"
	"time"
)

// PageEntry is a row of the page registry: a source the crawler visits.
type PageEntry struct {
	PageID          string
	Name            string
	DownloadEnabled bool
	NonExist        bool
}

// UpsertPage registers a page, updating the name if the row exists.
// Registry flags are left alone on update.
func (s *Store) UpsertPage(ctx context.Context, pageID, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pages (page_id, name, created_at) VALUES (?,?,?)
		ON CONFLICT(page_id) DO UPDATE SET name = excluded.name`,
		pageID, nullString(name), time.Now().UTC())
	return err
}

// EnabledPages lists registry rows the crawler should visit.
func (s *Store) EnabledPages(ctx context.Context) ([]PageEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT page_id, name, download_enabled, non_exist
		FROM pages WHERE download_enabled = 1 AND non_exist = 0
		ORDER BY page_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PageEntry
	for rows.Next() {
		var (
			p                 PageEntry
			name              sql.NullString
			enabled, nonExist int
		)
		if err := rows.Scan(&p.PageID, &name, &enabled, &nonExist); err != nil {
			return nil, err
		}
		p.Name = name.String
		p.DownloadEnabled = enabled != 0
		p.NonExist = nonExist != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetPageNonExist closes a registry row the platform no longer serves.
func (s *Store) SetPageNonExist(ctx context.Context, pageID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE pages SET non_exist = 1 WHERE page_id = ?`, pageID)
	return err
}

// MigratePage closes the old registry row and seeds the new id so the
// next cycle crawls the migrated page.
func (s *Store) MigratePage(ctx context.Context, oldID, newID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE pages SET non_exist = 1, download_enabled = 0 WHERE page_id = ?`, oldID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO pages (page_id, created_at) VALUES (?,?)
		ON CONFLICT(page_id) DO UPDATE SET download_enabled = 1, non_exist = 0`,
		newID, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}
