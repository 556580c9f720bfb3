package store

import (
	"context"
	"database/sql"
)

// Media is a row of the media table: one attachment image with its
// download payloads and OCR outcome.
type Media struct {
	InternalID  int64
	OwnerID     string
	FBType      string
	Description string
	Title       string
	Tags        string
	Target      string
	Raw         string
	Src         string
	Width       int
	Height      int
	Picture     string
	FullPicture string
	Payload     string
	PayloadFull string
	Format      string
	FormatFull  string
	FromParent  bool
}

// StoreMedia inserts a media row and returns its internal id.
func (s *Store) StoreMedia(ctx context.Context, m *Media) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO media (
			owner_id, fb_type, description, title, tags, target, media,
			src, width, height, picture, full_picture, from_parent
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.OwnerID, nullString(m.FBType), nullString(m.Description), nullString(m.Title),
		nullString(m.Tags), nullString(m.Target), nullString(m.Raw),
		nullString(m.Src), m.Width, m.Height,
		nullString(m.Picture), nullString(m.FullPicture), boolInt(m.FromParent))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	m.InternalID = id
	return id, nil
}

// PendingMedia returns media rows not yet downloaded and not failed.
func (s *Store) PendingMedia(ctx context.Context, limit int) ([]Media, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, src, width, height, picture, full_picture, from_parent
		FROM media WHERE loaded = 0 AND error = 0
		ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMediaRows(rows)
}

// MarkMediaLoaded stores the downloaded payloads and flips the loaded
// flag.
func (s *Store) MarkMediaLoaded(ctx context.Context, id int64, payload, format, payloadFull, formatFull string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE media SET loaded = 1, payload = ?, format = ?, payload_full = ?, format_full = ?
		WHERE id = ?`,
		nullString(payload), nullString(format), nullString(payloadFull), nullString(formatFull), id)
	return err
}

// MarkMediaError flags a media row whose download permanently failed.
func (s *Store) MarkMediaError(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE media SET error = 1 WHERE id = ?`, id)
	return err
}

// MarkMediaOCRDone stores the recognition outcome and drops the slot
// lock. Empty text is a valid outcome: the image carried no readable
// words.
func (s *Store) MarkMediaOCRDone(ctx context.Context, id int64, text, vocabulary string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE media SET ocr_done = 1, locked_by = NULL, ocr_text = ?, ocr_vocabulary = ?
		WHERE id = ?`,
		nullString(text), nullString(vocabulary), id)
	return err
}

// UnlockMedia releases a slot's claim on a row without finishing it.
// The watchdog calls this for rows orphaned by a crashed slot.
func (s *Store) UnlockMedia(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE media SET locked_by = NULL WHERE id = ?`, id)
	return err
}

// ClaimOCRBatch atomically claims up to n downloaded, unrecognized media
// rows for the named slot.
func (s *Store) ClaimOCRBatch(ctx context.Context, slot string, n int) ([]Media, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, owner_id, src, width, height, picture, full_picture, from_parent
		FROM media
		WHERE loaded = 1 AND ocr_done = 0 AND error = 0 AND locked_by IS NULL
		ORDER BY id LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	claimed, err := scanMediaRows(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	for _, m := range claimed {
		if _, err := tx.ExecContext(ctx,
			`UPDATE media SET locked_by = ? WHERE id = ?`, slot, m.InternalID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return claimed, nil
}

// MediaPayloads loads the stored payloads for one claimed row.
func (s *Store) MediaPayloads(ctx context.Context, id int64) (payload, format, payloadFull, formatFull string, err error) {
	var p, f, pf, ff sql.NullString
	err = s.db.QueryRowContext(ctx, `
		SELECT payload, format, payload_full, format_full FROM media WHERE id = ?`,
		id).Scan(&p, &f, &pf, &ff)
	return p.String, f.String, pf.String, ff.String, err
}

// MediaSiblingCount counts the media rows attached to one owner. A
// post carrying a single image gets different payload handling than a
// multi-image album.
func (s *Store) MediaSiblingCount(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM media WHERE owner_id = ?`, ownerID).Scan(&n)
	return n, err
}

// OCRBacklog counts media rows awaiting recognition.
func (s *Store) OCRBacklog(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM media
		WHERE loaded = 1 AND ocr_done = 0 AND error = 0 AND locked_by IS NULL`).Scan(&n)
	return n, err
}

// DownloadBacklog counts media rows awaiting download.
func (s *Store) DownloadBacklog(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM media WHERE loaded = 0 AND error = 0`).Scan(&n)
	return n, err
}

func scanMediaRows(rows *sql.Rows) ([]Media, error) {
	var out []Media
	for rows.Next() {
		var (
			m                 Media
			src, pic, fullPic sql.NullString
			fromParent        int
		)
		if err := rows.Scan(&m.InternalID, &m.OwnerID, &src, &m.Width, &m.Height,
			&pic, &fullPic, &fromParent); err != nil {
			return nil, err
		}
		m.Src = src.String
		m.Picture = pic.String
		m.FullPicture = fullPic.String
		m.FromParent = fromParent != 0
		out = append(out, m)
	}
	return out, rows.Err()
}
