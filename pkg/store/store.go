package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"fbharvest/pkg/logger"
)

// Object kinds stored in the objects table.
const (
	KindPage    = "Page"
	KindPost    = "Post"
	KindComment = "Comment"
)

const schema = `
CREATE TABLE IF NOT EXISTS objects (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	external_id         TEXT NOT NULL UNIQUE,
	kind                TEXT NOT NULL,
	parent_id           TEXT,
	page_id             TEXT,
	post_id             TEXT,
	created             TIMESTAMP,
	modified            TIMESTAMP,
	last_update         TIMESTAMP,
	permalink           TEXT,
	fb_type             TEXT,
	fb_status_type      TEXT,
	name                TEXT,
	caption             TEXT,
	description         TEXT,
	story               TEXT,
	message             TEXT,
	user_id             TEXT,
	like_count          INTEGER NOT NULL DEFAULT 0,
	share_count         INTEGER NOT NULL DEFAULT 0,
	comment_count       INTEGER NOT NULL DEFAULT 0,
	place               TEXT,
	tags                TEXT,
	with_tags           TEXT,
	properties          TEXT,
	fb_parent_id        TEXT,
	fb_object_id        TEXT,
	link                TEXT,
	source              TEXT,
	locked              INTEGER NOT NULL DEFAULT 0,
	non_exist           INTEGER NOT NULL DEFAULT 0,
	shares_downloaded   INTEGER NOT NULL DEFAULT 0,
	like_detail_fetched INTEGER NOT NULL DEFAULT 0,
	is_shared_copy      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_objects_kind ON objects(kind);
CREATE INDEX IF NOT EXISTS idx_objects_page ON objects(page_id);
CREATE INDEX IF NOT EXISTS idx_objects_likes ON objects(like_detail_fetched, locked, non_exist);

CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	external_id   TEXT NOT NULL UNIQUE,
	name          TEXT,
	kind          TEXT,
	created_at    TIMESTAMP,
	first_seen_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS likes (
	user_internal   INTEGER NOT NULL REFERENCES users(id),
	object_internal INTEGER NOT NULL REFERENCES objects(id),
	liked_at        TIMESTAMP NOT NULL,
	UNIQUE (user_internal, object_internal)
);

CREATE TABLE IF NOT EXISTS media (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id       TEXT NOT NULL,
	fb_type        TEXT,
	description    TEXT,
	title          TEXT,
	tags           TEXT,
	target         TEXT,
	media          TEXT,
	src            TEXT,
	width          INTEGER NOT NULL DEFAULT 0,
	height         INTEGER NOT NULL DEFAULT 0,
	picture        TEXT,
	full_picture   TEXT,
	payload        TEXT,
	payload_full   TEXT,
	format         TEXT,
	format_full    TEXT,
	loaded         INTEGER NOT NULL DEFAULT 0,
	error          INTEGER NOT NULL DEFAULT 0,
	ocr_done       INTEGER NOT NULL DEFAULT 0,
	locked_by      TEXT,
	from_parent    INTEGER NOT NULL DEFAULT 0,
	ocr_text       TEXT,
	ocr_vocabulary TEXT
);
CREATE INDEX IF NOT EXISTS idx_media_download ON media(loaded, error);
CREATE INDEX IF NOT EXISTS idx_media_ocr ON media(loaded, ocr_done, error, locked_by);

CREATE TABLE IF NOT EXISTS pages (
	page_id          TEXT NOT NULL UNIQUE,
	name             TEXT,
	download_enabled INTEGER NOT NULL DEFAULT 1,
	non_exist        INTEGER NOT NULL DEFAULT 0,
	created_at       TIMESTAMP NOT NULL
);
`

// Store wraps the SQLite database. All operations are single-statement
// or single-transaction so concurrent workers coordinate purely through
// the uniqueness constraints and flag columns.
type Store struct {
	db  *sql.DB
	log logger.Logger
}

// Open opens (creating if needed) the database at path and applies the
// schema. The database is pinged with bounded retries so workers do not
// start against a briefly unavailable volume.
func Open(path string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	var pingErr error
	for attempt := 1; attempt <= 10; attempt++ {
		if pingErr = db.Ping(); pingErr == nil {
			break
		}
		log.WarnWithFields("database not reachable yet", map[string]interface{}{
			"attempt": attempt,
			"error":   pingErr.Error(),
		})
		time.Sleep(time.Duration(attempt) * time.Second)
	}
	if pingErr != nil {
		db.Close()
		return nil, fmt.Errorf("database unreachable: %w", pingErr)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
