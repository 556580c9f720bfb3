package graph

import (
	"encoding/json"
	"time"
)

// timeLayout is the created_time format the platform emits.
const timeLayout = "2006-01-02T15:04:05-0700"

// Envelope is the generic list response: a data array plus an optional
// paging block carrying the next-page cursor URL.
type Envelope struct {
	Data   []json.RawMessage `json:"data"`
	Paging *Paging           `json:"paging,omitempty"`
}

// EmptyEnvelope is returned where the protocol demands a graceful empty
// result instead of an error.
func EmptyEnvelope() *Envelope {
	return &Envelope{Data: []json.RawMessage{}}
}

type Paging struct {
	Next    string   `json:"next,omitempty"`
	Cursors *Cursors `json:"cursors,omitempty"`
}

type Cursors struct {
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
}

// Actor is the from/owner block attached to posts and comments.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Post is a feed story. Message and Story are both optional; a post
// with neither carries content only through attachments.
type Post struct {
	ID          string    `json:"id"`
	Message     string    `json:"message,omitempty"`
	Story       string    `json:"story,omitempty"`
	CreatedTime string    `json:"created_time"`
	UpdatedTime string    `json:"updated_time,omitempty"`
	From        *Actor    `json:"from,omitempty"`
	ParentID    string    `json:"parent_id,omitempty"`
	Picture     string    `json:"picture,omitempty"`
	FullPicture string    `json:"full_picture,omitempty"`
	Shares      *Shares   `json:"shares,omitempty"`
	Comments    *Envelope `json:"comments,omitempty"`
}

type Shares struct {
	Count int `json:"count"`
}

// Created parses the post's created_time. Zero time on absence or
// malformed input; the caller decides whether that is fatal.
func (p *Post) Created() time.Time {
	t, err := time.Parse(timeLayout, p.CreatedTime)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// Updated parses updated_time, falling back to created_time.
func (p *Post) Updated() time.Time {
	if p.UpdatedTime == "" {
		return p.Created()
	}
	t, err := time.Parse(timeLayout, p.UpdatedTime)
	if err != nil {
		return p.Created()
	}
	return t.UTC()
}

// MandatoryID returns the post id or a MissingFieldError if the
// platform elided it.
func (p *Post) MandatoryID() (string, error) {
	if p.ID == "" {
		return "", &MissingFieldError{Field: "id"}
	}
	return p.ID, nil
}

// Comment is a reply under a post or under another comment.
type Comment struct {
	ID           string `json:"id"`
	Message      string `json:"message,omitempty"`
	CreatedTime  string `json:"created_time"`
	From         *Actor `json:"from,omitempty"`
	CommentCount int    `json:"comment_count,omitempty"`
	LikeCount    int    `json:"like_count,omitempty"`
}

func (c *Comment) Created() time.Time {
	t, err := time.Parse(timeLayout, c.CreatedTime)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func (c *Comment) MandatoryID() (string, error) {
	if c.ID == "" {
		return "", &MissingFieldError{Field: "id"}
	}
	return c.ID, nil
}

// Attachment is a unit of rich content under a post: photo, link card,
// video or an album that nests further attachments.
type Attachment struct {
	Type           string       `json:"type,omitempty"`
	Title          string       `json:"title,omitempty"`
	Description    string       `json:"description,omitempty"`
	URL            string       `json:"url,omitempty"`
	Media          *Media       `json:"media,omitempty"`
	Target         *Target      `json:"target,omitempty"`
	Subattachments *Attachments `json:"subattachments,omitempty"`
}

// Attachments mirrors Envelope but with typed entries, since
// attachment lists never paginate past their inline data.
type Attachments struct {
	Data []Attachment `json:"data"`
}

type Media struct {
	Image *Image `json:"image,omitempty"`
}

type Image struct {
	Src    string `json:"src"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

type Target struct {
	ID  string `json:"id,omitempty"`
	URL string `json:"url,omitempty"`
}

// User is a liker entry from a likes edge.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// LikesEnvelope is the likes edge response: likers plus an optional
// summary block with the total like count.
type LikesEnvelope struct {
	Data    []User   `json:"data"`
	Paging  *Paging  `json:"paging,omitempty"`
	Summary *Summary `json:"summary,omitempty"`
}

type Summary struct {
	TotalCount int `json:"total_count"`
}

// Page is a page node fetched for the registry.
type Page struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
	Link     string `json:"link,omitempty"`
}
