package graph

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Field sets requested per edge. Kept minimal: every extra field is
// response weight on every page of every crawl.
const (
	postFields    = "id,message,story,created_time,updated_time,from,parent_id,picture,full_picture,shares"
	commentFields = "id,message,created_time,from,comment_count,like_count"
	pageFields    = "id,name,username,link"
)

// Endpoints builds Graph API request URLs. Access tokens are not part
// of the builders; the client injects the current pool token on send.
type Endpoints struct {
	BaseURL string
	Version string
}

func NewEndpoints(baseURL, version string) *Endpoints {
	return &Endpoints{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Version: version,
	}
}

func (e *Endpoints) node(id string) string {
	return fmt.Sprintf("%s/%s/%s", e.BaseURL, e.Version, url.PathEscape(id))
}

func (e *Endpoints) edge(id, edge string, params url.Values) string {
	return e.node(id) + "/" + edge + "?" + params.Encode()
}

// Feed returns the page feed URL for the first page of a crawl.
func (e *Endpoints) Feed(pageID string, limit int) string {
	params := url.Values{}
	params.Set("fields", postFields)
	params.Set("limit", strconv.Itoa(limit))
	return e.edge(pageID, "feed", params)
}

// Post returns the single-object URL used for parent post fetches.
func (e *Endpoints) Post(postID string) string {
	params := url.Values{}
	params.Set("fields", postFields)
	return e.node(postID) + "?" + params.Encode()
}

// Comments returns the comments edge URL for a post or comment.
func (e *Endpoints) Comments(objectID string, limit int) string {
	params := url.Values{}
	params.Set("fields", commentFields)
	params.Set("limit", strconv.Itoa(limit))
	return e.edge(objectID, "comments", params)
}

// Attachments returns the attachments edge URL for a post.
func (e *Endpoints) Attachments(postID string) string {
	return e.edge(postID, "attachments", url.Values{})
}

// Likes returns the likes edge URL, summary included so a single
// request yields both likers and the total count.
func (e *Endpoints) Likes(objectID string, limit int) string {
	params := url.Values{}
	params.Set("summary", "true")
	params.Set("limit", strconv.Itoa(limit))
	return e.edge(objectID, "likes", params)
}

// SharedPosts returns the sharedposts edge URL for a post.
func (e *Endpoints) SharedPosts(postID string, limit int) string {
	params := url.Values{}
	params.Set("fields", postFields)
	params.Set("limit", strconv.Itoa(limit))
	return e.edge(postID, "sharedposts", params)
}

// Page returns the page node URL for registry metadata.
func (e *Endpoints) Page(pageID string) string {
	params := url.Values{}
	params.Set("fields", pageFields)
	return e.node(pageID) + "?" + params.Encode()
}
