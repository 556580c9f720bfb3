package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fbharvest/pkg/config"
	"fbharvest/pkg/graph"
	"fbharvest/pkg/logger"
	"fbharvest/pkg/store"
)

const tsLayout = "2006-01-02T15:04:05-0700"

func tstamp(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

// graphStub routes Graph-style paths to canned JSON. Unrouted paths
// serve an empty envelope, which is what a quiet edge looks like.
type graphStub struct {
	t      *testing.T
	routes map[string]http.HandlerFunc
	hits   map[string]int
}

func newGraphStub(t *testing.T) *graphStub {
	return &graphStub{t: t, routes: map[string]http.HandlerFunc{}, hits: map[string]int{}}
}

func (g *graphStub) route(path string, body string) {
	g.routes[path] = func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}
}

func (g *graphStub) routeFunc(path string, fn http.HandlerFunc) {
	g.routes[path] = fn
}

func (g *graphStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.hits[r.URL.Path]++
	if fn, ok := g.routes[r.URL.Path]; ok {
		fn(w, r)
		return
	}
	w.Write([]byte(`{"data": []}`))
}

func notFoundResponse(w http.ResponseWriter, objectID string) {
	w.Header().Set("WWW-Authenticate",
		fmt.Sprintf(`OAuth "Facebook Platform" "GraphMethodException" "Object with ID '%s' does not exist"`, objectID))
	w.WriteHeader(http.StatusBadRequest)
}

func testSetup(t *testing.T, stub *graphStub) (*Crawler, *store.Store, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(stub)
	t.Cleanup(server.Close)

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	pool, err := graph.NewTokenPool([]string{"tok"})
	require.NoError(t, err)
	client := graph.NewClient(graph.Options{
		Timeout:           time.Second,
		RateLimitWait:     10 * time.Millisecond,
		RateLimitSlice:    time.Millisecond,
		NetworkRetryDelay: time.Millisecond,
		UnknownRetryDelay: time.Millisecond,
	}, pool, logger.NewNop())

	cfg := config.APIConfig{
		BaseURL:          server.URL,
		APIVersion:       "v2.8",
		AggregatorPageID: "agg",
		PageLimit:        5,
		DaysDepth:        30,
		MaxPostsPerPage:  100,
	}
	return New(cfg, client, st, logger.NewNop()), st, server
}

func TestGetPostsFromPageStoresTree(t *testing.T) {
	now := time.Now()
	stub := newGraphStub(t)
	stub.route("/v2.8/page1/feed", fmt.Sprintf(`{"data": [{
		"id": "page1_p1",
		"message": "a post",
		"created_time": %q,
		"from": {"id": "u1", "name": "Author"},
		"picture": "http://img/sq.jpg",
		"full_picture": "http://img/full.jpg"
	}]}`, tstamp(now)))
	stub.route("/v2.8/page1_p1/attachments", `{"data": [{
		"type": "photo",
		"media": {"image": {"src": "http://img/a.jpg", "width": 720, "height": 540}}
	}]}`)
	stub.route("/v2.8/page1_p1/comments", fmt.Sprintf(`{"data": [{
		"id": "c1",
		"message": "first",
		"created_time": %q,
		"from": {"id": "u2", "name": "Commenter"},
		"comment_count": 1
	}]}`, tstamp(now)))
	stub.route("/v2.8/c1/comments", fmt.Sprintf(`{"data": [{
		"id": "c2",
		"message": "a reply",
		"created_time": %q,
		"from": {"id": "u2", "name": "Commenter"}
	}]}`, tstamp(now)))

	cr, st, _ := testSetup(t, stub)
	ctx := context.Background()
	require.NoError(t, cr.GetPostsFromPage(ctx, "page1"))

	for _, id := range []string{"page1_p1", "c1", "c2"} {
		exists, err := st.ObjectExists(ctx, id)
		require.NoError(t, err)
		assert.True(t, exists, "object %s should be stored", id)
	}
	for _, id := range []string{"u1", "u2"} {
		_, err := st.UserInternalID(ctx, id)
		assert.NoError(t, err, "user %s should be stored", id)
	}
	// One row for the post's picture pair, one for the attachment image.
	media, err := st.PendingMedia(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, media, 2)
}

func TestAttachmentsGoneFlagsPost(t *testing.T) {
	now := time.Now()
	stub := newGraphStub(t)
	cr, st, _ := testSetup(t, stub)
	ctx := context.Background()

	stub.route("/v2.8/page1/feed", fmt.Sprintf(`{"data": [
		{"id": "page1_p1", "created_time": %q}
	]}`, tstamp(now)))
	stub.routeFunc("/v2.8/page1_p1/attachments", func(w http.ResponseWriter, r *http.Request) {
		notFoundResponse(w, "page1_p1")
	})

	require.NoError(t, cr.GetPostsFromPage(ctx, "page1"))

	var nonExist int
	err := st.DB().QueryRow(`SELECT non_exist FROM objects WHERE external_id = 'page1_p1'`).Scan(&nonExist)
	require.NoError(t, err)
	assert.Equal(t, 1, nonExist, "a post whose attachments edge is gone no longer exists")
}

func TestGetPostsFollowsPaging(t *testing.T) {
	now := time.Now()
	stub := newGraphStub(t)
	cr, st, server := testSetup(t, stub)

	stub.route("/v2.8/page1/feed", fmt.Sprintf(`{"data": [
		{"id": "page1_p1", "created_time": %q}
	], "paging": {"next": %q}}`, tstamp(now), server.URL+"/feedpage2"))
	stub.route("/feedpage2", fmt.Sprintf(`{"data": [
		{"id": "page1_p2", "created_time": %q}
	]}`, tstamp(now.Add(-time.Hour))))

	ctx := context.Background()
	require.NoError(t, cr.GetPostsFromPage(ctx, "page1"))

	for _, id := range []string{"page1_p1", "page1_p2"} {
		exists, err := st.ObjectExists(ctx, id)
		require.NoError(t, err)
		assert.True(t, exists)
	}
}

func TestGetPostsStopsAtKnownPost(t *testing.T) {
	now := time.Now()
	stub := newGraphStub(t)
	cr, st, _ := testSetup(t, stub)
	ctx := context.Background()

	_, err := st.StoreObject(ctx, &store.Object{ExternalID: "page1_known", Kind: store.KindPost})
	require.NoError(t, err)

	stub.route("/v2.8/page1/feed", fmt.Sprintf(`{"data": [
		{"id": "page1_known", "created_time": %q},
		{"id": "page1_after", "created_time": %q}
	]}`, tstamp(now), tstamp(now.Add(-time.Hour))))

	require.NoError(t, cr.GetPostsFromPage(ctx, "page1"))

	exists, err := st.ObjectExists(ctx, "page1_after")
	require.NoError(t, err)
	assert.False(t, exists, "traversal must stop at the first known post")
}

func TestGetPostsStopsAtAgeHorizon(t *testing.T) {
	now := time.Now()
	stub := newGraphStub(t)
	cr, st, _ := testSetup(t, stub)

	stub.route("/v2.8/page1/feed", fmt.Sprintf(`{"data": [
		{"id": "page1_old", "created_time": %q}
	]}`, tstamp(now.AddDate(0, 0, -40))))

	ctx := context.Background()
	require.NoError(t, cr.GetPostsFromPage(ctx, "page1"))

	exists, err := st.ObjectExists(ctx, "page1_old")
	require.NoError(t, err)
	assert.False(t, exists, "posts past the age horizon are not stored")
}

func TestGetPostsHonorsPostCap(t *testing.T) {
	now := time.Now()
	stub := newGraphStub(t)
	cr, st, _ := testSetup(t, stub)
	cr.maxPosts = 2

	stub.route("/v2.8/page1/feed", fmt.Sprintf(`{"data": [
		{"id": "page1_p1", "created_time": %q},
		{"id": "page1_p2", "created_time": %q},
		{"id": "page1_p3", "created_time": %q}
	]}`, tstamp(now), tstamp(now), tstamp(now)))

	ctx := context.Background()
	require.NoError(t, cr.GetPostsFromPage(ctx, "page1"))

	exists, err := st.ObjectExists(ctx, "page1_p3")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGetPostsNotFoundClosesRegistryRow(t *testing.T) {
	stub := newGraphStub(t)
	cr, st, _ := testSetup(t, stub)
	ctx := context.Background()

	require.NoError(t, st.UpsertPage(ctx, "page1", "Gone Page"))
	stub.routeFunc("/v2.8/page1/feed", func(w http.ResponseWriter, r *http.Request) {
		notFoundResponse(w, "page1")
	})

	require.NoError(t, cr.GetPostsFromPage(ctx, "page1"))

	pages, err := st.EnabledPages(ctx)
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestGetPostsFollowsMigration(t *testing.T) {
	stub := newGraphStub(t)
	cr, st, _ := testSetup(t, stub)
	ctx := context.Background()

	require.NoError(t, st.UpsertPage(ctx, "111", "Old"))
	stub.routeFunc("/v2.8/111/feed", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("WWW-Authenticate",
			`OAuth "Facebook Platform" "OAuthException" "(#21) Page ID 111 was migrated to page ID 222."`)
		w.WriteHeader(http.StatusBadRequest)
	})

	require.NoError(t, cr.GetPostsFromPage(ctx, "111"))

	pages, err := st.EnabledPages(ctx)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "222", pages[0].PageID)
	assert.Greater(t, stub.hits["/v2.8/222/feed"], 0, "migrated page must be refetched")

	// The new id also lands in the objects table, like any page.
	var kind string
	err = st.DB().QueryRow(`SELECT kind FROM objects WHERE external_id = '222'`).Scan(&kind)
	require.NoError(t, err)
	assert.Equal(t, store.KindPage, kind)
}

func TestGetPagesSeedsRegistry(t *testing.T) {
	now := time.Now()
	stub := newGraphStub(t)
	cr, st, _ := testSetup(t, stub)

	stub.route("/v2.8/agg/feed", fmt.Sprintf(`{"data": [
		{"id": "agg_1", "created_time": %q, "parent_id": "333_444"},
		{"id": "agg_2", "created_time": %q, "parent_id": "333_555"}
	]}`, tstamp(now), tstamp(now)))
	stub.route("/v2.8/333", `{"id": "333", "name": "Interesting Page"}`)

	ctx := context.Background()
	require.NoError(t, cr.GetPages(ctx))

	pages, err := st.EnabledPages(ctx)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "333", pages[0].PageID)
	assert.Equal(t, "Interesting Page", pages[0].Name)

	var kind, name string
	err = st.DB().QueryRow(`SELECT kind, name FROM objects WHERE external_id = '333'`).Scan(&kind, &name)
	require.NoError(t, err)
	assert.Equal(t, store.KindPage, kind)
	assert.Equal(t, "Interesting Page", name)
}

func TestHarvestLikes(t *testing.T) {
	stub := newGraphStub(t)
	cr, st, server := testSetup(t, stub)
	ctx := context.Background()

	obj := &store.Object{ExternalID: "1_2", Kind: store.KindPost,
		Created: time.Now().UTC().AddDate(0, 0, -10)}
	_, err := st.StoreObject(ctx, obj)
	require.NoError(t, err)

	stub.route("/v2.8/1_2/likes", fmt.Sprintf(`{"data": [
		{"id": "u1", "name": "One"},
		{"id": "u2", "name": "Two"}
	], "paging": {"next": %q}}`, server.URL+"/likespage2"))
	stub.route("/likespage2", `{"data": [{"id": "u3", "name": "Three"}]}`)

	require.NoError(t, cr.HarvestLikes(ctx, "1_2"))

	n, err := st.LikeCount(ctx, obj.InternalID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Re-harvest is idempotent.
	require.NoError(t, cr.HarvestLikes(ctx, "1_2"))
	n, err = st.LikeCount(ctx, obj.InternalID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	claimed, err := st.ClaimLikesBatch(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	assert.Empty(t, claimed, "harvested object must be marked fetched")
}

func TestUpdateSharesStoresOldCopies(t *testing.T) {
	now := time.Now()
	stub := newGraphStub(t)
	cr, st, _ := testSetup(t, stub)
	ctx := context.Background()

	_, err := st.StoreObject(ctx, &store.Object{
		ExternalID: "1_2", Kind: store.KindPost, ShareCount: 1,
	})
	require.NoError(t, err)

	// The shared copy is far past the age horizon; the shares pass
	// stores it anyway.
	stub.route("/v2.8/1_2/sharedposts", fmt.Sprintf(`{"data": [
		{"id": "9_9", "created_time": %q, "message": "shared it"}
	]}`, tstamp(now.AddDate(0, 0, -100))))

	require.NoError(t, cr.UpdateShares(ctx))

	exists, err := st.ObjectExists(ctx, "9_9")
	require.NoError(t, err)
	assert.True(t, exists)

	var isCopy int
	err = st.DB().QueryRow(`SELECT is_shared_copy FROM objects WHERE external_id = '9_9'`).Scan(&isCopy)
	require.NoError(t, err)
	assert.Equal(t, 1, isCopy)

	remaining, err := st.PostsWithShares(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestUpdatePostsRefreshesCounters(t *testing.T) {
	now := time.Now()
	stub := newGraphStub(t)
	cr, st, _ := testSetup(t, stub)
	ctx := context.Background()

	created := now.AddDate(0, 0, -5)
	_, err := st.StoreObject(ctx, &store.Object{
		ExternalID: "1_2", Kind: store.KindPost, PageID: "1", Created: created.UTC(),
	})
	require.NoError(t, err)

	stub.route("/v2.8/1_2", fmt.Sprintf(`{
		"id": "1_2", "created_time": %q, "message": "refreshed", "shares": {"count": 7}
	}`, tstamp(created)))
	stub.route("/v2.8/1_2/likes", `{"data": [], "summary": {"total_count": 42}}`)

	require.NoError(t, cr.UpdatePosts(ctx))

	var likeCount, shareCount int
	var message string
	err = st.DB().QueryRow(
		`SELECT like_count, share_count, message FROM objects WHERE external_id = '1_2'`).
		Scan(&likeCount, &shareCount, &message)
	require.NoError(t, err)
	assert.Equal(t, 42, likeCount)
	assert.Equal(t, 7, shareCount)
	assert.Equal(t, "refreshed", message)
}

func TestUpdatePostsMarksGonePosts(t *testing.T) {
	stub := newGraphStub(t)
	cr, st, _ := testSetup(t, stub)
	ctx := context.Background()

	_, err := st.StoreObject(ctx, &store.Object{
		ExternalID: "1_2", Kind: store.KindPost, Created: time.Now().UTC().AddDate(0, 0, -5),
	})
	require.NoError(t, err)

	stub.routeFunc("/v2.8/1_2", func(w http.ResponseWriter, r *http.Request) {
		notFoundResponse(w, "1_2")
	})

	require.NoError(t, cr.UpdatePosts(ctx))

	var nonExist int
	err = st.DB().QueryRow(`SELECT non_exist FROM objects WHERE external_id = '1_2'`).Scan(&nonExist)
	require.NoError(t, err)
	assert.Equal(t, 1, nonExist)
}

func TestPagePart(t *testing.T) {
	assert.Equal(t, "123", pagePart("123_456"))
	assert.Equal(t, "123", pagePart("123"))
	assert.Equal(t, "", pagePart(""))
}

func TestSubattachmentsAreFlattened(t *testing.T) {
	now := time.Now()
	stub := newGraphStub(t)
	cr, st, _ := testSetup(t, stub)

	stub.route("/v2.8/page1/feed", fmt.Sprintf(`{"data": [
		{"id": "page1_p1", "created_time": %q}
	]}`, tstamp(now)))
	stub.route("/v2.8/page1_p1/attachments", `{"data": [{
		"type": "album",
		"subattachments": {"data": [
			{"type": "photo", "media": {"image": {"src": "http://img/1.jpg", "width": 10, "height": 10}}},
			{"type": "photo", "media": {"image": {"src": "http://img/2.jpg", "width": 10, "height": 10}}}
		]}
	}]}`)

	ctx := context.Background()
	require.NoError(t, cr.GetPostsFromPage(ctx, "page1"))

	media, err := st.PendingMedia(ctx, 10)
	require.NoError(t, err)
	require.Len(t, media, 2)
	srcs := []string{media[0].Src, media[1].Src}
	assert.True(t, strings.HasSuffix(srcs[0], "1.jpg") || strings.HasSuffix(srcs[1], "1.jpg"))
}
