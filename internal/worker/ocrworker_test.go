package worker

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fbharvest/pkg/logger"
	"fbharvest/pkg/ocr"
	"fbharvest/pkg/store"
)

type stubEngine struct {
	words []ocr.Word
}

func (s *stubEngine) Recognize(img image.Image) ([]ocr.Word, error) { return s.words, nil }
func (s *stubEngine) Close() error                                  { return nil }

func pngPayload(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 8, 8))))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestRecognizeOnePersistsConsensus(t *testing.T) {
	m, st := testManager(t)
	ctx := context.Background()

	words := []ocr.Word{
		{Text: "some", Confidence: 90},
		{Text: "caption", Confidence: 90},
		{Text: "text", Confidence: 90},
		{Text: "here", Confidence: 90},
	}
	dict, err := ocr.LoadDictionary("")
	require.NoError(t, err)
	m.rec = ocr.NewRecognizer(m.cfg.OCR, map[string]ocr.Engine{
		"eng": &stubEngine{words: words},
		"joh": &stubEngine{words: words},
	}, dict, logger.NewNop())

	media := &store.Media{OwnerID: "1_2", Src: "http://img/x.jpg"}
	_, err = st.StoreMedia(ctx, media)
	require.NoError(t, err)
	require.NoError(t, st.MarkMediaLoaded(ctx, media.InternalID, pngPayload(t), "png", "", ""))

	claimed, err := st.ClaimOCRBatch(ctx, "ocr-0", 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	m.recognizeOne(ctx, "ocr-0", claimed[0], logger.NewNop())

	var text, vocab string
	err = st.DB().QueryRow(`SELECT ocr_text, ocr_vocabulary FROM media WHERE id = ?`, media.InternalID).Scan(&text, &vocab)
	require.NoError(t, err)
	assert.Equal(t, "some caption text here", text)
	assert.Contains(t, vocab, "caption")

	// The marker is cleared and the row finished.
	_, found, err := m.marks.ReadSlot("ocr-0")
	require.NoError(t, err)
	assert.False(t, found)

	backlog, err := st.OCRBacklog(ctx)
	require.NoError(t, err)
	assert.Zero(t, backlog)
}

func TestRecognizeOneAlbumPrefersFullForSquareThumb(t *testing.T) {
	m, st := testManager(t)
	ctx := context.Background()

	words := []ocr.Word{
		{Text: "poster", Confidence: 90},
		{Text: "text", Confidence: 90},
		{Text: "goes", Confidence: 90},
		{Text: "here", Confidence: 90},
	}
	dict, err := ocr.LoadDictionary("")
	require.NoError(t, err)
	m.rec = ocr.NewRecognizer(m.cfg.OCR, map[string]ocr.Engine{
		"eng": &stubEngine{words: words},
		"joh": &stubEngine{words: words},
	}, dict, logger.NewNop())

	// Two images on one post make an album, and the square-cropped
	// source marks the primary payload as a thumbnail. Only the full
	// payload decodes, so a readable outcome proves it was the one
	// recognized.
	first := &store.Media{OwnerID: "1_2", Src: "http://img/s130x130/x.jpg"}
	_, err = st.StoreMedia(ctx, first)
	require.NoError(t, err)
	second := &store.Media{OwnerID: "1_2", Src: "http://img/s130x130/y.jpg"}
	_, err = st.StoreMedia(ctx, second)
	require.NoError(t, err)

	garbage := base64.StdEncoding.EncodeToString([]byte("not an image"))
	require.NoError(t, st.MarkMediaLoaded(ctx, first.InternalID, garbage, "jpg", pngPayload(t), "png"))

	claimed, err := st.ClaimOCRBatch(ctx, "ocr-0", 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	m.recognizeOne(ctx, "ocr-0", claimed[0], logger.NewNop())

	var text string
	err = st.DB().QueryRow(`SELECT ocr_text FROM media WHERE id = ?`, first.InternalID).Scan(&text)
	require.NoError(t, err)
	assert.Equal(t, "poster text goes here", text)
}

func TestRecognizeOneUndecodablePayloadFinishesEmpty(t *testing.T) {
	m, st := testManager(t)
	ctx := context.Background()

	dict, err := ocr.LoadDictionary("")
	require.NoError(t, err)
	m.rec = ocr.NewRecognizer(m.cfg.OCR, map[string]ocr.Engine{
		"eng": &stubEngine{}, "joh": &stubEngine{},
	}, dict, logger.NewNop())

	media := &store.Media{OwnerID: "1_2", Src: "http://img/x.jpg"}
	_, err = st.StoreMedia(ctx, media)
	require.NoError(t, err)
	require.NoError(t, st.MarkMediaLoaded(ctx, media.InternalID,
		base64.StdEncoding.EncodeToString([]byte("not an image")), "jpg", "", ""))

	claimed, err := st.ClaimOCRBatch(ctx, "ocr-0", 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	m.recognizeOne(ctx, "ocr-0", claimed[0], logger.NewNop())

	var done int
	var text *string
	err = st.DB().QueryRow(`SELECT ocr_done, ocr_text FROM media WHERE id = ?`, media.InternalID).Scan(&done, &text)
	require.NoError(t, err)
	assert.Equal(t, 1, done)
	assert.Nil(t, text, "unreadable image finishes with empty text")
}
