package ocr

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"regexp"
	"strconv"

	"github.com/disintegration/imaging"
)

// Size hints encoded in media source URLs: query-style dimensions and
// path-style thumbnail size tags.
var (
	queryDimsRe = regexp.MustCompile(`w=(\d+)&h=(\d+)`)
	pathDimsRe  = regexp.MustCompile(`/[ps](\d+)x(\d+)/`)
)

// squareHinted reports whether the URL carries a size hint with equal
// dimensions, the signature of a square thumbnail crop.
func squareHinted(url string) bool {
	for _, re := range []*regexp.Regexp{queryDimsRe, pathDimsRe} {
		if m := re.FindStringSubmatch(url); m != nil {
			w, _ := strconv.Atoi(m[1])
			h, _ := strconv.Atoi(m[2])
			return w == h
		}
	}
	return false
}

// SelectPayload picks which stored payload to recognize. A lone
// attachment always gets the full-resolution payload. With several
// attachments the plain payload is the safe default; the full one is
// trusted only when the source URL names a square thumbnail crop,
// since a crop cuts off text the full image still carries.
func SelectPayload(attachmentCount int, src, payload, payloadFull string) string {
	if attachmentCount < 2 {
		if payloadFull != "" {
			return payloadFull
		}
		return payload
	}
	if payloadFull != "" && squareHinted(src) {
		return payloadFull
	}
	return payload
}

// DecodePayload turns a stored base64 payload back into an image.
func DecodePayload(payload string) (image.Image, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}
