package ocr

import "strings"

// Engines occasionally emit typographic ligatures for letter pairs;
// tokens are normalized to plain ASCII sequences before filtering.
var ligatures = strings.NewReplacer(
	"ﬀ", "ff",
	"ﬁ", "fi",
	"ﬂ", "fl",
	"ﬃ", "ffi",
	"ﬄ", "ffl",
	"ﬅ", "ft",
	"ﬆ", "st",
	"Æ", "AE",
	"æ", "ae",
	"Œ", "OE",
	"œ", "oe",
	"Ĳ", "IJ",
	"ĳ", "ij",
)

func normalizeLigatures(s string) string {
	return ligatures.Replace(s)
}
