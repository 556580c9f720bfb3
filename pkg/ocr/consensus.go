package ocr

import (
	"regexp"
	"sort"
	"strings"
)

// Token shapes that count as readable words: alphabetic runs with an
// optional inner apostrophe, or numeric runs with an optional inner
// separator, either followed by trailing punctuation.
var (
	alphaTokenRe   = regexp.MustCompile(`^([a-zA-Z]+['’][a-zA-Z]+|[a-zA-Z]+)[.,;:?!]*$`)
	numericTokenRe = regexp.MustCompile(`^([0-9]+[:,.][0-9]+|[0-9]+)[.,;:?!]*$`)
)

const (
	minRawChars  = 10
	minWordCount = 3
)

// Reading is one variant's filtered recognition result.
type Reading struct {
	Words         []string
	AvgConfidence float64
	DictRatio     float64
}

func (r Reading) Text() string {
	return strings.Join(r.Words, " ")
}

// filterReading reduces a raw word list to its qualifying tokens and
// decides whether the variant produced a usable reading at all: enough
// raw text, enough qualifying words, confident enough on average.
func filterReading(words []Word, dict *Dictionary, minConfidence float64) (Reading, bool) {
	var (
		rawLen    int
		r         Reading
		confSum   float64
		dictHits  int
		longWords int
	)
	for _, w := range words {
		token := normalizeLigatures(strings.TrimSpace(w.Text))
		if token == "" {
			continue
		}
		rawLen += len(token)
		if !alphaTokenRe.MatchString(token) && !numericTokenRe.MatchString(token) {
			continue
		}
		r.Words = append(r.Words, token)
		confSum += w.Confidence
		// Short words are too easy to hallucinate to count toward the
		// dictionary ratio.
		if len(token) > 2 {
			longWords++
			if dict.Contains(stripTrailingPunct(token)) {
				dictHits++
			}
		}
	}
	if rawLen <= minRawChars || len(r.Words) <= minWordCount {
		return Reading{}, false
	}
	r.AvgConfidence = confSum / float64(len(r.Words))
	if r.AvgConfidence < minConfidence {
		return Reading{}, false
	}
	if longWords > 0 {
		r.DictRatio = float64(dictHits) / float64(longWords)
	}
	return r, true
}

func stripTrailingPunct(s string) string {
	return strings.TrimRight(s, ".,;:?!")
}

// bracketBounds computes the sorted-slice index window the consensus
// considers: width entries ending clip entries short of the top, with
// bumpers for short slices.
func bracketBounds(n, width, clip int) (lo, hi int) {
	lo = n - clip - width
	hi = n - 1 - clip
	if lo < 0 {
		lo = 0
	}
	if hi < lo {
		hi = lo
	}
	if hi >= n {
		hi = n - 1
	}
	return lo, hi
}

// Outcome is one language's consensus over all variants.
type Outcome struct {
	Text       string
	Vocabulary []string

	// Arbitration metrics, computed over every surviving reading of
	// the language pass, not just the selection bracket.
	MaxAvgConfidence float64
	AvgDictRatio     float64
}

// consensus sorts readings by average confidence and looks at a bracket
// near the top: the very best readings are often overconfident
// hallucinations of dense variants, so the top clip entries are skipped.
// The bracket entry with the most words supplies the text; the
// vocabulary is the union of all bracket entries' words.
func consensus(readings []Reading, width, clip int) Outcome {
	if len(readings) == 0 {
		return Outcome{}
	}
	sorted := make([]Reading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].AvgConfidence < sorted[j].AvgConfidence
	})

	lo, hi := bracketBounds(len(sorted), width, clip)

	best := sorted[lo]
	vocabSet := make(map[string]struct{})
	for i := lo; i <= hi; i++ {
		r := sorted[i]
		if len(r.Words) > len(best.Words) {
			best = r
		}
		for _, w := range r.Words {
			vocabSet[strings.ToLower(stripTrailingPunct(w))] = struct{}{}
		}
	}

	vocab := make([]string, 0, len(vocabSet))
	for w := range vocabSet {
		vocab = append(vocab, w)
	}
	sort.Strings(vocab)

	return Outcome{Text: best.Text(), Vocabulary: vocab}
}

// languageMetrics summarizes a language pass for cross-language
// arbitration: the best per-variant average confidence and the mean
// dictionary ratio, over every surviving reading.
func languageMetrics(readings []Reading) (maxAvgConfidence, avgDictRatio float64) {
	if len(readings) == 0 {
		return 0, 0
	}
	var dictSum float64
	for _, r := range readings {
		if r.AvgConfidence > maxAvgConfidence {
			maxAvgConfidence = r.AvgConfidence
		}
		dictSum += r.DictRatio
	}
	return maxAvgConfidence, dictSum / float64(len(readings))
}

// chooseOutcome arbitrates between two languages' consensus. A language
// wins outright only when strictly better on both best average
// confidence and dictionary ratio; otherwise the longer text is kept
// and the vocabularies merged.
func chooseOutcome(a, b Outcome) Outcome {
	if a.MaxAvgConfidence > b.MaxAvgConfidence && a.AvgDictRatio > b.AvgDictRatio {
		return a
	}
	if b.MaxAvgConfidence > a.MaxAvgConfidence && b.AvgDictRatio > a.AvgDictRatio {
		return b
	}

	merged := a
	if len(b.Text) > len(a.Text) {
		merged = b
	}
	vocabSet := make(map[string]struct{}, len(a.Vocabulary)+len(b.Vocabulary))
	for _, w := range a.Vocabulary {
		vocabSet[w] = struct{}{}
	}
	for _, w := range b.Vocabulary {
		vocabSet[w] = struct{}{}
	}
	vocab := make([]string, 0, len(vocabSet))
	for w := range vocabSet {
		vocab = append(vocab, w)
	}
	sort.Strings(vocab)
	merged.Vocabulary = vocab
	return merged
}
