package ocr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func emptyDict() *Dictionary {
	d, _ := LoadDictionary("")
	return d
}

func dictOf(words ...string) *Dictionary {
	d := emptyDict()
	for _, w := range words {
		d.words[strings.ToLower(w)] = struct{}{}
	}
	return d
}

func TestTokenPatterns(t *testing.T) {
	qualifying := []string{"word", "Word", "don't", "isn’t", "hello.", "yes,", "what?!",
		"42", "3.14", "12:30", "1,000", "100."}
	for _, tok := range qualifying {
		assert.True(t,
			alphaTokenRe.MatchString(tok) || numericTokenRe.MatchString(tok),
			"%q should qualify", tok)
	}

	rejected := []string{"", "a1b", "--", "wo$rd", "12a", "...", "'word", "a b"}
	for _, tok := range rejected {
		assert.False(t,
			alphaTokenRe.MatchString(tok) || numericTokenRe.MatchString(tok),
			"%q should not qualify", tok)
	}
}

func TestFilterReadingRequiresSubstance(t *testing.T) {
	mk := func(conf float64, texts ...string) []Word {
		var out []Word
		for _, s := range texts {
			out = append(out, Word{Text: s, Confidence: conf})
		}
		return out
	}

	// Too little raw text.
	_, ok := filterReading(mk(90, "hi", "yo"), emptyDict(), 75)
	assert.False(t, ok)

	// Enough text but not enough qualifying words.
	_, ok = filterReading(mk(90, "@@@@@@", "######", "one", "two"), emptyDict(), 75)
	assert.False(t, ok)

	// Under the confidence floor.
	_, ok = filterReading(mk(50, "alpha", "bravo", "charlie", "delta"), emptyDict(), 75)
	assert.False(t, ok)

	r, ok := filterReading(mk(90, "alpha", "bravo", "charlie", "delta"), emptyDict(), 75)
	require.True(t, ok)
	assert.Equal(t, "alpha bravo charlie delta", r.Text())
	assert.InDelta(t, 90, r.AvgConfidence, 0.01)
}

func TestFilterReadingNormalizesLigatures(t *testing.T) {
	words := []Word{
		{Text: "ﬁre", Confidence: 90},
		{Text: "oﬃce", Confidence: 90},
		{Text: "plain", Confidence: 90},
		{Text: "words", Confidence: 90},
	}
	r, ok := filterReading(words, emptyDict(), 75)
	require.True(t, ok)
	assert.Contains(t, r.Words, "fire")
	assert.Contains(t, r.Words, "office")
}

func TestFilterReadingDictRatio(t *testing.T) {
	words := []Word{
		{Text: "known.", Confidence: 90},
		{Text: "known,", Confidence: 90},
		{Text: "qqqzzz", Confidence: 90},
		{Text: "wwwxxx", Confidence: 90},
	}
	r, ok := filterReading(words, dictOf("known"), 75)
	require.True(t, ok)
	assert.InDelta(t, 0.5, r.DictRatio, 0.01)
}

func TestFilterReadingDictRatioIgnoresShortWords(t *testing.T) {
	words := []Word{
		{Text: "at", Confidence: 90},
		{Text: "is", Confidence: 90},
		{Text: "known", Confidence: 90},
		{Text: "qqqzzz", Confidence: 90},
	}
	// "at" and "is" are dictionary words but too short to count toward
	// the ratio in either direction.
	r, ok := filterReading(words, dictOf("at", "is", "known"), 75)
	require.True(t, ok)
	assert.InDelta(t, 0.5, r.DictRatio, 0.01)
}

func TestBracketBounds(t *testing.T) {
	lo, hi := bracketBounds(10, 6, 2)
	assert.Equal(t, 2, lo)
	assert.Equal(t, 7, hi)

	// Fewer readings than the bracket: bumpers clamp to the slice.
	lo, hi = bracketBounds(3, 6, 2)
	assert.Equal(t, 0, lo)
	assert.Equal(t, 0, hi)

	lo, hi = bracketBounds(1, 6, 2)
	assert.Equal(t, 0, lo)
	assert.Equal(t, 0, hi)

	lo, hi = bracketBounds(8, 6, 2)
	assert.Equal(t, 0, lo)
	assert.Equal(t, 5, hi)
}

func TestConsensusPicksMostWordsInBracket(t *testing.T) {
	mk := func(conf float64, words ...string) Reading {
		return Reading{Words: words, AvgConfidence: conf}
	}
	readings := []Reading{
		mk(60, "low", "conf", "reading", "here"),
		mk(70, "mid", "conf"),
		mk(80, "the", "winning", "reading", "has", "most", "words"),
		mk(85, "shorter", "reading"),
		// Top entry is clipped as overconfident.
		mk(99, "hallucinated", "noise", "from", "a", "dense", "variant", "extra"),
	}
	out := consensus(readings, 3, 1)

	assert.Equal(t, "the winning reading has most words", out.Text)
	assert.NotContains(t, out.Vocabulary, "hallucinated")
	assert.Contains(t, out.Vocabulary, "winning")
	assert.Contains(t, out.Vocabulary, "shorter")
}

func TestConsensusVocabularyStripsTrailingPunctuation(t *testing.T) {
	readings := []Reading{
		{Words: []string{"Hello,", "world.", "again?", "ok"}, AvgConfidence: 80},
	}
	out := consensus(readings, 6, 2)
	assert.ElementsMatch(t, []string{"hello", "world", "again", "ok"}, out.Vocabulary)
}

func TestConsensusEmpty(t *testing.T) {
	out := consensus(nil, 6, 2)
	assert.Empty(t, out.Text)
	assert.Empty(t, out.Vocabulary)
}

func TestLanguageMetricsCoverAllReadings(t *testing.T) {
	readings := []Reading{
		{AvgConfidence: 60, DictRatio: 1.0},
		{AvgConfidence: 80, DictRatio: 0.5},
		// Clipped out of any selection bracket, still counted here.
		{AvgConfidence: 99, DictRatio: 0.0},
	}
	maxAvg, avgDict := languageMetrics(readings)
	assert.InDelta(t, 99, maxAvg, 0.001)
	assert.InDelta(t, 0.5, avgDict, 0.001)

	maxAvg, avgDict = languageMetrics(nil)
	assert.Zero(t, maxAvg)
	assert.Zero(t, avgDict)
}

func TestChooseOutcomeStrictWinner(t *testing.T) {
	a := Outcome{Text: "short", Vocabulary: []string{"short"}, MaxAvgConfidence: 95, AvgDictRatio: 0.9}
	b := Outcome{Text: "a much longer text", Vocabulary: []string{"longer"}, MaxAvgConfidence: 80, AvgDictRatio: 0.5}

	// a is strictly better on both axes; length does not matter.
	assert.Equal(t, a, chooseOutcome(a, b))
	assert.Equal(t, a, chooseOutcome(b, a))
}

func TestChooseOutcomeMergesOnSplitVerdict(t *testing.T) {
	a := Outcome{Text: "short", Vocabulary: []string{"alpha"}, MaxAvgConfidence: 95, AvgDictRatio: 0.2}
	b := Outcome{Text: "a longer text wins", Vocabulary: []string{"beta"}, MaxAvgConfidence: 80, AvgDictRatio: 0.9}

	out := chooseOutcome(a, b)
	assert.Equal(t, "a longer text wins", out.Text)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, out.Vocabulary)
}
