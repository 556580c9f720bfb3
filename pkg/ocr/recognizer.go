package ocr

import (
	"image"

	"fbharvest/pkg/config"
	"fbharvest/pkg/logger"
)

// Recognizer runs the full consensus pipeline: variant battery, one
// pass per trained language, bracket selection, language arbitration.
type Recognizer struct {
	cfg     config.OCRConfig
	langs   []string
	engines map[string]Engine
	dict    *Dictionary
	log     logger.Logger
}

// NewRecognizer wires engines keyed by language. The language order of
// cfg.Languages decides arbitration order for deterministic ties.
func NewRecognizer(cfg config.OCRConfig, engines map[string]Engine, dict *Dictionary, log logger.Logger) *Recognizer {
	if log == nil {
		log = logger.GetLogger()
	}
	langs := make([]string, 0, len(cfg.Languages))
	for _, l := range cfg.Languages {
		if _, ok := engines[l]; ok {
			langs = append(langs, l)
		}
	}
	return &Recognizer{
		cfg:     cfg,
		langs:   langs,
		engines: engines,
		dict:    dict,
		log:     log,
	}
}

// Recognize returns the consensus text and vocabulary for one image.
// Empty text with nil error means the image carried no readable words,
// which is a final answer, not a failure.
func (r *Recognizer) Recognize(img image.Image) (string, []string, error) {
	variants := BuildVariants(img, r.cfg.EnlargeFactor, uint8(r.cfg.Threshold))

	var combined *Outcome
	for _, lang := range r.langs {
		outcome, err := r.runLanguage(lang, variants)
		if err != nil {
			return "", nil, err
		}
		if outcome == nil {
			continue
		}
		if combined == nil {
			combined = outcome
		} else {
			merged := chooseOutcome(*combined, *outcome)
			combined = &merged
		}
	}
	if combined == nil {
		return "", nil, nil
	}
	return combined.Text, combined.Vocabulary, nil
}

func (r *Recognizer) runLanguage(lang string, variants []image.Image) (*Outcome, error) {
	engine := r.engines[lang]

	var readings []Reading
	for _, v := range variants {
		words, err := engine.Recognize(v)
		if err != nil {
			return nil, err
		}
		if reading, ok := filterReading(words, r.dict, r.cfg.MinConfidence); ok {
			readings = append(readings, reading)
		}
	}
	if len(readings) == 0 {
		return nil, nil
	}
	outcome := consensus(readings, r.cfg.BracketWidth, r.cfg.BracketClip)
	outcome.MaxAvgConfidence, outcome.AvgDictRatio = languageMetrics(readings)
	r.log.DebugWithFields("language pass complete", map[string]interface{}{
		"language": lang,
		"readings": len(readings),
		"words":    len(outcome.Vocabulary),
	})
	return &outcome, nil
}

// Close releases all engines.
func (r *Recognizer) Close() error {
	var firstErr error
	for _, e := range r.engines {
		if err := e.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
