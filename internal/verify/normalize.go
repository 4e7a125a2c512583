// Package verify turns raw zero-shot classifier output into a verdict for
// one declared category.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — why the scores are reshaped
// ────────────────────────────────────────────────────────────────────
// A zero-shot image model spreads probability over every candidate label,
// so even a perfect photo of a bicycle rarely scores above ~0.3 once a
// dozen prompts compete. Normalize blends the best positive prompt with
// the average of all positive prompts, penalises strong hits on the
// category's negative prompts (a laptop photographed for "transport"),
// and rescales the remaining band into a 0..1 confidence and a 0..100
// aiScore the rest of the engine reasons about.
package verify

import (
	"math"
	"strings"
)

// Source records where a verdict came from.
type Source string

const (
	SourceClassifier Source = "classifier"
	SourceFallback   Source = "fallback"
	SourceNone       Source = "none"
)

// Labels used in verdicts that were not produced by the classifier.
const (
	LabelUnavailable = "classifier_unavailable"
	LabelNoImage     = "no_ai_verification"
)

// Prediction is the raw score of one positive prompt.
type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Verdict is the trust decision for one submission.
type Verdict struct {
	Category    string       `json:"category"`
	Confidence  float64      `json:"confidence"`
	Matches     bool         `json:"matches"`
	Label       string       `json:"label"`
	AIScore     int          `json:"aiScore"`
	Adjusted    float64      `json:"adjusted"`
	Predictions []Prediction `json:"predictions,omitempty"`
	Source      Source       `json:"source"`
}

// HasVerdict reports whether the classifier actually judged the image.
func (v Verdict) HasVerdict() bool { return v.Source == SourceClassifier }

// FallbackVerdict is used when the classifier failed or timed out.
func FallbackVerdict(category string) Verdict {
	return Verdict{
		Category:   strings.ToLower(category),
		Confidence: 0.3,
		AIScore:    30,
		Label:      LabelUnavailable,
		Source:     SourceFallback,
	}
}

// NoImageVerdict is used when the submission carried no image.
func NoImageVerdict(category string) Verdict {
	return Verdict{
		Category:   strings.ToLower(category),
		Confidence: 0.3,
		AIScore:    20,
		Label:      LabelNoImage,
		Source:     SourceNone,
	}
}

// Normalize computes the verdict for category from per-label scores.
// Labels missing from scores count as 0. It never calls out and never
// fails except for an unknown category.
func Normalize(c *Catalog, category string, scores map[string]float64) (Verdict, error) {
	p, ok := c.Prompts(category)
	if !ok {
		return Verdict{}, ErrUnknownCategory
	}

	preds := make([]Prediction, len(p.Positive))
	var maxPos, sumPos float64
	best := 0
	for i, label := range p.Positive {
		s := scores[label]
		preds[i] = Prediction{Label: label, Score: s}
		sumPos += s
		if s > maxPos {
			maxPos = s
			best = i
		}
	}
	avgPos := sumPos / float64(len(p.Positive))

	var maxNeg float64
	for _, label := range p.Negative {
		maxNeg = math.Max(maxNeg, scores[label])
	}

	combined := 0.7*maxPos + 0.3*avgPos
	adjusted := combined
	if maxNeg > 0.3 {
		adjusted = combined * (1 - maxNeg*0.6)
	}

	matches := adjusted > 0.15 && maxNeg < 0.4
	confidence := clamp01((adjusted - 0.05) / 0.45)
	if !matches {
		confidence *= 0.4
	}

	var aiScore int
	if matches {
		aiScore = int(math.Round(math.Max(50, confidence*100)))
	} else {
		aiScore = int(math.Round(confidence * 40))
	}

	return Verdict{
		Category:    strings.ToLower(strings.TrimSpace(category)),
		Confidence:  confidence,
		Matches:     matches,
		Label:       p.Positive[best],
		AIScore:     aiScore,
		Adjusted:    adjusted,
		Predictions: preds,
		Source:      SourceClassifier,
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
