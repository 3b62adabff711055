package worker

import (
	"context"
	"crypto/sha256"
	"fmt"
)

// Enricher is the opaque AI enrichment step. The pipeline treats it as an
// external collaborator: it is invoked only after the quota check passes,
// and its token usage is reported back for accounting.
type Enricher interface {
	// ScoreSentiment rates a piece of journal text in [-1, 1].
	ScoreSentiment(ctx context.Context, content string) (score float64, tokensUsed int, err error)
	// Narrate turns a rule-engine score into a human-readable insight title
	// and summary.
	Narrate(ctx context.Context, subject string, score float64) (title, summary string, tokensUsed int, err error)
	// Embed produces the vector for a piece of source text.
	Embed(ctx context.Context, text string) (vector []float32, tokensUsed int, err error)
}

// StubEnricher is a deterministic Enricher for tests and local runs: every
// output is a pure function of its input text.
type StubEnricher struct {
	Dimensions int
}

func NewStubEnricher() *StubEnricher {
	return &StubEnricher{Dimensions: 8}
}

func (e *StubEnricher) ScoreSentiment(ctx context.Context, content string) (float64, int, error) {
	if content == "" {
		return 0, 0, fmt.Errorf("empty content")
	}
	sum := sha256.Sum256([]byte(content))
	// Map the first hash byte onto [-1, 1].
	score := float64(sum[0])/127.5 - 1
	return score, len(content) / 4, nil
}

func (e *StubEnricher) Narrate(ctx context.Context, subject string, score float64) (string, string, int, error) {
	title := fmt.Sprintf("Insight: %s", subject)
	summary := fmt.Sprintf("%s scored %.2f against your active rules.", subject, score)
	return title, summary, (len(title) + len(summary)) / 4, nil
}

func (e *StubEnricher) Embed(ctx context.Context, text string) ([]float32, int, error) {
	if text == "" {
		return nil, 0, fmt.Errorf("empty text")
	}
	dims := e.Dimensions
	if dims <= 0 {
		dims = 8
	}
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, dims)
	for i := 0; i < dims; i++ {
		vec[i] = float32(sum[i%len(sum)])/255.0 - 0.5
	}
	return vec, len(text) / 4, nil
}
