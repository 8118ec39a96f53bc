package nlq

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/act-admin/my-github-hub/internal/domain/ai"
	"github.com/act-admin/my-github-hub/internal/infra/ai/prompt"
)

const (
	sqlMaxTokens     = 500
	summaryMaxTokens = 1000
	sqlTemperature   = 0
	summaryTemp      = 0.7
)

// ErrNoCandidate means the completion service answered with no SQL text.
var ErrNoCandidate = errors.New("completion returned no sql")

// Candidate is model output that has not been validated. It must go through
// sqlguard before anything executes it.
type Candidate struct {
	SQL string
	Raw string
}

var fenceRe = regexp.MustCompile("(?i)```(?:sql)?[ \\t]*\\r?\\n?")

// StripFences removes markdown code fences around generated SQL.
func StripFences(s string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(strings.TrimSpace(s), ""))
}

// Synthesizer turns a question into candidate SQL.
type Synthesizer struct {
	Client ai.Client
	Schema prompt.Schema
}

func NewSynthesizer(client ai.Client, schema prompt.Schema) *Synthesizer {
	return &Synthesizer{Client: client, Schema: schema}
}

func (s *Synthesizer) Synthesize(ctx context.Context, question string) (Candidate, error) {
	if s == nil || s.Client == nil {
		return Candidate{}, fmt.Errorf("synthesize: %w", ErrNoCandidate)
	}
	raw, err := s.Client.Complete(ctx, ai.CompletionRequest{
		System:      prompt.GetSQLSystemPrompt(s.Schema),
		User:        prompt.GetSQLUserPrompt(question),
		Temperature: sqlTemperature,
		MaxTokens:   sqlMaxTokens,
	})
	if err != nil {
		return Candidate{}, fmt.Errorf("synthesize: %w", err)
	}
	sql := StripFences(raw)
	if sql == "" {
		return Candidate{Raw: raw}, ErrNoCandidate
	}
	return Candidate{SQL: sql, Raw: raw}, nil
}
