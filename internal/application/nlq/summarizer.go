package nlq

import (
	"context"
	"fmt"
	"strings"

	"github.com/act-admin/my-github-hub/internal/domain/ai"
	"github.com/act-admin/my-github-hub/internal/domain/query"
	"github.com/act-admin/my-github-hub/internal/infra/ai/prompt"
)

// ApologySummary is returned whenever the completion service cannot narrate.
const ApologySummary = "I apologize, but I encountered an error while processing your query. Please try again."

// Summarizer narrates a result set in natural language.
type Summarizer struct {
	Client ai.Client
}

func NewSummarizer(client ai.Client) *Summarizer {
	return &Summarizer{Client: client}
}

// Summarize always returns a displayable string. When it also returns an
// error (wrapping query.ErrSummaryUnavailable) the string is ApologySummary.
func (s *Summarizer) Summarize(ctx context.Context, in prompt.SummaryInput) (string, error) {
	if s == nil || s.Client == nil {
		return ApologySummary, fmt.Errorf("%w: no completion client", query.ErrSummaryUnavailable)
	}
	out, err := s.Client.Complete(ctx, ai.CompletionRequest{
		System:      prompt.GetSummarySystemPrompt(),
		User:        prompt.GetSummaryUserPrompt(in),
		Temperature: summaryTemp,
		MaxTokens:   summaryMaxTokens,
	})
	if err != nil {
		return ApologySummary, fmt.Errorf("%w: %w", query.ErrSummaryUnavailable, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return ApologySummary, fmt.Errorf("%w: empty completion", query.ErrSummaryUnavailable)
	}
	return out, nil
}
