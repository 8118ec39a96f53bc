package prompt

import (
	"encoding/json"
	"fmt"

	"github.com/act-admin/my-github-hub/internal/domain/query"
)

// SampleRows is how many result rows are shown to the summarizer.
const SampleRows = 10

// SQLStatus explains why a generated statement has no rows to summarize.
type SQLStatus string

const (
	SQLStatusNone        SQLStatus = ""
	SQLStatusEmpty       SQLStatus = "empty"
	SQLStatusPending     SQLStatus = "pending"
	SQLStatusUnavailable SQLStatus = "unavailable"
)

// SummaryInput is everything the summary prompt may mention.
type SummaryInput struct {
	Query  string
	SQL    string
	Rows   []query.Record
	Status SQLStatus
}

// GetSummarySystemPrompt returns the assistant persona used for narration.
func GetSummarySystemPrompt() string {
	return `You are an intelligent financial and data analytics assistant for SCODAC.

Your capabilities include:
- Answering questions about financial data and analytics
- Providing insights on accounts payable and receivable
- Explaining financial metrics and trends
- Summarizing query results in a clear, actionable way

When responding:
- Be concise but informative
- Use **bold** for important terms and numbers
- Format numbers with appropriate separators (e.g., $1,234,567.89)
- Provide actionable insights when possible
- If data was retrieved, summarize the key findings`
}

// GetSummaryUserPrompt picks the user message for the summary call.
func GetSummaryUserPrompt(in SummaryInput) string {
	if len(in.Rows) > 0 {
		sample := in.Rows
		if len(sample) > SampleRows {
			sample = sample[:SampleRows]
		}
		data, err := json.MarshalIndent(sample, "", "  ")
		if err != nil {
			data = []byte("[]")
		}
		return fmt.Sprintf("User query: %s\n\nData retrieved (%d rows):\n%s\n\nPlease summarize these results for the user.",
			in.Query, len(in.Rows), data)
	}

	if in.SQL == "" {
		return in.Query
	}

	switch in.Status {
	case SQLStatusEmpty:
		return fmt.Sprintf("User query: %s\n\nI ran this SQL query: %s\n\nThe query completed but returned no rows. "+
			"Please tell the user that no matching data was found and explain what the query was looking for.",
			in.Query, in.SQL)
	case SQLStatusPending:
		return fmt.Sprintf("User query: %s\n\nI generated this SQL query: %s\n\nThe data warehouse is still running it and the results were not ready in time. "+
			"Please explain what data this query will retrieve and how it would answer the user's question.",
			in.Query, in.SQL)
	default:
		return fmt.Sprintf("User query: %s\n\nI generated this SQL query: %s\n\nHowever, I couldn't connect to the database at this time. "+
			"Please explain what data this query would retrieve and how it would answer the user's question.",
			in.Query, in.SQL)
	}
}
