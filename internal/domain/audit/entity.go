package audit

import (
	"fmt"
	"time"
)

// EntryPoint identifies which endpoint produced the entry.
type EntryPoint string

const (
	EntryQuery EntryPoint = "query"
	EntrySQL   EntryPoint = "sql"
)

// Outcome enum
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeDegraded Outcome = "degraded"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// Entry is one write-only audit record per gateway request. It never holds
// credentials or result rows.
type Entry struct {
	ID         string     `json:"id"`
	RequestID  string     `json:"request_id,omitempty"`
	Tenant     string     `json:"tenant"`
	EntryPoint EntryPoint `json:"entry_point"`
	Intent     string     `json:"intent"`
	Query      string     `json:"query"`
	SQL        string     `json:"sql,omitempty"`
	Outcome    Outcome    `json:"outcome"`
	RowCount   int        `json:"row_count"`
	Degraded   string     `json:"degraded,omitempty"`
	Error      string     `json:"error,omitempty"`
	DurationMS int64      `json:"duration_ms"`
	ArchiveURL string     `json:"archive_url,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Snapshot is the archived view of a response. Result rows and the
// generated summary stay out of it; only the shape of the result is kept.
type Snapshot struct {
	Query     string   `json:"query"`
	Message   string   `json:"message"`
	SQL       string   `json:"sql,omitempty"`
	Columns   []string `json:"columns"`
	RowCount  int      `json:"row_count"`
	Dashboard string   `json:"dashboard,omitempty"`
	Degraded  string   `json:"degraded,omitempty"`
}

// ArchiveKey returns the object key of the entry's response snapshot:
// <tenant>/<yyyy>/<mm>/<dd>/<id>.json
func ArchiveKey(e *Entry) string {
	tenant := e.Tenant
	if tenant == "" {
		tenant = "default"
	}
	t := e.CreatedAt.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s.json", tenant, t.Year(), int(t.Month()), t.Day(), e.ID)
}
