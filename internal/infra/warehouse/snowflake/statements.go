package snowflake

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxBodyBytes   = 10 << 20
	maxDetailRunes = 512
	redacted       = "[REDACTED]"
)

// State of one execution. Terminal states are SyncComplete, PollComplete,
// PollTimeout, Aborted and Failed; the first two move on to Normalized.
type State int

const (
	StateStart State = iota
	StateAuthenticated
	StateSubmitted
	StateSyncComplete
	StateAsyncPending
	StatePolling
	StatePollComplete
	StatePollTimeout
	StateAborted
	StateNormalized
	StateFailed
)

var stateNames = [...]string{
	StateStart:         "start",
	StateAuthenticated: "authenticated",
	StateSubmitted:     "submitted",
	StateSyncComplete:  "sync_complete",
	StateAsyncPending:  "async_pending",
	StatePolling:       "polling",
	StatePollComplete:  "poll_complete",
	StatePollTimeout:   "poll_timeout",
	StateAborted:       "aborted",
	StateNormalized:    "normalized",
	StateFailed:        "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Handle identifies an asynchronous statement while it is polled.
type Handle struct {
	ID        string
	StatusURL string
}

// statementRequest is the SQL API v2 submit body.
type statementRequest struct {
	Statement string `json:"statement"`
	Timeout   int    `json:"timeout"`
	Database  string `json:"database,omitempty"`
	Schema    string `json:"schema,omitempty"`
	Warehouse string `json:"warehouse,omitempty"`
	Role      string `json:"role,omitempty"`
}

type rowType struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// statementResponse covers the 200 (result), 202 (pending) and error shapes
// of the SQL API v2.
type statementResponse struct {
	ResultSetMetaData *struct {
		NumRows int64     `json:"numRows"`
		Format  string    `json:"format"`
		RowType []rowType `json:"rowType"`
	} `json:"resultSetMetaData"`
	Data               [][]any `json:"data"`
	Code               string  `json:"code"`
	Message            string  `json:"message"`
	StatementHandle    string  `json:"statementHandle"`
	StatementStatusURL string  `json:"statementStatusUrl"`
}

func (r statementResponse) columns() []string {
	if r.ResultSetMetaData == nil {
		return nil
	}
	out := make([]string, 0, len(r.ResultSetMetaData.RowType))
	for _, rt := range r.ResultSetMetaData.RowType {
		out = append(out, rt.Name)
	}
	return out
}

// sessionQueryRequest is the body of the session query endpoint.
type sessionQueryRequest struct {
	SQLText             string `json:"sqlText"`
	AsyncExec           bool   `json:"asyncExec"`
	SequenceID          int    `json:"sequenceId"`
	QuerySubmissionTime int64  `json:"querySubmissionTime"`
}

type sessionQueryResponse struct {
	Data struct {
		RowType []rowType `json:"rowtype"`
		RowSet  [][]any   `json:"rowset"`
		QueryID string    `json:"queryId"`
	} `json:"data"`
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (r sessionQueryResponse) columns() []string {
	out := make([]string, 0, len(r.Data.RowType))
	for _, rt := range r.Data.RowType {
		out = append(out, rt.Name)
	}
	return out
}

// upstreamError is a non-2xx or unsuccessful warehouse reply.
type upstreamError struct {
	Status int
	Code   string
	Body   string
}

func (e *upstreamError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("warehouse responded %d (code %s): %s", e.Status, e.Code, e.Body)
	}
	return fmt.Sprintf("warehouse responded %d: %s", e.Status, e.Body)
}

// scrub removes secret values from upstream text and bounds its length.
func scrub(s string, secrets ...string) string {
	for _, sec := range secrets {
		if len(sec) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, sec, redacted)
	}
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > maxDetailRunes {
		s = string([]rune(s)[:maxDetailRunes]) + "..."
	}
	return s
}
