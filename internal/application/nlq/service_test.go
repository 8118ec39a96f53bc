package nlq

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/act-admin/my-github-hub/internal/application"
	"github.com/act-admin/my-github-hub/internal/domain/ai"
	"github.com/act-admin/my-github-hub/internal/domain/audit"
	"github.com/act-admin/my-github-hub/internal/domain/query"
	"github.com/act-admin/my-github-hub/internal/domain/sqlguard"
	"github.com/act-admin/my-github-hub/internal/infra/ai/prompt"
)

// fakeCompleter answers SQL prompts and summary prompts separately.
type fakeCompleter struct {
	mu       sync.Mutex
	sql      string
	sqlErr   error
	summary  string
	sumErr   error
	requests []ai.CompletionRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req ai.CompletionRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if req.MaxTokens == sqlMaxTokens {
		return f.sql, f.sqlErr
	}
	return f.summary, f.sumErr
}

func (f *fakeCompleter) calls() []ai.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ai.CompletionRequest(nil), f.requests...)
}

type fakeWarehouse struct {
	rs    query.ResultSet
	err   error
	calls int
	got   sqlguard.Validated
	opts  query.ExecOptions
}

func (f *fakeWarehouse) Execute(_ context.Context, v sqlguard.Validated, opts query.ExecOptions) (query.ResultSet, error) {
	f.calls++
	f.got = v
	f.opts = opts
	return f.rs, f.err
}

type memAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (m *memAudit) Save(_ context.Context, e *audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return nil
}

type memArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memArchive) Put(_ context.Context, key string, body []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = body
	return "http://archive.local/" + key, nil
}

func newService(c *fakeCompleter, wh Warehouse, repo audit.Repository) *Service {
	return &Service{
		Synth:     NewSynthesizer(c, prompt.DefaultSchema()),
		Summary:   NewSummarizer(c),
		Policy:    sqlguard.DefaultPolicy(),
		Warehouse: wh,
		Audit:     audit.NewRecorder(repo, nil, zerolog.Nop()),
		Clock:     application.FixedClock{At: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		Log:       zerolog.Nop(),
	}
}

func twoRows() query.ResultSet {
	return query.Normalize([]string{"VENDOR", "TOTAL"}, [][]any{{"Acme", 1200}, {"Globex", 900}})
}

func TestProcess_EmptyQueryIsInputError(t *testing.T) {
	svc := newService(&fakeCompleter{}, &fakeWarehouse{}, nil)

	_, err := svc.Process(context.Background(), QueryCommand{Text: "   "})
	require.Error(t, err)
	assert.ErrorIs(t, err, query.ErrInput)
}

func TestProcess_FinancialDashboardShortCircuits(t *testing.T) {
	c := &fakeCompleter{}
	wh := &fakeWarehouse{}
	svc := newService(c, wh, nil)

	resp, err := svc.Process(context.Background(), QueryCommand{
		Text:     "show financial dashboard",
		GroupID:  "g-1",
		ReportID: "r-1",
	})
	require.NoError(t, err)

	assert.Equal(t, query.TagFinancialDashboard, resp.Message)
	assert.NotEmpty(t, resp.Summary)
	assert.Empty(t, resp.SQL)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
	require.NotNil(t, resp.Dashboard)
	assert.Equal(t, query.DashboardFinancial, resp.Dashboard.Kind)
	assert.Equal(t, "g-1", resp.Dashboard.GroupID)

	assert.Empty(t, c.calls())
	assert.Zero(t, wh.calls)
}

func TestProcess_DataQueryWithRows(t *testing.T) {
	c := &fakeCompleter{
		sql:     "```sql\nSELECT VENDOR, TOTAL FROM FINANCIAL_DEMO.PUBLIC.FINANCIAL_TRANSACTIONS\n```",
		summary: "**Acme** leads with 1,200.",
	}
	wh := &fakeWarehouse{rs: twoRows()}
	repo := &memAudit{}
	svc := newService(c, wh, repo)

	resp, err := svc.Process(context.Background(), QueryCommand{Text: "show top vendors by total", Tenant: "acme", RequestID: "req-1"})
	require.NoError(t, err)

	assert.Equal(t, query.TagDataQuery, resp.Message)
	assert.Equal(t, "SELECT VENDOR, TOTAL FROM FINANCIAL_DEMO.PUBLIC.FINANCIAL_TRANSACTIONS LIMIT 100", resp.SQL)
	assert.Equal(t, resp.SQL, wh.got.SQL())
	assert.Equal(t, 2, resp.RowCount)
	assert.Equal(t, []string{"VENDOR", "TOTAL"}, resp.Columns)
	assert.Equal(t, "**Acme** leads with 1,200.", resp.Summary)
	assert.Empty(t, resp.Degraded)

	calls := c.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, float32(0), calls[0].Temperature)
	assert.Equal(t, 500, calls[0].MaxTokens)
	assert.Equal(t, float32(0.7), calls[1].Temperature)
	assert.Equal(t, 1000, calls[1].MaxTokens)
	assert.Contains(t, calls[1].User, "Data retrieved (2 rows):")

	body, err := json.Marshal(resp.Results[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"VENDOR":"Acme","TOTAL":1200}`, string(body))

	require.Len(t, repo.entries, 1)
	e := repo.entries[0]
	assert.Equal(t, audit.OutcomeSuccess, e.Outcome)
	assert.Equal(t, "acme", e.Tenant)
	assert.Equal(t, "req-1", e.RequestID)
	assert.Equal(t, 2, e.RowCount)
	assert.Equal(t, resp.SQL, e.SQL)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), e.CreatedAt)
	assert.NotEmpty(t, e.ID)
}

func TestProcess_ArchiveNeverHoldsRows(t *testing.T) {
	c := &fakeCompleter{
		sql:     "SELECT VENDOR, TOTAL FROM FINANCIAL_TRANSACTIONS",
		summary: "Acme leads with 1,200 ahead of Globex.",
	}
	repo := &memAudit{}
	arch := &memArchive{}
	svc := newService(c, &fakeWarehouse{rs: twoRows()}, nil)
	svc.Audit = audit.NewRecorder(repo, arch, zerolog.Nop())

	resp, err := svc.Process(context.Background(), QueryCommand{Text: "list vendor totals", Tenant: "acme"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)

	require.Len(t, arch.objects, 1)
	require.Len(t, repo.entries, 1)
	for key, body := range arch.objects {
		assert.Equal(t, audit.ArchiveKey(&repo.entries[0]), key)
		assert.Equal(t, "http://archive.local/"+key, repo.entries[0].ArchiveURL)

		text := string(body)
		for _, v := range []string{"Acme", "Globex", "1200", "900"} {
			assert.False(t, strings.Contains(text, v), "archived snapshot leaks %q: %s", v, text)
		}

		var snap map[string]any
		require.NoError(t, json.Unmarshal(body, &snap))
		assert.NotContains(t, snap, "results")
		assert.NotContains(t, snap, "summary")
		assert.Equal(t, "list vendor totals", snap["query"])
		assert.Equal(t, resp.SQL, snap["sql"])
		assert.EqualValues(t, 2, snap["row_count"])
		assert.Equal(t, []any{"VENDOR", "TOTAL"}, snap["columns"])
	}
}

func TestProcess_PollTimeoutDegradesToSummary(t *testing.T) {
	c := &fakeCompleter{
		sql:     "SELECT * FROM FINANCIAL_REPORTS",
		summary: "This query will list financial reports once it finishes.",
	}
	wh := &fakeWarehouse{
		rs:  query.Empty(),
		err: &query.Error{Kind: query.ErrPollTimeout, Message: "Warehouse query did not finish in time"},
	}
	svc := newService(c, wh, nil)

	resp, err := svc.Process(context.Background(), QueryCommand{Text: "list financial reports"})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.Summary)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
	assert.Equal(t, query.DegradedPollTimeout, resp.Degraded)
	assert.Equal(t, "SELECT * FROM FINANCIAL_REPORTS LIMIT 100", resp.SQL)

	calls := c.calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].User, "still running")
}

func TestProcess_ZeroRowsExplainsEmptyResult(t *testing.T) {
	c := &fakeCompleter{sql: "SELECT * FROM MEDICAL_RECORDS WHERE 1 = 0", summary: "No records matched."}
	svc := newService(c, &fakeWarehouse{rs: query.Empty()}, nil)

	resp, err := svc.Process(context.Background(), QueryCommand{Text: "find patients over 120"})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.RowCount)
	assert.Contains(t, c.calls()[1].User, "returned no rows")
}

func TestProcess_SummaryFailureUsesApology(t *testing.T) {
	c := &fakeCompleter{sql: "SELECT * FROM FINANCIAL_REPORTS", sumErr: errors.New("boom")}
	svc := newService(c, &fakeWarehouse{rs: twoRows()}, nil)

	resp, err := svc.Process(context.Background(), QueryCommand{Text: "show reports"})
	require.NoError(t, err)
	assert.Equal(t, ApologySummary, resp.Summary)
	assert.Equal(t, query.DegradedSummaryUnavailable, resp.Degraded)
	assert.Equal(t, 2, resp.RowCount)
}

func TestProcess_EmptySummaryUsesApology(t *testing.T) {
	c := &fakeCompleter{sql: "SELECT * FROM FINANCIAL_REPORTS", summary: "  "}
	svc := newService(c, &fakeWarehouse{rs: twoRows()}, nil)

	resp, err := svc.Process(context.Background(), QueryCommand{Text: "show reports"})
	require.NoError(t, err)
	assert.Equal(t, ApologySummary, resp.Summary)
}

func TestProcess_SynthesisFailureSummarizesRawQuery(t *testing.T) {
	c := &fakeCompleter{sqlErr: ai.ErrQuotaExceeded, summary: "Here is what I can tell you."}
	wh := &fakeWarehouse{}
	svc := newService(c, wh, nil)

	resp, err := svc.Process(context.Background(), QueryCommand{Text: "show total revenue"})
	require.NoError(t, err)
	assert.Equal(t, query.DegradedSynthesisUnavailable, resp.Degraded)
	assert.Empty(t, resp.SQL)
	assert.Zero(t, wh.calls)
	assert.Equal(t, "show total revenue", c.calls()[1].User)
}

func TestProcess_ChatSkipsSynthesis(t *testing.T) {
	c := &fakeCompleter{summary: "Hello!"}
	wh := &fakeWarehouse{}
	svc := newService(c, wh, nil)

	resp, err := svc.Process(context.Background(), QueryCommand{Text: "hello there"})
	require.NoError(t, err)
	assert.Equal(t, "Hello!", resp.Summary)
	assert.Empty(t, resp.Degraded)
	require.Len(t, c.calls(), 1)
	assert.Zero(t, wh.calls)
}

func TestProcess_GeneratedSQLRejected(t *testing.T) {
	c := &fakeCompleter{sql: "SELECT * FROM USERS"}
	wh := &fakeWarehouse{}
	repo := &memAudit{}
	svc := newService(c, wh, repo)

	_, err := svc.Process(context.Background(), QueryCommand{Text: "show all users"})
	require.Error(t, err)
	assert.ErrorIs(t, err, query.ErrValidationRejected)

	var qe *query.Error
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, sqlguard.ReasonApprovedTables, qe.Detail)
	assert.Equal(t, "SELECT * FROM USERS", qe.SQL)
	assert.Equal(t, "show all users", qe.Query)

	var rej *sqlguard.Rejection
	assert.ErrorAs(t, err, &rej)
	assert.Zero(t, wh.calls)

	require.Len(t, repo.entries, 1)
	assert.Equal(t, audit.OutcomeRejected, repo.entries[0].Outcome)
}

func TestProcess_ExecutionFailureKeepsSQL(t *testing.T) {
	c := &fakeCompleter{sql: "SELECT * FROM FINANCIAL_REPORTS"}
	wh := &fakeWarehouse{err: &query.Error{
		Kind:    query.ErrExecution,
		Message: "Failed to execute warehouse query",
		Detail:  "upstream status 500",
		SQL:     "SELECT * FROM FINANCIAL_REPORTS LIMIT 100",
	}}
	repo := &memAudit{}
	svc := newService(c, wh, repo)

	_, err := svc.Process(context.Background(), QueryCommand{Text: "show reports"})
	require.Error(t, err)
	assert.ErrorIs(t, err, query.ErrExecution)

	var qe *query.Error
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "SELECT * FROM FINANCIAL_REPORTS LIMIT 100", qe.SQL)
	assert.Equal(t, "show reports", qe.Query)

	require.Len(t, repo.entries, 1)
	assert.Equal(t, audit.OutcomeFailed, repo.entries[0].Outcome)
	assert.Equal(t, "Failed to execute warehouse query: upstream status 500", repo.entries[0].Error)
}

func TestProcess_AuthFailureIsFatal(t *testing.T) {
	c := &fakeCompleter{sql: "SELECT * FROM FINANCIAL_REPORTS"}
	wh := &fakeWarehouse{err: &query.Error{Kind: query.ErrAuthFailure, Message: "Failed to authenticate with warehouse"}}
	svc := newService(c, wh, nil)

	_, err := svc.Process(context.Background(), QueryCommand{Text: "show reports"})
	assert.ErrorIs(t, err, query.ErrAuthFailure)
}

func TestProcess_NoWarehouseExplainsIntent(t *testing.T) {
	c := &fakeCompleter{sql: "SELECT * FROM FINANCIAL_REPORTS", summary: "This would list reports."}
	svc := newService(c, nil, nil)

	resp, err := svc.Process(context.Background(), QueryCommand{Text: "show reports"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM FINANCIAL_REPORTS LIMIT 100", resp.SQL)
	assert.Contains(t, c.calls()[1].User, "couldn't connect")
}

func TestExecuteSQL_DropNeverReachesWarehouse(t *testing.T) {
	wh := &fakeWarehouse{}
	repo := &memAudit{}
	svc := newService(&fakeCompleter{}, wh, repo)

	_, err := svc.ExecuteSQL(context.Background(), SQLCommand{SQL: "DROP TABLE FINANCIAL_REPORTS"})
	require.Error(t, err)
	assert.ErrorIs(t, err, query.ErrValidationRejected)

	var qe *query.Error
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, sqlguard.ReasonSelectOnly, qe.Detail)
	assert.Zero(t, wh.calls)

	require.Len(t, repo.entries, 1)
	assert.Equal(t, audit.EntrySQL, repo.entries[0].EntryPoint)
	assert.Equal(t, audit.OutcomeRejected, repo.entries[0].Outcome)
}

func TestExecuteSQL_Success(t *testing.T) {
	c := &fakeCompleter{}
	wh := &fakeWarehouse{rs: twoRows()}
	svc := newService(c, wh, nil)

	resp, err := svc.ExecuteSQL(context.Background(), SQLCommand{
		SQL:            "SELECT * FROM FINANCIAL_TRANSACTIONS LIMIT 5;",
		TimeoutSeconds: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, query.TagDirectSQL, resp.Message)
	assert.Equal(t, "SELECT * FROM FINANCIAL_TRANSACTIONS LIMIT 5", resp.SQL)
	assert.Equal(t, "Query returned 2 rows.", resp.Summary)
	assert.Equal(t, 30, wh.opts.TimeoutSeconds)
	assert.Empty(t, c.calls())
}

func TestExecuteSQL_EmptyAndTimeout(t *testing.T) {
	svc := newService(&fakeCompleter{}, &fakeWarehouse{
		err: &query.Error{Kind: query.ErrPollTimeout, Message: "Warehouse query did not finish in time"},
	}, nil)

	_, err := svc.ExecuteSQL(context.Background(), SQLCommand{})
	assert.ErrorIs(t, err, query.ErrInput)

	resp, err := svc.ExecuteSQL(context.Background(), SQLCommand{SQL: "SELECT * FROM MEDICAL_REPORTS"})
	require.NoError(t, err)
	assert.Equal(t, query.DegradedPollTimeout, resp.Degraded)
	assert.NotEmpty(t, resp.Summary)
	assert.NotNil(t, resp.Results)
}

func TestStripFences(t *testing.T) {
	cases := []struct{ in, want string }{
		{"```sql\nSELECT 1\n```", "SELECT 1"},
		{"```SELECT 1```", "SELECT 1"},
		{"  SELECT 1  ", "SELECT 1"},
		{"```\n```", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StripFences(tc.in), tc.in)
	}
}
