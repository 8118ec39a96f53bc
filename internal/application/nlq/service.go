package nlq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/act-admin/my-github-hub/internal/application"
	"github.com/act-admin/my-github-hub/internal/domain/audit"
	"github.com/act-admin/my-github-hub/internal/domain/intent"
	"github.com/act-admin/my-github-hub/internal/domain/query"
	"github.com/act-admin/my-github-hub/internal/domain/sqlguard"
	"github.com/act-admin/my-github-hub/internal/infra/ai/prompt"
)

// Warehouse runs statements that already passed the security policy.
type Warehouse interface {
	Execute(ctx context.Context, v sqlguard.Validated, opts query.ExecOptions) (query.ResultSet, error)
}

// Service orchestrates one gateway request end to end.
// Semua field read-only setelah dibuat, jadi aman dipakai concurrent.
type Service struct {
	Synth     *Synthesizer
	Summary   *Summarizer
	Policy    sqlguard.Policy
	Warehouse Warehouse
	Audit     *audit.Recorder
	Clock     application.Clock
	Log       zerolog.Logger
}

//
// ==== USE CASES ====
//

// QueryCommand is a natural-language question.
type QueryCommand struct {
	Text      string
	GroupID   string
	ReportID  string
	Tenant    string
	RequestID string
}

// SQLCommand is caller-supplied SQL for direct execution.
type SQLCommand struct {
	SQL            string
	TimeoutSeconds int
	Tenant         string
	RequestID      string
}

// Process classifies the question and either redirects to a dashboard or
// answers it from the warehouse. Degraded paths still return a response;
// only input, validation, auth and execution failures return an error.
func (s *Service) Process(ctx context.Context, cmd QueryCommand) (*query.Response, error) {
	start := s.now()
	text := strings.TrimSpace(cmd.Text)
	if text == "" {
		return nil, query.InputError("Query is required")
	}

	in := intent.Classify(text)
	entry := &audit.Entry{
		RequestID:  cmd.RequestID,
		Tenant:     cmd.Tenant,
		EntryPoint: audit.EntryQuery,
		Intent:     in.Tag(),
		Query:      text,
	}

	if in.IsDashboard() {
		resp := &query.Response{
			Query:   text,
			Message: in.Tag(),
			Summary: in.Summary,
			Dashboard: &query.Dashboard{
				Kind:     in.Dashboard,
				GroupID:  cmd.GroupID,
				ReportID: cmd.ReportID,
			},
		}
		resp.WithResults(query.Empty())
		s.Log.Info().Str("request_id", cmd.RequestID).Str("intent", in.Tag()).Msg("dashboard intent")
		s.finish(ctx, entry, resp, nil, start)
		return resp, nil
	}

	resp := &query.Response{Query: text, Message: query.TagDataQuery}
	resp.WithResults(query.Empty())
	sum := prompt.SummaryInput{Query: text}

	if intent.LooksLikeDataRequest(text) {
		if err := s.answer(ctx, cmd, resp, &sum); err != nil {
			s.finish(ctx, entry, nil, err, start)
			return nil, err
		}
	}

	summary, err := s.Summary.Summarize(ctx, sum)
	if err != nil {
		s.Log.Warn().Err(err).Str("request_id", cmd.RequestID).Msg("summary unavailable, using fallback text")
		if resp.Degraded == "" {
			resp.Degraded = query.DegradedSummaryUnavailable
		}
	}
	resp.Summary = summary

	s.Log.Info().
		Str("request_id", cmd.RequestID).
		Str("intent", resp.Message).
		Bool("sql", resp.SQL != "").
		Int("rows", resp.RowCount).
		Str("degraded", resp.Degraded).
		Msg("data query answered")
	s.finish(ctx, entry, resp, nil, start)
	return resp, nil
}

// answer fills resp with SQL and rows. Synthesis failures and poll
// timeouts only mark the response degraded.
func (s *Service) answer(ctx context.Context, cmd QueryCommand, resp *query.Response, sum *prompt.SummaryInput) error {
	cand, err := s.Synth.Synthesize(ctx, resp.Query)
	if err != nil {
		s.Log.Warn().Err(err).Str("request_id", cmd.RequestID).Msg("sql synthesis unavailable")
		resp.Degraded = query.DegradedSynthesisUnavailable
		return nil
	}

	v, err := s.Policy.Validate(cand.SQL)
	if err != nil {
		s.Log.Warn().Str("request_id", cmd.RequestID).Str("reason", err.Error()).Msg("generated sql rejected")
		return rejected(err, resp.Query, cand.SQL)
	}
	resp.SQL = v.SQL()
	sum.SQL = v.SQL()

	if s.Warehouse == nil {
		sum.Status = prompt.SQLStatusUnavailable
		return nil
	}

	rs, err := s.Warehouse.Execute(ctx, v, query.ExecOptions{})
	switch {
	case err == nil:
		resp.WithResults(rs)
		sum.Rows = rs.Rows
		if len(rs.Rows) == 0 {
			sum.Status = prompt.SQLStatusEmpty
		}
		return nil
	case errors.Is(err, query.ErrPollTimeout):
		s.Log.Warn().Err(err).Str("request_id", cmd.RequestID).Msg("warehouse poll timed out")
		resp.Degraded = query.DegradedPollTimeout
		sum.Status = prompt.SQLStatusPending
		return nil
	default:
		s.Log.Error().Err(err).Str("request_id", cmd.RequestID).Msg("warehouse execution failed")
		return withQuery(err, resp.Query)
	}
}

// ExecuteSQL validates and runs caller-supplied SQL. Its summary is a
// plain row count; the completion service is not involved.
func (s *Service) ExecuteSQL(ctx context.Context, cmd SQLCommand) (*query.Response, error) {
	start := s.now()
	sql := strings.TrimSpace(cmd.SQL)
	if sql == "" {
		return nil, query.InputError("SQL query is required")
	}

	entry := &audit.Entry{
		RequestID:  cmd.RequestID,
		Tenant:     cmd.Tenant,
		EntryPoint: audit.EntrySQL,
		Intent:     query.TagDirectSQL,
		Query:      sql,
	}

	v, err := s.Policy.Validate(sql)
	if err != nil {
		s.Log.Warn().Str("request_id", cmd.RequestID).Str("reason", err.Error()).Msg("direct sql rejected")
		err = rejected(err, "", sql)
		s.finish(ctx, entry, nil, err, start)
		return nil, err
	}
	entry.SQL = v.SQL()

	if s.Warehouse == nil {
		err := &query.Error{Kind: query.ErrAuthFailure, Message: "Warehouse credentials not configured", SQL: v.SQL()}
		s.finish(ctx, entry, nil, err, start)
		return nil, err
	}

	resp := &query.Response{Query: sql, Message: query.TagDirectSQL, SQL: v.SQL()}
	rs, err := s.Warehouse.Execute(ctx, v, query.ExecOptions{TimeoutSeconds: cmd.TimeoutSeconds})
	switch {
	case err == nil:
		resp.WithResults(rs)
		resp.Summary = rowCountSummary(resp.RowCount)
	case errors.Is(err, query.ErrPollTimeout):
		s.Log.Warn().Err(err).Str("request_id", cmd.RequestID).Msg("warehouse poll timed out")
		resp.WithResults(query.Empty())
		resp.Degraded = query.DegradedPollTimeout
		resp.Summary = "The query is still running in the warehouse and results were not ready in time."
	default:
		s.Log.Error().Err(err).Str("request_id", cmd.RequestID).Msg("warehouse execution failed")
		s.finish(ctx, entry, nil, err, start)
		return nil, err
	}

	s.Log.Info().
		Str("request_id", cmd.RequestID).
		Int("rows", resp.RowCount).
		Str("degraded", resp.Degraded).
		Msg("direct sql executed")
	s.finish(ctx, entry, resp, nil, start)
	return resp, nil
}

func (s *Service) finish(ctx context.Context, e *audit.Entry, resp *query.Response, err error, start time.Time) {
	if !s.Audit.Enabled() {
		return
	}
	e.DurationMS = s.now().Sub(start).Milliseconds()
	e.CreatedAt = start.UTC()

	switch {
	case err != nil:
		e.Outcome = audit.OutcomeFailed
		if errors.Is(err, query.ErrValidationRejected) {
			e.Outcome = audit.OutcomeRejected
		}
		e.Error = safeMessage(err)
		var qe *query.Error
		if errors.As(err, &qe) && qe.SQL != "" {
			e.SQL = qe.SQL
		}
		s.Audit.Record(ctx, e, nil)
		return
	case resp.Degraded != "":
		e.Outcome = audit.OutcomeDegraded
		e.Degraded = resp.Degraded
	default:
		e.Outcome = audit.OutcomeSuccess
	}
	e.SQL = resp.SQL
	e.RowCount = resp.RowCount
	s.Audit.Record(ctx, e, snapshotOf(resp))
}

// snapshotOf keeps what the archive may hold: no rows, no summary.
func snapshotOf(resp *query.Response) *audit.Snapshot {
	snap := &audit.Snapshot{
		Query:    resp.Query,
		Message:  resp.Message,
		SQL:      resp.SQL,
		Columns:  resp.Columns,
		RowCount: resp.RowCount,
		Degraded: resp.Degraded,
	}
	if snap.Columns == nil {
		snap.Columns = []string{}
	}
	if resp.Dashboard != nil {
		snap.Dashboard = string(resp.Dashboard.Kind)
	}
	return snap
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

func rejected(err error, q, sql string) error {
	detail := err.Error()
	var rej *sqlguard.Rejection
	if errors.As(err, &rej) {
		detail = rej.Reason
	}
	return &query.Error{
		Kind:    query.ErrValidationRejected,
		Message: "Query validation failed",
		Detail:  detail,
		Query:   q,
		SQL:     sql,
		Err:     err,
	}
}

func withQuery(err error, q string) error {
	var qe *query.Error
	if errors.As(err, &qe) && qe.Query == "" {
		qe.Query = q
	}
	return err
}

// safeMessage drops wrapped upstream errors and keeps only the scrubbed text.
func safeMessage(err error) string {
	var qe *query.Error
	if !errors.As(err, &qe) {
		return err.Error()
	}
	if qe.Detail == "" {
		return qe.Message
	}
	return qe.Message + ": " + qe.Detail
}

func rowCountSummary(n int) string {
	if n == 1 {
		return "Query returned 1 row."
	}
	return fmt.Sprintf("Query returned %d rows.", n)
}
