package snowflake

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/act-admin/my-github-hub/internal/domain/query"
	"github.com/act-admin/my-github-hub/internal/domain/sqlguard"
)

// Config tunes statement submission and polling.
type Config struct {
	BaseURL          string
	Warehouse        string
	Database         string
	Schema           string
	Role             string
	StatementTimeout int // seconds
	PollInterval     time.Duration
	PollAttempts     int
}

func (c Config) withDefaults() Config {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.StatementTimeout <= 0 {
		c.StatementTimeout = 60
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.PollAttempts <= 0 {
		c.PollAttempts = 30
	}
	return c
}

// Executor runs validated statements, preferring the primary credential
// provider and falling back once to the secondary one.
type Executor struct {
	cfg      Config
	client   *http.Client
	primary  CredentialProvider
	fallback CredentialProvider
	secrets  []string
	log      zerolog.Logger
	newID    func() string
	now      func() time.Time
}

func NewExecutor(cfg Config, client *http.Client, primary, fallback CredentialProvider, log zerolog.Logger, secrets ...string) *Executor {
	if client == nil {
		client = &http.Client{Timeout: 90 * time.Second}
	}
	return &Executor{
		cfg:      cfg.withDefaults(),
		client:   client,
		primary:  primary,
		fallback: fallback,
		secrets:  secrets,
		log:      log.With().Str("component", "warehouse").Logger(),
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Outcome is the full record of one Run.
type Outcome struct {
	State    State
	Via      CredentialKind
	Handle   *Handle
	Fallback bool
	Result   query.ResultSet
	Err      error
}

// attempt is one pass with a single credential provider.
type attempt struct {
	state      State
	via        CredentialKind
	handle     *Handle
	columns    []string
	rows       [][]any
	err        error
	authFailed bool
	token      string
}

// Execute satisfies the orchestrator's warehouse port.
func (e *Executor) Execute(ctx context.Context, v sqlguard.Validated, opts query.ExecOptions) (query.ResultSet, error) {
	out := e.Run(ctx, v, opts)
	return out.Result, out.Err
}

// Run executes v and reports the terminal state reached.
func (e *Executor) Run(ctx context.Context, v sqlguard.Validated, opts query.ExecOptions) Outcome {
	if v.IsZero() {
		return Outcome{State: StateFailed, Err: &query.Error{
			Kind:    query.ErrExecution,
			Message: "Refusing to execute an unvalidated statement",
		}}
	}
	if e.primary == nil {
		return Outcome{State: StateFailed, Err: &query.Error{
			Kind:    query.ErrAuthFailure,
			Message: "Warehouse credentials not configured",
			SQL:     v.SQL(),
		}}
	}

	first := e.tryProvider(ctx, e.primary, v, opts)
	if !e.shouldFallback(ctx, first) {
		return e.finish(v, first, false, first.authFailed)
	}

	e.log.Warn().
		Str("from", string(e.primary.Kind())).
		Str("to", string(e.fallback.Kind())).
		Str("detail", scrub(errString(first.err), e.scrubList(first)...)).
		Msg("primary warehouse path failed, trying fallback")

	second := e.tryProvider(ctx, e.fallback, v, opts)
	return e.finish(v, second, true, first.authFailed && second.authFailed)
}

func (e *Executor) shouldFallback(ctx context.Context, a attempt) bool {
	if a.err == nil || a.state != StateFailed || ctx.Err() != nil {
		return false
	}
	return e.fallback != nil && e.fallback.Kind() != e.primary.Kind()
}

func (e *Executor) finish(v sqlguard.Validated, a attempt, fellBack, noCredential bool) Outcome {
	out := Outcome{State: a.state, Via: a.via, Handle: a.handle, Fallback: fellBack}

	switch a.state {
	case StateSyncComplete, StatePollComplete:
		out.Result = query.Normalize(a.columns, a.rows)
		out.State = e.trace(a.via, StateNormalized)
		return out
	case StatePollTimeout:
		out.Result = query.Empty()
		detail := ""
		if a.handle != nil {
			detail = "statement " + a.handle.ID + " still running"
		}
		out.Err = &query.Error{
			Kind:    query.ErrPollTimeout,
			Message: "Warehouse query did not finish in time",
			Detail:  detail,
			SQL:     v.SQL(),
		}
		return out
	case StateAborted:
		out.Err = &query.Error{
			Kind:    query.ErrExecution,
			Message: "Warehouse query was aborted while polling",
			Detail:  scrub(errString(a.err), e.scrubList(a)...),
			SQL:     v.SQL(),
			Err:     a.err,
		}
		return out
	}

	out.State = StateFailed
	if noCredential {
		out.Err = &query.Error{
			Kind:    query.ErrAuthFailure,
			Message: "Failed to authenticate with warehouse",
			Detail:  scrub(errString(a.err), e.scrubList(a)...),
			SQL:     v.SQL(),
			Err:     a.err,
		}
		return out
	}
	out.Err = &query.Error{
		Kind:    query.ErrExecution,
		Message: "Failed to execute warehouse query",
		Detail:  scrub(errString(a.err), e.scrubList(a)...),
		SQL:     v.SQL(),
		Err:     a.err,
	}
	return out
}

func (e *Executor) tryProvider(ctx context.Context, p CredentialProvider, v sqlguard.Validated, opts query.ExecOptions) attempt {
	e.trace(p.Kind(), StateStart)
	cred, err := p.Credential(ctx)
	if err != nil {
		e.trace(p.Kind(), StateFailed)
		return attempt{state: StateFailed, via: p.Kind(), err: err, authFailed: true}
	}
	e.trace(cred.Kind, StateAuthenticated)

	var a attempt
	switch cred.Kind {
	case KindKeyPair:
		a = e.runStatement(ctx, cred, v, e.timeout(opts))
	case KindSession:
		a = e.runSession(ctx, cred, v)
	default:
		a = attempt{state: StateFailed, err: fmt.Errorf("unsupported credential kind %q", cred.Kind)}
	}
	a.via = cred.Kind
	a.token = cred.Token
	e.trace(cred.Kind, a.state)
	return a
}

func (e *Executor) timeout(opts query.ExecOptions) int {
	t := opts.TimeoutSeconds
	if t <= 0 || t > e.cfg.StatementTimeout {
		t = e.cfg.StatementTimeout
	}
	return t
}

// runStatement drives the SQL API v2 path: submit, then poll when the
// warehouse answers asynchronously.
func (e *Executor) runStatement(ctx context.Context, cred Credential, v sqlguard.Validated, timeout int) attempt {
	endpoint := e.cfg.BaseURL + "/api/v2/statements?requestId=" + url.QueryEscape(e.newID())
	body := statementRequest{
		Statement: v.SQL(),
		Timeout:   timeout,
		Database:  e.cfg.Database,
		Schema:    e.cfg.Schema,
		Warehouse: e.cfg.Warehouse,
		Role:      e.cfg.Role,
	}

	var resp statementResponse
	status, raw, err := e.doJSON(ctx, http.MethodPost, endpoint, cred, body, &resp)
	if err != nil {
		return attempt{state: StateFailed, err: err}
	}
	e.trace(cred.Kind, StateSubmitted)

	switch {
	case status == http.StatusOK && resp.Data != nil:
		return attempt{state: StateSyncComplete, columns: resp.columns(), rows: resp.Data}
	case status == http.StatusAccepted || (is2xx(status) && resp.StatementHandle != "" && resp.Data == nil):
		if resp.StatementHandle == "" {
			return attempt{state: StateFailed, err: errors.New("statement accepted without a handle")}
		}
		h := &Handle{ID: resp.StatementHandle, StatusURL: resp.StatementStatusURL}
		e.trace(cred.Kind, StateAsyncPending)
		a := e.poll(ctx, cred, h)
		a.handle = h
		return a
	case is2xx(status):
		return attempt{state: StateFailed, err: errors.New("unrecognised statement response")}
	default:
		return attempt{state: StateFailed, err: upstreamFrom(status, raw), authFailed: isAuthStatus(status)}
	}
}

// poll waits PollInterval before each status check and gives up after
// PollAttempts checks. Only 202 keeps the loop going.
func (e *Executor) poll(ctx context.Context, cred Credential, h *Handle) attempt {
	endpoint := e.cfg.BaseURL + "/api/v2/statements/" + url.PathEscape(h.ID)
	e.trace(cred.Kind, StatePolling)

	for i := 1; i <= e.cfg.PollAttempts; i++ {
		if err := wait(ctx, e.cfg.PollInterval); err != nil {
			return attempt{state: StateFailed, err: err}
		}

		var resp statementResponse
		status, raw, err := e.doJSON(ctx, http.MethodGet, endpoint, cred, nil, &resp)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return attempt{state: StateFailed, err: ctx.Err()}
			}
			return attempt{state: StateAborted, err: err}
		case status == http.StatusOK && resp.Data != nil:
			e.log.Debug().Str("handle", h.ID).Int("attempt", i).Msg("statement finished")
			return attempt{state: StatePollComplete, columns: resp.columns(), rows: resp.Data}
		case status == http.StatusAccepted:
			e.log.Debug().Str("handle", h.ID).Int("attempt", i).Msg("statement still running")
			continue
		case status == http.StatusOK:
			return attempt{state: StateAborted, err: errors.New("unrecognised status response")}
		default:
			return attempt{state: StateAborted, err: upstreamFrom(status, raw)}
		}
	}
	return attempt{state: StatePollTimeout}
}

// runSession executes through the session query endpoint, which answers
// synchronously.
func (e *Executor) runSession(ctx context.Context, cred Credential, v sqlguard.Validated) attempt {
	endpoint := e.cfg.BaseURL + "/queries/v1/query-request?requestId=" + url.QueryEscape(e.newID())
	body := sessionQueryRequest{
		SQLText:             v.SQL(),
		AsyncExec:           false,
		SequenceID:          1,
		QuerySubmissionTime: e.now().UnixMilli(),
	}

	var resp sessionQueryResponse
	status, raw, err := e.doJSON(ctx, http.MethodPost, endpoint, cred, body, &resp)
	if err != nil {
		return attempt{state: StateFailed, err: err}
	}
	e.trace(cred.Kind, StateSubmitted)

	if !is2xx(status) {
		return attempt{state: StateFailed, err: upstreamFrom(status, raw), authFailed: isAuthStatus(status)}
	}
	if !resp.Success {
		return attempt{state: StateFailed, err: &upstreamError{Status: status, Code: resp.Code, Body: resp.Message}}
	}
	return attempt{state: StateSyncComplete, columns: resp.columns(), rows: resp.Data.RowSet}
}

// doJSON sends in (when non-nil) and decodes a 2xx reply into out. Non-2xx
// replies are returned raw for the caller to classify.
func (e *Executor) doJSON(ctx context.Context, method, endpoint string, cred Credential, in, out any) (int, []byte, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	cred.Apply(req.Header)

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, redactQuery(endpoint), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	if is2xx(resp.StatusCode) && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, raw, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, raw, nil
}

func (e *Executor) trace(kind CredentialKind, s State) State {
	e.log.Debug().Str("via", string(kind)).Str("state", s.String()).Msg("warehouse state")
	return s
}

func (e *Executor) scrubList(a attempt) []string {
	out := append([]string{}, e.secrets...)
	if a.token != "" {
		out = append(out, a.token)
	}
	return out
}

func upstreamFrom(status int, raw []byte) error {
	var r statementResponse
	if json.Unmarshal(raw, &r) == nil && r.Message != "" {
		return &upstreamError{Status: status, Code: r.Code, Body: r.Message}
	}
	return &upstreamError{Status: status, Body: string(raw)}
}

func is2xx(status int) bool { return status >= 200 && status <= 299 }

// isAuthStatus reports a warehouse rejection of the credential itself.
func isAuthStatus(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// redactQuery drops the query string from an endpoint for error messages.
func redactQuery(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
