package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/act-admin/my-github-hub/internal/application/nlq"
	domai "github.com/act-admin/my-github-hub/internal/domain/ai"
	"github.com/act-admin/my-github-hub/internal/domain/query"
	"github.com/act-admin/my-github-hub/internal/middleware"
)

// Options configures the ambient middleware around the gateway routes.
type Options struct {
	APIKeys        map[string]string
	Limiter        middleware.Limiter
	RequestTimeout time.Duration
	Checkers       map[string]middleware.HealthChecker
	Log            zerolog.Logger
}

type Router struct {
	svc *nlq.Service
	log zerolog.Logger
}

func NewRouter(svc *nlq.Service, opts Options) http.Handler {
	r := &Router{svc: svc, log: opts.Log}
	mux := chi.NewRouter()

	mux.Use(chimw.RequestID)
	mux.Use(middleware.RequestLogger(opts.Log))
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"authorization", "x-client-info", "apikey", "content-type"},
		MaxAge:         300,
	}))
	mux.Use(preflight)
	mux.Use(middleware.APIKeyAuth(opts.APIKeys))
	mux.Use(middleware.RateLimitMiddleware(opts.Limiter, time.Minute))

	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Get("/healthz", middleware.HealthHandler(opts.Checkers))
	mux.Get("/readyz", middleware.ReadinessHandler)
	mux.Get("/livez", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1", func(rt chi.Router) {
		if opts.RequestTimeout > 0 {
			rt.Use(chimw.Timeout(opts.RequestTimeout))
		}
		rt.Post("/query", r.wrap(r.handleQuery))
		rt.Post("/sql", r.wrap(r.handleSQL))
	})

	return mux
}

// preflight answers any OPTIONS request that go-chi/cors did not already
// treat as a CORS preflight.
func preflight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Query   string `json:"query,omitempty"`
	SQL     string `json:"sql,omitempty"`
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			status, body := errorResponse(err)
			ev := r.log.Warn()
			if status >= 500 {
				ev = r.log.Error()
			}
			ev.Str("request_id", chimw.GetReqID(req.Context())).
				Int("status", status).
				Str("error", body.Error).
				Str("details", body.Details).
				Msg("request failed")
			writeJSON(w, status, body)
		}
	}
}

// errorResponse maps a gateway error onto a status and a body that is safe
// to return. Wrapped upstream errors are never exposed directly.
func errorResponse(err error) (int, errorBody) {
	var qe *query.Error
	if errors.As(err, &qe) {
		body := errorBody{Error: qe.Message, Details: qe.Detail, Query: qe.Query, SQL: qe.SQL}
		switch {
		case errors.Is(err, query.ErrInput):
			return http.StatusBadRequest, body
		case errors.Is(err, query.ErrValidationRejected):
			middleware.IncrementRejections()
			return http.StatusBadRequest, body
		case errors.Is(err, query.ErrAuthFailure):
			middleware.IncrementExecutionFailures()
			return http.StatusInternalServerError, body
		case errors.Is(err, query.ErrExecution):
			middleware.IncrementExecutionFailures()
			return http.StatusBadGateway, body
		}
	}
	switch {
	case errors.Is(err, domai.ErrQuotaExceeded):
		return http.StatusTooManyRequests, errorBody{Error: "AI quota exceeded"}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorBody{Error: "Request timed out"}
	}
	return http.StatusInternalServerError, errorBody{Error: "Internal server error"}
}

// POST /v1/query
// Body: {"query": "...", "group_id": "...", "report_id": "..."}
func (r *Router) handleQuery(w http.ResponseWriter, req *http.Request) error {
	var body queryBody
	if err := decodeAndValidate(w, req, &body); err != nil {
		return err
	}

	ctx := req.Context()
	resp, err := r.svc.Process(ctx, nlq.QueryCommand{
		Text:      middleware.SanitizeString(body.Query),
		GroupID:   middleware.SanitizeString(body.GroupID),
		ReportID:  middleware.SanitizeString(body.ReportID),
		Tenant:    middleware.GetTenantFromContext(ctx),
		RequestID: chimw.GetReqID(ctx),
	})
	if err != nil {
		return err
	}
	countResponse(resp)
	return writeJSON(w, http.StatusOK, resp)
}

// POST /v1/sql
// Body: {"sql": "SELECT ...", "timeout": 60}
func (r *Router) handleSQL(w http.ResponseWriter, req *http.Request) error {
	var body sqlBody
	if err := decodeAndValidate(w, req, &body); err != nil {
		return err
	}

	ctx := req.Context()
	resp, err := r.svc.ExecuteSQL(ctx, nlq.SQLCommand{
		SQL:            middleware.SanitizeString(body.SQL),
		TimeoutSeconds: middleware.ClampTimeout(body.Timeout),
		Tenant:         middleware.GetTenantFromContext(ctx),
		RequestID:      chimw.GetReqID(ctx),
	})
	if err != nil {
		return err
	}
	countResponse(resp)
	return writeJSON(w, http.StatusOK, resp)
}

func countResponse(resp *query.Response) {
	switch {
	case resp.Dashboard != nil:
		middleware.IncrementDashboardIntents()
	case resp.Message == query.TagDirectSQL:
		middleware.IncrementDirectSQL()
	default:
		middleware.IncrementDataQueries()
	}
	switch resp.Degraded {
	case query.DegradedPollTimeout:
		middleware.IncrementPollTimeouts()
	case query.DegradedSummaryUnavailable:
		middleware.IncrementSummaryFallbacks()
	case query.DegradedSynthesisUnavailable:
		middleware.IncrementSynthesisFallbacks()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
