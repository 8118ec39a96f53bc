package query

// Request is the inbound data-query request. It is never mutated after decoding.
type Request struct {
	Text     string
	GroupID  string
	ReportID string
	Tenant   string
}

// Kind distinguishes dashboard redirects from ad hoc data questions.
type Kind string

const (
	KindFixedDashboard Kind = "fixed_dashboard"
	KindDataQuery      Kind = "data_query"
)

// DashboardKind enum
type DashboardKind string

const (
	DashboardFinancial   DashboardKind = "financial"
	DashboardMedical     DashboardKind = "medical"
	DashboardPayables    DashboardKind = "payables"
	DashboardReceivables DashboardKind = "receivables"
)

// Wire tags written to Response.Message.
const (
	TagFinancialDashboard = "powerbi_financial_dashboard"
	TagMedicalDashboard   = "powerbi_medical_dashboard"
	TagPayablesSuite      = "genai_invoice_suite"
	TagReceivablesSuite   = "genai_ar_suite"
	TagDataQuery          = "snowflake_query"
	TagDirectSQL          = "direct_sql"
)

// Intent is resolved once per request. A fixed dashboard intent carries its
// canned summary and never produces SQL.
type Intent struct {
	Kind      Kind
	Dashboard DashboardKind
	Summary   string
}

func FixedDashboard(kind DashboardKind, summary string) Intent {
	return Intent{Kind: KindFixedDashboard, Dashboard: kind, Summary: summary}
}

func DataQuery() Intent {
	return Intent{Kind: KindDataQuery}
}

func (i Intent) IsDashboard() bool { return i.Kind == KindFixedDashboard }

// Tag returns the wire tag for the intent.
func (i Intent) Tag() string {
	if i.Kind != KindFixedDashboard {
		return TagDataQuery
	}
	switch i.Dashboard {
	case DashboardFinancial:
		return TagFinancialDashboard
	case DashboardMedical:
		return TagMedicalDashboard
	case DashboardPayables:
		return TagPayablesSuite
	case DashboardReceivables:
		return TagReceivablesSuite
	default:
		return TagDataQuery
	}
}

// Degradation markers reported in Response.Degraded.
const (
	DegradedPollTimeout          = "poll_timeout"
	DegradedSummaryUnavailable   = "summary_unavailable"
	DegradedSynthesisUnavailable = "synthesis_unavailable"
)

// Dashboard describes the dashboard a fixed intent redirects to.
type Dashboard struct {
	Kind     DashboardKind `json:"kind"`
	GroupID  string        `json:"group_id,omitempty"`
	ReportID string        `json:"report_id,omitempty"`
}

// Response is the JSON body returned for a successful request.
type Response struct {
	Query     string     `json:"query"`
	Message   string     `json:"message"`
	Summary   string     `json:"summary"`
	SQL       string     `json:"sql"`
	Results   []Record   `json:"results"`
	Columns   []string   `json:"columns"`
	RowCount  int        `json:"row_count"`
	Dashboard *Dashboard `json:"dashboard,omitempty"`
	Degraded  string     `json:"degraded,omitempty"`
}

// WithResults copies the result set into the response, keeping empty
// collections non-nil so they encode as [].
func (r *Response) WithResults(rs ResultSet) {
	r.Columns = rs.Columns
	r.Results = rs.Rows
	if r.Columns == nil {
		r.Columns = []string{}
	}
	if r.Results == nil {
		r.Results = []Record{}
	}
	r.RowCount = len(r.Results)
}

// ExecOptions tunes a single warehouse execution.
type ExecOptions struct {
	TimeoutSeconds int
}
