package intent

import (
	"strings"

	"github.com/act-admin/my-github-hub/internal/domain/query"
)

// rule maps a keyword set to the dashboard it redirects to.
type rule struct {
	kind     query.DashboardKind
	keywords []string
	summary  string
}

// rules are evaluated top to bottom; the first set with a hit wins.
var rules = []rule{
	{
		kind:     query.DashboardFinancial,
		keywords: []string{"financial dashboard", "finance dashboard", "financial analytics", "show financial"},
		summary: "I'm loading your **Financial Analytics Dashboard** powered by Power BI. " +
			"This dashboard provides real-time insights into your financial performance, " +
			"including revenue trends, expense analysis, and key financial metrics.",
	},
	{
		kind:     query.DashboardMedical,
		keywords: []string{"medical dashboard", "healthcare dashboard", "medical analytics", "patient dashboard"},
		summary: "I'm loading your **Medical Analytics Dashboard** powered by Power BI. " +
			"This dashboard provides comprehensive healthcare analytics including patient outcomes, " +
			"treatment efficacy, and operational metrics.",
	},
	{
		kind:     query.DashboardPayables,
		keywords: []string{"invoice", "accounts payable", "ap automation", "vendor payment"},
		summary: "I'm loading your **Accounts Payable Automation Suite**. " +
			"This intelligent dashboard helps you manage invoices, track approval workflows, " +
			"and automate vendor payments.",
	},
	{
		kind:     query.DashboardReceivables,
		keywords: []string{"receivable", "accounts receivable", "ar automation", "customer payment", "collections"},
		summary: "I'm loading your **Accounts Receivable Automation Suite**. " +
			"This intelligent dashboard helps you track customer payments, manage collections, " +
			"and optimize your receivables process.",
	},
}

var dataKeywords = []string{
	"show", "list", "get", "find", "how many", "count", "total", "sum", "average",
	"top", "bottom", "highest", "lowest", "transactions", "records", "data",
	"revenue", "sales", "expenses", "profit", "balance", "customers", "orders",
	"patients", "claims", "payments", "vendors", "amount", "compare", "comparison",
	"cost", "costs", "treatment", "medical", "financial", "report", "reports",
	"asthma", "arthritis", "diagnosis", "health", "what", "which", "query",
	"select", "table", "tables", "columns", "all", "give", "fetch", "display",
}

// Classify resolves the intent of a raw query. It never fails: text that
// matches no dashboard keyword is a data query.
func Classify(text string) query.Intent {
	lower := strings.ToLower(text)
	for _, r := range rules {
		if containsAny(lower, r.keywords) {
			return query.FixedDashboard(r.kind, r.summary)
		}
	}
	return query.DataQuery()
}

// LooksLikeDataRequest is the second-stage filter deciding whether a data
// query is worth a SQL synthesis call. Matching is substring based and
// deliberately loose.
func LooksLikeDataRequest(text string) bool {
	return containsAny(strings.ToLower(text), dataKeywords)
}

// CannedSummary returns the fixed summary for a dashboard kind.
func CannedSummary(kind query.DashboardKind) (string, bool) {
	for _, r := range rules {
		if r.kind == kind {
			return r.summary, true
		}
	}
	return "", false
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
