package intent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/act-admin/my-github-hub/internal/domain/query"
)

func TestKeywordSetsAreDisjoint(t *testing.T) {
	for i := range rules {
		for j := range rules {
			if i == j {
				continue
			}
			for _, a := range rules[i].keywords {
				for _, b := range rules[j].keywords {
					assert.False(t, strings.Contains(a, b),
						"%s keyword %q overlaps %s keyword %q", rules[i].kind, a, rules[j].kind, b)
				}
			}
		}
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		text string
		kind query.Kind
		dash query.DashboardKind
		tag  string
	}{
		{"Show financial dashboard", query.KindFixedDashboard, query.DashboardFinancial, query.TagFinancialDashboard},
		{"open the HEALTHCARE DASHBOARD please", query.KindFixedDashboard, query.DashboardMedical, query.TagMedicalDashboard},
		{"I need to process an invoice", query.KindFixedDashboard, query.DashboardPayables, query.TagPayablesSuite},
		{"what about collections this month", query.KindFixedDashboard, query.DashboardReceivables, query.TagReceivablesSuite},
		{"total revenue by month", query.KindDataQuery, "", query.TagDataQuery},
		{"", query.KindDataQuery, "", query.TagDataQuery},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			got := Classify(tc.text)
			assert.Equal(t, tc.kind, got.Kind)
			assert.Equal(t, tc.dash, got.Dashboard)
			assert.Equal(t, tc.tag, got.Tag())
			if got.IsDashboard() {
				assert.NotEmpty(t, got.Summary)
			}
		})
	}
}

func TestClassify_PriorityOrder(t *testing.T) {
	got := Classify("financial dashboard with invoice and receivable totals")
	assert.Equal(t, query.DashboardFinancial, got.Dashboard)

	got = Classify("medical dashboard invoice")
	assert.Equal(t, query.DashboardMedical, got.Dashboard)

	got = Classify("vendor payment versus customer payment")
	assert.Equal(t, query.DashboardPayables, got.Dashboard)
}

func TestClassify_Deterministic(t *testing.T) {
	inputs := []string{"show financial dashboard", "top 10 patients", "accounts receivable aging", "hello"}
	for _, in := range inputs {
		first := Classify(in)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, Classify(in))
		}
	}
}

func TestClassify_FinancialDashboardSummary(t *testing.T) {
	got := Classify("show financial dashboard")
	require.True(t, got.IsDashboard())
	assert.Contains(t, got.Summary, "**Financial Analytics Dashboard**")

	summary, ok := CannedSummary(query.DashboardFinancial)
	require.True(t, ok)
	assert.Equal(t, summary, got.Summary)
}

func TestLooksLikeDataRequest(t *testing.T) {
	assert.True(t, LooksLikeDataRequest("How many claims were filed?"))
	assert.True(t, LooksLikeDataRequest("DISPLAY asthma patients"))
	assert.False(t, LooksLikeDataRequest("hello there"))
	assert.False(t, LooksLikeDataRequest(""))
}
