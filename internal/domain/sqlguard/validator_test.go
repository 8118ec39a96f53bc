package sqlguard

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/act-admin/my-github-hub/internal/domain/query"
)

func rejectionReason(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, query.ErrValidationRejected)
	var rej *Rejection
	require.True(t, errors.As(err, &rej))
	return rej.Reason
}

func TestValidate_SelectOnly(t *testing.T) {
	p := DefaultPolicy()

	for _, sql := range []string{
		"DROP TABLE FINANCIAL_TRANSACTIONS",
		"WITH x AS (SELECT 1) SELECT * FROM FINANCIAL_TRANSACTIONS",
		"",
		"   ",
		"show tables",
	} {
		_, err := p.Validate(sql)
		assert.Equal(t, ReasonSelectOnly, rejectionReason(t, err), sql)
	}

	v, err := p.Validate("   select * from FINANCIAL_DEMO.PUBLIC.FINANCIAL_TRANSACTIONS")
	require.NoError(t, err)
	assert.False(t, v.IsZero())
}

func TestValidate_ForbiddenKeywords(t *testing.T) {
	p := DefaultPolicy()

	cases := []struct{ sql, want string }{
		{"SELECT * FROM FINANCIAL_TRANSACTIONS; DROP TABLE FINANCIAL_REPORTS", "DROP operations are not allowed"},
		{"SELECT * FROM FINANCIAL_TRANSACTIONS WHERE x IN (DELETE FROM y)", "DELETE operations are not allowed"},
		{"select * from financial_reports where 1 = 1 and exec('x') is not null", "EXEC operations are not allowed"},
		{"SELECT call FROM MEDICAL_RECORDS", "CALL operations are not allowed"},
	}
	for _, tc := range cases {
		_, err := p.Validate(tc.sql)
		assert.Equal(t, tc.want, rejectionReason(t, err), tc.sql)
	}
}

func TestValidate_KeywordWordBoundary(t *testing.T) {
	p := DefaultPolicy()

	for _, sql := range []string{
		"SELECT DROPDOWN_FLAG FROM FINANCIAL_TRANSACTIONS",
		"SELECT CREATED_AT, UPDATED_BY FROM FINANCIAL_REPORTS",
		"SELECT RECALL_COUNT FROM MEDICAL_RECORDS",
	} {
		_, err := p.Validate(sql)
		assert.NoError(t, err, sql)
	}
}

func TestValidate_AllowList(t *testing.T) {
	p := DefaultPolicy()

	for _, sql := range []string{
		"SELECT * FROM USERS",
		"SELECT * FROM FINANCIAL_TRANSACTIONS_ARCHIVE",
		"SELECT 1",
	} {
		_, err := p.Validate(sql)
		assert.Equal(t, ReasonApprovedTables, rejectionReason(t, err), sql)
	}

	for _, sql := range []string{
		"SELECT * FROM FINANCIAL_TRANSACTIONS",
		"SELECT * FROM financial_demo.public.medical_reports",
		"SELECT r.* FROM FINANCIAL_DEMO.PUBLIC.MEDICAL_RECORDS r",
	} {
		_, err := p.Validate(sql)
		assert.NoError(t, err, sql)
	}
}

func TestValidate_Complexity(t *testing.T) {
	p := DefaultPolicy()

	ok := "SELECT COUNT(*), SUM(AMOUNT), AVG(AMOUNT), MIN(AMOUNT), MAX(AMOUNT) FROM FINANCIAL_TRANSACTIONS"
	_, err := p.Validate(ok)
	assert.NoError(t, err)

	tooMany := "SELECT COUNT(*), SUM(AMOUNT), AVG(AMOUNT), MIN(AMOUNT), MAX(AMOUNT), MAX(ID) FROM FINANCIAL_TRANSACTIONS"
	_, err = p.Validate(tooMany)
	assert.Equal(t, ReasonTooComplex, rejectionReason(t, err))
}

func TestValidate_InjectionPatterns(t *testing.T) {
	p := DefaultPolicy()

	for _, sql := range []string{
		"SELECT * FROM FINANCIAL_TRANSACTIONS -- trailing",
		"SELECT * FROM FINANCIAL_TRANSACTIONS /* hidden */",
		"SELECT * FROM FINANCIAL_TRANSACTIONS; select * from MEDICAL_RECORDS",
		"SELECT A FROM FINANCIAL_TRANSACTIONS UNION  ALL SELECT A FROM MEDICAL_RECORDS",
		"SELECT * FROM FINANCIAL_TRANSACTIONS WHERE ID = 5 OR 1=1",
		"SELECT * FROM FINANCIAL_TRANSACTIONS WHERE ID = 5 and 1 = 1",
	} {
		_, err := p.Validate(sql)
		assert.Equal(t, ReasonPattern, rejectionReason(t, err), sql)
	}

	_, err := p.Validate("SELECT A FROM FINANCIAL_TRANSACTIONS UNION SELECT A FROM MEDICAL_RECORDS")
	assert.NoError(t, err)
}

func TestValidate_AppendsLimitOnce(t *testing.T) {
	p := DefaultPolicy()

	cases := []struct{ in, want string }{
		{"SELECT * FROM FINANCIAL_TRANSACTIONS", "SELECT * FROM FINANCIAL_TRANSACTIONS LIMIT 100"},
		{"SELECT * FROM FINANCIAL_TRANSACTIONS;", "SELECT * FROM FINANCIAL_TRANSACTIONS LIMIT 100"},
		{"  SELECT * FROM FINANCIAL_TRANSACTIONS ;  \n", "SELECT * FROM FINANCIAL_TRANSACTIONS LIMIT 100"},
		{"SELECT * FROM FINANCIAL_TRANSACTIONS LIMIT 10", "SELECT * FROM FINANCIAL_TRANSACTIONS LIMIT 10"},
		{"SELECT * FROM FINANCIAL_TRANSACTIONS limit 10 offset 20;", "SELECT * FROM FINANCIAL_TRANSACTIONS limit 10 offset 20"},
		{"SELECT * FROM FINANCIAL_TRANSACTIONS FETCH FIRST 5 ROWS ONLY", "SELECT * FROM FINANCIAL_TRANSACTIONS FETCH FIRST 5 ROWS ONLY"},
		{"SELECT * FROM FINANCIAL_TRANSACTIONS LIMIT ALL", "SELECT * FROM FINANCIAL_TRANSACTIONS LIMIT 100"},
		{"SELECT * FROM FINANCIAL_TRANSACTIONS limit all;", "SELECT * FROM FINANCIAL_TRANSACTIONS LIMIT 100"},
		{"SELECT * FROM FINANCIAL_TRANSACTIONS LIMIT NULL OFFSET 20", "SELECT * FROM FINANCIAL_TRANSACTIONS LIMIT 100 OFFSET 20"},
	}
	for _, tc := range cases {
		v, err := p.Validate(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, v.SQL(), tc.in)
		assert.Equal(t, tc.in, v.Original())
	}
}

func TestValidate_EmbeddedLimitDoesNotSuppressCap(t *testing.T) {
	p := DefaultPolicy()

	for _, in := range []string{
		"SELECT * FROM FINANCIAL_TRANSACTIONS WHERE NOTE = 'NOLIMIT'",
		"SELECT * FROM FINANCIAL_TRANSACTIONS WHERE NOTE = 'LIMIT 5'",
		"SELECT LIMIT_AMOUNT FROM FINANCIAL_TRANSACTIONS",
		"SELECT * FROM (SELECT * FROM FINANCIAL_TRANSACTIONS LIMIT 5000) T",
	} {
		v, err := p.Validate(in)
		require.NoError(t, err, in)
		assert.True(t, strings.HasSuffix(v.SQL(), " LIMIT 100"), v.SQL())
		assert.Equal(t, 1, strings.Count(v.SQL(), " LIMIT 100"), v.SQL())
	}
}

func TestValidate_Idempotent(t *testing.T) {
	p := DefaultPolicy()

	first, err := p.Validate("SELECT * FROM MEDICAL_REPORTS")
	require.NoError(t, err)
	second, err := p.Validate(first.SQL())
	require.NoError(t, err)
	assert.Equal(t, first.SQL(), second.SQL())
}

func TestValidate_ZeroValue(t *testing.T) {
	var v Validated
	assert.True(t, v.IsZero())
	assert.Empty(t, v.SQL())
}

func TestValidate_Strict(t *testing.T) {
	p := DefaultPolicy()
	p.Strict = true

	v, err := p.Validate("SELECT t.ID, r.TITLE FROM FINANCIAL_DEMO.PUBLIC.FINANCIAL_TRANSACTIONS t JOIN FINANCIAL_DEMO.PUBLIC.FINANCIAL_REPORTS r ON t.ID = r.ID")
	require.NoError(t, err)
	assert.True(t, v.Strict())

	// Heuristics pass because one approved table is named, the join target is not approved.
	_, err = p.Validate("SELECT * FROM FINANCIAL_TRANSACTIONS t JOIN USERS u ON t.USER_ID = u.ID")
	assert.Equal(t, ReasonApprovedTables, rejectionReason(t, err))

	_, err = p.Validate("SELECT * FROM (SELECT * FROM USERS) FINANCIAL_TRANSACTIONS")
	assert.Equal(t, ReasonApprovedTables, rejectionReason(t, err))

	_, err = p.Validate("SELECT FINANCIAL_TRANSACTIONS FROM")
	assert.Equal(t, ReasonUnverifiable, rejectionReason(t, err))
}

func TestValidate_StrictOffLeavesHeuristicsOnly(t *testing.T) {
	p := DefaultPolicy()

	_, err := p.Validate("SELECT * FROM FINANCIAL_TRANSACTIONS t JOIN USERS u ON t.USER_ID = u.ID")
	assert.NoError(t, err)
}

func TestStripQualifiers_CompilesOncePerQualifier(t *testing.T) {
	p := DefaultPolicy()
	p.Qualifiers = []string{"FINANCIAL_DEMO.PUBLIC", "OTHER_DB.SALES"}

	got := p.stripQualifiers("SELECT * FROM financial_demo.public.FINANCIAL_TRANSACTIONS JOIN OTHER_DB.SALES.FINANCIAL_REPORTS;")
	assert.Equal(t, "SELECT * FROM FINANCIAL_TRANSACTIONS JOIN FINANCIAL_REPORTS", got)

	first := qualifierRe("FINANCIAL_DEMO.PUBLIC")
	p.stripQualifiers("SELECT * FROM FINANCIAL_DEMO.PUBLIC.FINANCIAL_TRANSACTIONS")
	assert.Same(t, first, qualifierRe("FINANCIAL_DEMO.PUBLIC"))
}
