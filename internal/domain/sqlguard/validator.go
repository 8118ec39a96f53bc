package sqlguard

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/act-admin/my-github-hub/internal/domain/query"
)

// Rejection reasons. They are shown to callers verbatim.
const (
	ReasonSelectOnly     = "Only SELECT queries are allowed"
	ReasonApprovedTables = "Query must use approved tables only"
	ReasonTooComplex     = "Query is too complex"
	ReasonPattern        = "Query contains disallowed pattern"
	ReasonUnverifiable   = "Query could not be verified as a read-only statement"
)

var forbiddenKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "CREATE", "ALTER", "TRUNCATE",
	"EXEC", "EXECUTE", "GRANT", "REVOKE", "MERGE", "CALL",
}

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`--`),
	regexp.MustCompile(`/\*`),
	regexp.MustCompile(`(?i);\s*SELECT`),
	regexp.MustCompile(`(?i)UNION\s+ALL`),
	regexp.MustCompile(`(?i)\bOR\s+1\s*=\s*1`),
	regexp.MustCompile(`(?i)\bAND\s+1\s*=\s*1`),
}

var (
	wordRe           = regexp.MustCompile(`[A-Za-z0-9_]+`)
	trailingLimitRe  = regexp.MustCompile(`(?is)(\bLIMIT\s+\d+(\s+OFFSET\s+\d+)?|\bFETCH\s+(FIRST|NEXT)\s+\d+\s+ROWS?\s+ONLY)\s*$`)
	// LIMIT ALL and LIMIT NULL mean no limit at all
	unboundedLimitRe = regexp.MustCompile(`(?is)\bLIMIT\s+(?:ALL|NULL)(\s+OFFSET\s+\d+)?\s*$`)
)

// Policy is the read-only statement policy applied to every statement
// before it reaches the warehouse.
type Policy struct {
	AllowedTables []string
	// MaxOpenParens bounds the number of "(" in a statement. It is a cheap
	// stand-in for subquery depth and over-counts function calls.
	MaxOpenParens int
	DefaultLimit  int
	// Strict additionally requires the statement to parse as a single SELECT
	// whose FROM clause only names allowed tables.
	Strict bool
	// Qualifiers are database/schema prefixes removed before strict parsing.
	Qualifiers []string
}

func DefaultPolicy() Policy {
	return Policy{
		AllowedTables: []string{"FINANCIAL_TRANSACTIONS", "FINANCIAL_REPORTS", "MEDICAL_RECORDS", "MEDICAL_REPORTS"},
		MaxOpenParens: 5,
		DefaultLimit:  100,
		Qualifiers:    []string{"FINANCIAL_DEMO.PUBLIC"},
	}
}

// Validated is a statement that passed Policy.Validate. The zero value is
// never valid and is refused by executors.
type Validated struct {
	sql      string
	original string
	strict   bool
}

// SQL returns the statement to execute, row cap included.
func (v Validated) SQL() string { return v.sql }

// Original returns the statement as submitted.
func (v Validated) Original() string { return v.original }

// Strict reports whether the statement was also verified by the parser.
func (v Validated) Strict() bool { return v.strict }

func (v Validated) IsZero() bool { return v.sql == "" }

// Rejection is returned when a statement fails the policy.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string { return r.Reason }

func (r *Rejection) Unwrap() error { return query.ErrValidationRejected }

func reject(reason string) error {
	return &Rejection{Reason: reason}
}

// Validate checks sql against the policy, stopping at the first failed
// check, and returns the statement with a row cap applied.
func (p Policy) Validate(sql string) (Validated, error) {
	trimmed := strings.TrimSpace(sql)
	if !strings.HasPrefix(strings.ToUpper(trimmed), "SELECT") {
		return Validated{}, reject(ReasonSelectOnly)
	}

	words := wordSet(trimmed)
	for _, kw := range forbiddenKeywords {
		if _, ok := words[kw]; ok {
			return Validated{}, reject(fmt.Sprintf("%s operations are not allowed", kw))
		}
	}

	if !p.referencesAllowedTable(words) {
		return Validated{}, reject(ReasonApprovedTables)
	}

	if p.MaxOpenParens > 0 && strings.Count(trimmed, "(") > p.MaxOpenParens {
		return Validated{}, reject(ReasonTooComplex)
	}

	for _, re := range injectionPatterns {
		if re.MatchString(trimmed) {
			return Validated{}, reject(ReasonPattern)
		}
	}

	if p.Strict {
		if err := p.verifyReadOnly(trimmed); err != nil {
			return Validated{}, err
		}
	}

	return Validated{sql: p.applyLimit(trimmed), original: sql, strict: p.Strict}, nil
}

// applyLimit appends the default row cap unless the statement already ends
// with its own limit clause. A LIMIT anywhere else does not count, and a
// trailing unbounded LIMIT is replaced by the cap.
func (p Policy) applyLimit(sql string) string {
	s := strings.TrimRight(sql, "; \t\r\n")
	if p.DefaultLimit <= 0 || trailingLimitRe.MatchString(s) {
		return s
	}
	if loc := unboundedLimitRe.FindStringSubmatchIndex(s); loc != nil {
		offset := ""
		if loc[2] >= 0 {
			offset = s[loc[2]:loc[3]]
		}
		return fmt.Sprintf("%sLIMIT %d%s", s[:loc[0]], p.DefaultLimit, offset)
	}
	return fmt.Sprintf("%s LIMIT %d", s, p.DefaultLimit)
}

func (p Policy) referencesAllowedTable(words map[string]struct{}) bool {
	for _, t := range p.AllowedTables {
		if _, ok := words[strings.ToUpper(t)]; ok {
			return true
		}
	}
	return false
}

func (p Policy) isAllowed(table string) bool {
	for _, t := range p.AllowedTables {
		if strings.EqualFold(t, table) {
			return true
		}
	}
	return false
}

// wordSet returns every identifier-like token of sql, upper-cased.
func wordSet(sql string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range wordRe.FindAllString(sql, -1) {
		out[strings.ToUpper(w)] = struct{}{}
	}
	return out
}
