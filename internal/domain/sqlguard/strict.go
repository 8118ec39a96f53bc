package sqlguard

import (
	"regexp"
	"strings"
	"sync"

	"github.com/blastrain/vitess-sqlparser/sqlparser"
)

// verifyReadOnly parses the statement and requires a single SELECT whose
// FROM clause (joins and derived tables included) names only allowed
// tables. The parser does not understand three-part names, so configured
// qualifiers are stripped first.
func (p Policy) verifyReadOnly(sql string) error {
	stmt, err := sqlparser.Parse(p.stripQualifiers(sql))
	if err != nil {
		return reject(ReasonUnverifiable)
	}
	sel, ok := stmt.(*sqlparser.Select)
	if !ok {
		return reject(ReasonUnverifiable)
	}

	var tables []string
	if !collectTables(sel.From, &tables) {
		return reject(ReasonUnverifiable)
	}
	if len(tables) == 0 {
		return reject(ReasonApprovedTables)
	}
	for _, t := range tables {
		if !p.isAllowed(t) {
			return reject(ReasonApprovedTables)
		}
	}
	return nil
}

// qualifierRes caches one compiled pattern per qualifier.
var qualifierRes sync.Map

func qualifierRe(q string) *regexp.Regexp {
	if re, ok := qualifierRes.Load(q); ok {
		return re.(*regexp.Regexp)
	}
	re, _ := qualifierRes.LoadOrStore(q, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(q)+`\.`))
	return re.(*regexp.Regexp)
}

func (p Policy) stripQualifiers(sql string) string {
	out := strings.TrimRight(sql, "; \t\r\n")
	for _, q := range p.Qualifiers {
		if q == "" {
			continue
		}
		out = qualifierRe(q).ReplaceAllString(out, "")
	}
	return out
}

// collectTables appends the base table names found in exprs. It reports
// false for any table expression it does not know how to inspect.
func collectTables(exprs sqlparser.TableExprs, out *[]string) bool {
	for _, te := range exprs {
		switch t := te.(type) {
		case *sqlparser.AliasedTableExpr:
			switch e := t.Expr.(type) {
			case sqlparser.TableName:
				*out = append(*out, e.Name.String())
			case *sqlparser.Subquery:
				sel, ok := e.Select.(*sqlparser.Select)
				if !ok || !collectTables(sel.From, out) {
					return false
				}
			default:
				return false
			}
		case *sqlparser.JoinTableExpr:
			if !collectTables(sqlparser.TableExprs{t.LeftExpr, t.RightExpr}, out) {
				return false
			}
		case *sqlparser.ParenTableExpr:
			if !collectTables(t.Exprs, out) {
				return false
			}
		default:
			return false
		}
	}
	return true
}
