package prompt

import (
	"fmt"
	"strings"
)

// Table is one warehouse table exposed to SQL generation.
type Table struct {
	Name    string
	Purpose string
}

// Schema describes what the model may query.
type Schema struct {
	Database string
	Schema   string
	Tables   []Table
}

// DefaultSchema is the demo warehouse layout.
func DefaultSchema() Schema {
	return Schema{
		Database: "FINANCIAL_DEMO",
		Schema:   "PUBLIC",
		Tables: []Table{
			{Name: "FINANCIAL_REPORTS", Purpose: "Contains financial report data (reports, summaries, financial statements)"},
			{Name: "FINANCIAL_TRANSACTIONS", Purpose: "Contains all financial transactions (transaction records, amounts, dates, types)"},
			{Name: "MEDICAL_RECORDS", Purpose: "Contains patient medical records (patient data, treatments, diagnoses)"},
			{Name: "MEDICAL_REPORTS", Purpose: "Contains medical reports and analytics (healthcare metrics, outcomes)"},
		},
	}
}

// TableNames returns the bare table names, in order.
func (s Schema) TableNames() []string {
	out := make([]string, 0, len(s.Tables))
	for _, t := range s.Tables {
		out = append(out, t.Name)
	}
	return out
}

// Qualifier is the DATABASE.SCHEMA prefix used in generated SQL.
func (s Schema) Qualifier() string {
	return s.Database + "." + s.Schema
}

// Context renders the schema description embedded in the SQL prompt.
func (s Schema) Context() string {
	var b strings.Builder
	b.WriteString("You have access to a Snowflake data warehouse with the following schema:\n\n")
	fmt.Fprintf(&b, "Database: %s\nSchema: %s\n\nTables available:\n", s.Database, s.Schema)
	for _, t := range s.Tables {
		fmt.Fprintf(&b, "- %s - %s\n", t.Name, t.Purpose)
	}
	fmt.Fprintf(&b, `
When generating SQL:
- Use proper Snowflake SQL syntax
- Always use fully qualified table names: %s.TABLE_NAME
- Limit results to 100 rows unless user specifies otherwise
- Use appropriate aggregations and groupings
- Format dates properly
- Use SELECT * to explore table structure if unsure about columns
`, s.Qualifier())
	return b.String()
}

// GetSQLSystemPrompt provides strict directions for SQL-only output.
func GetSQLSystemPrompt(s Schema) string {
	return `You are a SQL expert for Snowflake data warehouse. Generate ONLY the SQL query, no explanations.
` + s.Context() + `
Rules:
- Return ONLY the SQL query, nothing else
- Do not include markdown code blocks
- Ensure the query is valid Snowflake SQL
- Only write read-only SELECT statements against the tables listed above
- Always limit to 100 rows unless specified
- Use proper date formatting`
}

func GetSQLUserPrompt(query string) string {
	return "Generate a SQL query for: " + query
}
