package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/act-admin/my-github-hub/internal/domain/audit"
)

const schema = `
CREATE TABLE IF NOT EXISTS query_audit (
  id           UUID         PRIMARY KEY,
  request_id   TEXT,
  tenant_id    TEXT         NOT NULL,
  entry_point  TEXT         NOT NULL,
  intent       TEXT         NOT NULL,
  query_text   TEXT         NOT NULL,
  sql_text     TEXT,
  outcome      TEXT         NOT NULL,
  row_count    INTEGER      NOT NULL DEFAULT 0,
  degraded     TEXT,
  error_text   TEXT,
  duration_ms  BIGINT       NOT NULL DEFAULT 0,
  archive_url  TEXT,
  created_at   TIMESTAMPTZ  NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_query_audit_tenant_created ON query_audit (tenant_id, created_at);`

type AuditRepository struct{ db *sql.DB }

func NewAuditRepository(db *sql.DB) *AuditRepository { return &AuditRepository{db: db} }

func (r *AuditRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// Save insert/update audit entry
func (r *AuditRepository) Save(ctx context.Context, e *audit.Entry) error {
	const q = `
INSERT INTO query_audit
(id, request_id, tenant_id, entry_point, intent, query_text, sql_text,
 outcome, row_count, degraded, error_text, duration_ms, archive_url, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,
        $8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (id) DO UPDATE SET
 outcome = EXCLUDED.outcome,
 row_count = EXCLUDED.row_count,
 degraded = EXCLUDED.degraded,
 error_text = EXCLUDED.error_text,
 duration_ms = EXCLUDED.duration_ms,
 archive_url = EXCLUDED.archive_url;`

	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, q,
		e.ID, nullString(e.RequestID), stringOrDash(e.Tenant), string(e.EntryPoint), stringOrDash(e.Intent),
		e.Query, nullString(e.SQL),
		string(e.Outcome), e.RowCount, nullString(e.Degraded), nullString(e.Error), e.DurationMS,
		nullString(e.ArchiveURL), created,
	)
	return err
}

func stringOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
