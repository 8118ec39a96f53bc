package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/act-admin/my-github-hub/internal/domain/audit"
)

const schema = `
CREATE TABLE IF NOT EXISTS query_audit (
  id           VARCHAR(36)  NOT NULL PRIMARY KEY,
  request_id   VARCHAR(128) NULL,
  tenant_id    VARCHAR(64)  NOT NULL,
  entry_point  VARCHAR(16)  NOT NULL,
  intent       VARCHAR(64)  NOT NULL,
  query_text   TEXT         NOT NULL,
  sql_text     TEXT         NULL,
  outcome      VARCHAR(16)  NOT NULL,
  row_count    INT          NOT NULL DEFAULT 0,
  degraded     VARCHAR(32)  NULL,
  error_text   TEXT         NULL,
  duration_ms  BIGINT       NOT NULL DEFAULT 0,
  archive_url  VARCHAR(512) NULL,
  created_at   DATETIME(3)  NOT NULL,
  KEY idx_query_audit_tenant_created (tenant_id, created_at)
)`

// AuditRepository is the write-only MySQL sink for audit entries.
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// EnsureSchema creates the audit table when missing.
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
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 outcome=VALUES(outcome), row_count=VALUES(row_count), degraded=VALUES(degraded),
 error_text=VALUES(error_text), duration_ms=VALUES(duration_ms), archive_url=VALUES(archive_url);
`
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
