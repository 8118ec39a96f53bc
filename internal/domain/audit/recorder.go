package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const recordTimeout = 5 * time.Second

// Recorder writes audit entries and snapshots. Every failure is logged and
// swallowed; a nil Recorder records nothing.
type Recorder struct {
	repo    Repository
	archive Archive
	log     zerolog.Logger
}

// NewRecorder accepts nil for either sink.
func NewRecorder(repo Repository, archive Archive, log zerolog.Logger) *Recorder {
	return &Recorder{repo: repo, archive: archive, log: log}
}

func (r *Recorder) Enabled() bool {
	return r != nil && (r.repo != nil || r.archive != nil)
}

// Record stores e, archiving snapshot first when an archive is configured
// so the entry can carry its URL.
func (r *Recorder) Record(ctx context.Context, e *Entry, snapshot *Snapshot) {
	if !r.Enabled() || e == nil {
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	// request context may already be cancelled by the time we get here
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if r.archive != nil && snapshot != nil {
		body, err := json.Marshal(snapshot)
		if err != nil {
			r.log.Warn().Err(err).Str("audit_id", e.ID).Msg("audit snapshot encode failed")
		} else {
			url, err := r.archive.Put(ctx, ArchiveKey(e), body, "application/json")
			if err != nil {
				r.log.Warn().Err(err).Str("audit_id", e.ID).Msg("audit snapshot upload failed")
			} else {
				e.ArchiveURL = url
			}
		}
	}

	if r.repo != nil {
		if err := r.repo.Save(ctx, e); err != nil {
			r.log.Warn().Err(err).Str("audit_id", e.ID).Msg("audit entry save failed")
		}
	}
}
