package audit

import "context"

// Repository port (persistence of audit entries, write only)
type Repository interface {
	Save(ctx context.Context, e *Entry) error
}

// Archive port (object storage for response snapshots)
type Archive interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}
