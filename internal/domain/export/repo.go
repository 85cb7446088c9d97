package export

import "context"

// RunRepository records processed batches.
type RunRepository interface {
	Create(ctx context.Context, run *ExportRun) error
	List(ctx context.Context, limit, offset int) ([]*ExportRun, int, error)
}

// Archive stores generated artifacts.
type Archive interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}
