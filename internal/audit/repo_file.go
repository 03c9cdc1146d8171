package audit

import (
	"context"

	"callbridge/pkg/jsonl"
)

// FileRepo appends events to a line-delimited JSON file.
type FileRepo struct {
	path string
}

func NewFileRepo(path string) *FileRepo { return &FileRepo{path: path} }

func (r *FileRepo) Append(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return jsonl.Append(r.path, e)
}

// Path is the audit log location.
func (r *FileRepo) Path() string { return r.path }
