package adapters

import (
	"context"
	"errors"

	"github.com/njit/courier/domain"
)

var ErrNotFound = errors.New("file record not found")

// FileStore persists the records of uploaded files.
type FileStore interface {
	// InsertFile stores record and returns its new id. Id is ignored on input.
	InsertFile(ctx context.Context, record domain.FileRecord) (int64, error)
	GetFile(ctx context.Context, id int64) (domain.FileRecord, error)
	// ListFiles returns every record ordered by id.
	ListFiles(ctx context.Context) ([]domain.FileRecord, error)
	CountFiles(ctx context.Context) (int, error)
	Close() error
}
