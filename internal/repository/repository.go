// Package repository defines the load/save contract for quest documents and
// a file-backed implementation.
package repository

import (
	"context"
	"errors"

	"github.com/questforge/questgraph/internal/quest"
)

var (
	ErrNotFound  = errors.New("repository: document not found")
	ErrInvalidID = errors.New("repository: invalid document id")
)

// Repository persists whole quest documents.
type Repository interface {
	Load(ctx context.Context, id string) (*quest.Document, error)
	Save(ctx context.Context, id string, doc *quest.Document) error
}
