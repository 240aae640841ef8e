// Package store persists compilation records: one summary per pipeline run,
// queryable later by ID. The server uses it to back GET endpoints; the CLI
// runs without one.
package store

import (
	"context"
	"time"

	"github.com/soldep/soldep/pkg/errors"
	"github.com/soldep/soldep/pkg/resolve"
)

// Record summarizes one compilation request.
type Record struct {
	ID              string        `json:"id" bson:"_id"`
	CreatedAt       time.Time     `json:"created_at" bson:"created_at"`
	EntryFile       string        `json:"entry_file" bson:"entry_file"`
	Success         bool          `json:"success" bson:"success"`
	Stats           resolve.Stats `json:"stats" bson:"stats"`
	DiagnosticCount int           `json:"diagnostic_count" bson:"diagnostic_count"`
	Unresolved      []string      `json:"unresolved,omitempty" bson:"unresolved,omitempty"`
}

// Store persists and retrieves compilation records.
type Store interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context, limit int) ([]Record, error)
	Close(ctx context.Context) error
}

// ErrNotFound reports a missing record ID.
func ErrNotFound(id string) error {
	return errors.New(errors.ErrCodeNotFound, "no compilation record with id %s", id)
}
