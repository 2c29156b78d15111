// Package remote defines the remote row-store collaborator and its
// HTTP implementation.
package remote

import "context"

// Row is one denormalized remote row. Rows are identified by their
// "id" field.
type Row = map[string]interface{}

// RowStore is the contract the sync core has with the hosted backend.
// The concrete transport is irrelevant to the core's correctness; the
// facade depends only on this shape.
type RowStore interface {
	// Select returns the rows of a table matching the filter. A nil or
	// empty filter returns the whole table.
	Select(ctx context.Context, table string, filter map[string]string) ([]Row, error)

	// Insert creates a row and returns the stored representation.
	Insert(ctx context.Context, table string, row Row) (Row, error)

	// Update applies a partial patch to the row with the given id.
	Update(ctx context.Context, table, id string, patch Row) error

	// Delete removes the row with the given id.
	Delete(ctx context.Context, table, id string) error
}
