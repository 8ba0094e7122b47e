package route

import "context"

// Store is the persistence collaborator for route definitions. Rows carry
// predicate and filter lists as opaque serialized blobs; the table layer
// owns (de)serialization.
type Store interface {
	// ListEnabled returns all enabled rows in stable id-ascending order.
	ListEnabled(ctx context.Context) ([]Row, error)
	// List returns every stored row, enabled or not, in id-ascending order.
	List(ctx context.Context) ([]Row, error)
	// Get returns the row with the given id.
	Get(ctx context.Context, id string) (Row, bool, error)
	// Upsert creates or replaces a row by id.
	Upsert(ctx context.Context, row Row) error
	// Delete removes a row by id. Deleting an absent id is not an error.
	Delete(ctx context.Context, id string) error
	// Close releases the underlying storage.
	Close() error
}
