// Package store defines the single-collection repository contract the unit of
// work consumes. A Repository is pure I/O over one collection: it enforces no
// cross-collection rules. Implementations live in memory/, mongo/ and
// postgres/.
package store

import (
	"context"

	"cradle/internal/family/expr"
	"cradle/internal/family/models"
	"cradle/pkg/platform/sentinel"
)

// Query shapes multi-result reads.
type Query struct {
	Skip int
	// Take limits the result size; zero means no limit.
	Take int
	// OrderBy names a document field; empty keeps the store's natural order.
	OrderBy    string
	Descending bool
}

// Repository is scoped to exactly one record kind and one collection.
//
// Error contract:
//   - Get, Find, Project, Update, UpdateField return sentinel.ErrNotFound when
//     nothing matched
//   - Find and Project return sentinel.ErrAmbiguous when more than one
//     document matched
//   - Insert returns sentinel.ErrConflict when the id is already taken
//   - Deletes report how many documents were removed and never fail on zero
//
// UpdateField also refreshes modifiedAt from requestcontext.Now(ctx); Update
// persists the document exactly as given.
type Repository[T models.Record] interface {
	Kind() models.Kind

	Insert(ctx context.Context, doc T) error
	InsertMany(ctx context.Context, docs []T) (int, error)

	Get(ctx context.Context, id string) (T, error)
	Find(ctx context.Context, pred expr.Predicate[T]) (T, error)
	FindMany(ctx context.Context, pred expr.Predicate[T], q Query) ([]T, error)
	Any(ctx context.Context, pred expr.Predicate[T]) (bool, error)
	Count(ctx context.Context, pred expr.Predicate[T]) (int64, error)
	Project(ctx context.Context, pred expr.Predicate[T], proj expr.Projection[T]) (map[string]any, error)
	ProjectMany(ctx context.Context, pred expr.Predicate[T], proj expr.Projection[T], q Query) ([]map[string]any, error)

	Update(ctx context.Context, doc T) (int, error)
	UpdateField(ctx context.Context, id string, field string, value any) (int, error)

	Delete(ctx context.Context, id string) (int, error)
	DeleteMany(ctx context.Context, ids []string) (int, error)
	DeleteWhere(ctx context.Context, pred expr.Predicate[T]) (int, error)
}

// Single reduces a result set to the one document a single-result read
// expects.
func Single[T any](items []T) (T, error) {
	var zero T
	switch len(items) {
	case 0:
		return zero, sentinel.ErrNotFound
	case 1:
		return items[0], nil
	}
	return zero, sentinel.ErrAmbiguous
}

// Window applies Skip and Take to an already ordered slice.
func Window[T any](items []T, q Query) []T {
	if q.Skip > 0 {
		if q.Skip >= len(items) {
			return items[:0]
		}
		items = items[q.Skip:]
	}
	if q.Take > 0 && q.Take < len(items) {
		items = items[:q.Take]
	}
	return items
}
