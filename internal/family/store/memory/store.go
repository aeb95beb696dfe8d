// Package memory is the in-process Repository used by tests and by the server
// when no database backend is configured.
package memory

import (
	"context"
	"slices"
	"sync"

	"cradle/internal/family/expr"
	"cradle/internal/family/models"
	"cradle/internal/family/store"
	"cradle/pkg/platform/sentinel"
	"cradle/pkg/requestcontext"
)

// Store keeps one collection in a map guarded by a RWMutex. Documents are
// cloned on the way in and out so callers never share memory with the store.
type Store[T models.Record] struct {
	mu    sync.RWMutex
	docs  map[string]T
	order []string
}

var (
	_ store.Repository[*models.Guardian]       = (*Store[*models.Guardian])(nil)
	_ store.Repository[*models.Dependent]      = (*Store[*models.Dependent])(nil)
	_ store.Repository[*models.ActivityRecord] = (*Store[*models.ActivityRecord])(nil)
)

func New[T models.Record]() *Store[T] {
	return &Store[T]{docs: make(map[string]T)}
}

func (s *Store[T]) Kind() models.Kind {
	var zero T
	return zero.DocumentKind()
}

func (s *Store[T]) Insert(_ context.Context, doc T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.DocumentID()]; ok {
		return sentinel.ErrConflict
	}
	s.put(doc)
	return nil
}

// InsertMany writes all documents or none.
func (s *Store[T]) InsertMany(_ context.Context, docs []T) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		id := d.DocumentID()
		if _, ok := s.docs[id]; ok {
			return 0, sentinel.ErrConflict
		}
		if _, ok := seen[id]; ok {
			return 0, sentinel.ErrConflict
		}
		seen[id] = struct{}{}
	}
	for _, d := range docs {
		s.put(d)
	}
	return len(docs), nil
}

func (s *Store[T]) put(doc T) {
	id := doc.DocumentID()
	if _, ok := s.docs[id]; !ok {
		s.order = append(s.order, id)
	}
	s.docs[id] = clone(doc)
}

func (s *Store[T]) Get(_ context.Context, id string) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		var zero T
		return zero, sentinel.ErrNotFound
	}
	return clone(doc), nil
}

func (s *Store[T]) Find(_ context.Context, pred expr.Predicate[T]) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched, err := s.match(pred, store.Query{Take: 2})
	if err != nil {
		var zero T
		return zero, err
	}
	doc, err := store.Single(matched)
	if err != nil {
		return doc, err
	}
	return clone(doc), nil
}

func (s *Store[T]) FindMany(_ context.Context, pred expr.Predicate[T], q store.Query) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched, err := s.match(pred, q)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(matched))
	for i, d := range matched {
		out[i] = clone(d)
	}
	return out, nil
}

func (s *Store[T]) Any(_ context.Context, pred expr.Predicate[T]) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched, err := s.match(pred, store.Query{Take: 1})
	if err != nil {
		return false, err
	}
	return len(matched) > 0, nil
}

func (s *Store[T]) Count(_ context.Context, pred expr.Predicate[T]) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched, err := s.match(pred, store.Query{})
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (s *Store[T]) Project(ctx context.Context, pred expr.Predicate[T], proj expr.Projection[T]) (map[string]any, error) {
	doc, err := s.Find(ctx, pred)
	if err != nil {
		return nil, err
	}
	return expr.Apply(proj, doc)
}

func (s *Store[T]) ProjectMany(ctx context.Context, pred expr.Predicate[T], proj expr.Projection[T], q store.Query) ([]map[string]any, error) {
	docs, err := s.FindMany(ctx, pred, q)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		row, err := expr.Apply(proj, d)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *Store[T]) Update(_ context.Context, doc T) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.DocumentID()]; !ok {
		return 0, sentinel.ErrNotFound
	}
	s.put(doc)
	return 1, nil
}

func (s *Store[T]) UpdateField(ctx context.Context, id string, field string, value any) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.docs[id]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	next := clone(current)
	if err := next.SetField(field, value); err != nil {
		return 0, err
	}
	next.Stamp(requestcontext.Now(ctx))
	s.docs[id] = next
	return 1, nil
}

func (s *Store[T]) Delete(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(id), nil
}

func (s *Store[T]) DeleteMany(_ context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		n += s.remove(id)
	}
	return n, nil
}

func (s *Store[T]) DeleteWhere(_ context.Context, pred expr.Predicate[T]) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched, err := s.match(pred, store.Query{})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, d := range matched {
		n += s.remove(d.DocumentID())
	}
	return n, nil
}

func (s *Store[T]) remove(id string) int {
	if _, ok := s.docs[id]; !ok {
		return 0
	}
	delete(s.docs, id)
	s.order = slices.DeleteFunc(s.order, func(o string) bool { return o == id })
	return 1
}

// match returns the stored documents (not clones) satisfying pred in query
// order. Callers hold the lock.
func (s *Store[T]) match(pred expr.Predicate[T], q store.Query) ([]T, error) {
	if pred.IsZero() {
		pred = expr.All[T]()
	}
	var out []T
	for _, id := range s.order {
		doc := s.docs[id]
		ok, err := expr.Eval(pred, doc)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, doc)
		}
	}
	if q.OrderBy != "" {
		slices.SortStableFunc(out, func(a, b T) int {
			av, _ := a.FieldValue(q.OrderBy)
			bv, _ := b.FieldValue(q.OrderBy)
			c := expr.CompareValues(av, bv)
			if q.Descending {
				return -c
			}
			return c
		})
	}
	return store.Window(out, q), nil
}

func clone[T models.Record](doc T) T {
	return doc.Clone().(T)
}
