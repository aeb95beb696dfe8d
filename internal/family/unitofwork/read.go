package unitofwork

import (
	"context"

	"cradle/internal/family/expr"
	"cradle/internal/family/models"
	"cradle/internal/family/store"
)

// Any reports whether a record of kind matches pred.
func (u *UnitOfWork) Any(ctx context.Context, kind models.Kind, pred expr.Predicate[models.Document]) (found bool, err error) {
	ctx, op := u.begin(ctx, "any", kind)
	defer func() { err = op.end(err) }()

	c, err := u.collection(kind)
	if err != nil {
		return false, err
	}
	return c.exists(ctx, pred)
}

// Get loads one record by id. A missing record is CodeNotFound.
func (u *UnitOfWork) Get(ctx context.Context, kind models.Kind, id string) (doc models.Document, err error) {
	ctx, op := u.begin(ctx, "get", kind)
	defer func() { err = op.end(err) }()

	c, err := u.collection(kind)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, id)
}

// GetDocument reloads doc from its collection.
func (u *UnitOfWork) GetDocument(ctx context.Context, doc models.Document) (models.Document, error) {
	kind, err := kindOf(doc)
	if err != nil {
		return nil, err
	}
	return u.Get(ctx, kind, doc.DocumentID())
}

// Find loads the single record matching pred. No match is CodeNotFound and
// more than one is CodeAmbiguousMatch.
func (u *UnitOfWork) Find(ctx context.Context, kind models.Kind, pred expr.Predicate[models.Document]) (doc models.Document, err error) {
	ctx, op := u.begin(ctx, "find", kind)
	defer func() { err = op.end(err) }()

	c, err := u.collection(kind)
	if err != nil {
		return nil, err
	}
	return c.find(ctx, pred)
}

// GetMany lists records matching pred within page.
func (u *UnitOfWork) GetMany(ctx context.Context, kind models.Kind, pred expr.Predicate[models.Document], page store.Query) (docs []models.Document, err error) {
	ctx, op := u.begin(ctx, "get_many", kind)
	defer func() { err = op.end(err) }()

	c, err := u.collection(kind)
	if err != nil {
		return nil, err
	}
	return c.findMany(ctx, pred, page)
}

// Count counts records matching pred. Pass expr.All or the zero predicate to
// count the whole collection.
func (u *UnitOfWork) Count(ctx context.Context, kind models.Kind, pred expr.Predicate[models.Document]) (n int, err error) {
	ctx, op := u.begin(ctx, "count", kind)
	defer func() { err = op.end(err) }()

	c, err := u.collection(kind)
	if err != nil {
		return 0, err
	}
	total, err := c.count(ctx, pred)
	if err != nil {
		return 0, err
	}
	return int(total), nil
}

// ProjectOne projects the single record matching pred, with the same
// not-found and ambiguity rules as Find.
func (u *UnitOfWork) ProjectOne(ctx context.Context, kind models.Kind, pred expr.Predicate[models.Document], proj expr.Projection[models.Document]) (row map[string]any, err error) {
	ctx, op := u.begin(ctx, "project_one", kind)
	defer func() { err = op.end(err) }()

	c, err := u.collection(kind)
	if err != nil {
		return nil, err
	}
	return c.project(ctx, pred, proj)
}

func (u *UnitOfWork) ProjectMany(ctx context.Context, kind models.Kind, pred expr.Predicate[models.Document], proj expr.Projection[models.Document], page store.Query) (rows []map[string]any, err error) {
	ctx, op := u.begin(ctx, "project_many", kind)
	defer func() { err = op.end(err) }()

	c, err := u.collection(kind)
	if err != nil {
		return nil, err
	}
	return c.projectMany(ctx, pred, proj, page)
}
