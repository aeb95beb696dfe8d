package unitofwork

import (
	"context"

	"cradle/internal/family/events"
	"cradle/internal/family/expr"
	"cradle/internal/family/models"
	"cradle/internal/family/store"
	dErrors "cradle/pkg/domain-errors"
	"cradle/pkg/requestcontext"
)

// Update replaces the stored copy of doc. Foreign keys and transitions are
// not re-checked.
func (u *UnitOfWork) Update(ctx context.Context, doc models.Document) (n int, err error) {
	kind, err := kindOf(doc)
	if err != nil {
		return 0, err
	}
	ctx, op := u.begin(ctx, "update", kind)
	defer func() { err = op.end(err) }()

	if a, ok := doc.(*models.ActivityRecord); ok {
		if err := a.Validate(); err != nil {
			return 0, err
		}
	}
	c, err := u.collection(kind)
	if err != nil {
		return 0, err
	}
	doc.Stamp(requestcontext.Now(ctx))
	n, err = c.update(ctx, doc)
	if err != nil {
		return 0, err
	}
	u.updated(ctx, op, doc.DocumentKind(), doc.DocumentID(), doc.ParentID(), n)
	return n, nil
}

// UpdateField assigns one field on the stored copy of doc.
func (u *UnitOfWork) UpdateField(ctx context.Context, doc models.Document, field string, value any) (n int, err error) {
	kind, err := kindOf(doc)
	if err != nil {
		return 0, err
	}
	ctx, op := u.begin(ctx, "update_field", kind)
	defer func() { err = op.end(err) }()

	c, err := u.collection(kind)
	if err != nil {
		return 0, err
	}
	n, err = c.updateField(ctx, doc.DocumentID(), field, value)
	if err != nil {
		return 0, err
	}
	u.updated(ctx, op, kind, doc.DocumentID(), doc.ParentID(), n)
	return n, nil
}

// UpdateWhere assigns one field on the single record matching pred. When
// pred matches more than one record nothing is written and the call fails
// with CodeAmbiguousMatch.
func (u *UnitOfWork) UpdateWhere(ctx context.Context, kind models.Kind, pred expr.Predicate[models.Document], field string, value any) (n int, err error) {
	ctx, op := u.begin(ctx, "update_where", kind)
	defer func() { err = op.end(err) }()

	c, err := u.collection(kind)
	if err != nil {
		return 0, err
	}
	target, err := single(ctx, c, pred)
	if err != nil {
		return 0, err
	}
	n, err = c.updateField(ctx, target.DocumentID(), field, value)
	if err != nil {
		return 0, err
	}
	u.updated(ctx, op, kind, target.DocumentID(), target.ParentID(), n)
	return n, nil
}

// single resolves pred to exactly one record. Two are fetched so ambiguity
// is detected without loading the whole match set.
func single(ctx context.Context, c collection, pred expr.Predicate[models.Document]) (models.Document, error) {
	matches, err := c.findMany(ctx, pred, store.Query{Take: 2})
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, dErrors.New(dErrors.CodeNotFound, string(c.kind())+" not found")
	case 1:
		return matches[0], nil
	}
	return nil, dErrors.New(dErrors.CodeAmbiguousMatch, "predicate matched more than one "+string(c.kind()))
}

func (u *UnitOfWork) updated(ctx context.Context, op *operation, kind models.Kind, id, parentID string, n int) {
	op.affected(n)
	u.emit(ctx, events.Event{
		Type:       events.RecordUpdated,
		Kind:       kind,
		DocumentID: id,
		ParentID:   parentID,
		Count:      n,
	})
}
