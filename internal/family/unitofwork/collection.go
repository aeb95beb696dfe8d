package unitofwork

import (
	"context"

	"cradle/internal/family/expr"
	"cradle/internal/family/models"
	"cradle/internal/family/store"
	dErrors "cradle/pkg/domain-errors"
)

// collection erases the record type of one repository so the unit of work
// can dispatch on a runtime Kind. Predicates and projections arrive written
// against models.Document and are retargeted to the concrete type here.
type collection interface {
	kind() models.Kind
	get(ctx context.Context, id string) (models.Document, error)
	find(ctx context.Context, pred expr.Predicate[models.Document]) (models.Document, error)
	findMany(ctx context.Context, pred expr.Predicate[models.Document], q store.Query) ([]models.Document, error)
	exists(ctx context.Context, pred expr.Predicate[models.Document]) (bool, error)
	count(ctx context.Context, pred expr.Predicate[models.Document]) (int64, error)
	project(ctx context.Context, pred expr.Predicate[models.Document], proj expr.Projection[models.Document]) (map[string]any, error)
	projectMany(ctx context.Context, pred expr.Predicate[models.Document], proj expr.Projection[models.Document], q store.Query) ([]map[string]any, error)
	update(ctx context.Context, doc models.Document) (int, error)
	updateField(ctx context.Context, id, field string, value any) (int, error)
	delete(ctx context.Context, id string) (int, error)
	deleteMany(ctx context.Context, ids []string) (int, error)
	deleteWhere(ctx context.Context, pred expr.Predicate[models.Document]) (int, error)
}

type typed[T models.Record] struct {
	repo store.Repository[T]
}

func (u *UnitOfWork) collection(kind models.Kind) (collection, error) {
	switch kind {
	case models.KindGuardian:
		return typed[*models.Guardian]{repo: u.guardians}, nil
	case models.KindDependent:
		return typed[*models.Dependent]{repo: u.dependents}, nil
	case models.KindActivity:
		return typed[*models.ActivityRecord]{repo: u.activities}, nil
	}
	return nil, unsupportedKind(kind)
}

// retarget specializes an abstract predicate. The zero predicate matches
// everything.
func retarget[T models.Record](pred expr.Predicate[models.Document]) (expr.Predicate[T], error) {
	if pred.IsZero() {
		return expr.All[T](), nil
	}
	return expr.Retarget[T](pred)
}

func (c typed[T]) kind() models.Kind {
	return c.repo.Kind()
}

func (c typed[T]) get(ctx context.Context, id string) (models.Document, error) {
	doc, err := c.repo.Get(ctx, id)
	if err != nil {
		return nil, translate(err, c.kind(), "get "+string(c.kind()))
	}
	return doc, nil
}

func (c typed[T]) find(ctx context.Context, pred expr.Predicate[models.Document]) (models.Document, error) {
	p, err := retarget[T](pred)
	if err != nil {
		return nil, err
	}
	doc, err := c.repo.Find(ctx, p)
	if err != nil {
		return nil, translate(err, c.kind(), "find "+string(c.kind()))
	}
	return doc, nil
}

func (c typed[T]) findMany(ctx context.Context, pred expr.Predicate[models.Document], q store.Query) ([]models.Document, error) {
	p, err := retarget[T](pred)
	if err != nil {
		return nil, err
	}
	docs, err := c.repo.FindMany(ctx, p, q)
	if err != nil {
		return nil, translate(err, c.kind(), "find "+string(c.kind()))
	}
	out := make([]models.Document, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	return out, nil
}

func (c typed[T]) exists(ctx context.Context, pred expr.Predicate[models.Document]) (bool, error) {
	p, err := retarget[T](pred)
	if err != nil {
		return false, err
	}
	ok, err := c.repo.Any(ctx, p)
	if err != nil {
		return false, translate(err, c.kind(), "any "+string(c.kind()))
	}
	return ok, nil
}

func (c typed[T]) count(ctx context.Context, pred expr.Predicate[models.Document]) (int64, error) {
	p, err := retarget[T](pred)
	if err != nil {
		return 0, err
	}
	n, err := c.repo.Count(ctx, p)
	if err != nil {
		return 0, translate(err, c.kind(), "count "+string(c.kind()))
	}
	return n, nil
}

func (c typed[T]) project(ctx context.Context, pred expr.Predicate[models.Document], proj expr.Projection[models.Document]) (map[string]any, error) {
	p, err := retarget[T](pred)
	if err != nil {
		return nil, err
	}
	pr, err := expr.RetargetProjection[T](proj)
	if err != nil {
		return nil, err
	}
	row, err := c.repo.Project(ctx, p, pr)
	if err != nil {
		return nil, translate(err, c.kind(), "project "+string(c.kind()))
	}
	return row, nil
}

func (c typed[T]) projectMany(ctx context.Context, pred expr.Predicate[models.Document], proj expr.Projection[models.Document], q store.Query) ([]map[string]any, error) {
	p, err := retarget[T](pred)
	if err != nil {
		return nil, err
	}
	pr, err := expr.RetargetProjection[T](proj)
	if err != nil {
		return nil, err
	}
	rows, err := c.repo.ProjectMany(ctx, p, pr, q)
	if err != nil {
		return nil, translate(err, c.kind(), "project "+string(c.kind()))
	}
	return rows, nil
}

func (c typed[T]) update(ctx context.Context, doc models.Document) (int, error) {
	t, ok := doc.(T)
	if !ok {
		return 0, dErrors.New(dErrors.CodeUnsupportedKind, "document does not belong to "+string(c.kind()))
	}
	n, err := c.repo.Update(ctx, t)
	if err != nil {
		return 0, translate(err, c.kind(), "update "+string(c.kind()))
	}
	return n, nil
}

func (c typed[T]) updateField(ctx context.Context, id, field string, value any) (int, error) {
	n, err := c.repo.UpdateField(ctx, id, field, value)
	if err != nil {
		return 0, translate(err, c.kind(), "update "+string(c.kind()))
	}
	return n, nil
}

func (c typed[T]) delete(ctx context.Context, id string) (int, error) {
	n, err := c.repo.Delete(ctx, id)
	if err != nil {
		return 0, translate(err, c.kind(), "delete "+string(c.kind()))
	}
	return n, nil
}

func (c typed[T]) deleteMany(ctx context.Context, ids []string) (int, error) {
	n, err := c.repo.DeleteMany(ctx, ids)
	if err != nil {
		return 0, translate(err, c.kind(), "delete "+string(c.kind()))
	}
	return n, nil
}

func (c typed[T]) deleteWhere(ctx context.Context, pred expr.Predicate[models.Document]) (int, error) {
	p, err := retarget[T](pred)
	if err != nil {
		return 0, err
	}
	n, err := c.repo.DeleteWhere(ctx, p)
	if err != nil {
		return 0, translate(err, c.kind(), "delete "+string(c.kind()))
	}
	return n, nil
}
