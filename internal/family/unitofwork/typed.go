package unitofwork

import (
	"context"
	"encoding/json"

	"cradle/internal/family/expr"
	"cradle/internal/family/models"
	"cradle/internal/family/store"
	dErrors "cradle/pkg/domain-errors"
)

// KindFor returns the Kind of the record type T.
func KindFor[T models.Record]() models.Kind {
	var zero T
	return zero.DocumentKind()
}

// GetAs is Get with the kind taken from T.
func GetAs[T models.Record](ctx context.Context, u *UnitOfWork, id string) (T, error) {
	var zero T
	doc, err := u.Get(ctx, KindFor[T](), id)
	if err != nil {
		return zero, err
	}
	return doc.(T), nil
}

// FindAs is Find for a predicate written against T.
func FindAs[T models.Record](ctx context.Context, u *UnitOfWork, pred expr.Predicate[T]) (T, error) {
	var zero T
	abstract, err := abstractOf(pred)
	if err != nil {
		return zero, err
	}
	doc, err := u.Find(ctx, KindFor[T](), abstract)
	if err != nil {
		return zero, err
	}
	return doc.(T), nil
}

// GetManyAs is GetMany for a predicate written against T.
func GetManyAs[T models.Record](ctx context.Context, u *UnitOfWork, pred expr.Predicate[T], page store.Query) ([]T, error) {
	abstract, err := abstractOf(pred)
	if err != nil {
		return nil, err
	}
	docs, err := u.GetMany(ctx, KindFor[T](), abstract, page)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(docs))
	for i, d := range docs {
		out[i] = d.(T)
	}
	return out, nil
}

// ProjectOneAs decodes the projected row into P. Row keys are field names,
// so P's json tags should use them.
func ProjectOneAs[P any](ctx context.Context, u *UnitOfWork, kind models.Kind, pred expr.Predicate[models.Document], proj expr.Projection[models.Document]) (P, error) {
	var out P
	row, err := u.ProjectOne(ctx, kind, pred, proj)
	if err != nil {
		return out, err
	}
	if err := decodeRow(row, &out); err != nil {
		return out, err
	}
	return out, nil
}

func ProjectManyAs[P any](ctx context.Context, u *UnitOfWork, kind models.Kind, pred expr.Predicate[models.Document], proj expr.Projection[models.Document], page store.Query) ([]P, error) {
	rows, err := u.ProjectMany(ctx, kind, pred, proj, page)
	if err != nil {
		return nil, err
	}
	out := make([]P, len(rows))
	for i, row := range rows {
		if err := decodeRow(row, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func abstractOf[T models.Record](pred expr.Predicate[T]) (expr.Predicate[models.Document], error) {
	if pred.IsZero() {
		return expr.Predicate[models.Document]{}, nil
	}
	return expr.Retarget[models.Document](pred)
}

func decodeRow(row map[string]any, dst any) error {
	body, err := json.Marshal(row)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode projection")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "decode projection")
	}
	return nil
}
