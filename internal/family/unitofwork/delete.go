package unitofwork

import (
	"context"

	"golang.org/x/sync/errgroup"

	"cradle/internal/family/events"
	"cradle/internal/family/expr"
	"cradle/internal/family/models"
	"cradle/internal/family/store"
	dErrors "cradle/pkg/domain-errors"
)

// Delete removes one record by id and returns the number of records removed.
// With cascade a guardian takes its dependents and their activities with it,
// and a dependent takes its activities. Without cascade descendants stay in
// place, orphaned.
func (u *UnitOfWork) Delete(ctx context.Context, kind models.Kind, id string, cascade bool) (n int, err error) {
	ctx, op := u.begin(ctx, "delete", kind)
	defer func() { err = op.end(err) }()

	c, err := u.collection(kind)
	if err != nil {
		return 0, err
	}
	err = u.inTx(ctx, func(ctx context.Context) error {
		target, err := c.get(ctx, id)
		if err != nil {
			return err
		}
		n, err = u.remove(ctx, c, target, cascade)
		return err
	})
	if err != nil {
		return 0, err
	}
	u.deleted(ctx, op, kind, id, n, cascade)
	return n, nil
}

// DeleteDocument deletes doc by its id.
func (u *UnitOfWork) DeleteDocument(ctx context.Context, doc models.Document, cascade bool) (int, error) {
	kind, err := kindOf(doc)
	if err != nil {
		return 0, err
	}
	return u.Delete(ctx, kind, doc.DocumentID(), cascade)
}

// DeleteWhere deletes the single record matching pred. When pred matches
// more than one record nothing is removed and the call fails with
// CodeAmbiguousMatch.
func (u *UnitOfWork) DeleteWhere(ctx context.Context, kind models.Kind, pred expr.Predicate[models.Document], cascade bool) (n int, err error) {
	ctx, op := u.begin(ctx, "delete_where", kind)
	defer func() { err = op.end(err) }()

	c, err := u.collection(kind)
	if err != nil {
		return 0, err
	}
	var id string
	err = u.inTx(ctx, func(ctx context.Context) error {
		target, err := single(ctx, c, pred)
		if err != nil {
			return err
		}
		id = target.DocumentID()
		n, err = u.remove(ctx, c, target, cascade)
		return err
	})
	if err != nil {
		return 0, err
	}
	u.deleted(ctx, op, kind, id, n, cascade)
	return n, nil
}

// DeleteMany removes every document in docs. Documents already gone count
// as zero; they are not an error.
func (u *UnitOfWork) DeleteMany(ctx context.Context, docs []models.Document, cascade bool) (n int, err error) {
	ctx, op := u.begin(ctx, "delete_many", batchKind(docs))
	defer func() { err = op.end(err) }()

	byKind := make(map[models.Kind][]string, len(models.Kinds))
	for _, d := range docs {
		kind, err := kindOf(d)
		if err != nil {
			return 0, err
		}
		byKind[kind] = append(byKind[kind], d.DocumentID())
	}

	err = u.inTx(ctx, func(ctx context.Context) error {
		total := 0
		for _, kind := range models.Kinds {
			ids := byKind[kind]
			if len(ids) == 0 {
				continue
			}
			c, err := u.collection(kind)
			if err != nil {
				return err
			}
			removed, err := u.removeIDs(ctx, c, ids, cascade)
			if err != nil {
				return err
			}
			total += removed
		}
		n = total
		return nil
	})
	if err != nil {
		return 0, err
	}
	op.affected(n)
	if cascade {
		u.emit(ctx, events.Event{Type: events.CascadeCompleted, Kind: op.kind, Count: n})
	}
	return n, nil
}

// DeleteManyWhere removes every record matching pred. With cascade the
// predicate is resolved to records first and each is cascaded in turn.
func (u *UnitOfWork) DeleteManyWhere(ctx context.Context, kind models.Kind, pred expr.Predicate[models.Document], cascade bool) (n int, err error) {
	ctx, op := u.begin(ctx, "delete_many_where", kind)
	defer func() { err = op.end(err) }()

	c, err := u.collection(kind)
	if err != nil {
		return 0, err
	}
	err = u.inTx(ctx, func(ctx context.Context) error {
		if !cascade || kind == models.KindActivity {
			removed, err := c.deleteWhere(ctx, pred)
			n = removed
			return err
		}
		matches, err := c.findMany(ctx, pred, store.Query{})
		if err != nil {
			return err
		}
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.DocumentID()
		}
		n, err = u.removeIDs(ctx, c, ids, true)
		return err
	})
	if err != nil {
		return 0, err
	}
	op.affected(n)
	if cascade {
		u.emit(ctx, events.Event{Type: events.CascadeCompleted, Kind: kind, Count: n})
	}
	return n, nil
}

// remove deletes target and, with cascade, everything it owns. Children are
// fully removed before the parent so a parent never disappears while its
// cascade is still discovering records.
func (u *UnitOfWork) remove(ctx context.Context, c collection, target models.Document, cascade bool) (int, error) {
	id := target.DocumentID()
	total := 0
	if cascade {
		removed, err := u.removeChildren(ctx, c.kind(), id)
		if err != nil {
			return 0, err
		}
		total += removed
	}
	self, err := c.delete(ctx, id)
	if err != nil {
		return 0, err
	}
	if self == 0 && total == 0 {
		return 0, dErrors.New(dErrors.CodeNotFound, string(c.kind())+" not found")
	}
	return total + self, nil
}

func (u *UnitOfWork) removeChildren(ctx context.Context, parent models.Kind, id string) (int, error) {
	switch parent {
	case models.KindGuardian:
		children, err := u.dependents.FindMany(ctx, expr.FieldEq[*models.Dependent](models.FieldGuardianID, id), store.Query{})
		if err != nil {
			return 0, translate(err, models.KindDependent, "find dependents")
		}
		ids := make([]string, len(children))
		for i, d := range children {
			ids[i] = d.ID
		}
		return u.removeIDs(ctx, typed[*models.Dependent]{repo: u.dependents}, ids, true)
	case models.KindDependent:
		n, err := u.activities.DeleteWhere(ctx, expr.FieldEq[*models.ActivityRecord](models.FieldDependentID, id))
		if err != nil {
			return 0, translate(err, models.KindActivity, "delete activities")
		}
		return n, nil
	case models.KindActivity:
		return 0, nil
	}
	return 0, unsupportedKind(parent)
}

// removeIDs deletes ids from c. Without cascade, or for leaf records, it is
// one DeleteMany. With cascade each record's subtree is removed, concurrently
// up to the configured limit, and the counts are summed once every subtree
// has finished.
func (u *UnitOfWork) removeIDs(ctx context.Context, c collection, ids []string, cascade bool) (int, error) {
	if !cascade || c.kind() == models.KindActivity {
		return c.deleteMany(ctx, ids)
	}

	limit := u.cascadeConcurrency
	if u.tx != nil {
		limit = 1
	}
	counts := make([]int, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, id := range ids {
		g.Go(func() error {
			removed, err := u.removeChildren(gctx, c.kind(), id)
			if err != nil {
				return err
			}
			self, err := c.delete(gctx, id)
			if err != nil {
				return err
			}
			counts[i] = removed + self
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

func (u *UnitOfWork) deleted(ctx context.Context, op *operation, kind models.Kind, id string, n int, cascade bool) {
	op.affected(n)
	u.emit(ctx, events.Event{
		Type:       events.RecordDeleted,
		Kind:       kind,
		DocumentID: id,
		Count:      n,
	})
	if cascade {
		u.emit(ctx, events.Event{
			Type:       events.CascadeCompleted,
			Kind:       kind,
			DocumentID: id,
			Count:      n,
		})
	}
}
