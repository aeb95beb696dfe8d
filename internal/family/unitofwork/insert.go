package unitofwork

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"cradle/internal/family/events"
	"cradle/internal/family/expr"
	"cradle/internal/family/models"
	"cradle/internal/family/store"
	"cradle/internal/family/transition"
	dErrors "cradle/pkg/domain-errors"
	"cradle/pkg/platform/sentinel"
	"cradle/pkg/requestcontext"
)

// Insert writes one record. It returns 1 when the record was persisted and 0
// when a paired activity was skipped because its phase does not follow its
// predecessor on the dependent's timeline. Missing ids and timestamps are
// filled in only once the foreign-key and transition checks pass; skipped
// records and batches failing the foreign-key gate are left as passed in.
func (u *UnitOfWork) Insert(ctx context.Context, doc models.Document) (int, error) {
	return u.insert(ctx, "insert", []models.Document{doc})
}

// InsertMany writes a mixed batch. Parents may be supplied in the same batch
// as their children; writes go guardians, dependents, then activities.
// Paired activities are checked per timeline in timestamp order, each
// against the latest stored or already admitted record before it.
func (u *UnitOfWork) InsertMany(ctx context.Context, docs []models.Document) (int, error) {
	return u.insert(ctx, "insert_many", docs)
}

type batch struct {
	guardians  []*models.Guardian
	dependents []*models.Dependent
	activities []*models.ActivityRecord
}

func (u *UnitOfWork) insert(ctx context.Context, name string, docs []models.Document) (n int, err error) {
	ctx, op := u.begin(ctx, name, batchKind(docs))
	defer func() { err = op.end(err) }()

	if len(docs) == 0 {
		return 0, nil
	}
	b, err := classify(docs)
	if err != nil {
		return 0, err
	}
	release, err := u.lockTimelines(ctx, b.activities)
	if err != nil {
		return 0, err
	}
	defer release()

	var written []models.Document
	err = u.inTx(ctx, func(ctx context.Context) error {
		var werr error
		written, werr = u.write(ctx, b, requestcontext.Now(ctx))
		return werr
	})
	if err != nil {
		return 0, err
	}

	for _, d := range written {
		u.emit(ctx, events.Event{
			Type:       events.RecordInserted,
			Kind:       d.DocumentKind(),
			DocumentID: d.DocumentID(),
			ParentID:   d.ParentID(),
			Count:      1,
		})
	}
	op.affected(len(written))
	return len(written), nil
}

// batchKind labels metrics and spans; mixed batches have no single kind.
func batchKind(docs []models.Document) models.Kind {
	var kind models.Kind
	for _, d := range docs {
		k, _ := models.KindOf(d)
		if kind != "" && k != kind {
			return "mixed"
		}
		kind = k
	}
	return kind
}

func classify(docs []models.Document) (*batch, error) {
	b := &batch{}
	for _, d := range docs {
		switch doc := d.(type) {
		case *models.Guardian:
			if doc == nil {
				return nil, dErrors.New(dErrors.CodeUnsupportedKind, "nil guardian")
			}
			b.guardians = append(b.guardians, doc)
		case *models.Dependent:
			if doc == nil {
				return nil, dErrors.New(dErrors.CodeUnsupportedKind, "nil dependent")
			}
			b.dependents = append(b.dependents, doc)
		case *models.ActivityRecord:
			if doc == nil {
				return nil, dErrors.New(dErrors.CodeUnsupportedKind, "nil activity record")
			}
			if err := doc.Validate(); err != nil {
				return nil, err
			}
			b.activities = append(b.activities, doc)
		default:
			return nil, dErrors.New(dErrors.CodeUnsupportedKind, fmt.Sprintf("unsupported document type %T", d))
		}
	}
	return b, nil
}

// lockTimelines takes the configured locker on every paired timeline in the
// batch. Without a locker it is a no-op.
func (u *UnitOfWork) lockTimelines(ctx context.Context, recs []*models.ActivityRecord) (func(), error) {
	if u.locker == nil {
		return func() {}, nil
	}
	var keys []string
	for _, r := range recs {
		if r.IsPaired() {
			keys = append(keys, transition.KeyOf(r).String())
		}
	}
	if len(keys) == 0 {
		return func() {}, nil
	}
	slices.Sort(keys)
	return u.locker.Lock(ctx, slices.Compact(keys)...)
}

// write gates foreign keys and transitions before touching any document, then
// assigns ids and timestamps to the records it is about to persist.
func (u *UnitOfWork) write(ctx context.Context, b *batch, now time.Time) ([]models.Document, error) {
	if err := u.checkForeignKeys(ctx, b); err != nil {
		return nil, err
	}
	admitted, err := u.admit(ctx, b.activities)
	if err != nil {
		return nil, err
	}
	for _, g := range b.guardians {
		prepare(g, now)
	}
	for _, d := range b.dependents {
		prepare(d, now)
	}
	for _, a := range admitted {
		prepare(a, now)
	}

	var written []models.Document
	if len(b.guardians) > 0 {
		if _, err := u.guardians.InsertMany(ctx, b.guardians); err != nil {
			return nil, translate(err, models.KindGuardian, "insert guardians")
		}
		for _, g := range b.guardians {
			written = append(written, g)
		}
	}
	if len(b.dependents) > 0 {
		if _, err := u.dependents.InsertMany(ctx, b.dependents); err != nil {
			return nil, translate(err, models.KindDependent, "insert dependents")
		}
		for _, d := range b.dependents {
			written = append(written, d)
		}
	}

	if len(admitted) > 0 {
		if _, err := u.activities.InsertMany(ctx, admitted); err != nil {
			return nil, translate(err, models.KindActivity, "insert activities")
		}
		for _, a := range admitted {
			written = append(written, a)
		}
	}
	return written, nil
}

func prepare(d models.Document, now time.Time) {
	d.EnsureID()
	d.Stamp(now)
}

// checkForeignKeys resolves every parent reference before anything is
// written. A parent supplied earlier in the same batch counts as resolved.
func (u *UnitOfWork) checkForeignKeys(ctx context.Context, b *batch) error {
	batchGuardians := make(map[string]bool, len(b.guardians))
	for _, g := range b.guardians {
		batchGuardians[g.ID] = true
	}
	resolved := map[string]bool{}
	for _, d := range b.dependents {
		if err := resolveParent(ctx, u.guardians, models.KindDependent, d.GuardianID, batchGuardians, resolved); err != nil {
			return err
		}
	}

	batchDependents := make(map[string]bool, len(b.dependents))
	for _, d := range b.dependents {
		batchDependents[d.ID] = true
	}
	for _, a := range b.activities {
		if err := resolveParent(ctx, u.dependents, models.KindActivity, a.DependentID, batchDependents, resolved); err != nil {
			return err
		}
	}
	return nil
}

func resolveParent[T models.Record](ctx context.Context, parents store.Repository[T], child models.Kind, id string, inBatch, resolved map[string]bool) error {
	parent := parents.Kind()
	if id == "" {
		return dErrors.New(dErrors.CodeInvalidForeignKey, fmt.Sprintf("%s requires a %s id", child, parent))
	}
	if inBatch[id] || resolved[id] {
		return nil
	}
	if _, err := parents.Get(ctx, id); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeInvalidForeignKey, fmt.Sprintf("%s %q does not exist", parent, id))
		}
		return translate(err, parent, "resolve "+string(parent))
	}
	resolved[id] = true
	return nil
}

// admit drops paired activities that would break the Start/End alternation
// of their timeline. Unpaired records always pass. A paired record is kept
// only when it follows its predecessor, its nearest stored successor follows
// it, and no record already sits at the same timestamp.
func (u *UnitOfWork) admit(ctx context.Context, recs []*models.ActivityRecord) ([]*models.ActivityRecord, error) {
	accepted := make([]*models.ActivityRecord, 0, len(recs))
	timelines := map[transition.Key][]*models.ActivityRecord{}
	var keys []transition.Key
	for _, r := range recs {
		if !r.IsPaired() {
			accepted = append(accepted, r)
			continue
		}
		k := transition.KeyOf(r)
		if _, seen := timelines[k]; !seen {
			keys = append(keys, k)
		}
		timelines[k] = append(timelines[k], r)
	}

	for _, k := range keys {
		line := timelines[k]
		slices.SortStableFunc(line, func(a, b *models.ActivityRecord) int {
			return a.Timestamp.Compare(b.Timestamp)
		})
		var admitted []*models.ActivityRecord
		for _, r := range line {
			reason, err := u.check(ctx, r, admitted)
			if err != nil {
				return nil, err
			}
			if reason != "" {
				u.reject(ctx, r, reason)
				continue
			}
			admitted = append(admitted, r)
		}
		accepted = append(accepted, admitted...)
	}
	return accepted, nil
}

// check returns why r cannot join its timeline, or "" when it can. admitted
// holds the records of this batch already accepted for the timeline, in
// timestamp order, so all of them are at or before r.
func (u *UnitOfWork) check(ctx context.Context, r *models.ActivityRecord, admitted []*models.ActivityRecord) (string, error) {
	prev, err := u.neighbour(ctx, r, true)
	if err != nil {
		return "", err
	}
	if n := len(admitted); n > 0 {
		if last := admitted[n-1]; prev == nil || !last.Timestamp.Before(prev.Timestamp) {
			prev = last
		}
	}
	if prev != nil && prev.Timestamp.Equal(r.Timestamp) {
		return "timeline already has a record at " + r.Timestamp.Format(time.RFC3339Nano), nil
	}
	if !transition.IsValid(prev, r) {
		if prev == nil {
			return "phase " + string(r.Phase) + " cannot open a timeline", nil
		}
		return "phase " + string(r.Phase) + " cannot follow " + string(prev.Phase), nil
	}

	next, err := u.neighbour(ctx, r, false)
	if err != nil {
		return "", err
	}
	if next != nil && !transition.IsValid(r, next) {
		return "phase " + string(next.Phase) + " already follows at " + next.Timestamp.Format(time.RFC3339Nano), nil
	}
	return "", nil
}

// neighbour returns the stored record on r's timeline nearest to r: the
// latest at or before r's timestamp when before is set, otherwise the
// earliest after it.
func (u *UnitOfWork) neighbour(ctx context.Context, r *models.ActivityRecord, before bool) (*models.ActivityRecord, error) {
	pred := expr.Where[*models.ActivityRecord](func(v expr.Var) expr.Node {
		bound := expr.Gt(v.Field(models.FieldTimestamp), expr.Value(r.Timestamp))
		if before {
			bound = expr.Lte(v.Field(models.FieldTimestamp), expr.Value(r.Timestamp))
		}
		return expr.And(
			expr.Eq(v.Field(models.FieldDependentID), expr.Value(r.DependentID)),
			expr.Eq(v.Field(models.FieldActivityKind), expr.Value(r.Kind)),
			bound,
		)
	})
	found, err := u.activities.FindMany(ctx, pred, store.Query{
		OrderBy:    models.FieldTimestamp,
		Descending: before,
		Take:       1,
	})
	if err != nil {
		return nil, translate(err, models.KindActivity, "find timeline neighbour")
	}
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

func (u *UnitOfWork) reject(ctx context.Context, r *models.ActivityRecord, reason string) {
	u.metrics.IncrementRejected(string(r.Kind))
	u.logger.InfoContext(ctx, "paired activity skipped",
		"dependent_id", r.DependentID,
		"activity_kind", string(r.Kind),
		"phase", string(r.Phase),
		"timestamp", r.Timestamp,
		"reason", reason,
	)
	u.emit(ctx, events.Event{
		Type:       events.TransitionRejected,
		Kind:       models.KindActivity,
		DocumentID: r.ID,
		ParentID:   r.DependentID,
		Reason:     reason,
	})
}
