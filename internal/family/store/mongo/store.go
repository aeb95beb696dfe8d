// Package mongo stores each record kind in its own MongoDB collection.
// Predicates are translated to query documents so filtering runs server side.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"cradle/internal/family/expr"
	"cradle/internal/family/models"
	"cradle/internal/family/store"
	"cradle/pkg/platform/sentinel"
	"cradle/pkg/requestcontext"
)

// Collection names per kind.
var Collections = map[models.Kind]string{
	models.KindGuardian:  "guardians",
	models.KindDependent: "dependents",
	models.KindActivity:  "activities",
}

type Store[T models.Record] struct {
	coll *mongo.Collection
}

var (
	_ store.Repository[*models.Guardian]       = (*Store[*models.Guardian])(nil)
	_ store.Repository[*models.Dependent]      = (*Store[*models.Dependent])(nil)
	_ store.Repository[*models.ActivityRecord] = (*Store[*models.ActivityRecord])(nil)
)

func New[T models.Record](db *mongo.Database) *Store[T] {
	var zero T
	return &Store[T]{coll: db.Collection(Collections[zero.DocumentKind()])}
}

// EnsureIndexes creates the lookup indexes the unit of work relies on:
// children by parent and the transition predecessor lookup.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		Collections[models.KindDependent]: {
			{Keys: bson.D{{Key: models.FieldGuardianID, Value: 1}}},
		},
		Collections[models.KindActivity]: {
			{Keys: bson.D{{Key: models.FieldDependentID, Value: 1}}},
			{Keys: bson.D{
				{Key: models.FieldDependentID, Value: 1},
				{Key: models.FieldActivityKind, Value: 1},
				{Key: models.FieldTimestamp, Value: -1},
			}},
		},
	}
	for name, idx := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes for %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store[T]) Kind() models.Kind {
	var zero T
	return zero.DocumentKind()
}

func (s *Store[T]) Insert(ctx context.Context, doc T) error {
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert %s: %w", s.Kind(), err)
	}
	return nil
}

// InsertMany is ordered: on failure the documents before the failing one
// remain written unless the caller runs inside a transaction.
func (s *Store[T]) InsertMany(ctx context.Context, docs []T) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	res, err := s.coll.InsertMany(ctx, docs)
	if err != nil {
		n := 0
		if res != nil {
			n = len(res.InsertedIDs)
		}
		if mongo.IsDuplicateKeyError(err) {
			return n, sentinel.ErrConflict
		}
		return n, fmt.Errorf("insert many %s: %w", s.Kind(), err)
	}
	return len(res.InsertedIDs), nil
}

func (s *Store[T]) Get(ctx context.Context, id string) (T, error) {
	var doc T
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return doc, sentinel.ErrNotFound
		}
		return doc, fmt.Errorf("get %s: %w", s.Kind(), err)
	}
	return doc, nil
}

func (s *Store[T]) Find(ctx context.Context, pred expr.Predicate[T]) (T, error) {
	docs, err := s.FindMany(ctx, pred, store.Query{Take: 2})
	if err != nil {
		var zero T
		return zero, err
	}
	return store.Single(docs)
}

func (s *Store[T]) FindMany(ctx context.Context, pred expr.Predicate[T], q store.Query) ([]T, error) {
	filter, err := s.filter(pred)
	if err != nil {
		return nil, err
	}
	return s.find(ctx, filter, findOptions(q))
}

func (s *Store[T]) find(ctx context.Context, filter bson.D, opts *options.FindOptionsBuilder) ([]T, error) {
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", s.Kind(), err)
	}
	var out []T
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.Kind(), err)
	}
	return out, nil
}

func (s *Store[T]) Any(ctx context.Context, pred expr.Predicate[T]) (bool, error) {
	filter, err := s.filter(pred)
	if err != nil {
		return false, err
	}
	err = s.coll.FindOne(ctx, filter, options.FindOne().SetProjection(bson.D{{Key: "_id", Value: 1}})).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("any %s: %w", s.Kind(), err)
	}
	return true, nil
}

func (s *Store[T]) Count(ctx context.Context, pred expr.Predicate[T]) (int64, error) {
	filter, err := s.filter(pred)
	if err != nil {
		return 0, err
	}
	n, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", s.Kind(), err)
	}
	return n, nil
}

func (s *Store[T]) Project(ctx context.Context, pred expr.Predicate[T], proj expr.Projection[T]) (map[string]any, error) {
	rows, err := s.ProjectMany(ctx, pred, proj, store.Query{Take: 2})
	if err != nil {
		return nil, err
	}
	return store.Single(rows)
}

// ProjectMany fetches only the selected fields and reads them back through
// the typed document so values have the same Go types the memory store
// yields.
func (s *Store[T]) ProjectMany(ctx context.Context, pred expr.Predicate[T], proj expr.Projection[T], q store.Query) ([]map[string]any, error) {
	filter, err := s.filter(pred)
	if err != nil {
		return nil, err
	}
	projection, err := Projection(proj.Lambda())
	if err != nil {
		return nil, err
	}
	docs, err := s.find(ctx, filter, findOptions(q).SetProjection(projection))
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

func (s *Store[T]) Update(ctx context.Context, doc T) (int, error) {
	res, err := s.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: doc.DocumentID()}}, doc)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", s.Kind(), err)
	}
	if res.MatchedCount == 0 {
		return 0, sentinel.ErrNotFound
	}
	return int(res.MatchedCount), nil
}

// UpdateField validates the assignment against the typed document before
// issuing a $set, so conversions match the other stores.
func (s *Store[T]) UpdateField(ctx context.Context, id string, field string, value any) (int, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := current.SetField(field, value); err != nil {
		return 0, err
	}
	converted, _ := current.FieldValue(field)
	now := requestcontext.Now(ctx).UTC()
	set := bson.D{
		{Key: key(field), Value: converted},
		{Key: models.FieldModifiedAt, Value: now},
	}
	res, err := s.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return 0, fmt.Errorf("update %s.%s: %w", s.Kind(), field, err)
	}
	if res.MatchedCount == 0 {
		return 0, sentinel.ErrNotFound
	}
	return int(res.MatchedCount), nil
}

func (s *Store[T]) Delete(ctx context.Context, id string) (int, error) {
	res, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", s.Kind(), err)
	}
	return int(res.DeletedCount), nil
}

func (s *Store[T]) DeleteMany(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return s.deleteMany(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
}

func (s *Store[T]) DeleteWhere(ctx context.Context, pred expr.Predicate[T]) (int, error) {
	filter, err := s.filter(pred)
	if err != nil {
		return 0, err
	}
	return s.deleteMany(ctx, filter)
}

func (s *Store[T]) deleteMany(ctx context.Context, filter bson.D) (int, error) {
	res, err := s.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("delete many %s: %w", s.Kind(), err)
	}
	return int(res.DeletedCount), nil
}

func (s *Store[T]) filter(pred expr.Predicate[T]) (bson.D, error) {
	if pred.IsZero() {
		return bson.D{}, nil
	}
	return Filter(pred.Lambda())
}

func findOptions(q store.Query) *options.FindOptionsBuilder {
	opts := options.Find()
	if q.OrderBy != "" {
		opts.SetSort(Sort(q.OrderBy, q.Descending))
	}
	if q.Skip > 0 {
		opts.SetSkip(int64(q.Skip))
	}
	if q.Take > 0 {
		opts.SetLimit(int64(q.Take))
	}
	return opts
}
