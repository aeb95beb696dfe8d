// Package postgres stores each record kind as JSONB documents in its own
// table. Predicates are rendered to SQL so filtering runs in the database.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"cradle/internal/family/expr"
	"cradle/internal/family/models"
	"cradle/internal/family/store"
	"cradle/pkg/platform/sentinel"
	txcontext "cradle/pkg/platform/tx"
	"cradle/pkg/requestcontext"
)

// Tables per kind.
var Tables = map[models.Kind]string{
	models.KindGuardian:  "guardians",
	models.KindDependent: "dependents",
	models.KindActivity:  "activities",
}

const uniqueViolation = "23505"

// Schema creates the document tables and the lookup indexes the unit of
// work relies on.
const Schema = `
CREATE TABLE IF NOT EXISTS guardians (
	id  TEXT PRIMARY KEY,
	doc JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS dependents (
	id  TEXT PRIMARY KEY,
	doc JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS dependents_guardian_idx ON dependents ((doc->>'guardianId'));
CREATE TABLE IF NOT EXISTS activities (
	id  TEXT PRIMARY KEY,
	doc JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS activities_dependent_idx ON activities ((doc->>'dependentId'));
CREATE INDEX IF NOT EXISTS activities_timeline_idx ON activities ((doc->>'dependentId'), (doc->>'kind'), (doc->>'timestamp'));
`

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

type Store[T models.Record] struct {
	db    *sql.DB
	table string
}

var (
	_ store.Repository[*models.Guardian]       = (*Store[*models.Guardian])(nil)
	_ store.Repository[*models.Dependent]      = (*Store[*models.Dependent])(nil)
	_ store.Repository[*models.ActivityRecord] = (*Store[*models.ActivityRecord])(nil)
)

func New[T models.Record](db *sql.DB) *Store[T] {
	var zero T
	return &Store[T]{db: db, table: Tables[zero.DocumentKind()]}
}

// execer prefers the transaction a Transactor placed on ctx.
func (s *Store[T]) execer(ctx context.Context) txcontext.Executor {
	return txcontext.Or(ctx, s.db)
}

func (s *Store[T]) Kind() models.Kind {
	var zero T
	return zero.DocumentKind()
}

func (s *Store[T]) Insert(ctx context.Context, doc T) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", s.Kind(), err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, doc) VALUES ($1, $2)`, s.table)
	if _, err := s.execer(ctx).ExecContext(ctx, query, doc.DocumentID(), body); err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert %s: %w", s.Kind(), err)
	}
	return nil
}

// InsertMany writes every document in one statement, so the batch lands
// entirely or not at all.
func (s *Store[T]) InsertMany(ctx context.Context, docs []T) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	ids := make([]string, len(docs))
	bodies := make([]string, len(docs))
	for i, d := range docs {
		b, err := json.Marshal(d)
		if err != nil {
			return 0, fmt.Errorf("marshal %s: %w", s.Kind(), err)
		}
		ids[i] = d.DocumentID()
		bodies[i] = string(b)
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, doc)
		SELECT i, d::jsonb FROM unnest($1::text[], $2::text[]) AS t(i, d)`, s.table)
	res, err := s.execer(ctx).ExecContext(ctx, query, pq.Array(ids), pq.Array(bodies))
	if err != nil {
		if isUniqueViolation(err) {
			return 0, sentinel.ErrConflict
		}
		return 0, fmt.Errorf("insert many %s: %w", s.Kind(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("insert many %s: %w", s.Kind(), err)
	}
	return int(n), nil
}

func (s *Store[T]) Get(ctx context.Context, id string) (T, error) {
	var doc T
	var body []byte
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE id = $1`, s.table)
	if err := s.execer(ctx).QueryRowContext(ctx, query, id).Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return doc, sentinel.ErrNotFound
		}
		return doc, fmt.Errorf("get %s: %w", s.Kind(), err)
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return doc, fmt.Errorf("unmarshal %s: %w", s.Kind(), err)
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
	where, args, err := s.where(pred, nil)
	if err != nil {
		return nil, err
	}
	order, err := OrderBy(s.Kind(), q.OrderBy, q.Descending)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE %s%s`, s.table, where, order)
	if q.Take > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Take)
	}
	if q.Skip > 0 {
		query += fmt.Sprintf(" OFFSET %d", q.Skip)
	}

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", s.Kind(), err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.Kind(), err)
		}
		var doc T
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", s.Kind(), err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", s.Kind(), err)
	}
	return out, nil
}

func (s *Store[T]) Any(ctx context.Context, pred expr.Predicate[T]) (bool, error) {
	where, args, err := s.where(pred, nil)
	if err != nil {
		return false, err
	}
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s)`, s.table, where)
	if err := s.execer(ctx).QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("any %s: %w", s.Kind(), err)
	}
	return exists, nil
}

func (s *Store[T]) Count(ctx context.Context, pred expr.Predicate[T]) (int64, error) {
	where, args, err := s.where(pred, nil)
	if err != nil {
		return 0, err
	}
	var n int64
	query := fmt.Sprintf(`SELECT count(*) FROM %s WHERE %s`, s.table, where)
	if err := s.execer(ctx).QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", s.Kind(), err)
	}
	return n, nil
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

func (s *Store[T]) Update(ctx context.Context, doc T) (int, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("marshal %s: %w", s.Kind(), err)
	}
	query := fmt.Sprintf(`UPDATE %s SET doc = $2 WHERE id = $1`, s.table)
	res, err := s.execer(ctx).ExecContext(ctx, query, doc.DocumentID(), body)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", s.Kind(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", s.Kind(), err)
	}
	if n == 0 {
		return 0, sentinel.ErrNotFound
	}
	return int(n), nil
}

// UpdateField applies the assignment through the typed document and writes
// the whole document back.
func (s *Store[T]) UpdateField(ctx context.Context, id string, field string, value any) (int, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := current.SetField(field, value); err != nil {
		return 0, err
	}
	current.Stamp(requestcontext.Now(ctx))
	return s.Update(ctx, current)
}

func (s *Store[T]) Delete(ctx context.Context, id string) (int, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table)
	return s.exec(ctx, "delete", query, id)
}

func (s *Store[T]) DeleteMany(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1::text[])`, s.table)
	return s.exec(ctx, "delete many", query, pq.Array(ids))
}

func (s *Store[T]) DeleteWhere(ctx context.Context, pred expr.Predicate[T]) (int, error) {
	where, args, err := s.where(pred, nil)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s`, s.table, where)
	return s.exec(ctx, "delete where", query, args...)
}

func (s *Store[T]) exec(ctx context.Context, op, query string, args ...any) (int, error) {
	res, err := s.execer(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", op, s.Kind(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", op, s.Kind(), err)
	}
	return int(n), nil
}

func (s *Store[T]) where(pred expr.Predicate[T], args []any) (string, []any, error) {
	if pred.IsZero() {
		return "TRUE", args, nil
	}
	return Where(s.Kind(), pred.Lambda(), args)
}

// isUniqueViolation recognises the error from either driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}
