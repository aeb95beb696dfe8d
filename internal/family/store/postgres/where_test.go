package postgres

import (
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cradle/internal/family/expr"
	"cradle/internal/family/models"
	dErrors "cradle/pkg/domain-errors"
)

func TestWhere(t *testing.T) {
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		pred     expr.Predicate[*models.ActivityRecord]
		wantSQL  string
		wantArgs []any
	}{
		{
			name:    "all",
			pred:    expr.All[*models.ActivityRecord](),
			wantSQL: "TRUE",
		},
		{
			name:     "id uses the key column",
			pred:     expr.FieldEq[*models.ActivityRecord](models.FieldID, "a-1"),
			wantSQL:  "id = $1",
			wantArgs: []any{"a-1"},
		},
		{
			name: "predecessor lookup casts the timestamp",
			pred: expr.Where[*models.ActivityRecord](func(v expr.Var) expr.Node {
				return expr.And(
					expr.Eq(v.Field(models.FieldDependentID), expr.Value("dep-1")),
					expr.Eq(v.Field(models.FieldActivityKind), expr.Value(models.ActivitySleep)),
					expr.Lt(v.Field(models.FieldTimestamp), expr.Value(at)),
				)
			}),
			wantSQL: "(coalesce((doc->>'dependentId'), '') = $1 AND coalesce((doc->>'kind'), '') = $2 AND (doc->>'timestamp')::timestamptz < $3)",
			wantArgs: []any{"dep-1", "sleep", at},
		},
		{
			name: "negation is null safe",
			pred: expr.Where[*models.ActivityRecord](func(v expr.Var) expr.Node {
				return expr.NotOf(expr.Gt(v.Field(models.FieldValue), expr.Value(3)))
			}),
			wantSQL:  "NOT coalesce((doc->>'value')::numeric > $1, FALSE)",
			wantArgs: []any{float64(3)},
		},
		{
			name: "membership binds an array",
			pred: expr.Where[*models.ActivityRecord](func(v expr.Var) expr.Node {
				return expr.In(v.Field(models.FieldActivityKind), models.ActivitySleep, models.ActivityFeeding)
			}),
			wantSQL:  "coalesce((doc->>'kind'), '') = ANY($1::text[])",
			wantArgs: []any{pq.Array([]string{"sleep", "feeding"})},
		},
		{
			name: "mismatched equality is false",
			pred: expr.Where[*models.ActivityRecord](func(v expr.Var) expr.Node {
				return expr.Eq(v.Field(models.FieldTimestamp), expr.Value("yesterday"))
			}),
			wantSQL: "FALSE",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := Where(models.KindActivity, tt.pred.Lambda(), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestWhereContinuesPlaceholders(t *testing.T) {
	pred := expr.FieldEq[*models.Guardian](models.FieldName, "Ada")
	sql, args, err := Where(models.KindGuardian, pred.Lambda(), []any{"first"})
	require.NoError(t, err)
	assert.Equal(t, "coalesce((doc->>'name'), '') = $2", sql)
	assert.Equal(t, []any{"first", "Ada"}, args)
}

func TestWhereRejects(t *testing.T) {
	t.Run("unknown field", func(t *testing.T) {
		pred := expr.FieldEq[*models.Guardian](models.FieldDependentID, "x")
		_, _, err := Where(models.KindGuardian, pred.Lambda(), nil)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidExpression))
	})

	t.Run("ordering across types", func(t *testing.T) {
		pred := expr.Where[*models.ActivityRecord](func(v expr.Var) expr.Node {
			return expr.Lt(v.Field(models.FieldTimestamp), expr.Value("yesterday"))
		})
		_, _, err := Where(models.KindActivity, pred.Lambda(), nil)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidExpression))
	})
}

func TestOrderBy(t *testing.T) {
	clause, err := OrderBy(models.KindActivity, models.FieldTimestamp, true)
	require.NoError(t, err)
	assert.Equal(t, " ORDER BY (doc->>'timestamp')::timestamptz DESC NULLS LAST", clause)

	clause, err = OrderBy(models.KindActivity, "", false)
	require.NoError(t, err)
	assert.Empty(t, clause)
}
