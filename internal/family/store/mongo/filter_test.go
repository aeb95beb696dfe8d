package mongo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"cradle/internal/family/expr"
	"cradle/internal/family/models"
	dErrors "cradle/pkg/domain-errors"
)

func TestFilter(t *testing.T) {
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		pred expr.Predicate[*models.ActivityRecord]
		want bson.D
	}{
		{
			name: "all",
			pred: expr.All[*models.ActivityRecord](),
			want: bson.D{},
		},
		{
			name: "id maps to _id",
			pred: expr.FieldEq[*models.ActivityRecord](models.FieldID, "a-1"),
			want: bson.D{{Key: "_id", Value: bson.D{{Key: "$eq", Value: "a-1"}}}},
		},
		{
			name: "predecessor lookup",
			pred: expr.Where[*models.ActivityRecord](func(v expr.Var) expr.Node {
				return expr.And(
					expr.Eq(v.Field(models.FieldDependentID), expr.Value("dep-1")),
					expr.Lt(v.Field(models.FieldTimestamp), expr.Value(at)),
				)
			}),
			want: bson.D{{Key: "$and", Value: bson.A{
				bson.D{{Key: "dependentId", Value: bson.D{{Key: "$eq", Value: "dep-1"}}}},
				bson.D{{Key: "timestamp", Value: bson.D{{Key: "$lt", Value: at}}}},
			}}},
		},
		{
			name: "constant on the left mirrors the operator",
			pred: expr.Where[*models.ActivityRecord](func(v expr.Var) expr.Node {
				return expr.Lt(expr.Value(at), v.Field(models.FieldTimestamp))
			}),
			want: bson.D{{Key: "timestamp", Value: bson.D{{Key: "$gt", Value: at}}}},
		},
		{
			name: "negated membership",
			pred: expr.Where[*models.ActivityRecord](func(v expr.Var) expr.Node {
				return expr.NotOf(expr.In(v.Field(models.FieldActivityKind), models.ActivitySleep, models.ActivityFeeding))
			}),
			want: bson.D{{Key: "$nor", Value: bson.A{
				bson.D{{Key: "kind", Value: bson.D{{Key: "$in", Value: bson.A{models.ActivitySleep, models.ActivityFeeding}}}}},
			}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Filter(tt.pred.Lambda())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterRetargeted(t *testing.T) {
	abstract := expr.FieldEq[models.Document](models.FieldGuardianID, "g-1")
	pred, err := expr.Retarget[*models.Dependent](abstract)
	require.NoError(t, err)

	got, err := Filter(pred.Lambda())
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "guardianId", Value: bson.D{{Key: "$eq", Value: "g-1"}}}}, got)
}

func TestFilterRejects(t *testing.T) {
	t.Run("field compared with field", func(t *testing.T) {
		pred := expr.Where[*models.Guardian](func(v expr.Var) expr.Node {
			return expr.Eq(v.Field(models.FieldName), v.Field(models.FieldEmail))
		})
		_, err := Filter(pred.Lambda())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidExpression))
	})

	t.Run("unbound field", func(t *testing.T) {
		stranger := &expr.Param{Name: "x"}
		body := expr.Eq(&expr.Field{Target: stranger, Name: models.FieldName}, expr.Value("Ada"))
		_, err := Filter(expr.Lambda{Param: &expr.Param{Name: "d"}, Body: body})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidExpression))
	})
}

func TestProjection(t *testing.T) {
	got, err := Projection(expr.Select[*models.Guardian](models.FieldName).Lambda())
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 0}}, got)

	got, err = Projection(expr.Select[*models.Guardian](models.FieldID, models.FieldName).Lambda())
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "_id", Value: 1}, {Key: "name", Value: 1}}, got)
}

func TestSort(t *testing.T) {
	assert.Equal(t, bson.D{{Key: "timestamp", Value: -1}}, Sort(models.FieldTimestamp, true))
	assert.Equal(t, bson.D{{Key: "_id", Value: 1}}, Sort(models.FieldID, false))
}
