package expr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cradle/internal/family/models"
	dErrors "cradle/pkg/domain-errors"
)

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func sampleActivities() []*models.ActivityRecord {
	value := 3.4
	measurement := models.NewActivity("dep-1", models.ActivityMeasurement, t0)
	measurement.Value = &value
	return []*models.ActivityRecord{
		models.NewPairedActivity("dep-1", models.ActivitySleep, models.PhaseStart, t0),
		models.NewPairedActivity("dep-1", models.ActivitySleep, models.PhaseEnd, t0.Add(time.Hour)),
		models.NewPairedActivity("dep-2", models.ActivityFeeding, models.PhaseStart, t0.Add(2*time.Hour)),
		measurement,
	}
}

// TestRetargetFidelity checks that a predicate written against the abstract
// document type and retargeted to a concrete type agrees with the same
// predicate written directly against the concrete type.
func TestRetargetFidelity(t *testing.T) {
	cases := map[string]func(v Var) Node{
		"equality": func(v Var) Node {
			return Eq(v.Field(models.FieldDependentID), Value("dep-1"))
		},
		"conjunction with ordering": func(v Var) Node {
			return And(
				Eq(v.Field(models.FieldActivityKind), Value(models.ActivitySleep)),
				Lt(v.Field(models.FieldTimestamp), Value(t0.Add(30*time.Minute))),
			)
		},
		"disjunction and negation": func(v Var) Node {
			return Or(
				NotOf(Eq(v.Field(models.FieldPhase), Value(models.PhaseStart))),
				Gte(v.Field(models.FieldTimestamp), Value(t0.Add(2*time.Hour))),
			)
		},
		"membership": func(v Var) Node {
			return In(v.Field(models.FieldActivityKind), models.ActivityFeeding, models.ActivityMeasurement)
		},
		"numeric comparison": func(v Var) Node {
			return Gt(v.Field(models.FieldValue), Value(3))
		},
	}

	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			abstract := Where[models.Document](build)
			direct := Where[*models.ActivityRecord](build)

			retargeted, err := Retarget[*models.ActivityRecord](abstract)
			require.NoError(t, err)
			assert.Equal(t, TypeName[*models.ActivityRecord](), retargeted.Param().Type)

			for _, a := range sampleActivities() {
				want, err := Eval(direct, a)
				require.NoError(t, err)
				got, err := Eval(retargeted, a)
				require.NoError(t, err)
				assert.Equal(t, want, got, "record %s/%s", a.Kind, a.Phase)
			}
		})
	}
}

func TestRetargetLeavesTreeShape(t *testing.T) {
	abstract := FieldEq[models.Document](models.FieldGuardianID, "g-1")
	retargeted, err := Retarget[*models.Dependent](abstract)
	require.NoError(t, err)

	assert.NotSame(t, abstract.Param(), retargeted.Param())
	assert.Equal(t, abstract.Param().Name, retargeted.Param().Name)

	before := abstract.Body().(*Compare)
	after := retargeted.Body().(*Compare)
	assert.Equal(t, before.Op, after.Op)
	assert.Same(t, before.Right, after.Right, "constants are shared, not copied")
	assert.Same(t, retargeted.Param(), after.Left.(*Field).Target)

	// the original is untouched
	assert.Same(t, abstract.Param(), before.Left.(*Field).Target)
}

func TestRetargetRejectsEmptyTree(t *testing.T) {
	t.Run("no body", func(t *testing.T) {
		empty := PredicateFrom[models.Document](Lambda{Param: &Param{Name: "d"}})
		_, err := Retarget[*models.Guardian](empty)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidExpression))
	})

	t.Run("zero predicate", func(t *testing.T) {
		var zero Predicate[models.Document]
		_, err := Retarget[*models.Guardian](zero)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidExpression))
	})

	t.Run("zero projection", func(t *testing.T) {
		var zero Projection[models.Document]
		_, err := RetargetProjection[*models.Guardian](zero)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidExpression))
	})
}

func TestEvalRejectsUnboundField(t *testing.T) {
	stranger := &Param{Name: "x", Type: "models.Document"}
	body := Eq(&Field{Target: stranger, Name: models.FieldName}, Value("Ada"))
	p := PredicateFrom[*models.Guardian](Lambda{Param: &Param{Name: "d"}, Body: body})

	_, err := Eval(p, models.NewGuardian("Ada", ""))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidExpression))
}

func TestEvalUnknownField(t *testing.T) {
	p := FieldEq[*models.Guardian](models.FieldDependentID, "x")
	_, err := Eval(p, models.NewGuardian("Ada", ""))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidExpression))
}

func TestAllMatchesEverything(t *testing.T) {
	ok, err := Eval(All[*models.Guardian](), models.NewGuardian("Ada", ""))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPredicateAnd(t *testing.T) {
	byDependent := FieldEq[*models.ActivityRecord](models.FieldDependentID, "dep-1")
	byKind := FieldEq[*models.ActivityRecord](models.FieldActivityKind, models.ActivitySleep)

	both, err := byDependent.And(byKind)
	require.NoError(t, err)

	matched := 0
	for _, a := range sampleActivities() {
		ok, err := Eval(both, a)
		require.NoError(t, err)
		if ok {
			matched++
		}
	}
	assert.Equal(t, 2, matched)
}

func TestProjection(t *testing.T) {
	abstract := Select[models.Document](models.FieldID, models.FieldName)
	proj, err := RetargetProjection[*models.Guardian](abstract)
	require.NoError(t, err)
	assert.Equal(t, []string{models.FieldID, models.FieldName}, proj.Fields())

	g := models.NewGuardian("Ada", "ada@example.com")
	out, err := Apply(proj, g)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": g.ID, "name": "Ada"}, out)
}

func TestString(t *testing.T) {
	p := Where[*models.Dependent](func(v Var) Node {
		return And(Eq(v.Field("guardianId"), Value("g-1")), NotOf(Eq(v.Field("name"), Value(""))))
	})
	assert.Equal(t, `(d *models.Dependent) => ((d.guardianId eq "g-1") and not (d.name eq ""))`, p.String())
}

func TestOrderingTypeMismatch(t *testing.T) {
	p := Where[*models.ActivityRecord](func(v Var) Node {
		return Lt(v.Field(models.FieldTimestamp), Value("yesterday"))
	})
	_, err := Eval(p, sampleActivities()[0])
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidExpression))
}
