package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"cradle/internal/family/expr"
	"cradle/internal/family/models"
	"cradle/internal/family/store"
	"cradle/pkg/platform/sentinel"
	"cradle/pkg/requestcontext"
)

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

type StoreSuite struct {
	suite.Suite
	ctx        context.Context
	guardians  *Store[*models.Guardian]
	activities *Store[*models.ActivityRecord]
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.guardians = New[*models.Guardian]()
	s.activities = New[*models.ActivityRecord]()
}

func (s *StoreSuite) TestKind() {
	s.Equal(models.KindGuardian, s.guardians.Kind())
	s.Equal(models.KindActivity, s.activities.Kind())
}

func (s *StoreSuite) TestInsertAndGet() {
	s.Run("round trips a copy", func() {
		g := models.NewGuardian("Ada", "ada@example.com")
		s.Require().NoError(s.guardians.Insert(s.ctx, g))

		g.Name = "mutated after insert"
		got, err := s.guardians.Get(s.ctx, g.ID)
		s.Require().NoError(err)
		s.Equal("Ada", got.Name)
		s.NotSame(g, got)
	})

	s.Run("duplicate id conflicts", func() {
		g := models.NewGuardian("Grace", "")
		s.Require().NoError(s.guardians.Insert(s.ctx, g))
		s.ErrorIs(s.guardians.Insert(s.ctx, g), sentinel.ErrConflict)
	})

	s.Run("missing id is not found", func() {
		_, err := s.guardians.Get(s.ctx, "nope")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *StoreSuite) TestInsertManyIsAllOrNothing() {
	existing := models.NewGuardian("Ada", "")
	s.Require().NoError(s.guardians.Insert(s.ctx, existing))

	_, err := s.guardians.InsertMany(s.ctx, []*models.Guardian{models.NewGuardian("Grace", ""), existing})
	s.ErrorIs(err, sentinel.ErrConflict)

	n, err := s.guardians.Count(s.ctx, expr.All[*models.Guardian]())
	s.Require().NoError(err)
	s.EqualValues(1, n)
}

func (s *StoreSuite) TestFind() {
	a := models.NewGuardian("Ada", "shared@example.com")
	b := models.NewGuardian("Grace", "shared@example.com")
	_, err := s.guardians.InsertMany(s.ctx, []*models.Guardian{a, b})
	s.Require().NoError(err)

	s.Run("single match", func() {
		got, err := s.guardians.Find(s.ctx, expr.FieldEq[*models.Guardian](models.FieldName, "Grace"))
		s.Require().NoError(err)
		s.Equal(b.ID, got.ID)
	})

	s.Run("no match", func() {
		_, err := s.guardians.Find(s.ctx, expr.FieldEq[*models.Guardian](models.FieldName, "Linus"))
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("ambiguous match", func() {
		_, err := s.guardians.Find(s.ctx, expr.FieldEq[*models.Guardian](models.FieldEmail, "shared@example.com"))
		s.ErrorIs(err, sentinel.ErrAmbiguous)
	})
}

func (s *StoreSuite) TestFindManyOrdering() {
	var recs []*models.ActivityRecord
	for i := range 5 {
		recs = append(recs, models.NewActivity("dep-1", models.ActivityDiaper, t0.Add(time.Duration(4-i)*time.Hour)))
	}
	_, err := s.activities.InsertMany(s.ctx, recs)
	s.Require().NoError(err)

	byDependent := expr.FieldEq[*models.ActivityRecord](models.FieldDependentID, "dep-1")

	s.Run("ascending with window", func() {
		got, err := s.activities.FindMany(s.ctx, byDependent, store.Query{OrderBy: models.FieldTimestamp, Skip: 1, Take: 2})
		s.Require().NoError(err)
		s.Require().Len(got, 2)
		s.Equal(t0.Add(time.Hour), got[0].Timestamp)
		s.Equal(t0.Add(2*time.Hour), got[1].Timestamp)
	})

	s.Run("descending take one", func() {
		got, err := s.activities.FindMany(s.ctx, byDependent, store.Query{OrderBy: models.FieldTimestamp, Descending: true, Take: 1})
		s.Require().NoError(err)
		s.Require().Len(got, 1)
		s.Equal(t0.Add(4*time.Hour), got[0].Timestamp)
	})

	s.Run("skip past the end", func() {
		got, err := s.activities.FindMany(s.ctx, byDependent, store.Query{Skip: 10})
		s.Require().NoError(err)
		s.Empty(got)
	})
}

func (s *StoreSuite) TestProject() {
	g := models.NewGuardian("Ada", "ada@example.com")
	s.Require().NoError(s.guardians.Insert(s.ctx, g))

	row, err := s.guardians.Project(s.ctx,
		expr.FieldEq[*models.Guardian](models.FieldID, g.ID),
		expr.Select[*models.Guardian](models.FieldEmail))
	s.Require().NoError(err)
	s.Equal(map[string]any{"email": "ada@example.com"}, row)
}

func (s *StoreSuite) TestUpdateField() {
	g := models.NewGuardian("Ada", "")
	g.Stamp(t0)
	s.Require().NoError(s.guardians.Insert(s.ctx, g))

	later := t0.Add(time.Hour)
	ctx := requestcontext.WithTime(s.ctx, later)

	s.Run("sets the field and refreshes modifiedAt", func() {
		n, err := s.guardians.UpdateField(ctx, g.ID, models.FieldName, "Ada Lovelace")
		s.Require().NoError(err)
		s.Equal(1, n)

		got, err := s.guardians.Get(s.ctx, g.ID)
		s.Require().NoError(err)
		s.Equal("Ada Lovelace", got.Name)
		s.Equal(t0, got.CreatedAt)
		s.Equal(later, got.ModifiedAt)
	})

	s.Run("id is immutable", func() {
		_, err := s.guardians.UpdateField(ctx, g.ID, models.FieldID, "other")
		s.Error(err)
	})

	s.Run("missing document", func() {
		_, err := s.guardians.UpdateField(ctx, "nope", models.FieldName, "x")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *StoreSuite) TestDeletes() {
	a := models.NewGuardian("Ada", "x")
	b := models.NewGuardian("Grace", "x")
	c := models.NewGuardian("Linus", "y")
	_, err := s.guardians.InsertMany(s.ctx, []*models.Guardian{a, b, c})
	s.Require().NoError(err)

	n, err := s.guardians.Delete(s.ctx, "nope")
	s.Require().NoError(err)
	s.Zero(n)

	n, err = s.guardians.DeleteWhere(s.ctx, expr.FieldEq[*models.Guardian](models.FieldEmail, "x"))
	s.Require().NoError(err)
	s.Equal(2, n)

	n, err = s.guardians.DeleteMany(s.ctx, []string{a.ID, c.ID})
	s.Require().NoError(err)
	s.Equal(1, n)

	exists, err := s.guardians.Any(s.ctx, expr.All[*models.Guardian]())
	s.Require().NoError(err)
	s.False(exists)
}
