package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"cradle/internal/family/models"
	"cradle/internal/family/store/memory"
	"cradle/internal/family/unitofwork"
	"cradle/pkg/testutil"
)

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

type HandlerSuite struct {
	suite.Suite
	router chi.Router
	uow    *unitofwork.UnitOfWork
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.uow = unitofwork.New(
		memory.New[*models.Guardian](),
		memory.New[*models.Dependent](),
		memory.New[*models.ActivityRecord](),
		unitofwork.WithLogger(logger),
	)
	s.router = chi.NewRouter()
	New(s.uow, logger).Register(s.router)
}

func (s *HandlerSuite) post(path string, body any) *InsertResponse {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, path, body))
	s.Require().Contains([]int{http.StatusCreated, http.StatusOK}, rr.Code, rr.Body.String())
	return testutil.UnmarshalResponse[InsertResponse](s.T(), rr)
}

func (s *HandlerSuite) TestScenario() {
	g := s.post("/guardians", GuardianRequest{Name: "Ada"})
	s.Require().Len(g.IDs, 1)
	d := s.post("/dependents", DependentRequest{GuardianID: g.IDs[0], Name: "Byron"})
	s.Require().Len(d.IDs, 1)
	dependentID := d.IDs[0]

	start := ActivityRequest{DependentID: dependentID, Kind: models.ActivitySleep, Phase: models.PhaseStart, Timestamp: t0}
	s.Equal(1, s.post("/activities", start).Inserted)

	start.Timestamp = t0.Add(time.Hour)
	s.Equal(0, s.post("/activities", start).Inserted, "second Start is skipped")

	end := ActivityRequest{DependentID: dependentID, Kind: models.ActivitySleep, Phase: models.PhaseEnd, Timestamp: t0.Add(time.Hour)}
	s.Equal(1, s.post("/activities", end).Inserted)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/dependents/"+dependentID+"/activities"))
	testutil.AssertStatusOK(s.T(), rr)
	list := testutil.UnmarshalResponse[struct {
		Items []map[string]any `json:"items"`
	}](s.T(), rr)
	s.Len(list.Items, 2)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodDelete, "/dependents/"+dependentID+"?cascade=true"))
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "deleted", float64(3))

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/dependents/"+dependentID))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
}

func (s *HandlerSuite) TestBatch() {
	g := s.post("/guardians", GuardianRequest{Name: "Ada"})
	d := s.post("/dependents", DependentRequest{GuardianID: g.IDs[0], Name: "Byron"})

	resp := s.post("/activities/batch", ActivityBatchRequest{Activities: []ActivityRequest{
		{DependentID: d.IDs[0], Kind: models.ActivityFeeding, Phase: models.PhaseStart, Timestamp: t0},
		{DependentID: d.IDs[0], Kind: models.ActivityFeeding, Phase: models.PhaseEnd, Timestamp: t0.Add(20 * time.Minute)},
		{DependentID: d.IDs[0], Kind: models.ActivityFeeding, Phase: models.PhaseEnd, Timestamp: t0.Add(30 * time.Minute)},
	}})
	s.Equal(2, resp.Inserted)
}

func (s *HandlerSuite) TestErrors() {
	s.Run("invalid foreign key", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/dependents",
			DependentRequest{GuardianID: "missing", Name: "Byron"}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, "invalid_foreign_key")
	})

	s.Run("validation", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/guardians", GuardianRequest{}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("malformed body", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPost, "/guardians", "{"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("unknown collection", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/pets/1"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "unsupported_kind")
	})

	s.Run("bad cascade flag", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodDelete, "/guardians/1?cascade=maybe"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("bad page", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/guardians/1/dependents?take=0"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})
}

func (s *HandlerSuite) TestListDependentsIsEmptyArray() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/guardians/none/dependents"))
	testutil.AssertStatusOK(s.T(), rr)
	s.JSONEq(`{"items":[],"skip":0,"take":50}`, rr.Body.String())
}

func (s *HandlerSuite) TestGetReturnsDocument() {
	g := s.post("/guardians", GuardianRequest{Name: "Ada", Email: "ada@example.com"})
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/guardians/"+g.IDs[0]))
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "email", "ada@example.com")

	doc, err := unitofwork.GetAs[*models.Guardian](context.Background(), s.uow, g.IDs[0])
	s.Require().NoError(err)
	s.Equal("Ada", doc.Name)
}

func TestRecordsAreStampedWithRequestTime(t *testing.T) {
	uow := unitofwork.New(
		memory.New[*models.Guardian](),
		memory.New[*models.Dependent](),
		memory.New[*models.ActivityRecord](),
	)
	router := chi.NewRouter()
	New(uow, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(router)

	testutil.Given(t, "a request carrying a pinned time and id", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/guardians", GuardianRequest{Name: "Ada"})
		req = testutil.WithRequestID(testutil.WithRequestTime(req, t0), "req-42")

		testutil.When(t, "the guardian is created", func(t *testing.T) {
			rr := testutil.DoRequest(router, req)
			testutil.AssertStatus(t, rr, http.StatusCreated)
			resp := testutil.UnmarshalResponse[InsertResponse](t, rr)
			require.Len(t, resp.IDs, 1)

			testutil.Then(t, "created and modified times are the request time", func(t *testing.T) {
				g, err := unitofwork.GetAs[*models.Guardian](context.Background(), uow, resp.IDs[0])
				require.NoError(t, err)
				assert.True(t, g.CreatedAt.Equal(t0))
				assert.True(t, g.ModifiedAt.Equal(t0))
			})

			testutil.And(t, "a dependent created at the same request time shares the stamp", func(t *testing.T) {
				dreq := testutil.NewJSONRequest(t, http.MethodPost, "/dependents", DependentRequest{GuardianID: resp.IDs[0], Name: "Byron"})
				drr := testutil.DoRequest(router, testutil.WithRequestTime(dreq, t0))
				testutil.AssertStatus(t, drr, http.StatusCreated)
				dresp := testutil.UnmarshalResponse[InsertResponse](t, drr)
				require.Len(t, dresp.IDs, 1)

				d, err := unitofwork.GetAs[*models.Dependent](context.Background(), uow, dresp.IDs[0])
				require.NoError(t, err)
				assert.True(t, d.CreatedAt.Equal(t0))
			})
		})
	})
}
