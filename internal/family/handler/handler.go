package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"cradle/internal/family/expr"
	"cradle/internal/family/models"
	"cradle/internal/family/store"
	dErrors "cradle/pkg/domain-errors"
	"cradle/pkg/platform/httputil"
	"cradle/pkg/requestcontext"
)

// defaultPage applies when a listing omits take.
const defaultPage = 50

// Service is the slice of the unit of work the HTTP boundary uses.
type Service interface {
	Insert(ctx context.Context, doc models.Document) (int, error)
	InsertMany(ctx context.Context, docs []models.Document) (int, error)
	Get(ctx context.Context, kind models.Kind, id string) (models.Document, error)
	GetMany(ctx context.Context, kind models.Kind, pred expr.Predicate[models.Document], page store.Query) ([]models.Document, error)
	Delete(ctx context.Context, kind models.Kind, id string, cascade bool) (int, error)
}

// Handler exposes the family records over HTTP. It decodes, delegates and
// encodes; every rule lives in the unit of work.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the record routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/guardians", h.HandleCreateGuardian)
	r.Post("/dependents", h.HandleCreateDependent)
	r.Post("/activities", h.HandleCreateActivity)
	r.Post("/activities/batch", h.HandleCreateActivities)
	r.Get("/guardians/{id}/dependents", h.HandleListDependents)
	r.Get("/dependents/{id}/activities", h.HandleListActivities)
	r.Get("/{kind}/{id}", h.HandleGet)
	r.Delete("/{kind}/{id}", h.HandleDelete)
}

// InsertResponse reports how many records were persisted. A paired activity
// whose phase does not follow its predecessor is skipped, so Inserted can be
// lower than the number submitted.
type InsertResponse struct {
	Inserted int      `json:"inserted"`
	IDs      []string `json:"ids,omitempty"`
}

// DeleteResponse reports how many records a delete removed, cascade included.
type DeleteResponse struct {
	Deleted int `json:"deleted"`
}

type ListResponse struct {
	Items []models.Document `json:"items"`
	Skip  int               `json:"skip"`
	Take  int               `json:"take"`
}

func (h *Handler) HandleCreateGuardian(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[GuardianRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	h.insert(w, r, req.Document())
}

func (h *Handler) HandleCreateDependent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[DependentRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	h.insert(w, r, req.Document())
}

func (h *Handler) HandleCreateActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[ActivityRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	h.insert(w, r, req.Document())
}

func (h *Handler) HandleCreateActivities(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[ActivityBatchRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	docs := req.Documents()
	n, err := h.service.InsertMany(ctx, docs)
	if err != nil {
		h.fail(ctx, w, "insert activities failed", err)
		return
	}
	httputil.WriteJSON(w, insertStatus(n), InsertResponse{Inserted: n})
}

func (h *Handler) insert(w http.ResponseWriter, r *http.Request, doc models.Document) {
	ctx := r.Context()
	n, err := h.service.Insert(ctx, doc)
	if err != nil {
		h.fail(ctx, w, "insert failed", err)
		return
	}
	resp := InsertResponse{Inserted: n}
	if n > 0 {
		resp.IDs = []string{doc.DocumentID()}
	}
	httputil.WriteJSON(w, insertStatus(n), resp)
}

func insertStatus(n int) int {
	if n > 0 {
		return http.StatusCreated
	}
	return http.StatusOK
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kind, err := parseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	doc, err := h.service.Get(ctx, kind, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "get failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kind, err := parseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	cascade := false
	if raw := r.URL.Query().Get("cascade"); raw != "" {
		cascade, err = strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "cascade must be a boolean"))
			return
		}
	}
	n, err := h.service.Delete(ctx, kind, chi.URLParam(r, "id"), cascade)
	if err != nil {
		h.fail(ctx, w, "delete failed", err)
		return
	}
	h.logger.InfoContext(ctx, "records deleted",
		"kind", string(kind),
		"id", chi.URLParam(r, "id"),
		"cascade", cascade,
		"deleted", n,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, DeleteResponse{Deleted: n})
}

func (h *Handler) HandleListDependents(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, models.KindDependent, models.FieldGuardianID, store.Query{})
}

func (h *Handler) HandleListActivities(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, models.KindActivity, models.FieldDependentID, store.Query{OrderBy: models.FieldTimestamp})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, kind models.Kind, parentField string, page store.Query) {
	ctx := r.Context()
	skip, take, err := parsePage(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	page.Skip, page.Take = skip, take

	pred := expr.FieldEq[models.Document](parentField, chi.URLParam(r, "id"))
	docs, err := h.service.GetMany(ctx, kind, pred, page)
	if err != nil {
		h.fail(ctx, w, "list failed", err)
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Items: docs, Skip: skip, Take: take})
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	} else {
		h.logger.WarnContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	}
	httputil.WriteError(w, err)
}

var pathKinds = map[string]models.Kind{
	"guardians":  models.KindGuardian,
	"dependents": models.KindDependent,
	"activities": models.KindActivity,
}

func parseKind(segment string) (models.Kind, error) {
	kind, ok := pathKinds[segment]
	if !ok {
		return "", dErrors.New(dErrors.CodeUnsupportedKind, "unknown collection: "+segment)
	}
	return kind, nil
}

func parsePage(r *http.Request) (skip, take int, err error) {
	q := r.URL.Query()
	take = defaultPage
	if raw := q.Get("skip"); raw != "" {
		if skip, err = strconv.Atoi(raw); err != nil || skip < 0 {
			return 0, 0, dErrors.New(dErrors.CodeBadRequest, "skip must be a non-negative integer")
		}
	}
	if raw := q.Get("take"); raw != "" {
		if take, err = strconv.Atoi(raw); err != nil || take <= 0 || take > maxBatch {
			return 0, 0, dErrors.New(dErrors.CodeBadRequest, "take must be between 1 and 500")
		}
	}
	return skip, take, nil
}
