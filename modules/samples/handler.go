package samples

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/openlims/openlims/pkg/httpserver"
	"github.com/openlims/openlims/pkg/tenant"
)

type store interface {
	Create(ctx context.Context, s *Sample) error
	GetByID(ctx context.Context, id uuid.UUID) (*Sample, error)
	GetByBarcode(ctx context.Context, barcode string) (*Sample, error)
	List(ctx context.Context, f Filter) ([]Sample, error)
	Update(ctx context.Context, s *Sample) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	Stats(ctx context.Context) (*Stats, error)
}

// Handler exposes sample management over HTTP. Mounted under the
// tenant-scoped path space: by the time a request reaches it, the
// middleware has already switched the pinned connection to the center's
// schema.
type Handler struct {
	repo store
}

// NewHandler creates the sample handler.
func NewHandler(repo store) *Handler {
	return &Handler{repo: repo}
}

// Routes returns the sample router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/by-barcode", h.byBarcode)
	r.Get("/stats", h.stats)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Put("/", h.update)
		r.Delete("/", h.softDelete)
		r.Post("/restore", h.restore)
		r.Post("/process", h.process)
	})
	return r
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	qp := r.URL.Query()

	f := Filter{
		Status:          Status(qp.Get("status")),
		Type:            Type(qp.Get("sample_type")),
		IncludeInactive: qp.Get("include_inactive") == "true",
	}
	if f.Status != "" && !f.Status.Valid() {
		httpserver.JSONError(w, http.StatusBadRequest, "unknown status")
		return
	}
	if f.Type != "" && !f.Type.Valid() {
		httpserver.JSONError(w, http.StatusBadRequest, "unknown sample type")
		return
	}
	if raw := qp.Get("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpserver.JSONError(w, http.StatusBadRequest, "invalid user_id")
			return
		}
		f.UserID = id
	}
	f.Limit, _ = strconv.Atoi(qp.Get("limit"))
	f.Offset, _ = strconv.Atoi(qp.Get("offset"))

	list, err := h.repo.List(r.Context(), f)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpserver.JSON(w, http.StatusOK, map[string]any{"samples": list, "count": len(list)})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var params CreateParams
	if err := httpserver.Decode(r, &params); err != nil {
		httpserver.JSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if params.Type == "" {
		params.Type = TypeOther
	}
	params.Barcode = NormalizeBarcode(params.Barcode)
	if err := params.Validate(); err != nil {
		h.writeError(w, err)
		return
	}

	now := time.Now().UTC()
	s := &Sample{
		ID:                 uuid.New(),
		Name:               params.Name,
		Description:        params.Description,
		Type:               params.Type,
		Status:             StatusPending,
		Barcode:            params.Barcode,
		UserID:             params.UserID,
		Metadata:           params.Metadata,
		CollectionDate:     params.CollectionDate,
		CollectionLocation: params.CollectionLocation,
		Results:            map[string]any{},
		Active:             true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if s.Metadata == nil {
		s.Metadata = map[string]any{}
	}

	if err := h.repo.Create(r.Context(), s); err != nil {
		h.writeError(w, err)
		return
	}
	httpserver.JSON(w, http.StatusCreated, s)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	s, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpserver.JSON(w, http.StatusOK, s)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var params UpdateParams
	if err := httpserver.Decode(r, &params); err != nil {
		httpserver.JSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if params.Name != nil {
		if *params.Name == "" || len(*params.Name) > 100 {
			httpserver.JSONError(w, http.StatusUnprocessableEntity, "name must be 1-100 characters")
			return
		}
		s.Name = *params.Name
	}
	if params.Description != nil {
		s.Description = *params.Description
	}
	if params.Type != nil {
		if !params.Type.Valid() {
			httpserver.JSONError(w, http.StatusUnprocessableEntity, "unknown sample type")
			return
		}
		s.Type = *params.Type
	}
	if params.Metadata != nil {
		s.Metadata = params.Metadata
	}
	if params.CollectionDate != nil {
		s.CollectionDate = params.CollectionDate
	}
	if params.CollectionLocation != nil {
		s.CollectionLocation = *params.CollectionLocation
	}
	s.UpdatedAt = time.Now().UTC()

	if err := h.repo.Update(r.Context(), s); err != nil {
		h.writeError(w, err)
		return
	}
	httpserver.JSON(w, http.StatusOK, s)
}

func (h *Handler) softDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.repo.SetActive(r.Context(), id, false); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.repo.SetActive(r.Context(), id, true); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type processRequest struct {
	Action  string         `json:"action"`
	Results map[string]any `json:"results,omitempty"`
	Reason  string         `json:"reason,omitempty"`
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req processRequest
	if err := httpserver.Decode(r, &req); err != nil {
		httpserver.JSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	now := time.Now().UTC()
	switch req.Action {
	case "start":
		err = s.StartProcessing(now)
	case "complete":
		err = s.CompleteProcessing(now, req.Results)
	case "reject":
		err = s.Reject(now, req.Reason)
	case "archive":
		err = s.Archive(now)
	default:
		httpserver.JSONError(w, http.StatusBadRequest, "unknown action")
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.repo.Update(r.Context(), s); err != nil {
		h.writeError(w, err)
		return
	}
	httpserver.JSON(w, http.StatusOK, s)
}

func (h *Handler) byBarcode(w http.ResponseWriter, r *http.Request) {
	barcode := r.URL.Query().Get("barcode")
	if barcode == "" {
		httpserver.JSONError(w, http.StatusBadRequest, "barcode parameter is required")
		return
	}

	s, err := h.repo.GetByBarcode(r.Context(), barcode)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpserver.JSON(w, http.StatusOK, s)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.Stats(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpserver.JSON(w, http.StatusOK, stats)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.JSONError(w, http.StatusBadRequest, "invalid sample id")
		return uuid.UUID{}, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpserver.JSONError(w, http.StatusNotFound, "sample not found")
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidTransition):
		httpserver.JSONError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrBarcodeTaken):
		httpserver.JSONError(w, http.StatusConflict, "barcode already taken")
	case errors.Is(err, tenant.ErrNoSessionInContext):
		httpserver.JSONError(w, http.StatusNotFound, "Tenant not found")
	default:
		httpserver.JSONError(w, http.StatusInternalServerError, "internal error")
	}
}
