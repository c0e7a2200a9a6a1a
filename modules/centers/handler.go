package centers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/openlims/openlims/pkg/httpserver"
)

// Handler exposes center management over HTTP. Mounted outside the
// tenant-scoped path space so soft-deleted centers stay reachable for
// restore.
type Handler struct {
	svc *Service
}

// NewHandler creates the center management handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Routes returns the center management router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/summary", h.summary)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Put("/", h.update)
		r.Delete("/", h.softDelete)
		r.Get("/stats", h.stats)
		r.Post("/restore", h.restore)
		r.Delete("/purge", h.purge)
	})
	return r
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	centers, err := h.svc.List(r.Context(), limit, offset)
	if err != nil {
		httpserver.JSONError(w, http.StatusInternalServerError, "failed to list centers")
		return
	}
	httpserver.JSON(w, http.StatusOK, map[string]any{"centers": centers, "count": len(centers)})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var params CreateParams
	if err := httpserver.Decode(r, &params); err != nil {
		httpserver.JSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.svc.Create(r.Context(), params)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpserver.JSON(w, http.StatusCreated, c)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	c, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpserver.JSON(w, http.StatusOK, c)
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

	c, err := h.svc.Update(r.Context(), id, params)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpserver.JSON(w, http.StatusOK, c)
}

func (h *Handler) softDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.svc.SoftDelete(r.Context(), id); err != nil {
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

	if err := h.svc.Restore(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	st, err := h.svc.Stats(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpserver.JSON(w, http.StatusOK, st)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Summary(r.Context())
	if err != nil {
		httpserver.JSONError(w, http.StatusInternalServerError, "failed to build summary")
		return
	}
	httpserver.JSON(w, http.StatusOK, sum)
}

func (h *Handler) purge(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Purge(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.JSONError(w, http.StatusBadRequest, "invalid center id")
		return uuid.UUID{}, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpserver.JSONError(w, http.StatusNotFound, "center not found")
	case errors.Is(err, ErrNameTaken):
		httpserver.JSONError(w, http.StatusConflict, "center name already taken")
	case errors.Is(err, ErrInvalidName):
		httpserver.JSONError(w, http.StatusUnprocessableEntity, "invalid center name")
	case errors.Is(err, ErrSchemaDrop):
		httpserver.JSONError(w, http.StatusInternalServerError, "failed to remove center data")
	default:
		httpserver.JSONError(w, http.StatusInternalServerError, "internal error")
	}
}
