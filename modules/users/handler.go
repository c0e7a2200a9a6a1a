package users

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
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	ListByCenter(ctx context.Context, centerID uuid.UUID, limit, offset int) ([]User, error)
	Update(ctx context.Context, u *User) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	ChangeCenter(ctx context.Context, id, centerID uuid.UUID) (*User, error)
	Summary(ctx context.Context) (*Summary, error)
}

// Handler exposes user management over HTTP. New users can only be assigned
// to centers the checker confirms are active.
type Handler struct {
	repo    store
	checker tenant.Checker
}

// NewHandler creates the user management handler.
func NewHandler(repo store, checker tenant.Checker) *Handler {
	return &Handler{repo: repo, checker: checker}
}

// Routes returns the user management router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/summary", h.summary)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Put("/", h.update)
		r.Delete("/", h.deactivate)
		r.Post("/restore", h.restore)
		r.Post("/change-center", h.changeCenter)
	})
	return r
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	centerID, err := uuid.Parse(r.URL.Query().Get("center_id"))
	if err != nil {
		httpserver.JSONError(w, http.StatusBadRequest, "center_id query parameter required")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	list, err := h.repo.ListByCenter(r.Context(), centerID, limit, offset)
	if err != nil {
		httpserver.JSONError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	httpserver.JSON(w, http.StatusOK, map[string]any{"users": list, "count": len(list)})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var params CreateParams
	if err := httpserver.Decode(r, &params); err != nil {
		httpserver.JSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	params.Normalize()
	if err := params.Validate(); err != nil {
		h.writeError(w, err)
		return
	}

	if !h.checker.Exists(r.Context(), params.CenterID) {
		httpserver.JSONError(w, http.StatusUnprocessableEntity, "center not found or inactive")
		return
	}

	now := time.Now().UTC()
	u := &User{
		ID:        uuid.New(),
		Username:  params.Username,
		Email:     params.Email,
		FirstName: params.FirstName,
		LastName:  params.LastName,
		Phone:     params.Phone,
		CenterID:  params.CenterID,
		Role:      params.Role,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.repo.Create(r.Context(), u); err != nil {
		h.writeError(w, err)
		return
	}
	httpserver.JSON(w, http.StatusCreated, u)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	u, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpserver.JSON(w, http.StatusOK, u)
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

	u, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if params.FirstName != nil {
		u.FirstName = *params.FirstName
	}
	if params.LastName != nil {
		u.LastName = *params.LastName
	}
	if params.Phone != nil {
		u.Phone = *params.Phone
	}
	if params.Role != nil {
		if !params.Role.Valid() {
			h.writeError(w, ErrInvalidRole)
			return
		}
		u.Role = *params.Role
	}
	u.UpdatedAt = time.Now().UTC()

	if err := h.repo.Update(r.Context(), u); err != nil {
		h.writeError(w, err)
		return
	}
	httpserver.JSON(w, http.StatusOK, u)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.repo.Deactivate(r.Context(), id); err != nil {
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

	u, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpserver.JSON(w, http.StatusOK, u)
}

func (h *Handler) changeCenter(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var body struct {
		CenterID uuid.UUID `json:"center_id"`
	}
	if err := httpserver.Decode(r, &body); err != nil || body.CenterID == uuid.Nil {
		httpserver.JSONError(w, http.StatusBadRequest, "center_id required")
		return
	}

	if !h.checker.Exists(r.Context(), body.CenterID) {
		httpserver.JSONError(w, http.StatusUnprocessableEntity, "center not found or inactive")
		return
	}

	u, err := h.repo.ChangeCenter(r.Context(), id, body.CenterID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpserver.JSON(w, http.StatusOK, u)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	s, err := h.repo.Summary(r.Context())
	if err != nil {
		httpserver.JSONError(w, http.StatusInternalServerError, "failed to build summary")
		return
	}
	httpserver.JSON(w, http.StatusOK, s)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.JSONError(w, http.StatusBadRequest, "invalid user id")
		return uuid.UUID{}, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpserver.JSONError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, ErrEmailTaken):
		httpserver.JSONError(w, http.StatusConflict, "email already taken")
	case errors.Is(err, ErrInvalidEmail),
		errors.Is(err, ErrInvalidUsername),
		errors.Is(err, ErrInvalidRole):
		httpserver.JSONError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		httpserver.JSONError(w, http.StatusInternalServerError, "internal error")
	}
}
