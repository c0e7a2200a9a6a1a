package users_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlims/openlims/modules/users"
)

func TestCreateParams_Normalize(t *testing.T) {
	t.Parallel()

	p := users.CreateParams{
		Username: "  LabTech1 ",
		Email:    "Tech@Example.COM",
	}
	p.Normalize()

	assert.Equal(t, "labtech1", p.Username)
	assert.Equal(t, "tech@example.com", p.Email)
	assert.Equal(t, users.RoleUser, p.Role)
}

func TestCreateParams_Validate(t *testing.T) {
	t.Parallel()

	valid := users.CreateParams{Username: "labtech1", Email: "tech@example.com", Role: users.RoleViewer}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*users.CreateParams)
		want   error
	}{
		{"short username", func(p *users.CreateParams) { p.Username = "ab" }, users.ErrInvalidUsername},
		{"uppercase username", func(p *users.CreateParams) { p.Username = "LabTech" }, users.ErrInvalidUsername},
		{"bad email", func(p *users.CreateParams) { p.Email = "not-an-email" }, users.ErrInvalidEmail},
		{"unknown role", func(p *users.CreateParams) { p.Role = "owner" }, users.ErrInvalidRole},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p := valid
			tc.mutate(&p)
			require.ErrorIs(t, p.Validate(), tc.want)
		})
	}
}

type fakeStore struct {
	users     map[uuid.UUID]*users.User
	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[uuid.UUID]*users.User)}
}

func (f *fakeStore) Create(_ context.Context, u *users.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*users.User, error) {
	u, ok := f.users[id]
	if !ok || !u.Active {
		return nil, users.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) ListByCenter(_ context.Context, centerID uuid.UUID, limit, offset int) ([]users.User, error) {
	out := make([]users.User, 0)
	for _, u := range f.users {
		if u.Active && u.CenterID == centerID {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeStore) Update(_ context.Context, u *users.User) error {
	if _, ok := f.users[u.ID]; !ok {
		return users.ErrNotFound
	}
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeStore) Deactivate(_ context.Context, id uuid.UUID) error {
	return f.SetActive(nil, id, false)
}

func (f *fakeStore) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	u, ok := f.users[id]
	if !ok || u.Active == active {
		return users.ErrNotFound
	}
	u.Active = active
	return nil
}

func (f *fakeStore) ChangeCenter(_ context.Context, id, centerID uuid.UUID) (*users.User, error) {
	u, ok := f.users[id]
	if !ok || !u.Active {
		return nil, users.ErrNotFound
	}
	u.CenterID = centerID
	cp := *u
	return &cp, nil
}

func (f *fakeStore) Summary(context.Context) (*users.Summary, error) {
	s := &users.Summary{
		UsersByRole:   map[string]int{},
		UsersByCenter: map[string]int{},
	}
	for _, u := range f.users {
		s.TotalUsers++
		if u.Active {
			s.ActiveUsers++
			s.UsersByRole[string(u.Role)]++
		} else {
			s.InactiveUsers++
		}
	}
	return s, nil
}

type stubChecker struct {
	active map[uuid.UUID]bool
}

func (s stubChecker) Exists(_ context.Context, id uuid.UUID) bool {
	return s.active[id]
}

func TestHandler_Create(t *testing.T) {
	t.Parallel()

	centerID := uuid.New()
	checker := stubChecker{active: map[uuid.UUID]bool{centerID: true}}

	post := func(t *testing.T, store *fakeStore, body map[string]any) *httptest.ResponseRecorder {
		t.Helper()
		h := users.NewHandler(store, checker)
		raw, err := json.Marshal(body)
		require.NoError(t, err)

		w := httptest.NewRecorder()
		r := httptest.NewRequest("POST", "/", bytes.NewReader(raw))
		h.Routes().ServeHTTP(w, r)
		return w
	}

	t.Run("creates normalized user", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		w := post(t, store, map[string]any{
			"username":  "LabTech1",
			"email":     "Tech@Example.COM",
			"center_id": centerID,
		})
		require.Equal(t, http.StatusCreated, w.Code)

		var u users.User
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &u))
		assert.Equal(t, "labtech1", u.Username)
		assert.Equal(t, "tech@example.com", u.Email)
		assert.Equal(t, users.RoleUser, u.Role)
		assert.True(t, u.Active)
	})

	t.Run("rejects inactive center", func(t *testing.T) {
		t.Parallel()

		w := post(t, newFakeStore(), map[string]any{
			"username":  "labtech2",
			"email":     "tech2@example.com",
			"center_id": uuid.New(),
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		store.createErr = users.ErrEmailTaken
		w := post(t, store, map[string]any{
			"username":  "labtech3",
			"email":     "tech3@example.com",
			"center_id": centerID,
		})
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestHandler_UpdateAndDeactivate(t *testing.T) {
	t.Parallel()

	centerID := uuid.New()
	store := newFakeStore()
	u := &users.User{
		ID:       uuid.New(),
		Username: "labtech",
		Email:    "tech@example.com",
		CenterID: centerID,
		Role:     users.RoleUser,
		Active:   true,
	}
	require.NoError(t, store.Create(context.Background(), u))

	h := users.NewHandler(store, stubChecker{active: map[uuid.UUID]bool{centerID: true}})
	router := h.Routes()

	body := bytes.NewReader([]byte(`{"role":"admin","first_name":"Ada"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("PUT", "/"+u.ID.String()+"/", body))
	require.Equal(t, http.StatusOK, w.Code)

	got, err := store.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, users.RoleAdmin, got.Role)
	assert.Equal(t, "Ada", got.FirstName)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("DELETE", "/"+u.ID.String()+"/", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	_, err = store.GetByID(context.Background(), u.ID)
	require.ErrorIs(t, err, users.ErrNotFound)

	// Deactivating twice is a 404.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("DELETE", "/"+u.ID.String()+"/", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_Restore(t *testing.T) {
	t.Parallel()

	centerID := uuid.New()
	store := newFakeStore()
	u := &users.User{
		ID:       uuid.New(),
		Username: "labtech",
		Email:    "tech@example.com",
		CenterID: centerID,
		Role:     users.RoleUser,
		Active:   false,
	}
	require.NoError(t, store.Create(context.Background(), u))

	h := users.NewHandler(store, stubChecker{active: map[uuid.UUID]bool{centerID: true}})
	router := h.Routes()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/"+u.ID.String()+"/restore", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got users.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.True(t, got.Active, "a deactivated user must be reachable again after restore")

	// Restoring an already active user is a 404.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/"+u.ID.String()+"/restore", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_ChangeCenter(t *testing.T) {
	t.Parallel()

	oldCenter := uuid.New()
	newCenter := uuid.New()
	checker := stubChecker{active: map[uuid.UUID]bool{oldCenter: true, newCenter: true}}

	store := newFakeStore()
	u := &users.User{
		ID:       uuid.New(),
		Username: "labtech",
		Email:    "tech@example.com",
		CenterID: oldCenter,
		Role:     users.RoleUser,
		Active:   true,
	}
	require.NoError(t, store.Create(context.Background(), u))

	router := users.NewHandler(store, checker).Routes()

	t.Run("moves user to an active center", func(t *testing.T) {
		body := bytes.NewReader([]byte(`{"center_id":"` + newCenter.String() + `"}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/"+u.ID.String()+"/change-center", body))
		require.Equal(t, http.StatusOK, w.Code)

		var got users.User
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, newCenter, got.CenterID)
	})

	t.Run("rejects an unknown or inactive center", func(t *testing.T) {
		body := bytes.NewReader([]byte(`{"center_id":"` + uuid.New().String() + `"}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/"+u.ID.String()+"/change-center", body))
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("requires a center_id", func(t *testing.T) {
		body := bytes.NewReader([]byte(`{}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/"+u.ID.String()+"/change-center", body))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandler_Summary(t *testing.T) {
	t.Parallel()

	centerID := uuid.New()
	store := newFakeStore()
	for i, role := range []users.Role{users.RoleAdmin, users.RoleUser, users.RoleUser} {
		require.NoError(t, store.Create(context.Background(), &users.User{
			ID:       uuid.New(),
			Username: "tech" + string(rune('a'+i)),
			Email:    "tech" + string(rune('a'+i)) + "@example.com",
			CenterID: centerID,
			Role:     role,
			Active:   true,
		}))
	}
	require.NoError(t, store.Create(context.Background(), &users.User{
		ID: uuid.New(), Username: "gone", Email: "gone@example.com",
		CenterID: centerID, Role: users.RoleViewer, Active: false,
	}))

	router := users.NewHandler(store, stubChecker{}).Routes()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/summary", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got users.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 4, got.TotalUsers)
	assert.Equal(t, 3, got.ActiveUsers)
	assert.Equal(t, 1, got.InactiveUsers)
	assert.Equal(t, 2, got.UsersByRole[string(users.RoleUser)])
}
