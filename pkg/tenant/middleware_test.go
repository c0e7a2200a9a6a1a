package tenant_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlims/openlims/pkg/tenant"
)

// fakeSession mimics one pooled connection: schema holds the connection's
// current search_path head and survives across requests, the way real
// connection state survives pool checkin/checkout.
type fakeSession struct {
	mu          sync.Mutex
	schema      string
	activations []string
	releases    int
	activateErr error
	db          *fakeDB
}

func newFakeSession() *fakeSession {
	return &fakeSession{schema: tenant.PublicSchema, db: &fakeDB{}}
}

func (s *fakeSession) Activate(_ context.Context, schemaName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activateErr != nil {
		return s.activateErr
	}
	s.schema = schemaName
	s.activations = append(s.activations, schemaName)
	return nil
}

func (s *fakeSession) ActivatePublic(ctx context.Context) error {
	return s.Activate(ctx, tenant.PublicSchema)
}

func (s *fakeSession) Bind(ctx context.Context) context.Context {
	return tenant.WithQuerier(ctx, s.db)
}

func (s *fakeSession) Release(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases++
	s.schema = tenant.PublicSchema
}

func (s *fakeSession) currentSchema() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schema
}

func (s *fakeSession) released() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releases
}

type fakeSwitcher struct {
	sess       *fakeSession
	acquireErr error
	acquired   int
}

func (s *fakeSwitcher) Acquire(context.Context) (tenant.Session, error) {
	if s.acquireErr != nil {
		return nil, s.acquireErr
	}
	s.acquired++
	return s.sess, nil
}

func newTenantRequest(id uuid.UUID) *http.Request {
	return httptest.NewRequest("GET", "/api/centers/"+id.String()+"/samples/", nil)
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	activeID := uuid.MustParse("123e4567-e89b-12d3-a456-426614174000")
	wantSchema := "center_123e4567e89b12d3a456426614174000"

	t.Run("tenant request activates schema and binds session", func(t *testing.T) {
		t.Parallel()

		sw := &fakeSwitcher{sess: newFakeSession()}
		resolver := tenant.NewPathResolver(newStubChecker(activeID), "center_")
		mw := tenant.Middleware(resolver, sw)

		var sawSchema string
		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc, ok := tenant.FromContext(r.Context())
			require.True(t, ok)
			assert.Equal(t, activeID, tc.ID)

			_, ok = tenant.QuerierFromContext(r.Context())
			assert.True(t, ok, "pinned connection must be bound for downstream repositories")

			sawSchema = sw.sess.currentSchema()
			w.WriteHeader(http.StatusOK)
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newTenantRequest(activeID))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, wantSchema, sawSchema, "handler must run with the tenant schema active")
		assert.Equal(t, tenant.PublicSchema, sw.sess.currentSchema(), "schema must be public after the request")
		assert.Equal(t, 1, sw.sess.released())
	})

	t.Run("public request activates public schema without tenant", func(t *testing.T) {
		t.Parallel()

		sw := &fakeSwitcher{sess: newFakeSession()}
		resolver := tenant.NewPathResolver(newStubChecker(activeID), "center_")
		mw := tenant.Middleware(resolver, sw)

		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, ok := tenant.FromContext(r.Context())
			assert.False(t, ok, "public requests carry no tenant marker")
			w.WriteHeader(http.StatusOK)
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/samples/", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{tenant.PublicSchema}, sw.sess.activations)
		assert.Equal(t, 1, sw.sess.released())
	})

	t.Run("unknown tenant short-circuits with 404 before any switch", func(t *testing.T) {
		t.Parallel()

		sw := &fakeSwitcher{sess: newFakeSession()}
		resolver := tenant.NewPathResolver(newStubChecker(), "center_")
		mw := tenant.Middleware(resolver, sw)

		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler must not run for unknown tenants")
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newTenantRequest(activeID))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, 0, sw.acquired, "no connection is pinned when resolution fails")
		assert.Equal(t, tenant.PublicSchema, sw.sess.currentSchema())
	})

	t.Run("schema resets after handler panic", func(t *testing.T) {
		t.Parallel()

		sw := &fakeSwitcher{sess: newFakeSession()}
		resolver := tenant.NewPathResolver(newStubChecker(activeID), "center_")
		mw := tenant.Middleware(resolver, sw)

		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))

		w := httptest.NewRecorder()
		require.Panics(t, func() {
			handler.ServeHTTP(w, newTenantRequest(activeID))
		})

		assert.Equal(t, tenant.PublicSchema, sw.sess.currentSchema(),
			"a panicking handler must not leak its tenant schema to the pool")
		assert.Equal(t, 1, sw.sess.released())
	})

	t.Run("schema resets when the request context is already cancelled", func(t *testing.T) {
		t.Parallel()

		sw := &fakeSwitcher{sess: newFakeSession()}
		resolver := tenant.NewPathResolver(newStubChecker(activeID), "center_")
		mw := tenant.Middleware(resolver, sw)

		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Simulate a timeout firing mid-handler.
		}))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req := newTenantRequest(activeID).WithContext(ctx)

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, 1, sw.sess.released(), "cleanup is not skippable under cancellation")
		assert.Equal(t, tenant.PublicSchema, sw.sess.currentSchema())
	})

	t.Run("no tenant leakage across sequential requests on one connection", func(t *testing.T) {
		t.Parallel()

		otherID := uuid.MustParse("9f0d5aaa-1111-4222-8333-444455556666")

		// One session shared by both requests, the way one pooled
		// connection serves requests back to back.
		sw := &fakeSwitcher{sess: newFakeSession()}
		resolver := tenant.NewPathResolver(newStubChecker(activeID, otherID), "center_")
		mw := tenant.Middleware(resolver, sw)

		failing := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("request one blows up")
		}))
		require.Panics(t, func() {
			failing.ServeHTTP(httptest.NewRecorder(), newTenantRequest(activeID))
		})

		var sawSchema string
		second := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sawSchema = sw.sess.currentSchema()
			w.WriteHeader(http.StatusOK)
		}))
		w := httptest.NewRecorder()
		second.ServeHTTP(w, newTenantRequest(otherID))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, tenant.SchemaName("center_", otherID), sawSchema,
			"second request must see only its own schema")
	})

	t.Run("activation failure is fatal for the request but still releases", func(t *testing.T) {
		t.Parallel()

		sess := newFakeSession()
		sess.activateErr = errors.Join(tenant.ErrSchemaActivate, errors.New("broken connection"))
		sw := &fakeSwitcher{sess: sess}
		resolver := tenant.NewPathResolver(newStubChecker(activeID), "center_")
		mw := tenant.Middleware(resolver, sw)

		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler must not run when activation fails")
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newTenantRequest(activeID))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, 1, sess.released())
	})

	t.Run("acquire failure yields 500", func(t *testing.T) {
		t.Parallel()

		sw := &fakeSwitcher{sess: newFakeSession(), acquireErr: tenant.ErrSessionAcquire}
		resolver := tenant.NewPathResolver(newStubChecker(activeID), "center_")
		mw := tenant.Middleware(resolver, sw)

		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler must not run without a session")
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newTenantRequest(activeID))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("skip paths bypass tenant handling entirely", func(t *testing.T) {
		t.Parallel()

		sw := &fakeSwitcher{sess: newFakeSession()}
		resolver := tenant.NewPathResolver(newStubChecker(activeID), "center_")
		mw := tenant.Middleware(resolver, sw, tenant.WithSkipPaths("/healthz"))

		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 0, sw.acquired)
	})

	t.Run("skip paths match on segment boundaries only", func(t *testing.T) {
		t.Parallel()

		sw := &fakeSwitcher{sess: newFakeSession()}
		resolver := tenant.NewPathResolver(newStubChecker(activeID), "center_")
		mw := tenant.Middleware(resolver, sw, tenant.WithSkipPaths("/healthz"))

		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/healthz/live", nil))
		assert.Equal(t, 0, sw.acquired, "subpaths of a skip entry stay skipped")

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/healthz-extra", nil))
		assert.Equal(t, 1, sw.acquired, "sibling paths sharing only a string prefix get full tenant handling")
	})

	t.Run("default error handler responds with JSON", func(t *testing.T) {
		t.Parallel()

		sw := &fakeSwitcher{sess: newFakeSession()}
		resolver := tenant.NewPathResolver(newStubChecker(), "center_")
		mw := tenant.Middleware(resolver, sw)

		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newTenantRequest(activeID))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"error": "Tenant not found"}`, w.Body.String())

		sw = &fakeSwitcher{sess: newFakeSession(), acquireErr: tenant.ErrSessionAcquire}
		resolver = tenant.NewPathResolver(newStubChecker(activeID), "center_")
		handler = tenant.Middleware(resolver, sw)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		w = httptest.NewRecorder()
		handler.ServeHTTP(w, newTenantRequest(activeID))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"error": "Internal server error"}`, w.Body.String())
	})

	t.Run("custom error handler", func(t *testing.T) {
		t.Parallel()

		sw := &fakeSwitcher{sess: newFakeSession()}
		resolver := tenant.NewPathResolver(newStubChecker(), "center_")
		mw := tenant.Middleware(resolver, sw, tenant.WithErrorHandler(
			func(w http.ResponseWriter, r *http.Request, err error) {
				assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
				w.WriteHeader(http.StatusTeapot)
			}))

		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newTenantRequest(activeID))
		assert.Equal(t, http.StatusTeapot, w.Code)
	})
}

func TestRequireTenant(t *testing.T) {
	t.Parallel()

	t.Run("blocks requests without tenant", func(t *testing.T) {
		t.Parallel()

		handler := tenant.RequireTenant(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler must not run")
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/samples/", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("passes requests with tenant", func(t *testing.T) {
		t.Parallel()

		handler := tenant.RequireTenant(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		tc := &tenant.Context{ID: uuid.New(), SchemaName: "center_x"}
		req := httptest.NewRequest("GET", "/", nil)
		req = req.WithContext(tenant.WithContext(req.Context(), tc))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
