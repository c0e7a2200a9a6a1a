package tenant_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlims/openlims/pkg/tenant"
)

// stubChecker answers existence from a fixed set and records the IDs it was
// asked about.
type stubChecker struct {
	mu       sync.Mutex
	existing map[uuid.UUID]bool
	asked    []uuid.UUID
}

func newStubChecker(ids ...uuid.UUID) *stubChecker {
	existing := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		existing[id] = true
	}
	return &stubChecker{existing: existing}
}

func (c *stubChecker) Exists(_ context.Context, id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.asked = append(c.asked, id)
	return c.existing[id]
}

func TestPathResolver_Resolve(t *testing.T) {
	t.Parallel()

	activeID := uuid.MustParse("123e4567-e89b-12d3-a456-426614174000")

	t.Run("tenant path with active center", func(t *testing.T) {
		t.Parallel()

		resolver := tenant.NewPathResolver(newStubChecker(activeID), "center_")
		req := httptest.NewRequest("GET", "/api/centers/"+activeID.String()+"/samples/", nil)

		tc, err := resolver.Resolve(req)
		require.NoError(t, err)
		require.NotNil(t, tc)
		assert.Equal(t, activeID, tc.ID)
		assert.Equal(t, "center_123e4567e89b12d3a456426614174000", tc.SchemaName)
	})

	t.Run("center detail path without trailing segment", func(t *testing.T) {
		t.Parallel()

		resolver := tenant.NewPathResolver(newStubChecker(activeID), "center_")
		req := httptest.NewRequest("GET", "/api/centers/"+activeID.String(), nil)

		tc, err := resolver.Resolve(req)
		require.NoError(t, err)
		require.NotNil(t, tc)
	})

	t.Run("uppercase hex digits are accepted", func(t *testing.T) {
		t.Parallel()

		resolver := tenant.NewPathResolver(newStubChecker(activeID), "center_")
		req := httptest.NewRequest("GET", "/api/centers/123E4567-E89B-12D3-A456-426614174000/samples/", nil)

		tc, err := resolver.Resolve(req)
		require.NoError(t, err)
		require.NotNil(t, tc)
		assert.Equal(t, activeID, tc.ID)
	})

	t.Run("unknown center yields not found", func(t *testing.T) {
		t.Parallel()

		resolver := tenant.NewPathResolver(newStubChecker(), "center_")
		req := httptest.NewRequest("GET", "/api/centers/00000000-0000-0000-0000-000000000000/samples/", nil)

		tc, err := resolver.Resolve(req)
		require.ErrorIs(t, err, tenant.ErrTenantNotFound)
		assert.Nil(t, tc)
	})

	t.Run("public routes resolve to no tenant", func(t *testing.T) {
		t.Parallel()

		checker := newStubChecker(activeID)
		resolver := tenant.NewPathResolver(checker, "center_")

		for _, path := range []string{
			"/api/samples/",
			"/api/centers/",
			"/api/centers",
			"/healthz",
			"/",
		} {
			req := httptest.NewRequest("GET", path, nil)
			tc, err := resolver.Resolve(req)
			assert.NoError(t, err, path)
			assert.Nil(t, tc, path)
		}
		assert.Empty(t, checker.asked, "no existence lookups for public routes")
	})

	t.Run("uuid lookalikes are public routes, not errors", func(t *testing.T) {
		t.Parallel()

		checker := newStubChecker(activeID)
		resolver := tenant.NewPathResolver(checker, "center_")

		for _, path := range []string{
			// Too short.
			"/api/centers/123e4567-e89b-12d3-a456-42661417400/samples/",
			// Too long.
			"/api/centers/123e4567-e89b-12d3-a456-4266141740000/samples/",
			// Hyphens in the wrong places.
			"/api/centers/123e4567e-89b-12d3-a456-426614174000/samples/",
			// Non-hex characters.
			"/api/centers/123e4567-e89b-12d3-a456-42661417400z/samples/",
			// No hyphens at all.
			"/api/centers/123e4567e89b12d3a456426614174000/samples/",
			// Numeric legacy identifier.
			"/api/centers/42/samples/",
		} {
			req := httptest.NewRequest("GET", path, nil)
			tc, err := resolver.Resolve(req)
			assert.NoError(t, err, path)
			assert.Nil(t, tc, path)
		}
		assert.Empty(t, checker.asked)
	})

	t.Run("pattern is anchored to the path start", func(t *testing.T) {
		t.Parallel()

		checker := newStubChecker(activeID)
		resolver := tenant.NewPathResolver(checker, "center_")
		req := httptest.NewRequest("GET", "/v2/api/centers/"+activeID.String()+"/samples/", nil)

		tc, err := resolver.Resolve(req)
		require.NoError(t, err)
		assert.Nil(t, tc)
	})
}

func TestResolverFunc(t *testing.T) {
	t.Parallel()

	want := &tenant.Context{ID: uuid.New(), SchemaName: "center_x"}
	resolver := tenant.ResolverFunc(func(r *http.Request) (*tenant.Context, error) {
		return want, nil
	})

	got, err := resolver.Resolve(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
