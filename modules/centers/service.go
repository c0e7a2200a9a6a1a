package centers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/openlims/openlims/pkg/logger"
	"github.com/openlims/openlims/pkg/tenant"
)

// ErrSchemaDrop is returned when a center's schema could not be removed
// during a purge. The catalog row is kept so the purge can be retried.
var ErrSchemaDrop = errors.New("failed to drop center schema")

type repository interface {
	Create(ctx context.Context, c *Center) error
	GetByID(ctx context.Context, id uuid.UUID) (*Center, error)
	GetAnyByID(ctx context.Context, id uuid.UUID) (*Center, error)
	List(ctx context.Context, limit, offset int) ([]Center, error)
	ListActive(ctx context.Context) ([]Center, error)
	Update(ctx context.Context, c *Center) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	Delete(ctx context.Context, id uuid.UUID) error
	CenterCounts(ctx context.Context) (total, active int, err error)
	UserCount(ctx context.Context, centerID uuid.UUID) (int, error)
	SampleCount(ctx context.Context, schemaName string) (int, error)
}

// Invalidator drops a center's cached existence flag. Satisfied by
// tenant.CatalogChecker.
type Invalidator interface {
	Invalidate(ctx context.Context, id uuid.UUID)
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(context.Context, uuid.UUID) {}

// Service implements center CRUD and keeps the catalog, the per-tenant
// schemas, and the existence cache in step.
type Service struct {
	repo      repository
	lifecycle tenant.Lifecycle
	inv       Invalidator
	prefix    string
	log       *slog.Logger
}

// NewService wires a center service. prefix is the tenant schema prefix;
// empty falls back to the default. A nil invalidator or logger is replaced
// with a no-op.
func NewService(repo repository, lifecycle tenant.Lifecycle, inv Invalidator, prefix string, log *slog.Logger) *Service {
	if inv == nil {
		inv = noopInvalidator{}
	}
	if prefix == "" {
		prefix = tenant.DefaultSchemaPrefix
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{repo: repo, lifecycle: lifecycle, inv: inv, prefix: prefix, log: log}
}

// Create registers a new center and provisions its schema. The catalog row
// is committed first; if provisioning then fails the center still exists,
// without a backing schema, and the failure is logged. Requests for such a
// center resolve but fail at query time until the schema is repaired.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Center, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	c := &Center{
		ID:          uuid.New(),
		Name:        params.Name,
		Description: params.Description,
		Settings:    params.Settings,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	c.SchemaName = tenant.SchemaName(s.prefix, c.ID)
	if c.Settings == nil {
		c.Settings = map[string]any{}
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}

	if !s.lifecycle.Create(ctx, c.ID) {
		s.log.ErrorContext(ctx, "center created without a backing schema",
			logger.CenterID(c.ID.String()),
			logger.Schema(c.SchemaName))
	}

	s.inv.Invalidate(ctx, c.ID)
	return c, nil
}

// Get returns an active center.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Center, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns active centers. Limit is clamped to 1..100.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Center, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}

// Update applies the given fields to an active center.
func (s *Service) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*Center, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if params.Name != nil {
		if *params.Name == "" || len(*params.Name) > 100 {
			return nil, ErrInvalidName
		}
		c.Name = *params.Name
	}
	if params.Description != nil {
		c.Description = *params.Description
	}
	if params.Settings != nil {
		c.Settings = params.Settings
	}
	c.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// SoftDelete deactivates a center. Its schema and data are untouched; the
// existence cache is invalidated so in-flight requests stop resolving it
// immediately rather than after TTL expiry.
func (s *Service) SoftDelete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return err
	}
	s.inv.Invalidate(ctx, id)
	return nil
}

// Restore reactivates a soft-deleted center.
func (s *Service) Restore(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.SetActive(ctx, id, true); err != nil {
		return err
	}
	s.inv.Invalidate(ctx, id)
	return nil
}

// Stats returns one center's catalog entry with live sample and user counts.
// A sample count that fails, typically because the center has no backing
// schema, is logged and reported as zero rather than failing the request.
func (s *Service) Stats(ctx context.Context, id uuid.UUID) (*Stats, error) {
	c, err := s.repo.GetAnyByID(ctx, id)
	if err != nil {
		return nil, err
	}

	st := &Stats{
		CenterID:    c.ID,
		CenterName:  c.Name,
		SchemaName:  c.SchemaName,
		CreatedAt:   c.CreatedAt,
		LastUpdated: c.UpdatedAt,
		Active:      c.Active,
		Settings:    c.Settings,
	}
	st.SampleCount, st.UserCount = s.centerCounts(ctx, c)
	return st, nil
}

// Summary aggregates counts across the installation: center totals, then
// per-center sample and user counts over the active centers.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	total, active, err := s.repo.CenterCounts(ctx)
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		TotalCenters:    total,
		ActiveCenters:   active,
		InactiveCenters: total - active,
		Centers:         make([]SummaryEntry, 0, active),
	}

	list, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		c := &list[i]
		samples, users := s.centerCounts(ctx, c)
		sum.TotalSamples += samples
		sum.TotalUsers += users
		sum.Centers = append(sum.Centers, SummaryEntry{
			ID:          c.ID,
			Name:        c.Name,
			UserCount:   users,
			SampleCount: samples,
			CreatedAt:   c.CreatedAt,
			Active:      c.Active,
		})
	}
	if len(list) > 0 {
		sum.AverageSamplesPerCenter = float64(sum.TotalSamples) / float64(len(list))
	}
	return sum, nil
}

func (s *Service) centerCounts(ctx context.Context, c *Center) (samples, users int) {
	samples, err := s.repo.SampleCount(ctx, c.SchemaName)
	if err != nil {
		s.log.WarnContext(ctx, "sample count unavailable",
			logger.CenterID(c.ID.String()),
			logger.Schema(c.SchemaName),
			slog.Any("error", err))
		samples = 0
	}
	users, err = s.repo.UserCount(ctx, c.ID)
	if err != nil {
		s.log.WarnContext(ctx, "user count unavailable",
			logger.CenterID(c.ID.String()),
			slog.Any("error", err))
		users = 0
	}
	return samples, users
}

// Purge permanently removes a center: its schema with all tenant data, then
// the catalog row. If the schema drop fails the row is kept so the operation
// can be retried without orphaning data.
func (s *Service) Purge(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.GetAnyByID(ctx, id); err != nil {
		return err
	}

	if !s.lifecycle.Drop(ctx, id) {
		return ErrSchemaDrop
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.inv.Invalidate(ctx, id)
	return nil
}
