package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/cache"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/pkg/money"
)

const (
	maxNameLength     = 255
	maxCategoryLength = 100

	DefaultCacheTTL = 5 * time.Minute
)

// CacheRecorder receives cache hit/miss observations.
type CacheRecorder interface {
	RecordCacheLookup(hit bool)
}

// Service manages the billing catalog. Reads of single entries go through
// a read-through cache that every mutation invalidates.
type Service struct {
	services ServiceRepository
	cache    cache.Store
	ttl      time.Duration
	metrics  CacheRecorder
}

func NewService(services ServiceRepository) *Service {
	return &Service{services: services, cache: cache.NopStore{}, ttl: DefaultCacheTTL}
}

// SetCache attaches a cache store. A non-positive ttl keeps the default.
func (s *Service) SetCache(store cache.Store, ttl time.Duration) {
	if store == nil {
		store = cache.NopStore{}
	}
	s.cache = store
	if ttl > 0 {
		s.ttl = ttl
	}
}

func (s *Service) SetMetrics(m CacheRecorder) {
	s.metrics = m
}

func cacheKey(id uuid.UUID) string {
	return "catalog:service:" + id.String()
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.InvalidArgument("name is required")
	}
	if len(name) > maxNameLength {
		return "", apperr.InvalidArgument(fmt.Sprintf("name must be at most %d characters", maxNameLength))
	}
	return name, nil
}

func validatePrice(d decimal.Decimal) error {
	if err := money.Validate(d); err != nil {
		return apperr.InvalidArgument("default_price: " + err.Error())
	}
	return nil
}

func validateCategory(c *string) (*string, error) {
	if c == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*c)
	if len(trimmed) > maxCategoryLength {
		return nil, apperr.InvalidArgument(fmt.Sprintf("category must be at most %d characters", maxCategoryLength))
	}
	if trimmed == "" {
		return nil, nil
	}
	return &trimmed, nil
}

func (s *Service) CreateService(ctx context.Context, in CreateServiceInput, actorID uuid.UUID) (*BillingService, error) {
	if actorID == uuid.Nil {
		return nil, apperr.Unauthenticated("authenticated staff member required")
	}
	name, err := validateName(in.Name)
	if err != nil {
		return nil, err
	}
	if err := validatePrice(in.DefaultPrice); err != nil {
		return nil, err
	}
	category, err := validateCategory(in.Category)
	if err != nil {
		return nil, err
	}

	svc := &BillingService{
		Name:         name,
		Description:  in.Description,
		DefaultPrice: money.Round(in.DefaultPrice),
		Category:     category,
		CreatedBy:    actorID,
		UpdatedBy:    actorID,
	}
	if err := s.services.Create(ctx, svc); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, apperr.Conflict(fmt.Sprintf("a billing service named %q already exists", name))
		}
		return nil, fmt.Errorf("create billing service: %w", err)
	}

	zerolog.Ctx(ctx).Info().Str("service_id", svc.ID.String()).Str("name", svc.Name).Msg("billing service created")
	return svc, nil
}

// GetService returns the catalog entry, soft-deleted or not.
func (s *Service) GetService(ctx context.Context, id uuid.UUID) (*BillingService, error) {
	if id == uuid.Nil {
		return nil, apperr.InvalidArgument("service id is required")
	}

	var cached BillingService
	found, err := s.cache.Get(ctx, cacheKey(id), &cached)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("service_id", id.String()).Msg("catalog cache read failed")
	}
	if s.metrics != nil {
		s.metrics.RecordCacheLookup(found)
	}
	if found {
		return &cached, nil
	}

	svc, err := s.services.GetByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("billing service not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get billing service %s: %w", id, err)
	}

	if err := s.cache.Set(ctx, cacheKey(id), svc, s.ttl); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("service_id", id.String()).Msg("catalog cache write failed")
	}
	return svc, nil
}

// ResolveService reads the entry straight from the store. Callers that act
// on the deleted flag use it instead of GetService, whose cached copy may
// trail a concurrent toggle by up to the cache TTL.
func (s *Service) ResolveService(ctx context.Context, id uuid.UUID) (*BillingService, error) {
	if id == uuid.Nil {
		return nil, apperr.InvalidArgument("service id is required")
	}
	svc, err := s.services.GetByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("billing service not found")
	}
	if err != nil {
		return nil, fmt.Errorf("resolve billing service %s: %w", id, err)
	}
	return svc, nil
}

func (s *Service) ListServices(ctx context.Context, filter ServiceFilter, limit, offset int) ([]*BillingService, int, error) {
	items, total, err := s.services.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list billing services: %w", err)
	}
	if items == nil {
		items = []*BillingService{}
	}
	return items, total, nil
}

func (s *Service) UpdateService(ctx context.Context, id uuid.UUID, patch ServicePatch, actorID uuid.UUID) (*BillingService, error) {
	if actorID == uuid.Nil {
		return nil, apperr.Unauthenticated("authenticated staff member required")
	}
	if patch.IsEmpty() {
		return nil, apperr.InvalidArgument("no fields to update")
	}

	svc, err := s.services.GetByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("billing service not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get billing service %s: %w", id, err)
	}

	if patch.Name != nil {
		name, err := validateName(*patch.Name)
		if err != nil {
			return nil, err
		}
		svc.Name = name
	}
	if patch.Description != nil {
		svc.Description = patch.Description
	}
	if patch.DefaultPrice != nil {
		if err := validatePrice(*patch.DefaultPrice); err != nil {
			return nil, err
		}
		svc.DefaultPrice = money.Round(*patch.DefaultPrice)
	}
	if patch.Category != nil {
		category, err := validateCategory(patch.Category)
		if err != nil {
			return nil, err
		}
		svc.Category = category
	}
	svc.UpdatedBy = actorID

	if err := s.services.Update(ctx, svc); err != nil {
		switch {
		case db.IsUniqueViolation(err):
			return nil, apperr.Conflict(fmt.Sprintf("a billing service named %q already exists", svc.Name))
		case errors.Is(err, db.ErrNotFound):
			return nil, apperr.NotFound("billing service not found")
		}
		return nil, fmt.Errorf("update billing service %s: %w", id, err)
	}

	s.invalidate(ctx, id)
	return svc, nil
}

func (s *Service) ToggleDeleteService(ctx context.Context, id, actorID uuid.UUID) (*BillingService, error) {
	if actorID == uuid.Nil {
		return nil, apperr.Unauthenticated("authenticated staff member required")
	}
	svc, err := s.services.ToggleDeleted(ctx, id, actorID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("billing service not found")
	}
	if err != nil {
		return nil, fmt.Errorf("toggle billing service %s: %w", id, err)
	}

	s.invalidate(ctx, id)
	zerolog.Ctx(ctx).Info().
		Str("service_id", id.String()).
		Bool("is_deleted", svc.IsDeleted).
		Msg("billing service delete toggled")
	return svc, nil
}

func (s *Service) invalidate(ctx context.Context, id uuid.UUID) {
	if err := s.cache.Delete(ctx, cacheKey(id)); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("service_id", id.String()).Msg("catalog cache invalidation failed")
	}
}
