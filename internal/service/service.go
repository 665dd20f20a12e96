// Package service provides the implementation of storefront lifecycle logic.
package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	apperrors "github.com/popuplink/popuplink/internal/errors"
	"github.com/popuplink/popuplink/internal/store"
)

// StorefrontService defines the methods for managing storefronts.
// It abstracts the underlying business logic and data access.
type StorefrontService interface {
	// FindByID retrieves a single storefront by its identifier.
	// Returns ErrStorefrontNotFound if no storefront exists with the given ID.
	FindByID(ctx context.Context, id string) (*StorefrontDto, error)

	// FindAll returns all storefronts for management views.
	// Returns an empty slice if no storefronts exist.
	FindAll(ctx context.Context) ([]StorefrontDto, error)

	// Create assigns a fresh id to the given fields, persists the new
	// storefront unlocked and returns it.
	// Returns ErrValidation if the fields are invalid.
	Create(ctx context.Context, fields StorefrontCreateDto) (*StorefrontDto, error)

	// Update replaces the mutable fields of an existing storefront, preserving
	// its id and, unless explicitly part of the update, its lock state.
	// Returns ErrStorefrontNotFound if no storefront exists with the given ID.
	Update(ctx context.Context, id string, fields StorefrontUpdateDto) (*StorefrontDto, error)

	// Lock disables customer checkout for the storefront. Locking an already
	// locked storefront succeeds silently.
	Lock(ctx context.Context, id string) (*StorefrontDto, error)

	// Unlock re-enables customer checkout for the storefront. Unlocking an
	// already unlocked storefront succeeds silently.
	Unlock(ctx context.Context, id string) (*StorefrontDto, error)

	// DeleteByID removes a storefront. Deleting an absent id is not an error.
	DeleteByID(ctx context.Context, id string) error
}

// Service implements StorefrontService and provides methods to manage storefronts.
type Service struct {
	repository store.StorefrontStore
}

// NewService creates a new instance of StorefrontService with the provided repository.
func NewService(repo store.StorefrontStore) *Service {
	return &Service{
		repository: repo,
	}
}

// StorefrontCreateDto represents the data transfer object for creating a new storefront.
type StorefrontCreateDto struct {
	Name        string  `json:"name"        validate:"required,max=200"`
	Description string  `json:"description" validate:"max=5000"`
	Price       float64 `json:"price"       validate:"gte=0"`
	ImageURL    string  `json:"imageUrl"`
}

// StorefrontUpdateDto represents the data transfer object for updating a
// storefront. Locked is a pointer so the lock state is only replaced when the
// update explicitly carries it.
type StorefrontUpdateDto struct {
	Name        string  `json:"name"        validate:"required,max=200"`
	Description string  `json:"description" validate:"max=5000"`
	Price       float64 `json:"price"       validate:"gte=0"`
	ImageURL    string  `json:"imageUrl"`
	Locked      *bool   `json:"locked,omitempty"`
}

// StorefrontDto represents the data transfer object for a storefront.
type StorefrontDto struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	ImageURL    string  `json:"imageUrl"`
	Locked      bool    `json:"locked"`
}

// AmountMinor returns the charge amount in minor currency units (cents).
// The conversion is the single source of the amount submitted to the payment
// provider: round(price*100).
func (d StorefrontDto) AmountMinor() int64 {
	return int64(math.Round(d.Price * 100))
}

// FindByID retrieves a storefront by its ID and returns it as a StorefrontDto.
// Returns ErrStorefrontNotFound if no storefront exists with the given ID.
func (s *Service) FindByID(ctx context.Context, id string) (*StorefrontDto, error) {
	record, err := s.repository.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch storefront by ID %s: %w", id, err)
	}
	return toDto(record), nil
}

// FindAll retrieves all storefronts and returns them as DTOs sorted by name.
// The repository contract promises no order; sorting here keeps management
// views stable.
func (s *Service) FindAll(ctx context.Context) ([]StorefrontDto, error) {
	records, err := s.repository.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch storefronts: %w", err)
	}
	dtos := make([]StorefrontDto, len(records))
	for i, rec := range records {
		dtos[i] = *toDto(&rec)
	}
	sort.Slice(dtos, func(i, j int) bool { return dtos[i].Name < dtos[j].Name })
	return dtos, nil
}

// Create creates a new storefront and returns it as a StorefrontDto.
// Returns ErrValidation if the fields are invalid.
func (s *Service) Create(ctx context.Context, fields StorefrontCreateDto) (*StorefrontDto, error) {
	if err := validateFields(fields.Name, fields.Price); err != nil {
		return nil, err
	}
	record := store.StorefrontRecord{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(fields.Name),
		Description: fields.Description,
		Price:       fields.Price,
		ImageURL:    fields.ImageURL,
		Locked:      false,
	}
	if err := s.repository.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create storefront: %w", err)
	}
	return toDto(&record), nil
}

// Update modifies an existing storefront and returns the updated DTO.
// Returns ErrStorefrontNotFound if no storefront exists with the given ID.
func (s *Service) Update(ctx context.Context, id string, fields StorefrontUpdateDto) (*StorefrontDto, error) {
	if err := validateFields(fields.Name, fields.Price); err != nil {
		return nil, err
	}
	existing, err := s.repository.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch storefront for update %s: %w", id, err)
	}
	record := store.StorefrontRecord{
		ID:          existing.ID,
		Name:        strings.TrimSpace(fields.Name),
		Description: fields.Description,
		Price:       fields.Price,
		ImageURL:    fields.ImageURL,
		Locked:      existing.Locked,
	}
	if fields.Locked != nil {
		record.Locked = *fields.Locked
	}
	if err := s.repository.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to update storefront %s: %w", id, err)
	}
	return toDto(&record), nil
}

// Lock disables customer checkout for the storefront.
func (s *Service) Lock(ctx context.Context, id string) (*StorefrontDto, error) {
	return s.setLocked(ctx, id, true)
}

// Unlock re-enables customer checkout for the storefront.
func (s *Service) Unlock(ctx context.Context, id string) (*StorefrontDto, error) {
	return s.setLocked(ctx, id, false)
}

func (s *Service) setLocked(ctx context.Context, id string, locked bool) (*StorefrontDto, error) {
	existing, err := s.repository.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch storefront for lock change %s: %w", id, err)
	}
	if existing.Locked != locked {
		existing.Locked = locked
		if err := s.repository.Save(ctx, *existing); err != nil {
			return nil, fmt.Errorf("failed to change lock state for storefront %s: %w", id, err)
		}
	}
	return toDto(existing), nil
}

// DeleteByID deletes a storefront by its ID. Deleting an absent id is not an error.
func (s *Service) DeleteByID(ctx context.Context, id string) error {
	return s.repository.DeleteByID(ctx, id)
}

// validateFields checks the lifecycle invariants: non-empty name and a finite,
// non-negative price.
func validateFields(name string, price float64) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name must not be empty", apperrors.ErrValidation)
	}
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return fmt.Errorf("%w: price must be a number", apperrors.ErrValidation)
	}
	if price < 0 {
		return fmt.Errorf("%w: price must not be negative", apperrors.ErrValidation)
	}
	return nil
}

// toDto converts a store.StorefrontRecord to a StorefrontDto.
func toDto(record *store.StorefrontRecord) *StorefrontDto {
	return &StorefrontDto{
		ID:          record.ID,
		Name:        record.Name,
		Description: record.Description,
		Price:       record.Price,
		ImageURL:    record.ImageURL,
		Locked:      record.Locked,
	}
}
