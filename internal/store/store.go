// Package store provides an interface for storefront persistence.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	apperrors "github.com/popuplink/popuplink/internal/errors"
)

// Persistence layout: one entry per storefront under "storefront_<id>", plus a
// singleton entry holding the payment provider credential.
const (
	StorefrontKeyPrefix = "storefront_"
	CredentialKey       = "provider_api_key"
)

// StorefrontRecord is the persisted shape of a storefront. The record is fully
// self-contained: ImageURL holds an encoded image payload, not a remote
// reference, so a record can be reloaded without network access.
type StorefrontRecord struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	ImageURL    string  `json:"imageUrl"`
	Locked      bool    `json:"locked"`
}

// AmountMinor returns the charge amount in minor currency units (cents).
func (r StorefrontRecord) AmountMinor() int64 {
	return int64(math.Round(r.Price * 100))
}

// Key returns the persistence key for the record.
func (r StorefrontRecord) Key() string {
	return StorefrontKeyPrefix + r.ID
}

// DecodeRecord parses a stored value and validates it against the record
// schema. Malformed or legacy entries surface ErrCorruptRecord instead of
// being trusted.
func DecodeRecord(key string, value []byte) (*StorefrontRecord, error) {
	var rec StorefrontRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return nil, fmt.Errorf("%w: entry %q is not valid JSON: %v", apperrors.ErrCorruptRecord, key, err)
	}
	if rec.ID == "" || StorefrontKeyPrefix+rec.ID != key {
		return nil, fmt.Errorf("%w: entry %q carries id %q", apperrors.ErrCorruptRecord, key, rec.ID)
	}
	if math.IsNaN(rec.Price) || math.IsInf(rec.Price, 0) || rec.Price < 0 {
		return nil, fmt.Errorf("%w: entry %q carries price %v", apperrors.ErrCorruptRecord, key, rec.Price)
	}
	if rec.Name == "" {
		return nil, fmt.Errorf("%w: entry %q has an empty name", apperrors.ErrCorruptRecord, key)
	}
	return &rec, nil
}

// StorefrontStore is an interface for storefront persistence operations.
// It abstracts the underlying key-value store, allowing for different
// implementations (e.g., in-memory, database).
type StorefrontStore interface {
	// Save persists the record as a whole-record upsert: saving the same id
	// twice replaces the prior value entirely.
	Save(ctx context.Context, record StorefrontRecord) error

	// FindByID retrieves a single storefront by its identifier.
	// Returns ErrStorefrontNotFound if no storefront exists with the given ID.
	FindByID(ctx context.Context, id string) (*StorefrontRecord, error)

	// FindAll returns all stored storefronts in no guaranteed order.
	// Returns an empty slice if no storefronts exist.
	FindAll(ctx context.Context) ([]StorefrontRecord, error)

	// DeleteByID removes a storefront by its ID. Deleting an absent id is not
	// an error.
	DeleteByID(ctx context.Context, id string) error

	// SaveCredential stores the payment provider credential in its singleton
	// entry, replacing any prior value.
	SaveCredential(ctx context.Context, key string) error

	// FindCredential returns the stored payment provider credential, or an
	// empty string when none has been saved.
	FindCredential(ctx context.Context) (string, error)
}
