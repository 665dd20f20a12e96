package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	apperrors "github.com/popuplink/popuplink/internal/errors"
)

// PgStore implements StorefrontStore on PostgreSQL. Entries live in a single
// kv_entries table so the persistence layout stays a flat key-value namespace.
type PgStore struct {
	db *pgxpool.Pool
}

// NewPgStore creates a new instance of StorefrontStore using a PostgreSQL connection pool.
func NewPgStore(dbp *pgxpool.Pool) *PgStore {
	return &PgStore{db: dbp}
}

// Save persists the record, replacing any prior value under the same key.
func (p *PgStore) Save(ctx context.Context, record StorefrontRecord) error {
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode storefront record: %w", err)
	}
	_, err = p.db.Exec(ctx,
		`INSERT INTO kv_entries (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		record.Key(), value)
	if err != nil {
		return fmt.Errorf("failed to save storefront: %w", err)
	}
	return nil
}

// FindByID retrieves a storefront by its identifier.
// Returns ErrStorefrontNotFound if no storefront exists with the given ID.
func (p *PgStore) FindByID(ctx context.Context, id string) (*StorefrontRecord, error) {
	key := StorefrontKeyPrefix + id
	var value []byte
	err := p.db.QueryRow(ctx, `SELECT value FROM kv_entries WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrStorefrontNotFound
		}
		return nil, fmt.Errorf("failed to find storefront by ID: %w", err)
	}
	return DecodeRecord(key, value)
}

// FindAll retrieves all stored storefronts.
// It returns a slice of records, which may be empty if no storefronts exist.
func (p *PgStore) FindAll(ctx context.Context) ([]StorefrontRecord, error) {
	rows, err := p.db.Query(ctx,
		`SELECT key, value FROM kv_entries WHERE key LIKE $1`, StorefrontKeyPrefix+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to find all storefronts: %w", err)
	}
	defer rows.Close()

	records := make([]StorefrontRecord, 0)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan storefront row: %w", err)
		}
		rec, err := DecodeRecord(key, value)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate storefront rows: %w", err)
	}
	return records, nil
}

// DeleteByID removes a storefront by its identifier. Deleting an absent id is
// not an error.
func (p *PgStore) DeleteByID(ctx context.Context, id string) error {
	_, err := p.db.Exec(ctx, `DELETE FROM kv_entries WHERE key = $1`, StorefrontKeyPrefix+id)
	if err != nil {
		return fmt.Errorf("failed to delete storefront by ID: %w", err)
	}
	return nil
}

// SaveCredential stores the payment provider credential in its singleton entry.
func (p *PgStore) SaveCredential(ctx context.Context, key string) error {
	value, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}
	_, err = p.db.Exec(ctx,
		`INSERT INTO kv_entries (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		CredentialKey, value)
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// FindCredential returns the stored credential, or an empty string when none
// has been saved.
func (p *PgStore) FindCredential(ctx context.Context) (string, error) {
	var value []byte
	err := p.db.QueryRow(ctx, `SELECT value FROM kv_entries WHERE key = $1`, CredentialKey).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to find credential: %w", err)
	}
	var credential string
	if err := json.Unmarshal(value, &credential); err != nil {
		return "", fmt.Errorf("failed to decode credential: %w", err)
	}
	return credential, nil
}
