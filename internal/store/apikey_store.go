package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/vrsandeep/transdoc-go/internal/models"
)

// CreateApiKey stores a new credential.
func (s *Store) CreateApiKey(key, baseURL, apiType string) (*models.ApiKey, error) {
	if apiType == "" {
		apiType = models.APITypeOpenAI
	}
	now := time.Now()
	res, err := s.db.Exec(`
		INSERT INTO api_keys (key, base_url, api_type, counter, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)`, key, baseURL, apiType, now, now)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return nil, ErrDuplicateApiKey
	}
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.ApiKey{ID: id, Key: key, BaseURL: baseURL, APIType: apiType, CreatedAt: now, UpdatedAt: now}, nil
}

// ListApiKeys returns all credentials in insertion order.
func (s *Store) ListApiKeys() ([]*models.ApiKey, error) {
	rows, err := s.db.Query(`
		SELECT id, key, base_url, api_type, counter, last_used_at, last_error_message, created_at, updated_at
		FROM api_keys ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []*models.ApiKey
	for rows.Next() {
		k, err := scanApiKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// GetApiKey retrieves a credential by ID.
func (s *Store) GetApiKey(id int64) (*models.ApiKey, error) {
	k, err := scanApiKey(s.db.QueryRow(`
		SELECT id, key, base_url, api_type, counter, last_used_at, last_error_message, created_at, updated_at
		FROM api_keys WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrApiKeyNotFound
	}
	return k, err
}

func scanApiKey(row rowScanner) (*models.ApiKey, error) {
	var k models.ApiKey
	var lastUsed sql.NullTime
	var lastErr sql.NullString
	if err := row.Scan(&k.ID, &k.Key, &k.BaseURL, &k.APIType, &k.Counter, &lastUsed, &lastErr, &k.CreatedAt, &k.UpdatedAt); err != nil {
		return nil, err
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		k.LastUsedAt = &t
	}
	k.LastErrorMessage = lastErr.String
	return &k, nil
}

// RecordApiKeyUsage bumps the usage counter of a credential after a
// successful call.
func (s *Store) RecordApiKeyUsage(id int64, at time.Time) error {
	return s.execAffectingKey(`
		UPDATE api_keys SET counter = counter + 1, last_used_at = ?, updated_at = ? WHERE id = ?`,
		at, time.Now(), id)
}

// RecordApiKeyError stores the last failure observed for a credential.
func (s *Store) RecordApiKeyError(id int64, message string) error {
	return s.execAffectingKey(`
		UPDATE api_keys SET last_error_message = ?, updated_at = ? WHERE id = ?`,
		message, time.Now(), id)
}

// DeleteApiKey removes a credential.
func (s *Store) DeleteApiKey(id int64) error {
	return s.execAffectingKey("DELETE FROM api_keys WHERE id = ?", id)
}

func (s *Store) execAffectingKey(query string, args ...any) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrApiKeyNotFound
	}
	return nil
}
