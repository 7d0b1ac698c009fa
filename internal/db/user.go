package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// User represents a platform account.
type User struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
}

// APIKey represents a stored API key. Only the SHA-256 digest of the key is
// persisted.
type APIKey struct {
	ID         string
	UserID     string
	Name       string
	KeyHash    string
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// SaveUser creates or updates a user.
func (d *DB) SaveUser(u *User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := d.Exec(`
		INSERT INTO users (id, name, email, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, email = excluded.email
	`, u.ID, u.Name, u.Email, fmtTime(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// GetUser loads a user by ID. Returns nil when not found.
func (d *DB) GetUser(id string) (*User, error) {
	row := d.QueryRow(`SELECT id, name, email, created_at FROM users WHERE id = ?`, id)

	var u User
	var createdAt string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

// GetUserByEmail loads a user by email. Returns nil when not found.
func (d *DB) GetUserByEmail(email string) (*User, error) {
	row := d.QueryRow(`SELECT id, name, email, created_at FROM users WHERE email = ?`, email)

	var u User
	var createdAt string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

// SaveAPIKey stores an API key digest.
func (d *DB) SaveAPIKey(k *APIKey) error {
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now()
	}
	_, err := d.Exec(`
		INSERT INTO api_keys (id, user_id, name, key_hash, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, last_used_at = excluded.last_used_at
	`, k.ID, k.UserID, k.Name, k.KeyHash, fmtTime(k.CreatedAt), fmtTimePtr(k.LastUsedAt))
	if err != nil {
		return fmt.Errorf("save api key: %w", err)
	}
	return nil
}

// GetAPIKeyByHash resolves an API key digest to its record. Returns nil when
// no key matches.
func (d *DB) GetAPIKeyByHash(hash string) (*APIKey, error) {
	row := d.QueryRow(`
		SELECT id, user_id, name, key_hash, created_at, last_used_at
		FROM api_keys WHERE key_hash = ?
	`, hash)

	var k APIKey
	var createdAt string
	var lastUsed *string
	if err := row.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &createdAt, &lastUsed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	k.CreatedAt = parseTime(createdAt)
	k.LastUsedAt = parseTimePtr(lastUsed)
	return &k, nil
}

// TouchAPIKey records that a key was used.
func (d *DB) TouchAPIKey(id string) error {
	_, err := d.Exec(`UPDATE api_keys SET last_used_at = ? WHERE id = ?`, fmtTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return nil
}

// DeleteAPIKey removes an API key.
func (d *DB) DeleteAPIKey(id string) error {
	_, err := d.Exec(`DELETE FROM api_keys WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	return nil
}
