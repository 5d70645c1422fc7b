package catalog

import (
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
)

// UserMetadata describes a catalog user. The password hash never leaves
// this package.
type UserMetadata struct {
	ID        int64
	Name      string
	IsSuper   bool
	DefaultDB string
}

// hashPassword returns the hex SHA-256 digest stored in the catalog.
func hashPassword(pass string) string {
	sum := sha256.Sum256([]byte(pass))
	return hex.EncodeToString(sum[:])
}

// CreateUser inserts a new user with the given password.
func (c *Catalog) CreateUser(u *UserMetadata, pass string) error {
	if u.Name == "" {
		return fmt.Errorf("user name is required")
	}

	res, err := c.db.Exec(`
		INSERT INTO users (name, passwd_hash, is_super, default_db)
		VALUES (?, ?, ?, ?)
	`, u.Name, hashPassword(pass), u.IsSuper, u.DefaultDB)
	if err != nil {
		return fmt.Errorf("creating user %q: %w", u.Name, err)
	}

	u.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading user id: %w", err)
	}
	return nil
}

// GetUser retrieves a user by name. Returns ErrUserNotFound if missing.
func (c *Catalog) GetUser(name string) (*UserMetadata, error) {
	u := &UserMetadata{}
	err := c.db.QueryRow(`
		SELECT id, name, is_super, default_db FROM users WHERE name = ?
	`, name).Scan(&u.ID, &u.Name, &u.IsSuper, &u.DefaultDB)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("reading user %q: %w", name, err)
	}
	return u, nil
}

// DropUser removes a user by name.
func (c *Catalog) DropUser(name string) error {
	res, err := c.db.Exec(`DELETE FROM users WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("dropping user %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Authenticate verifies credentials and returns the user's metadata.
// Unknown users and wrong passwords both return ErrAuthFailed so callers
// cannot distinguish the two.
func (c *Catalog) Authenticate(name, pass string) (*UserMetadata, error) {
	u := &UserMetadata{}
	var storedHash string
	err := c.db.QueryRow(`
		SELECT id, name, passwd_hash, is_super, default_db FROM users WHERE name = ?
	`, name).Scan(&u.ID, &u.Name, &storedHash, &u.IsSuper, &u.DefaultDB)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAuthFailed
		}
		return nil, fmt.Errorf("reading user %q: %w", name, err)
	}

	given := hashPassword(pass)
	if subtle.ConstantTimeCompare([]byte(storedHash), []byte(given)) != 1 {
		return nil, ErrAuthFailed
	}
	return u, nil
}
