// Package catalog implements the system catalog: users, databases, and the
// storage files under the data directory. It is the authority the server
// consults for authentication and database resolution.
package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DefaultDatabaseName is the database every connection lands on when the
// caller supplies an empty database name.
const DefaultDatabaseName = "omnisci"

// DefaultAdminUser and DefaultAdminPassword are the bootstrap superuser
// credentials created on first catalog open.
const (
	DefaultAdminUser     = "admin"
	DefaultAdminPassword = "HyperInteractive"
)

// ErrUserNotFound is returned when a user does not exist in the catalog.
var ErrUserNotFound = errors.New("user not found")

// ErrDatabaseNotFound is returned when a database does not exist in the catalog.
var ErrDatabaseNotFound = errors.New("database not found")

// ErrAuthFailed is returned by Authenticate on bad credentials.
var ErrAuthFailed = errors.New("authentication failure")

const systemSchema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	passwd_hash TEXT NOT NULL,
	is_super INTEGER NOT NULL DEFAULT 0,
	default_db TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS databases (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	owner TEXT NOT NULL
);
`

// Catalog is the system catalog backed by a SQLite database under the
// storage path. Per-user databases live as separate SQLite files in the
// data subdirectory.
type Catalog struct {
	db          *sql.DB
	storagePath string
}

// Open opens (creating if necessary) the system catalog under storagePath
// and bootstraps the default admin user and default database.
func Open(storagePath string) (*Catalog, error) {
	if storagePath == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if err := os.MkdirAll(filepath.Join(storagePath, "data"), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	sysPath := filepath.Join(storagePath, "system_catalog.db")
	db, err := sql.Open("sqlite", sysPath)
	if err != nil {
		return nil, fmt.Errorf("opening system catalog: %w", err)
	}
	if _, err := db.Exec(systemSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating system catalog: %w", err)
	}

	c := &Catalog{db: db, storagePath: storagePath}
	if err := c.bootstrap(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// bootstrap creates the default superuser and default database if missing.
func (c *Catalog) bootstrap() error {
	if _, err := c.GetUser(DefaultAdminUser); errors.Is(err, ErrUserNotFound) {
		u := &UserMetadata{
			Name:      DefaultAdminUser,
			IsSuper:   true,
			DefaultDB: DefaultDatabaseName,
		}
		if err := c.CreateUser(u, DefaultAdminPassword); err != nil {
			return fmt.Errorf("bootstrapping admin user: %w", err)
		}
	} else if err != nil {
		return err
	}

	if _, err := c.Database(DefaultDatabaseName); errors.Is(err, ErrDatabaseNotFound) {
		if err := c.CreateDatabase(DefaultDatabaseName, DefaultAdminUser); err != nil {
			return fmt.Errorf("bootstrapping default database: %w", err)
		}
	} else if err != nil {
		return err
	}
	return nil
}

// StoragePath returns the catalog's root storage path.
func (c *Catalog) StoragePath() string {
	return c.storagePath
}

// DatabasePath returns the storage file backing the named database.
func (c *Catalog) DatabasePath(name string) string {
	return filepath.Join(c.storagePath, "data", name+".db")
}

// Close closes the system catalog.
func (c *Catalog) Close() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("closing system catalog: %w", err)
	}
	return nil
}
