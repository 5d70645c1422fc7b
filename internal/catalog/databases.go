package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
)

// DatabaseMetadata describes a catalog database entry.
type DatabaseMetadata struct {
	ID    int64
	Name  string
	Owner string
}

// CreateDatabase registers a database and creates its storage file.
func (c *Catalog) CreateDatabase(name, owner string) error {
	if name == "" {
		return fmt.Errorf("database name is required")
	}

	if _, err := c.db.Exec(`
		INSERT INTO databases (name, owner) VALUES (?, ?)
	`, name, owner); err != nil {
		return fmt.Errorf("creating database %q: %w", name, err)
	}

	// Touch the storage file so the database exists on disk immediately.
	store, err := sql.Open("sqlite", c.DatabasePath(name))
	if err != nil {
		return fmt.Errorf("opening storage for %q: %w", name, err)
	}
	defer func() { _ = store.Close() }()
	if err := store.Ping(); err != nil {
		return fmt.Errorf("initializing storage for %q: %w", name, err)
	}
	return nil
}

// Database retrieves a database entry by name. Returns ErrDatabaseNotFound
// if missing.
func (c *Catalog) Database(name string) (*DatabaseMetadata, error) {
	d := &DatabaseMetadata{}
	err := c.db.QueryRow(`
		SELECT id, name, owner FROM databases WHERE name = ?
	`, name).Scan(&d.ID, &d.Name, &d.Owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDatabaseNotFound
		}
		return nil, fmt.Errorf("reading database %q: %w", name, err)
	}
	return d, nil
}

// ListDatabases returns all database entries ordered by name.
func (c *Catalog) ListDatabases() ([]*DatabaseMetadata, error) {
	rows, err := c.db.Query(`SELECT id, name, owner FROM databases ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing databases: %w", err)
	}
	defer rows.Close()

	var dbs []*DatabaseMetadata
	for rows.Next() {
		d := &DatabaseMetadata{}
		if err := rows.Scan(&d.ID, &d.Name, &d.Owner); err != nil {
			return nil, fmt.Errorf("scanning database row: %w", err)
		}
		dbs = append(dbs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating databases: %w", err)
	}
	return dbs, nil
}

// Remove drops a database from the catalog and deletes its storage file.
// Destructive and not undoable; the default database is recreated lazily on
// the next connect.
func (c *Catalog) Remove(name string) error {
	res, err := c.db.Exec(`DELETE FROM databases WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("removing database %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return ErrDatabaseNotFound
	}

	if err := os.Remove(c.DatabasePath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing storage for %q: %w", name, err)
	}
	return nil
}

// TableNames lists the user tables of a database, reading straight from the
// storage file's schema. Returns ErrDatabaseNotFound for unknown databases.
func (c *Catalog) TableNames(name string) ([]string, error) {
	if _, err := c.Database(name); err != nil {
		return nil, err
	}

	store, err := sql.Open("sqlite", c.DatabasePath(name))
	if err != nil {
		return nil, fmt.Errorf("opening storage for %q: %w", name, err)
	}
	defer func() { _ = store.Close() }()

	rows, err := store.Query(`
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("listing tables of %q: %w", name, err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating table names: %w", err)
	}
	return tables, nil
}
