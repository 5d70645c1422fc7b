// Package server implements the database service's request-handling entry
// point: session management and the synchronous query surface. Storage is
// SQLite, one file per catalog database.
package server

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/YarShev/omniscidb/internal/catalog"
)

// Handler is the live, in-process instance of the database engine's
// request-handling entry point. One Handler serves many sessions; it is
// safe for concurrent use.
type Handler struct {
	cfg    Config
	cat    *catalog.Catalog
	logger *log.Logger

	mu       sync.Mutex
	sessions map[SessionID]*session
	stores   map[string]*sql.DB

	// now is replaceable in tests to drive session expiry.
	now func() time.Time
}

// Option configures a Handler beyond its Config.
type Option func(*Handler)

// WithLogger sets a custom logger.
func WithLogger(l *log.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithClock overrides the handler's time source.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// New constructs a Handler from cfg. The system catalog is opened (and
// bootstrapped on first use) under cfg.StoragePath.
func New(cfg Config, opts ...Option) (*Handler, error) {
	cat, err := catalog.Open(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	h := &Handler{
		cfg:      cfg,
		cat:      cat,
		logger:   log.Default(),
		sessions: make(map[SessionID]*session),
		stores:   make(map[string]*sql.DB),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}

	h.logger.Info("server handler ready",
		"storage", cfg.StoragePath,
		"read_only", cfg.ReadOnly,
		"leaves", len(cfg.LeafServers),
		"string_leaves", len(cfg.StringLeafServers),
	)
	return h, nil
}

// Config returns the construction-time configuration. The returned value is
// a copy; the live configuration cannot be mutated.
func (h *Handler) Config() Config {
	return h.cfg
}

// Catalog exposes the system catalog for state assertions beyond query
// results (object existence, user privileges).
func (h *Handler) Catalog() *catalog.Catalog {
	return h.cat
}

// Connect authenticates credentials and opens a session on dbName. An empty
// dbName selects the service default database. The returned token is opaque
// and must be released with Disconnect.
func (h *Handler) Connect(user, pass, dbName string) (SessionID, error) {
	u, err := h.cat.Authenticate(user, pass)
	if err != nil {
		h.logger.Warn("connect rejected", "user", user, "db", dbName)
		return "", err
	}

	if dbName == "" {
		dbName = catalog.DefaultDatabaseName
	}
	if _, err := h.cat.Database(dbName); err != nil {
		if !errors.Is(err, catalog.ErrDatabaseNotFound) {
			return "", err
		}
		// The default database always exists from a connector's point of
		// view; recreate it lazily after a catalog reset.
		if dbName != catalog.DefaultDatabaseName {
			return "", &QueryError{
				Kind:    KindSemantic,
				Message: fmt.Sprintf("Database '%s' does not exist.", dbName),
			}
		}
		if err := h.cat.CreateDatabase(dbName, u.Name); err != nil {
			return "", err
		}
	}

	now := h.now()
	s := &session{
		id:         SessionID(uuid.New().String()),
		user:       *u,
		dbName:     dbName,
		startedAt:  now,
		lastUsedAt: now,
	}

	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()

	h.logger.Debug("session opened", "user", user, "db", dbName, "session", shortID(s.id))
	return s.id, nil
}

// Disconnect releases a session. Unknown or already-released tokens report
// the session as not valid.
func (h *Handler) Disconnect(id SessionID) error {
	h.mu.Lock()
	s, ok := h.sessions[id]
	if ok {
		delete(h.sessions, id)
	}
	h.mu.Unlock()

	if !ok {
		return sessionError()
	}
	h.logger.Debug("session closed", "user", s.user.Name, "session", shortID(id))
	return nil
}

// store returns the open storage handle for a database, opening it on first
// use. Handles are shared by every session on the same database.
func (h *Handler) store(dbName string) (*sql.DB, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if db, ok := h.stores[dbName]; ok {
		return db, nil
	}
	db, err := sql.Open("sqlite", h.cat.DatabasePath(dbName))
	if err != nil {
		return nil, fmt.Errorf("opening storage for %q: %w", dbName, err)
	}
	h.stores[dbName] = db
	return db, nil
}

// dropStore closes and forgets the storage handle for a database. Called
// when the database is removed from the catalog.
func (h *Handler) dropStore(dbName string) {
	h.mu.Lock()
	db, ok := h.stores[dbName]
	if ok {
		delete(h.stores, dbName)
	}
	h.mu.Unlock()

	if ok {
		_ = db.Close()
	}
}

// DropDatabase removes a database from the catalog, closing its storage
// handle first. Sessions still pointing at it fail on their next query.
func (h *Handler) DropDatabase(dbName string) error {
	h.dropStore(dbName)
	if err := h.cat.Remove(dbName); err != nil {
		return err
	}
	h.logger.Info("database dropped", "db", dbName)
	return nil
}

// Close releases all sessions, storage handles, and the catalog. The
// shared-fixture lifecycle never calls this; it exists for the standalone
// server binary.
func (h *Handler) Close() error {
	h.mu.Lock()
	h.sessions = make(map[SessionID]*session)
	stores := h.stores
	h.stores = make(map[string]*sql.DB)
	h.mu.Unlock()

	for name, db := range stores {
		if err := db.Close(); err != nil {
			return fmt.Errorf("closing storage for %q: %w", name, err)
		}
	}
	return h.cat.Close()
}

// shortID truncates a session token for log output.
func shortID(id SessionID) string {
	s := string(id)
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
