package testutil

import (
	"testing"

	"github.com/YarShev/omniscidb/internal/catalog"
	"github.com/YarShev/omniscidb/internal/server"
)

// NewTestCatalog returns a bootstrapped system catalog under a temporary
// storage path. Cleanup is registered on t.Cleanup.
func NewTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()

	cat, err := catalog.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening test catalog: %v", err)
	}
	t.Cleanup(func() {
		_ = cat.Close()
	})
	return cat
}

// NewTestHandler returns a handler over a temporary storage path with
// default configuration. Cleanup is registered on t.Cleanup.
func NewTestHandler(t *testing.T, opts ...server.Option) *server.Handler {
	t.Helper()

	cfg := server.DefaultConfig()
	cfg.StoragePath = t.TempDir()
	return NewTestHandlerWithConfig(t, cfg, opts...)
}

// NewTestHandlerWithConfig returns a handler constructed from cfg. The
// storage path defaults to a temporary directory when unset.
func NewTestHandlerWithConfig(t *testing.T, cfg server.Config, opts ...server.Option) *server.Handler {
	t.Helper()

	if cfg.StoragePath == "" {
		cfg.StoragePath = t.TempDir()
	}
	opts = append([]server.Option{server.WithLogger(TestLogger(t))}, opts...)

	h, err := server.New(cfg, opts...)
	if err != nil {
		t.Fatalf("constructing test handler: %v", err)
	}
	t.Cleanup(func() {
		_ = h.Close()
	})
	return h
}

// ConnectAdmin opens a session for the bootstrap admin identity on the
// default database.
func ConnectAdmin(t *testing.T, h *server.Handler) server.SessionID {
	t.Helper()

	id, err := h.Connect(catalog.DefaultAdminUser, catalog.DefaultAdminPassword, "")
	if err != nil {
		t.Fatalf("connecting admin: %v", err)
	}
	return id
}
