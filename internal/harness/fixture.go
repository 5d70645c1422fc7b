package harness

import (
	"fmt"
	"sort"
	"testing"

	"github.com/YarShev/omniscidb/internal/catalog"
	"github.com/YarShev/omniscidb/internal/server"
)

// Fixture is the per-test context over the process-wide handler. It holds
// the current session, the admin session opened at setup, and every extra
// session the test obtained through LoginAs.
type Fixture struct {
	tb      testing.TB
	handler *server.Handler

	sessionID      server.SessionID
	adminSessionID server.SessionID

	owned map[server.SessionID]bool
}

// Setup ensures the shared handler exists, logs in the default admin
// identity, and registers teardown on tb.Cleanup. Handler construction or
// admin authentication failure is a harness-level setup problem and aborts
// the test immediately.
func Setup(tb testing.TB) *Fixture {
	tb.Helper()

	h, err := ensureHandler()
	if err != nil {
		tb.Fatalf("harness setup: %v", err)
	}

	f := &Fixture{
		tb:      tb,
		handler: h,
		owned:   make(map[server.SessionID]bool),
	}
	f.loginAdmin()

	tb.Cleanup(f.teardown)
	return f
}

// loginAdmin authenticates the default identity and stores the session as
// both current and admin, so teardown can always log the admin out no
// matter what the test body switched to.
func (f *Fixture) loginAdmin() {
	f.tb.Helper()

	id, err := f.handler.Connect(catalog.DefaultAdminUser, catalog.DefaultAdminPassword, "")
	if err != nil {
		f.tb.Fatalf("harness setup: admin login: %v", err)
	}
	f.sessionID = id
	f.adminSessionID = id
}

// teardown releases the admin session and fails the test if the body left
// extra sessions open.
func (f *Fixture) teardown() {
	if len(f.owned) > 0 {
		var leaked []string
		for id := range f.owned {
			leaked = append(leaked, string(id))
			_ = f.handler.Disconnect(id)
		}
		sort.Strings(leaked)
		f.tb.Errorf("test left %d session(s) open at teardown: %v", len(leaked), leaked)
	}

	if err := f.handler.Disconnect(f.adminSessionID); err != nil {
		f.tb.Errorf("admin logout: %v", err)
	}
}

// Handler returns the shared handler, for assertions that need identity
// comparisons across tests.
func (f *Fixture) Handler() *server.Handler {
	return f.handler
}

// SessionID returns the current session token.
func (f *Fixture) SessionID() server.SessionID {
	return f.sessionID
}

// HandlerAndSessionID exposes the raw handler plus the admin session, for
// tests needing lower-level access than the convenience wrappers.
func (f *Fixture) HandlerAndSessionID() (*server.Handler, server.SessionID) {
	return f.handler, f.adminSessionID
}

// Login authenticates an identity and makes it the current session. An
// empty dbName selects the service default database. The previous current
// session is not released; tests switching identities own the cleanup of
// any session they obtained via LoginAs.
func (f *Fixture) Login(user, pass, dbName string) error {
	id, err := f.handler.Connect(user, pass, dbName)
	if err != nil {
		return err
	}
	f.sessionID = id
	f.owned[id] = true
	return nil
}

// MustLogin is Login that aborts the test on failure.
func (f *Fixture) MustLogin(user, pass, dbName string) {
	f.tb.Helper()
	if err := f.Login(user, pass, dbName); err != nil {
		f.tb.Fatalf("login as %q: %v", user, err)
	}
}

// LoginAs authenticates an identity and returns the session token without
// touching the current session. The caller owns the token and must release
// it with Logout before teardown.
func (f *Fixture) LoginAs(user, pass, dbName string) (server.SessionID, error) {
	id, err := f.handler.Connect(user, pass, dbName)
	if err != nil {
		return "", err
	}
	f.owned[id] = true
	return id, nil
}

// Logout releases a session obtained via Login or LoginAs. Logging out the
// current session switches current back to the admin session.
func (f *Fixture) Logout(id server.SessionID) error {
	if err := f.handler.Disconnect(id); err != nil {
		return err
	}
	delete(f.owned, id)
	if f.sessionID == id {
		f.sessionID = f.adminSessionID
	}
	return nil
}

// Exec runs a query under the current session, discarding any result. Used
// to trigger side effects or expected failures.
func (f *Fixture) Exec(query string) error {
	return f.handler.ExecuteQuery(nil, f.sessionID, query, true, "", -1, -1)
}

// MustExec is Exec that aborts the test on failure.
func (f *Fixture) MustExec(query string) {
	f.tb.Helper()
	if err := f.Exec(query); err != nil {
		f.tb.Fatalf("exec %q: %v", query, err)
	}
}

// Query runs a query under the current session and populates result.
func (f *Fixture) Query(result *server.QueryResult, query string) error {
	return f.handler.ExecuteQuery(result, f.sessionID, query, true, "", -1, -1)
}

// QueryAs runs a query under an explicitly supplied session.
func (f *Fixture) QueryAs(result *server.QueryResult, query string, id server.SessionID) error {
	return f.handler.ExecuteQuery(result, id, query, true, "", -1, -1)
}

// MustQuery is Query that aborts the test on failure and returns the result.
func (f *Fixture) MustQuery(query string) *server.QueryResult {
	f.tb.Helper()
	var result server.QueryResult
	if err := f.Query(&result, query); err != nil {
		f.tb.Fatalf("query %q: %v", query, err)
	}
	return &result
}

// CurrentUser resolves the current session to its authenticated identity.
func (f *Fixture) CurrentUser() (catalog.UserMetadata, error) {
	return f.handler.SessionUser(f.sessionID)
}

// Catalog returns the system catalog, for asserting on server-side state
// beyond query results.
func (f *Fixture) Catalog() *catalog.Catalog {
	return f.handler.Catalog()
}

// CurrentDatabase returns the catalog entry of the current session's
// database.
func (f *Fixture) CurrentDatabase() (*catalog.DatabaseMetadata, error) {
	return f.handler.SessionDatabase(f.sessionID)
}

// ResetCatalog drops the current session's database from the catalog.
// Destructive and not undoable within the test process; the default
// database is recreated empty on the next login.
func (f *Fixture) ResetCatalog() error {
	db, err := f.handler.SessionDatabase(f.sessionID)
	if err != nil {
		return err
	}
	if err := f.handler.DropDatabase(db.Name); err != nil {
		return fmt.Errorf("dropping database %q: %w", db.Name, err)
	}
	return nil
}
