package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/YarShev/omniscidb/internal/catalog"
	"github.com/YarShev/omniscidb/internal/server"
)

// recorderTB captures failures and cleanups instead of reporting them, so
// tests can observe what teardown would have done to a real test.
type recorderTB struct {
	testing.TB
	errors   []string
	fatals   []string
	cleanups []func()
}

func (r *recorderTB) Helper() {}

func (r *recorderTB) Errorf(format string, args ...any) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func (r *recorderTB) Fatalf(format string, args ...any) {
	r.fatals = append(r.fatals, fmt.Sprintf(format, args...))
}

func (r *recorderTB) Cleanup(fn func()) {
	r.cleanups = append(r.cleanups, fn)
}

func (r *recorderTB) runCleanups() {
	for i := len(r.cleanups) - 1; i >= 0; i-- {
		r.cleanups[i]()
	}
	r.cleanups = nil
}

func TestRoundTripLogin(t *testing.T) {
	f := Setup(t)

	f.MustLogin(catalog.DefaultAdminUser, catalog.DefaultAdminPassword, "")
	loginID := f.SessionID()

	result := f.MustQuery("SELECT 1;")
	if result.RowCount() != 1 || len(result.Rows[0]) != 1 {
		t.Fatalf("SELECT 1 shape = %dx%d, want 1x1", result.RowCount(), len(result.Rows[0]))
	}
	if v, ok := result.Rows[0][0].(int64); !ok || v != 1 {
		t.Fatalf("SELECT 1 value = %v (%T), want 1", result.Rows[0][0], result.Rows[0][0])
	}

	// The session stays valid until explicitly logged out.
	if err := f.Exec("SELECT 1;"); err != nil {
		t.Fatalf("second query on same session: %v", err)
	}
	if err := f.Logout(loginID); err != nil {
		t.Fatalf("logout: %v", err)
	}
}

func TestSessionPairing(t *testing.T) {
	f := Setup(t)
	baseline := f.Handler().SessionCount()

	const extra = 3
	var ids []server.SessionID
	for i := 0; i < extra; i++ {
		id, err := f.LoginAs(catalog.DefaultAdminUser, catalog.DefaultAdminPassword, "")
		if err != nil {
			t.Fatalf("LoginAs: %v", err)
		}
		ids = append(ids, id)
	}
	if got := f.Handler().SessionCount(); got != baseline+extra {
		t.Fatalf("session count = %d, want %d", got, baseline+extra)
	}

	for _, id := range ids {
		if err := f.Logout(id); err != nil {
			t.Fatalf("Logout: %v", err)
		}
	}
	if got := f.Handler().SessionCount(); got != baseline {
		t.Fatalf("session count after cleanup = %d, want %d", got, baseline)
	}
}

func TestTeardown_FailsOnLeakedSessions(t *testing.T) {
	Setup(t) // make sure the shared handler exists before using the recorder

	rec := &recorderTB{TB: t}
	f := Setup(rec)
	if len(rec.fatals) > 0 {
		t.Fatalf("setup failed: %v", rec.fatals)
	}

	leaked, err := f.LoginAs(catalog.DefaultAdminUser, catalog.DefaultAdminPassword, "")
	if err != nil {
		t.Fatalf("LoginAs: %v", err)
	}

	rec.runCleanups()

	if len(rec.errors) == 0 {
		t.Fatal("teardown did not report the leaked session")
	}
	if !strings.Contains(rec.errors[0], string(leaked)) {
		t.Fatalf("teardown error %q does not name session %q", rec.errors[0], leaked)
	}
	// Teardown also closed the leaked session so later tests start clean.
	if err := f.Handler().Disconnect(leaked); err == nil {
		t.Fatal("leaked session still open after teardown")
	}
}

func TestTeardown_LogsAdminOut(t *testing.T) {
	rec := &recorderTB{TB: t}
	f := Setup(rec)
	_, adminID := f.HandlerAndSessionID()

	rec.runCleanups()
	if len(rec.errors) > 0 {
		t.Fatalf("unexpected teardown errors: %v", rec.errors)
	}
	if err := f.Handler().Disconnect(adminID); err == nil {
		t.Fatal("admin session still open after teardown")
	}
}

func TestCurrentUser(t *testing.T) {
	f := Setup(t)

	u, err := f.CurrentUser()
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if u.Name != catalog.DefaultAdminUser {
		t.Errorf("current user = %q, want %q", u.Name, catalog.DefaultAdminUser)
	}
	if !u.IsSuper {
		t.Errorf("admin session should report a superuser")
	}
}

func TestCurrentDatabase(t *testing.T) {
	f := Setup(t)

	db, err := f.CurrentDatabase()
	if err != nil {
		t.Fatalf("CurrentDatabase: %v", err)
	}
	if db.Name != catalog.DefaultDatabaseName {
		t.Errorf("current database = %q, want %q", db.Name, catalog.DefaultDatabaseName)
	}
}

func TestHandlerAndSessionID(t *testing.T) {
	f := Setup(t)

	h, adminID := f.HandlerAndSessionID()
	if h != f.Handler() {
		t.Error("HandlerAndSessionID returned a different handler")
	}
	if adminID != f.SessionID() {
		t.Error("admin session should be current right after setup")
	}

	// Lower-level access works with the exposed pair.
	var result server.QueryResult
	if err := h.ExecuteQuery(&result, adminID, "SELECT 1;", true, "", -1, -1); err != nil {
		t.Fatalf("raw ExecuteQuery: %v", err)
	}
}

func TestResetCatalog(t *testing.T) {
	f := Setup(t)

	f.MustExec("CREATE TABLE reset_probe (x INTEGER);")
	result := f.MustQuery("SHOW TABLES;")
	if !containsRow(result, "reset_probe") {
		t.Fatal("created table missing from SHOW TABLES")
	}

	if err := f.ResetCatalog(); err != nil {
		t.Fatalf("ResetCatalog: %v", err)
	}

	// A freshly logged-in admin on the same database sees a pristine schema.
	f.MustLogin(catalog.DefaultAdminUser, catalog.DefaultAdminPassword, "")
	fresh := f.SessionID()
	result = f.MustQuery("SHOW TABLES;")
	if result.RowCount() != 0 {
		t.Fatalf("SHOW TABLES after reset: %d rows, want 0", result.RowCount())
	}
	if err := f.Logout(fresh); err != nil {
		t.Fatalf("logout: %v", err)
	}
}

func TestLogin_BadCredentialsPropagate(t *testing.T) {
	f := Setup(t)

	err := f.Login(catalog.DefaultAdminUser, "wrong", "")
	if err == nil {
		t.Fatal("expected authentication error")
	}
	// The service's own error surfaces untranslated.
	if err.Error() != "authentication failure" {
		t.Fatalf("error = %q, want %q", err.Error(), "authentication failure")
	}
}

func containsRow(result *server.QueryResult, value string) bool {
	for _, row := range result.Rows {
		if len(row) > 0 {
			if s, ok := row[0].(string); ok && s == value {
				return true
			}
		}
	}
	return false
}
