package harness

import (
	"errors"
	"fmt"

	"github.com/YarShev/omniscidb/internal/server"
)

// CheckQueryError verifies that err is a structured query error whose
// message exactly equals wantMessage. It returns a describing error on any
// mismatch and nil otherwise, so it can be used outside test scope.
func CheckQueryError(err error, wantMessage string) error {
	if err == nil {
		return fmt.Errorf("query succeeded, want error %q", wantMessage)
	}

	var qerr *server.QueryError
	if !errors.As(err, &qerr) {
		return fmt.Errorf("error is not a query error: %v", err)
	}
	if qerr.Message != wantMessage {
		return fmt.Errorf("error message mismatch:\n  want: %q\n  got:  %q", wantMessage, qerr.Message)
	}
	return nil
}

// QueryAndAssertError runs a query under the current session and asserts
// that it fails with exactly wantMessage. Exact string equality, not a
// substring match; a successful query fails the test. This is the standard
// idiom for every negative-path test.
func (f *Fixture) QueryAndAssertError(query, wantMessage string) {
	f.tb.Helper()

	err := f.Exec(query)
	if checkErr := CheckQueryError(err, wantMessage); checkErr != nil {
		f.tb.Fatalf("query %q: %v", query, checkErr)
	}
}
