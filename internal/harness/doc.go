// Package harness is the shared test fixture for driving a running server
// handler from test code. It hides the handler's construction and
// authentication protocol behind a small, stable surface.
//
// Philosophy:
// - One handler per process: constructed lazily on the first Setup, reused
//   by every test case after that.
// - One admin session per test: Setup logs the default admin in, teardown
//   logs it out via t.Cleanup.
// - No leaked state: extra sessions opened through the fixture are tracked
//   and teardown fails loudly if any remain open.
//
// Most tests should start with:
//
//	f := harness.Setup(t)
//	f.MustExec("CREATE TABLE t (x INTEGER);")
package harness
