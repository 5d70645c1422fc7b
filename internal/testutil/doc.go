// Package testutil provides shared test helpers for the server and catalog
// packages.
//
// Philosophy:
// - Prefer real SQLite storage (no mocks) for correctness.
// - Keep helpers small, composable, and deterministic.
// - Register cleanup via t.Cleanup so tests stay leak-free.
//
// Most packages should start with:
//
//	h := testutil.NewTestHandler(t)
//	id := testutil.ConnectAdmin(t, h)
package testutil
