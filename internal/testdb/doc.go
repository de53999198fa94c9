// Package testdb provides helpers for integration tests that need a real
// PostgreSQL database. Tests call OpenTestDatabase, which skips when no
// database URL is configured, and isolate their writes with WithTx.
package testdb
