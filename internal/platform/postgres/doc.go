// Package postgres stores cards, masteries and sessions and reads the
// question catalog from PostgreSQL through database/sql and the pgx driver.
// The schema ships as goose migrations embedded in the binary (see Migrate).
// Every store accepts a store.DBTX, so the same code runs on the pool or
// inside a transaction obtained through WithTx.
package postgres
