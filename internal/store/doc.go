// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the application's core logic: masteries, repetition cards, sessions and
// the read-only question catalog. Implementations live in
// internal/platform/postgres.
package store
