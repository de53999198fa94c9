// Package mocks provides in-memory implementations of the store interfaces
// and of store.Transactor for service and handler tests. The fakes keep the
// semantics the Postgres stores guarantee (uniqueness, compare-and-swap on
// versions, ordering) and deep-copy entities on the way in and out, so tests
// observe the same aliasing rules as production.
package mocks
