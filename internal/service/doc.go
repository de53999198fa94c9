// Package service holds what the application services share: the
// ServiceError wrapper, the not-found and conflict sentinels the API layer
// classifies, and the Clock type. The services themselves live in the
// assessment, review, cardsync, auth and userlock subpackages. Each one
// depends on store interfaces and a store.Transactor, never on a concrete
// database, so they are unit tested against in-memory fakes.
package service
