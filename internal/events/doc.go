// Package events defines the domain events the engine publishes after a
// committed state change (mastery.updated, session.completed,
// session.abandoned, card.reviewed) and an in-process emitter that fans them
// out to registered handlers. A Redis publisher in platform/redis registers
// as one such handler.
package events
