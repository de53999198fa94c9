package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the engine.
const (
	TypeMasteryUpdated   = "mastery.updated"
	TypeSessionCompleted = "session.completed"
	TypeSessionAbandoned = "session.abandoned"
	TypeCardReviewed     = "card.reviewed"
)

// Event is a domain event published after a state change has been committed.
type Event struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type is one of the Type* constants
	Type string `json:"type"`

	// UserID is the user whose state changed
	UserID uuid.UUID `json:"user_id"`

	// Payload contains the event-specific data serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// OccurredAt is the engine clock time of the change
	OccurredAt time.Time `json:"occurred_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *Event) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// NewEvent creates an Event with the specified type and payload.
func NewEvent(eventType string, userID uuid.UUID, payload any, now time.Time) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:         uuid.New(),
		Type:       eventType,
		UserID:     userID,
		Payload:    payloadBytes,
		OccurredAt: now,
	}, nil
}

// MasteryUpdated is the payload of TypeMasteryUpdated.
type MasteryUpdated struct {
	SkillID      int64     `json:"skill_id"`
	MasteryLevel float64   `json:"mastery_level"`
	Confidence   float64   `json:"confidence"`
	Label        string    `json:"label"`
	SessionID    uuid.UUID `json:"session_id"`
}

// SessionEnded is the payload of TypeSessionCompleted and TypeSessionAbandoned.
type SessionEnded struct {
	SessionID     uuid.UUID `json:"session_id"`
	Mode          string    `json:"mode"`
	AnsweredCount int       `json:"answered_count"`
	CorrectCount  int       `json:"correct_count"`
	Reason        string    `json:"reason"`
}

// CardReviewed is the payload of TypeCardReviewed.
type CardReviewed struct {
	CardID       uuid.UUID `json:"card_id"`
	QuestionID   int64     `json:"question_id"`
	Quality      int       `json:"quality"`
	IntervalDays int       `json:"interval_days"`
	EaseFactor   float64   `json:"ease_factor"`
	NextReviewAt time.Time `json:"next_review_at"`
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	HandleEvent(ctx context.Context, event *Event) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *Event) error
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(ctx context.Context, event *Event) error

// HandleEvent implements EventHandler.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *Event) error {
	return f(ctx, event)
}
