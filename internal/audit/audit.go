// Package audit records sign-in outcomes. Events always reach the
// structured log; a postgres sink can be layered in for durable retention.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/meridianbank/signin-gateway/internal/observability/logger"
)

// Actions emitted by the flow.
const (
	ActionSignInStarted   = "signin.started"
	ActionSignInCompleted = "signin.completed"
	ActionSignInFailed    = "signin.failed"
	ActionStepUpIssued    = "stepup.issued"
	ActionStepUpValidated = "stepup.validated"
	ActionStepUpRejected  = "stepup.rejected"
	ActionProfileSelected = "profile.selected"
	ActionSignedOut       = "signin.signedout"
)

type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"ts"`
	SessionID string    `json:"session_id"`
	Action    string    `json:"action"`
	Subject   string    `json:"subject,omitempty"`
	PartyID   string    `json:"party_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Sink receives fully-populated events.
type Sink interface {
	Append(ctx context.Context, e Event) error
}

// Publisher stamps and fans events to the sink. A nil *Publisher is safe
// and drops everything, so callers never nil-check.
type Publisher struct {
	sink Sink
}

func NewPublisher(sink Sink) *Publisher {
	return &Publisher{sink: sink}
}

func (p *Publisher) Emit(ctx context.Context, e Event) {
	if p == nil || p.sink == nil {
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if err := p.sink.Append(ctx, e); err != nil {
		// Auditing must never break the flow.
		logger.From(ctx).Warn("audit append failed", logger.Err(err), logger.String("action", e.Action))
	}
}

// LogSink writes events to the structured log.
type LogSink struct{}

func (LogSink) Append(ctx context.Context, e Event) error {
	logger.From(ctx).Info("audit",
		logger.String("audit_id", e.ID),
		logger.SessionID(e.SessionID),
		logger.String("action", e.Action),
		logger.Subject(e.Subject),
		logger.PartyID(e.PartyID),
		logger.String("detail", e.Detail),
	)
	return nil
}
