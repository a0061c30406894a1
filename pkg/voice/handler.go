package voice

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nightpage/oncall/pkg/oncall"
)

// Getter is the narrow read dependency the handlers need. *oncall.Service
// satisfies it.
type Getter interface {
	Get(ctx context.Context, id uuid.UUID) (oncall.Alert, bool, error)
}

// Acknowledger is the narrow write dependency the acknowledge handler
// needs. *oncall.Service satisfies it.
type Acknowledger interface {
	AcknowledgeByToken(ctx context.Context, alertID, token uuid.UUID, at time.Time) (oncall.AckOutcome, error)
}

// URLBuilder builds the callback URLs embedded in generated documents.
type URLBuilder struct {
	Base string
}

// PromptURL returns the URL the "repeat the prompt" redirect points at.
func (b URLBuilder) PromptURL(alertID, token uuid.UUID) string {
	return BuildCallbackURL(b.Base, "prompt", alertID, token)
}

// AcknowledgeURL returns the URL the digit-gather's action points at.
func (b URLBuilder) AcknowledgeURL(alertID, token uuid.UUID) string {
	return BuildCallbackURL(b.Base, "acknowledge", alertID, token)
}

// Prompt is the pure handler behind the "/prompt" webhook: it looks up
// the alert and assignment named by alertID/token and returns the
// document to speak. It performs no writes.
func Prompt(ctx context.Context, getter Getter, urls URLBuilder, alertID, token uuid.UUID) Document {
	alert, ok, err := getter.Get(ctx, alertID)
	if err != nil || !ok {
		return missingEntityDocument()
	}
	assignment, found := alert.FindAssignmentByToken(token)
	if !found {
		return missingEntityDocument()
	}

	if assignment.Acknowledged() {
		return alreadyHandledDocument(assignment.Target.Responder.Name)
	}
	if alert.Status == oncall.StatusAcknowledged {
		name := ""
		if alert.AcknowledgedBy != nil {
			name = alert.AcknowledgedBy.Name
		}
		return alreadyHandledDocument(name)
	}

	return promptDocument(string(alert.Priority), alert.Message, urls.AcknowledgeURL(alertID, token), urls.PromptURL(alertID, token))
}

// Digit is a parsed single-key DTMF response.
type Digit string

const (
	DigitAcknowledge Digit = "1"
	DigitRepeat      Digit = "2"
)

// ParseDigit interprets a provider's raw "Digits" form field, trimming
// surrounding whitespace first. Anything beyond a single recognized
// digit — including an empty field — is invalid input.
func ParseDigit(raw string) (Digit, bool) {
	trimmed := strings.TrimSpace(raw)
	switch Digit(trimmed) {
	case DigitAcknowledge, DigitRepeat:
		return Digit(trimmed), true
	}
	return "", false
}

// Acknowledge is the pure handler behind the "/acknowledge" webhook.
// digits is the raw provider form field; at is the caller-supplied
// acknowledgement time (request receipt time). The alert/assignment are
// resolved before digits are even inspected, so an
// unknown alert or a token no assignment of it carries always yields the
// missing-entity document regardless of what was dialed. When the caller
// pressed 2 ("repeat"), Acknowledge performs no write and instead returns
// the same document Prompt would — callers need not special-case the
// redirect.
func Acknowledge(ctx context.Context, ack Acknowledger, getter Getter, urls URLBuilder, alertID, token uuid.UUID, digits string, at time.Time) Document {
	alert, ok, err := getter.Get(ctx, alertID)
	if err != nil || !ok {
		return missingEntityDocument()
	}
	if _, found := alert.FindAssignmentByToken(token); !found {
		return missingEntityDocument()
	}

	d, ok := ParseDigit(digits)
	if !ok {
		return invalidInputDocument(urls.PromptURL(alertID, token))
	}
	if d == DigitRepeat {
		return Prompt(ctx, getter, urls, alertID, token)
	}

	outcome, err := ack.AcknowledgeByToken(ctx, alertID, token, at)
	if err != nil {
		return missingEntityDocument()
	}

	switch outcome.Result {
	case oncall.AckAcknowledged:
		name := ""
		if outcome.Responder != nil {
			name = outcome.Responder.Name
		}
		return acceptedDocument(name)
	case oncall.AckAlreadyAcknowledged:
		name := ""
		if outcome.Responder != nil {
			name = outcome.Responder.Name
		}
		return alreadyHandledDocument(name)
	default: // AckAlertNotFound, AckTokenNotFound
		return missingEntityDocument()
	}
}
