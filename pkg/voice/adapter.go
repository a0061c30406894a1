package voice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/nightpage/oncall/pkg/oncall"
)

// Instruction tells a Caller what to play once a call connects. Exactly
// one of URL or Script is set: URL points the provider at a hosted
// document it should fetch (the prompt webhook), Script is an inline
// document to play directly without a round trip. Most callers use URL;
// Script exists for providers, or tests, that accept an inline document.
type Instruction struct {
	URL    string
	Script *Document
}

// HostedInstruction builds an Instruction that tells the provider to
// fetch its document from url.
func HostedInstruction(url string) Instruction {
	return Instruction{URL: url}
}

// InlineInstruction builds an Instruction carrying the document to play
// directly.
func InlineInstruction(doc Document) Instruction {
	return Instruction{Script: &doc}
}

// CallRequest describes one outbound page call to a responder.
type CallRequest struct {
	AlertID     uuid.UUID
	To          string // E.164 format
	Instruction Instruction
}

// CallResult describes the outcome of a placed call.
type CallResult struct {
	CallID string
}

// Caller is the interface for placing outbound voice calls.
// Implementations include Twilio or a noop stub.
type Caller interface {
	Call(ctx context.Context, req CallRequest) (CallResult, error)
}

// NoopCaller is a stub implementation that logs but does not actually call.
type NoopCaller struct {
	Logger *slog.Logger
}

var _ Caller = (*NoopCaller)(nil)

// Call logs the call request and returns success (noop).
func (n *NoopCaller) Call(_ context.Context, req CallRequest) (CallResult, error) {
	n.Logger.Info("noop callout: phone call",
		"alert_id", req.AlertID,
		"phone", req.To,
		"instruction_url", req.Instruction.URL,
	)
	return CallResult{CallID: "noop-call-simulated"}, nil
}

// Adapter is a channel-specific Notifier for oncall.ChannelVoice targets.
// It places an outbound call pointing the provider at the prompt webhook
// for the assignment's token, retrying transient placement failures with
// bounded backoff so a flaky provider doesn't need manual intervention
// to page the next level on schedule.
type Adapter struct {
	caller Caller
	urls   URLBuilder
	logger *slog.Logger

	maxElapsed time.Duration
}

// NewAdapter creates a voice Adapter. callbackBase is the externally
// reachable base URL the provider will call back into (TWILIO_ACK_WEBHOOK_BASE).
func NewAdapter(caller Caller, callbackBase string, logger *slog.Logger) *Adapter {
	return &Adapter{
		caller:     caller,
		urls:       URLBuilder{Base: callbackBase},
		logger:     logger,
		maxElapsed: 30 * time.Second,
	}
}

var _ oncall.Notifier = (*Adapter)(nil)

// Notify places a call for the assignment's target, retrying with bounded
// exponential backoff. It never returns an error, matching the Notifier
// contract: a placement failure that exhausts its retry budget is logged
// and swallowed so escalation still proceeds on the assignment's
// deadline.
func (a *Adapter) Notify(ctx context.Context, alert oncall.Alert, assignment oncall.Assignment) {
	if assignment.Target.Channel != oncall.ChannelVoice {
		return
	}
	if assignment.Target.Address == "" {
		a.logger.Warn("voice target has no address, skipping call",
			"alert_id", alert.ID,
			"responder", assignment.Target.Responder.Name,
		)
		return
	}

	req := CallRequest{
		AlertID:     alert.ID,
		To:          assignment.Target.Address,
		Instruction: HostedInstruction(a.urls.PromptURL(alert.ID, assignment.Token)),
	}

	op := func() (CallResult, error) {
		res, err := a.caller.Call(ctx, req)
		if err != nil {
			return CallResult{}, fmt.Errorf("placing voice call: %w", err)
		}
		return res, nil
	}

	res, err := backoff.Retry(ctx, op, backoff.WithMaxElapsedTime(a.maxElapsed))
	if err != nil {
		a.logger.Warn("voice call placement failed after retries",
			"alert_id", alert.ID,
			"responder", assignment.Target.Responder.Name,
			"address", assignment.Target.Address,
			"error", err,
		)
		return
	}

	a.logger.Info("placed voice call",
		"alert_id", alert.ID,
		"responder", assignment.Target.Responder.Name,
		"address", assignment.Target.Address,
		"level", assignment.LevelIndex,
		"call_id", res.CallID,
	)
}
