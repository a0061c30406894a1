package voice

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/nightpage/oncall/pkg/oncall"
)

type fakeCaller struct {
	calls []CallRequest
}

func (f *fakeCaller) Call(_ context.Context, req CallRequest) (CallResult, error) {
	f.calls = append(f.calls, req)
	return CallResult{CallID: "CA0123456789abcdef"}, nil
}

func TestAdapter_Notify_IgnoresNonVoiceChannels(t *testing.T) {
	caller := &fakeCaller{}
	adapter := NewAdapter(caller, "https://example.com/oncall/twilio", slog.Default())

	responder := oncall.Responder{ID: uuid.New(), Name: "primary", Contact: "+15550100"}
	assignment := oncall.Assignment{Target: oncall.NewTarget(responder, oncall.ChannelEmail, "")}

	adapter.Notify(context.Background(), oncall.Alert{}, assignment)

	if len(caller.calls) != 0 {
		t.Errorf("expected no call placed for a non-voice channel, got %v", caller.calls)
	}
}

func TestAdapter_Notify_PlacesCallForVoiceChannel(t *testing.T) {
	caller := &fakeCaller{}
	adapter := NewAdapter(caller, "https://example.com/oncall/twilio", slog.Default())

	responder := oncall.Responder{ID: uuid.New(), Name: "primary", Contact: "+15550100"}
	assignment := oncall.Assignment{
		Token:  uuid.New(),
		Target: oncall.NewTarget(responder, oncall.ChannelVoice, "+15550100"),
	}
	alert := oncall.Alert{ID: uuid.New()}

	adapter.Notify(context.Background(), alert, assignment)

	if len(caller.calls) != 1 || caller.calls[0].To != "+15550100" {
		t.Errorf("calls = %v, want a single call to +15550100", caller.calls)
	}
	if caller.calls[0].AlertID != alert.ID {
		t.Error("call request does not carry the alert ID")
	}
	if caller.calls[0].Instruction.URL == "" {
		t.Error("call request does not carry a hosted prompt URL")
	}
}

func TestNoopCaller_LogsAndSimulatesSuccess(t *testing.T) {
	var buf bytes.Buffer
	caller := &NoopCaller{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	res, err := caller.Call(context.Background(), CallRequest{AlertID: uuid.New(), To: "+15550100"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if res.CallID == "" {
		t.Error("expected a synthetic call ID")
	}
	if !strings.Contains(buf.String(), "+15550100") {
		t.Errorf("log output missing the phone number: %s", buf.String())
	}
}

func TestAdapter_Notify_SkipsVoiceTargetWithNoAddress(t *testing.T) {
	caller := &fakeCaller{}
	adapter := NewAdapter(caller, "https://example.com/oncall/twilio", slog.Default())

	responder := oncall.Responder{ID: uuid.New(), Name: "primary"}
	assignment := oncall.Assignment{
		Token:  uuid.New(),
		Target: oncall.Target{Responder: responder, Channel: oncall.ChannelVoice, Address: ""},
	}

	adapter.Notify(context.Background(), oncall.Alert{ID: uuid.New()}, assignment)

	if len(caller.calls) != 0 {
		t.Errorf("expected no call placed for a voice target with no address, got %v", caller.calls)
	}
}

func TestHostedInstruction_CarriesURL(t *testing.T) {
	instr := HostedInstruction("https://example.com/oncall/twilio/prompt")
	if instr.URL == "" || instr.Script != nil {
		t.Error("expected a hosted instruction to carry a URL and no inline script")
	}
}

func TestInlineInstruction_CarriesScript(t *testing.T) {
	doc := promptDocument("critical", "db down", "https://cb/ack", "https://cb/prompt")
	instr := InlineInstruction(doc)
	if instr.Script == nil || instr.URL != "" {
		t.Error("expected an inline instruction to carry a script and no URL")
	}
}
