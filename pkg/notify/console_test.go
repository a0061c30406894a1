package notify

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/nightpage/oncall/pkg/oncall"
)

func TestConsole_LogsResponderChannelAndAddress(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	console := NewConsole(logger)

	responder := oncall.Responder{ID: uuid.New(), Name: "Primary On-Call", Contact: "primary@example.com"}
	assignment := oncall.Assignment{
		Target: oncall.NewTarget(responder, oncall.ChannelSMS, ""),
	}

	console.Notify(context.Background(), oncall.Alert{}, assignment)

	out := buf.String()
	for _, want := range []string{"Primary On-Call", "sms", "primary@example.com"} {
		if !bytes.Contains([]byte(out), []byte(want)) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}
