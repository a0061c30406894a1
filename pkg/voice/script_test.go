package voice

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestBuildCallbackURL(t *testing.T) {
	id := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	token := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	tests := []struct {
		name string
		base string
		want string
	}{
		{
			name: "strips trailing slash",
			base: "https://example.com/oncall/twilio/",
			want: "https://example.com/oncall/twilio/prompt?alertId=11111111-1111-1111-1111-111111111111&token=22222222-2222-2222-2222-222222222222",
		},
		{
			name: "no trailing slash",
			base: "https://example.com/oncall/twilio",
			want: "https://example.com/oncall/twilio/prompt?alertId=11111111-1111-1111-1111-111111111111&token=22222222-2222-2222-2222-222222222222",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildCallbackURL(tt.base, "prompt", id, token)
			if got != tt.want {
				t.Errorf("BuildCallbackURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEscapeXML(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`db & cache down`, `db &amp; cache down`},
		{`<script>`, `&lt;script&gt;`},
		{`"quoted"`, `&quot;quoted&quot;`},
		{`it's fine`, `it&apos;s fine`},
		{"plain message", "plain message"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := escapeXML(tt.in); got != tt.want {
				t.Errorf("escapeXML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPromptDocument_EscapesMessageAndGathersOneDigit(t *testing.T) {
	doc := promptDocument("critical", "db & cache down", "https://cb/acknowledge", "https://cb/prompt")

	if !strings.Contains(doc.XML, `numDigits="1"`) {
		t.Error("expected a 1-digit gather")
	}
	if !strings.Contains(doc.XML, `timeout="10"`) {
		t.Error("expected a 10-second timeout")
	}
	if !strings.Contains(doc.XML, `action="https://cb/acknowledge"`) {
		t.Error("expected the gather to post to the acknowledge URL")
	}
	if !strings.Contains(doc.XML, "db &amp; cache down") {
		t.Error("expected the message to be XML-escaped")
	}
	if !strings.Contains(doc.XML, "critical") {
		t.Error("expected the lower-cased priority to be spoken")
	}
	if !strings.Contains(doc.XML, `<Redirect method="POST">https://cb/prompt</Redirect>`) {
		t.Error("expected a redirect back to the prompt URL on no input")
	}
}

func TestPromptDocument_LowercasesPriority(t *testing.T) {
	doc := promptDocument("CRITICAL", "db down", "https://cb/ack", "https://cb/prompt")
	if strings.Contains(doc.XML, "CRITICAL") {
		t.Error("expected priority to be lower-cased")
	}
	if !strings.Contains(doc.XML, "critical") {
		t.Error("expected lower-cased priority present")
	}
}

func TestAcceptedDocument(t *testing.T) {
	withName := acceptedDocument("Primary On-Call")
	if !strings.Contains(withName.XML, "Primary On-Call") {
		t.Error("expected responder name to be spoken")
	}
	if !strings.Contains(withName.XML, "<Hangup/>") {
		t.Error("expected a hangup")
	}

	withoutName := acceptedDocument("")
	if strings.Contains(withoutName.XML, "Thank you, .") {
		t.Error("expected no dangling comma when responder name is unknown")
	}
}

func TestAlreadyHandledDocument(t *testing.T) {
	withName := alreadyHandledDocument("Secondary On-Call")
	if !strings.Contains(withName.XML, "Secondary On-Call") {
		t.Error("expected the original responder to be named")
	}

	withoutName := alreadyHandledDocument("")
	if !strings.Contains(withoutName.XML, "another responder") {
		t.Error("expected a generic fallback when the responder is unknown")
	}
}

func TestInvalidInputDocument_RedirectsToPrompt(t *testing.T) {
	doc := invalidInputDocument("https://cb/prompt")
	if !strings.Contains(doc.XML, `<Redirect method="POST">https://cb/prompt</Redirect>`) {
		t.Error("expected a redirect back to the prompt URL")
	}
}

func TestMissingEntityDocument_HangsUp(t *testing.T) {
	doc := missingEntityDocument()
	if !strings.Contains(doc.XML, "<Hangup/>") {
		t.Error("expected a hangup")
	}
	if !strings.Contains(doc.XML, "operations team") {
		t.Error("expected a reference to the operations team")
	}
}
