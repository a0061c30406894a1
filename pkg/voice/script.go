// Package voice produces the XML voice-response documents that drive an
// interactive phone prompt (the "gather a digit, say a sentence, redirect
// or hang up" grammar common to voice-call providers), the pure webhook
// handlers that choose among them, and an outbound-call adapter for
// targets whose channel is voice.
package voice

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// ContentType is the MIME type voice documents are served as.
const ContentType = "application/xml"

// Document is a voice-response document: the XML instructions returned to
// the voice provider.
type Document struct {
	XML string
}

// String returns the XML body.
func (d Document) String() string {
	return d.XML
}

const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>`

var xmlEscaper = strings.NewReplacer(
	`&`, "&amp;",
	`<`, "&lt;",
	`>`, "&gt;",
	`"`, "&quot;",
	`'`, "&apos;",
)

// escapeXML escapes the five XML-significant characters in s.
func escapeXML(s string) string {
	return xmlEscaper.Replace(s)
}

// BuildCallbackURL constructs "{base}/{suffix}?alertId={id}&token={token}"
// with base's trailing slash (if any) stripped first.
func BuildCallbackURL(base, suffix string, alertID, token uuid.UUID) string {
	base = strings.TrimSuffix(base, "/")
	q := url.Values{}
	q.Set("alertId", alertID.String())
	q.Set("token", token.String())
	return fmt.Sprintf("%s/%s?%s", base, suffix, q.Encode())
}

// promptDocument builds the initial gather-a-digit prompt: it speaks the
// alert's priority and message, asks for a digit (1 to acknowledge, 2 to
// repeat), and falls through to a brief message + redirect back to the
// prompt URL if the caller enters nothing within the timeout.
func promptDocument(priority, message, acknowledgeURL, promptURL string) Document {
	return Document{XML: fmt.Sprintf(`%s
<Response>
  <Gather numDigits="1" timeout="10" action="%s" method="POST">
    <Say voice="alice">This is a %s priority alert. %s. Press 1 to acknowledge, or press 2 to repeat this message.</Say>
  </Gather>
  <Say voice="alice">We did not receive any input.</Say>
  <Redirect method="POST">%s</Redirect>
</Response>`, xmlHeader, acknowledgeURL, strings.ToLower(priority), escapeXML(message), promptURL)}
}

// acceptedDocument builds the document played once an acknowledgement
// succeeds. responderName may be empty if the responder is unknown.
func acceptedDocument(responderName string) Document {
	thanks := "Thank you."
	if responderName != "" {
		thanks = fmt.Sprintf("Thank you, %s.", escapeXML(responderName))
	}
	return Document{XML: fmt.Sprintf(`%s
<Response>
  <Say voice="alice">%s This alert has been acknowledged.</Say>
  <Hangup/>
</Response>`, xmlHeader, thanks)}
}

// alreadyHandledDocument builds the document played when the alert was
// already acknowledged by someone else (or by this same caller, on a
// replayed token). originalResponderName may be empty if unknown.
func alreadyHandledDocument(originalResponderName string) Document {
	who := "another responder"
	if originalResponderName != "" {
		who = escapeXML(originalResponderName)
	}
	return Document{XML: fmt.Sprintf(`%s
<Response>
  <Say voice="alice">This alert was already acknowledged by %s.</Say>
  <Hangup/>
</Response>`, xmlHeader, who)}
}

// invalidInputDocument builds the document played when the caller
// entered something other than 1 or 2. It redirects back to the prompt.
func invalidInputDocument(promptURL string) Document {
	return Document{XML: fmt.Sprintf(`%s
<Response>
  <Say voice="alice">Sorry, we did not understand that.</Say>
  <Redirect method="POST">%s</Redirect>
</Response>`, xmlHeader, promptURL)}
}

// missingEntityDocument builds the document played when the alert or
// assignment named by the callback's identifiers no longer resolves to
// anything — e.g. the alert is unknown, or the token was never issued
// for it.
func missingEntityDocument() Document {
	return Document{XML: fmt.Sprintf(`%s
<Response>
  <Say voice="alice">We could not find this alert. Please contact the operations team.</Say>
  <Hangup/>
</Response>`, xmlHeader)}
}
