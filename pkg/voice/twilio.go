package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const twilioCallsEndpoint = "https://api.twilio.com/2010-04-01/Accounts/%s/Calls.json"

// TwilioCaller places outbound calls through Twilio's REST API. No Twilio
// client library is vendored into this module, so it speaks the API
// directly: HTTP Basic Auth with the account SID and auth token, a form
// body naming To/From and either a hosted Url or inline Twiml.
type TwilioCaller struct {
	accountSID string
	authToken  string
	fromNumber string
	client     *http.Client
}

var _ Caller = (*TwilioCaller)(nil)

// NewTwilioCaller creates a TwilioCaller.
func NewTwilioCaller(accountSID, authToken, fromNumber string) *TwilioCaller {
	return &TwilioCaller{
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		client:     &http.Client{},
	}
}

// Call places an outbound call to req.To, instructing Twilio to fetch
// its document from the instruction's URL or, if set, to use its inline
// script directly as TwiML. The result carries the created call's SID.
func (c *TwilioCaller) Call(ctx context.Context, req CallRequest) (CallResult, error) {
	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", c.fromNumber)
	if req.Instruction.Script != nil {
		form.Set("Twiml", req.Instruction.Script.String())
	} else {
		form.Set("Url", req.Instruction.URL)
	}

	endpoint := fmt.Sprintf(twilioCallsEndpoint, c.accountSID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return CallResult{}, fmt.Errorf("building twilio request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return CallResult{}, fmt.Errorf("calling twilio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return CallResult{}, fmt.Errorf("twilio returned status %d", resp.StatusCode)
	}

	var created struct {
		SID string `json:"sid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return CallResult{}, fmt.Errorf("decoding twilio response: %w", err)
	}
	return CallResult{CallID: created.SID}, nil
}
