package messaging

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

const twilioSignatureHeader = "X-Twilio-Signature"

// ErrMissingFields is returned when an inbound SMS lacks MessageSid or From.
var ErrMissingFields = errors.New("messaging: missing required twilio fields")

// SignTwilioRequest computes the X-Twilio-Signature value for a form POST:
// base64(HMAC-SHA1(authToken, url + sorted key/value pairs)).
func SignTwilioRequest(authToken, webhookURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(webhookURL))
	for _, k := range keys {
		for _, v := range form[k] {
			mac.Write([]byte(k))
			mac.Write([]byte(v))
		}
	}
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ValidateTwilioSignature validates that a request came from Twilio
func ValidateTwilioSignature(r *http.Request, authToken, webhookURL string) bool {
	signature := r.Header.Get(twilioSignatureHeader)
	if signature == "" {
		return false
	}
	if err := r.ParseForm(); err != nil {
		return false
	}
	expected := SignTwilioRequest(authToken, webhookURL, r.PostForm)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// InboundSMS is the part of a Twilio messaging webhook the dialogue needs.
type InboundSMS struct {
	MessageSid string
	AccountSid string
	// From is normalized to E.164, keeping any channel prefix.
	From string
	To   string
	Body string
}

// ParseTwilioWebhook reads the form fields and rejects deliveries that cannot
// be attributed to a sender.
func ParseTwilioWebhook(r *http.Request) (InboundSMS, error) {
	if err := r.ParseForm(); err != nil {
		return InboundSMS{}, fmt.Errorf("messaging: parse form: %w", err)
	}
	in := InboundSMS{
		MessageSid: strings.TrimSpace(r.PostFormValue("MessageSid")),
		AccountSid: r.PostFormValue("AccountSid"),
		From:       NormalizeE164(r.PostFormValue("From")),
		To:         NormalizeE164(r.PostFormValue("To")),
		Body:       r.PostFormValue("Body"),
	}
	if in.MessageSid == "" || in.From == "" {
		return in, ErrMissingFields
	}
	return in, nil
}
