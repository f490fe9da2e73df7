package messaging

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/wolfman30/remitchat/internal/dialogue"
)

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

// RenderTwiML turns a reply into a TwiML message. SMS has no buttons, so
// corridor lists become numbered lines (the classifier reads the numbers) and
// other options are listed on a "Responde:" line.
func RenderTwiML(reply dialogue.OutboundMessage) ([]byte, error) {
	body, err := xml.Marshal(twimlResponse{Message: FormatSMS(reply)})
	if err != nil {
		return nil, fmt.Errorf("messaging: render twiml: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// FormatSMS flattens text and quick replies into one SMS body.
func FormatSMS(reply dialogue.OutboundMessage) string {
	if len(reply.QuickReplies) == 0 {
		return reply.Text
	}
	var b strings.Builder
	b.WriteString(reply.Text)
	if isNumberedList(reply.QuickReplies) {
		for i, qr := range reply.QuickReplies {
			fmt.Fprintf(&b, "\n%d. %s", i+1, qr.Label)
		}
		return b.String()
	}
	labels := make([]string, len(reply.QuickReplies))
	for i, qr := range reply.QuickReplies {
		labels[i] = qr.Label
	}
	b.WriteString("\nResponde: ")
	b.WriteString(strings.Join(labels, " | "))
	return b.String()
}

func isNumberedList(replies []dialogue.QuickReply) bool {
	for _, qr := range replies {
		if strings.HasPrefix(qr.Token, dialogue.CorridorToken("")) {
			return true
		}
	}
	return false
}
