package webchat

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/remitchat/internal/dialogue"
)

const channelWebChat = "webchat"

// SenderID builds the canonical sender id for a webchat session.
func SenderID(sessionID string) string {
	return fmt.Sprintf("webchat:%s", sessionID)
}

// QuickReply mirrors dialogue.QuickReply on the widget wire.
type QuickReply struct {
	Label string `json:"label"`
	Token string `json:"token"`
}

// toInbound converts a widget message for the processor.
func toInbound(sessionID, text, messageID string) dialogue.Inbound {
	return dialogue.Inbound{
		SenderID:  SenderID(sessionID),
		Text:      strings.TrimSpace(text),
		MessageID: messageID,
		Channel:   channelWebChat,
	}
}

// toOutbound converts a processor reply into a widget envelope.
func toOutbound(sessionID string, reply dialogue.OutboundMessage) OutboundMessage {
	out := OutboundMessage{
		Type:      "message",
		Role:      "assistant",
		SessionID: sessionID,
		Text:      reply.Text,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if len(reply.QuickReplies) > 0 {
		out.QuickReplies = make([]QuickReply, len(reply.QuickReplies))
		for i, qr := range reply.QuickReplies {
			out.QuickReplies[i] = QuickReply{Label: qr.Label, Token: qr.Token}
		}
	}
	return out
}
