package webchat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/remitchat/internal/dialogue"
	"github.com/wolfman30/remitchat/internal/observability/metrics"
	"github.com/wolfman30/remitchat/internal/session"
	"github.com/wolfman30/remitchat/pkg/logging"
)

const maxMessageBytes = 4 << 10

// Processor answers one inbound chat message.
type Processor interface {
	Handle(ctx context.Context, in dialogue.Inbound) (dialogue.OutboundMessage, error)
}

// Handler serves the in-app chat widget over HTTP and websocket.
type Handler struct {
	processor Processor
	metrics   *metrics.MessagingMetrics
	logger    *logging.Logger
}

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type      string `json:"type,omitempty"` // "message", "ping"
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	MessageID string `json:"message_id,omitempty"`
}

// OutboundMessage is what we send to the widget.
type OutboundMessage struct {
	Type         string       `json:"type,omitempty"` // "message", "session", "pong", "error"
	SessionID    string       `json:"session_id,omitempty"`
	Text         string       `json:"text,omitempty"`
	Role         string       `json:"role,omitempty"`
	QuickReplies []QuickReply `json:"quick_replies,omitempty"`
	Timestamp    string       `json:"timestamp,omitempty"`
}

// NewHandler creates a web chat handler.
func NewHandler(processor Processor, m *metrics.MessagingMetrics, logger *logging.Logger) *Handler {
	if processor == nil {
		panic("webchat: processor cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		processor: processor,
		metrics:   m,
		logger:    logger,
	}
}

// generateSessionID creates a random session identifier.
func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(b)
}

// HandleWebSocket upgrades to WebSocket and answers each message in order.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	conn.MaxPayloadBytes = maxMessageBytes
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = generateSessionID()
	}

	_ = websocket.JSON.Send(conn, OutboundMessage{
		Type:      "session",
		SessionID: sessionID,
	})

	log := h.logger.With("session_id", sessionID)
	log.Info("webchat: connection opened")

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			log.Debug("webchat: connection closed", "error", err)
			return
		}

		if msg.Type == "ping" {
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "pong"})
			continue
		}
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}

		out, status := h.process(r.Context(), sessionID, msg)
		if status != http.StatusOK {
			_ = websocket.JSON.Send(conn, OutboundMessage{
				Type:      "error",
				SessionID: sessionID,
				Text:      http.StatusText(status),
			})
			continue
		}
		if err := websocket.JSON.Send(conn, out); err != nil {
			log.Debug("webchat: send failed", "error", err)
			return
		}
	}
}

// process runs one message through the processor and reports the HTTP status
// that describes the outcome.
func (h *Handler) process(ctx context.Context, sessionID string, msg InboundMessage) (OutboundMessage, int) {
	start := time.Now()
	defer func() { h.metrics.ObserveWebhookLatency(channelWebChat, time.Since(start).Seconds()) }()

	reply, err := h.processor.Handle(ctx, toInbound(sessionID, msg.Text, msg.MessageID))
	if err != nil {
		if errors.Is(err, session.ErrUnavailable) {
			h.logger.Error("webchat: session store unavailable", "error", err, "session_id", sessionID)
			h.metrics.ObserveInbound(channelWebChat, "unavailable")
			return OutboundMessage{}, http.StatusServiceUnavailable
		}
		h.logger.Error("webchat: failed to process message", "error", err, "session_id", sessionID)
		h.metrics.ObserveInbound(channelWebChat, "error")
		return OutboundMessage{}, http.StatusInternalServerError
	}
	h.metrics.ObserveInbound(channelWebChat, "ok")
	return toOutbound(sessionID, reply), http.StatusOK
}

// HandleMessage is the HTTP fallback for sending messages.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req InboundMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&req); err != nil {
		h.metrics.ObserveInbound(channelWebChat, "bad_request")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		h.metrics.ObserveInbound(channelWebChat, "bad_request")
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = generateSessionID()
	}

	out, status := h.process(r.Context(), req.SessionID, req)
	if status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}
