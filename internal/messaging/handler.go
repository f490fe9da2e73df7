package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/remitchat/internal/dialogue"
	"github.com/wolfman30/remitchat/internal/observability/metrics"
	"github.com/wolfman30/remitchat/internal/session"
	"github.com/wolfman30/remitchat/pkg/logging"
)

var twilioTracer = otel.Tracer("remitchat.internal.messaging.twilio")

const channelSMS = "sms"

type messageProcessor interface {
	Handle(ctx context.Context, in dialogue.Inbound) (dialogue.OutboundMessage, error)
}

// Handler handles SMS gateway webhook requests.
type Handler struct {
	webhookSecret string
	processor     messageProcessor
	publicBaseURL string
	metrics       *metrics.MessagingMetrics
	logger        *logging.Logger
}

// NewHandler creates a new messaging handler. An empty webhookSecret disables
// signature validation.
func NewHandler(webhookSecret string, processor messageProcessor, m *metrics.MessagingMetrics, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if processor == nil {
		panic("messaging: processor cannot be nil")
	}
	return &Handler{
		webhookSecret: webhookSecret,
		processor:     processor,
		metrics:       m,
		logger:        logger,
	}
}

// WithPublicBaseURL signs against base instead of the request host, for
// deployments behind proxies that rewrite Host.
func (h *Handler) WithPublicBaseURL(base string) *Handler {
	h.publicBaseURL = strings.TrimRight(strings.TrimSpace(base), "/")
	return h
}

func (h *Handler) signedURL(r *http.Request) string {
	if h.publicBaseURL != "" && r.URL != nil {
		return h.publicBaseURL + r.URL.RequestURI()
	}
	return buildAbsoluteURL(r)
}

// TwilioWebhook handles POST /messaging/twilio/webhook requests and answers inline with TwiML.
func (h *Handler) TwilioWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := twilioTracer.Start(r.Context(), "messaging.twilio.webhook")
	defer span.End()
	start := time.Now()
	defer func() { h.metrics.ObserveWebhookLatency(channelSMS, time.Since(start).Seconds()) }()

	if h.webhookSecret != "" {
		if !ValidateTwilioSignature(r, h.webhookSecret, h.signedURL(r)) {
			h.logger.Warn("invalid twilio signature")
			h.metrics.ObserveInbound(channelSMS, "unauthorized")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			span.RecordError(errors.New("invalid twilio signature"))
			return
		}
	}

	sms, err := ParseTwilioWebhook(r)
	span.SetAttributes(
		attribute.String("remit.twilio.message_sid", sms.MessageSid),
		attribute.String("remit.sender", logging.MaskSender(sms.From)),
	)
	if err != nil {
		h.logger.Error("invalid twilio payload", "error", err)
		h.metrics.ObserveInbound(channelSMS, "bad_request")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}

	reply, err := h.processor.Handle(ctx, dialogue.Inbound{
		SenderID:  sms.From,
		Text:      sms.Body,
		MessageID: sms.MessageSid,
		Channel:   channelSMS,
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, session.ErrUnavailable) {
			h.logger.Error("session store unavailable", "error", err, "message_sid", sms.MessageSid)
			h.metrics.ObserveInbound(channelSMS, "unavailable")
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}
		h.logger.Error("failed to process twilio message", "error", err, "message_sid", sms.MessageSid)
		h.metrics.ObserveInbound(channelSMS, "error")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	body, err := RenderTwiML(reply)
	if err != nil {
		h.logger.Error("failed to render twiml", "error", err)
		h.metrics.ObserveInbound(channelSMS, "error")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.metrics.ObserveInbound(channelSMS, "ok")
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// HealthCheck returns a simple health check response.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status": "ok",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

func buildAbsoluteURL(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	if r.URL.Scheme != "" {
		return r.URL.String()
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
		if r.TLS == nil {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, r.URL.RequestURI())
}
