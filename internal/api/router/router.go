package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/wolfman30/remitchat/internal/http/middleware"
	"github.com/wolfman30/remitchat/internal/messaging"
	"github.com/wolfman30/remitchat/internal/transfer"
	"github.com/wolfman30/remitchat/internal/webchat"
	"github.com/wolfman30/remitchat/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger           *logging.Logger
	MessagingHandler *messaging.Handler
	WebChatHandler   *webchat.Handler
	TransferStatus   *transfer.StatusHandler
	MetricsHandler   http.Handler

	CORSAllowedOrigins []string
	// RateLimiter guards the inbound chat routes; nil disables limiting.
	RateLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg == nil || cfg.MessagingHandler == nil {
		panic("router: messaging handler cannot be nil")
	}
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", cfg.MessagingHandler.HealthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	if cfg.TransferStatus != nil {
		r.Post("/webhooks/transfers/status", cfg.TransferStatus.Handle)
	}

	// Inbound chat traffic
	r.Group(func(chat chi.Router) {
		if cfg.RateLimiter != nil {
			chat.Use(cfg.RateLimiter.Middleware)
		}
		chat.Route("/messaging", func(r chi.Router) {
			r.Post("/twilio/webhook", cfg.MessagingHandler.TwilioWebhook)
		})
		if cfg.WebChatHandler != nil {
			chat.Route("/chat", func(r chi.Router) {
				r.Post("/messages", cfg.WebChatHandler.HandleMessage)
				r.Get("/ws", cfg.WebChatHandler.HandleWebSocket)
			})
		}
	})

	return r
}
