package transfer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/wolfman30/remitchat/internal/observability/metrics"
	"github.com/wolfman30/remitchat/pkg/logging"
)

const (
	statusProvider    = "transfer-status"
	signatureHeader   = "X-Transfer-Signature"
	maxStatusBodySize = 64 << 10
)

type statusEvent struct {
	EventID    string `json:"event_id"`
	TransferID string `json:"transfer_id"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
}

// StatusHandler receives execution outcome notifications. Outcomes land in
// the ledger; the conversation that produced the transfer is left untouched.
type StatusHandler struct {
	secret    string
	ledger    Ledger
	processed EventStore
	metrics   *metrics.TransferMetrics
	logger    *logging.Logger
}

func NewStatusHandler(secret string, ledger Ledger, processed EventStore, m *metrics.TransferMetrics, logger *logging.Logger) *StatusHandler {
	if ledger == nil {
		panic("transfer: ledger cannot be nil")
	}
	if processed == nil {
		processed = NewMemoryProcessedStore()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &StatusHandler{
		secret:    strings.TrimSpace(secret),
		ledger:    ledger,
		processed: processed,
		metrics:   m,
		logger:    logger,
	}
}

func (h *StatusHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxStatusBodySize))
	if err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if h.secret != "" && !VerifySignature(h.secret, payload, r.Header.Get(signatureHeader)) {
		h.logger.Warn("invalid transfer status signature")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var evt statusEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	status := Status(strings.ToLower(strings.TrimSpace(evt.Status)))
	if evt.EventID == "" || evt.TransferID == "" || (status != StatusCompleted && status != StatusFailed) {
		http.Error(w, "event_id, transfer_id and a completed or failed status are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	seen, err := h.processed.AlreadyProcessed(ctx, statusProvider, evt.EventID)
	if err != nil {
		h.logger.Error("failed to check processed status event", "error", err, "event_id", evt.EventID)
		http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
		return
	}
	if seen {
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	if err := h.ledger.UpdateStatus(ctx, evt.TransferID, status, evt.Reason); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "unknown transfer", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to update transfer status", "error", err, "transfer_id", evt.TransferID)
		http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
		return
	}

	if fresh, err := h.processed.MarkProcessed(ctx, statusProvider, evt.EventID); err != nil {
		h.logger.Warn("failed to mark status event processed", "error", err, "event_id", evt.EventID)
	} else if !fresh {
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}
	h.metrics.ObserveStatus(string(status))
	h.logger.Info("transfer status updated", "transfer_id", evt.TransferID, "status", status)
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

// VerifySignature checks a hex HMAC-SHA256 of payload, with or without a
// "sha256=" prefix.
func VerifySignature(secret string, payload []byte, header string) bool {
	header = strings.TrimPrefix(strings.TrimSpace(header), "sha256=")
	if secret == "" || header == "" {
		return false
	}
	got, err := hex.DecodeString(header)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
