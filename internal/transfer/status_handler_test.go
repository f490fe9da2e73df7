package transfer

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/remitchat/internal/observability/metrics"
)

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"hello":"world"}`)
	assert.True(t, VerifySignature("s3cret", payload, sign("s3cret", payload)))
	assert.True(t, VerifySignature("s3cret", payload, sign("s3cret", payload)[len("sha256="):]))
	assert.False(t, VerifySignature("s3cret", payload, sign("other", payload)))
	assert.False(t, VerifySignature("s3cret", payload, "zz"))
	assert.False(t, VerifySignature("", payload, sign("", payload)))
}

func postStatus(h *StatusHandler, secret string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/transfers/status", bytes.NewReader([]byte(body)))
	if secret != "" {
		req.Header.Set(signatureHeader, sign(secret, []byte(body)))
	}
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func TestStatusHandlerAppliesOnce(t *testing.T) {
	ledger := NewMemoryLedger()
	req := sampleRequest(1)
	_, err := ledger.Insert(context.Background(), req)
	require.NoError(t, err)

	h := NewStatusHandler("s3cret", ledger, NewMemoryProcessedStore(), metrics.NewTransferMetrics(prometheus.NewRegistry()), nil)
	body := `{"event_id":"evt-1","transfer_id":"` + req.ID + `","status":"failed","reason":"account closed"}`

	rec := postStatus(h, "s3cret", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "applied")

	e, err := ledger.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, e.Status)
	assert.Equal(t, "account closed", e.FailureReason)

	rec = postStatus(h, "s3cret", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "duplicate")
}

func TestStatusHandlerRejects(t *testing.T) {
	ledger := NewMemoryLedger()
	h := NewStatusHandler("s3cret", ledger, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/transfers/status", bytes.NewReader([]byte(`{}`)))
	req.Header.Set(signatureHeader, "sha256=00")
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, http.StatusBadRequest, postStatus(h, "s3cret", `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, postStatus(h, "s3cret", `{"event_id":"e","transfer_id":"t","status":"pending"}`).Code)
	assert.Equal(t, http.StatusNotFound, postStatus(h, "s3cret", `{"event_id":"e","transfer_id":"t","status":"completed"}`).Code)
}

func TestStatusHandlerWithoutSecret(t *testing.T) {
	ledger := NewMemoryLedger()
	req := sampleRequest(9)
	_, err := ledger.Insert(context.Background(), req)
	require.NoError(t, err)

	h := NewStatusHandler("", ledger, nil, nil, nil)
	rec := postStatus(h, "", `{"event_id":"e9","transfer_id":"`+req.ID+`","status":"COMPLETED"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	e, err := ledger.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, e.Status)
}
