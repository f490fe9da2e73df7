package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/remitchat/internal/config"
	"github.com/wolfman30/remitchat/pkg/logging"
)

func TestSetupMetricsExposesRuntimeCollectors(t *testing.T) {
	handler, reg := setupMetrics()
	require.NotNil(t, handler)
	require.NotNil(t, reg)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestNeedsAWS(t *testing.T) {
	assert.False(t, needsAWS(&appconfig.Config{SessionBackend: "memory"}))
	assert.True(t, needsAWS(&appconfig.Config{SessionBackend: "dynamodb"}))
	assert.True(t, needsAWS(&appconfig.Config{TransferQueueURL: "http://localhost:4566/queue/transfers"}))
	assert.False(t, needsAWS(&appconfig.Config{TransferQueueURL: "http://localhost:4566/queue/transfers", UseMemoryQueue: true}))
}

func TestBuildAppInMemory(t *testing.T) {
	cfg := &appconfig.Config{
		SessionBackend:         "memory",
		SessionIdleTimeout:     30 * time.Minute,
		SessionCASMaxAttempts:  3,
		SessionJanitorInterval: time.Minute,
		CorridorOfferLimit:     6,
		WorkerCount:            1,
		RateLimitRPS:           5,
		RateLimitBurst:         20,
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := buildApp(ctx, cfg, logging.New("error"))
	require.NoError(t, err)
	defer a.close()
	require.NotNil(t, a.handoff.Worker)
	a.handoff.Worker.Start(ctx)

	send := func(sid, body string) int {
		form := url.Values{}
		form.Set("MessageSid", sid)
		form.Set("From", "+15551234567")
		form.Set("Body", body)
		req := httptest.NewRequest(http.MethodPost, "/messaging/twilio/webhook", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		a.handler.ServeHTTP(rr, req)
		return rr.Code
	}
	for i, body := range []string{"hola", "1", "100", "si"} {
		require.Equal(t, http.StatusOK, send("SM"+string(rune('a'+i)), body))
	}
	a.processor.Wait()

	require.Eventually(t, func() bool {
		rr := httptest.NewRecorder()
		a.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		return strings.Contains(rr.Body.String(), `remit_transfer_handoff_total{status="queued"} 1`)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	a.handoff.Worker.Wait()
}

func TestBuildAppRejectsUnknownBackend(t *testing.T) {
	_, err := buildApp(context.Background(), &appconfig.Config{SessionBackend: "etcd"}, logging.New("error"))
	assert.Error(t, err)
}
