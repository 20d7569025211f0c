package actionbus_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swayz032/aspire-runway/pkg/actionbus"
	"github.com/swayz032/aspire-runway/pkg/capabilities"
	"github.com/swayz032/aspire-runway/pkg/failures"
	"github.com/swayz032/aspire-runway/pkg/orchestrator"
)

func TestOrchestratorExecutor_EndToEnd(t *testing.T) {
	var body map[string]any
	var suite string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		suite = r.Header.Get("X-Suite-Id")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"receipt_id":"rcpt-9"}`))
	}))
	defer srv.Close()

	exec := actionbus.NewOrchestratorExecutor(orchestrator.New(srv.URL), nil)
	b, _ := newBus(t, exec)
	ctx := context.Background()

	tk := b.Submit(ctx, invoiceAction())
	require.True(t, b.Approve(ctx, tk.ID(), capabilities.TierRed))
	res := wait(t, tk)

	assert.Equal(t, actionbus.StatusSucceeded, res.Status)
	assert.Equal(t, "rcpt-9", res.ReceiptID)
	assert.Equal(t, "suite-a", suite)
	assert.Equal(t, "invoice.send_invoice", body["task_type"])
	assert.Equal(t, "red", body["risk_tier"])
	assert.Equal(t, tk.ID(), body["correlation_id"])
}

func TestOrchestratorExecutor_StatusCodes(t *testing.T) {
	tests := []struct {
		status int
		body   string
		code   string
	}{
		{http.StatusUnauthorized, "token expired", failures.AuthenticationFailed},
		{http.StatusForbidden, "", failures.AuthenticationFailed},
		{http.StatusTooManyRequests, "", failures.RateLimited},
		{http.StatusUnprocessableEntity, "bad amount", failures.BackendRejected},
		{http.StatusBadGateway, "upstream", failures.BackendServerError},
		{http.StatusOK, `{"data":{}}`, failures.ReceiptMissing},
	}
	for _, tc := range tests {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			b, _ := newBus(t, actionbus.NewOrchestratorExecutor(orchestrator.New(srv.URL), nil))
			res := wait(t, b.Submit(context.Background(), actionbus.Action{Type: "ping", Tier: capabilities.TierGreen}))

			assert.Equal(t, actionbus.StatusFailed, res.Status)
			assert.Equal(t, tc.code, res.FailureCode)
			if tc.body != "" {
				assert.NotContains(t, res.Error, tc.body)
			}
		})
	}
}

func TestOrchestratorExecutor_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	b, _ := newBus(t, actionbus.NewOrchestratorExecutor(orchestrator.New(url), nil))
	res := wait(t, b.Submit(context.Background(), actionbus.Action{Type: "ping", Tier: capabilities.TierGreen}))
	assert.Equal(t, failures.BackendUnavailable, res.FailureCode)
}
