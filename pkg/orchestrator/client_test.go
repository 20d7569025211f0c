package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute_SendsIntent(t *testing.T) {
	var got struct {
		method, path, auth, suite, office, corr string
		body                                    map[string]any
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.auth = r.Header.Get("Authorization")
		got.suite = r.Header.Get("X-Suite-Id")
		got.office = r.Header.Get("X-Office-Id")
		got.corr = r.Header.Get("X-Correlation-Id")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got.body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"receipt_id":"rcpt_01","data":{"invoice_number":"INV-7"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", WithToken("tok"))
	rec, err := c.Execute(context.Background(), Submission{
		TaskType:      "invoice.send_invoice",
		Params:        map[string]any{"amount": 120.5},
		ActorID:       "user-1",
		RiskTier:      "red",
		CorrelationID: "act-1",
		SuiteID:       "suite-a",
		OfficeID:      "office-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "rcpt_01", rec.ReceiptID)
	assert.Equal(t, "INV-7", rec.Data["invoice_number"])

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/v1/intents", got.path)
	assert.Equal(t, "Bearer tok", got.auth)
	assert.Equal(t, "suite-a", got.suite)
	assert.Equal(t, "office-1", got.office)
	assert.Equal(t, "act-1", got.corr)
	assert.Equal(t, "invoice.send_invoice", got.body["task_type"])
	assert.Equal(t, "red", got.body["risk_tier"])
	assert.Equal(t, "user-1", got.body["actor_id"])
	assert.Equal(t, "act-1", got.body["correlation_id"])
	assert.Equal(t, map[string]any{"amount": 120.5}, got.body["params"])
	assert.NotContains(t, got.body, "SuiteID")
}

func TestExecute_NonSuccessFoldsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte("amount exceeds credit limit\n"))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Execute(context.Background(), Submission{TaskType: "x", RiskTier: "red"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "orchestrator 422: amount exceeds credit limit", apiErr.Error())
	assert.False(t, apiErr.Temporary())
	assert.True(t, (&APIError{Status: 503}).Temporary())
	assert.True(t, (&APIError{Status: 429}).Temporary())
}

func TestExecute_NeverRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Execute(context.Background(), Submission{TaskType: "x"})
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestExecute_MissingReceipt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Execute(context.Background(), Submission{TaskType: "x"})
	assert.ErrorIs(t, err, ErrMissingReceipt)
}

func TestExecute_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Execute(context.Background(), Submission{TaskType: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode receipt")
}

func TestExecute_ContextDeadline(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(srv.URL).Execute(ctx, Submission{TaskType: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
