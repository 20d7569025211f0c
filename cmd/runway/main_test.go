package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/swayz032/aspire-runway/pkg/actionbus"
	"github.com/swayz032/aspire-runway/pkg/auth"
	"github.com/swayz032/aspire-runway/pkg/capabilities"
	"github.com/swayz032/aspire-runway/pkg/config"
	"github.com/swayz032/aspire-runway/pkg/failures"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCapabilitiesList_YAML(t *testing.T) {
	out, err := run(t, "capabilities", "list", "-o", "yaml")
	require.NoError(t, err)

	var entries []capabilities.Entry
	require.NoError(t, yaml.Unmarshal([]byte(out), &entries))
	assert.Len(t, entries, len(capabilities.Default().Entries()))
	assert.Equal(t, "conference_call", entries[0].ID)
}

func TestCapabilitiesList_DeskFilter(t *testing.T) {
	out, err := run(t, "caps", "list", "--desk", "finance", "-o", "json")
	require.NoError(t, err)

	var entries []capabilities.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.NotEmpty(t, entries)
	for _, e := range entries {
		assert.Equal(t, capabilities.DeskFinance, e.Desk)
	}
}

func TestCapabilitiesShow(t *testing.T) {
	out, err := run(t, "capabilities", "show", "invoice")
	require.NoError(t, err)
	assert.Contains(t, out, "send_invoice")
	assert.Contains(t, out, "recipient, amount, due_date")

	_, err = run(t, "capabilities", "show", "Invoice")
	assert.ErrorContains(t, err, "not declared")
}

func TestCapabilitiesSearch(t *testing.T) {
	out, err := run(t, "capabilities", "search", "INVOICE", "-o", "json")
	require.NoError(t, err)

	var matches []capabilities.Match
	require.NoError(t, json.Unmarshal([]byte(out), &matches))
	assert.Len(t, matches, 3)
}

func TestFailures(t *testing.T) {
	out, err := run(t, "failures", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "F-001")
	assert.Contains(t, out, "F-020")
	assert.Contains(t, out, "(silent)")

	out, err = run(t, "failures", "show", "F-007", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "user_message: This action was not approved.")

	_, err = run(t, "failures", "show", "F-100")
	assert.ErrorContains(t, err, "unknown failure code")
}

func TestRunwayEvents(t *testing.T) {
	out, err := run(t, "runway", "events", "authority_pending", "-o", "json")
	require.NoError(t, err)

	var rows []transitionRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Contains(t, rows, transitionRow{Event: "approve", Next: "authority_approved"})
	assert.Contains(t, rows, transitionRow{Event: "deny", Next: "cancelled"})

	_, err = run(t, "runway", "events", "hangar")
	assert.Error(t, err)
}

func TestRunwayWalk(t *testing.T) {
	out, err := run(t, "runway", "walk", "start_intent", "approve", "preflight_ok", "-o", "json")
	require.NoError(t, err)

	var steps []walkStep
	require.NoError(t, json.Unmarshal([]byte(out), &steps))
	require.Len(t, steps, 3)
	assert.True(t, steps[0].Accepted)
	assert.Equal(t, "preflight", string(steps[0].To))
	assert.False(t, steps[1].Accepted, "approve is not accepted in preflight")
	assert.Equal(t, "preflight", string(steps[1].To))
	assert.True(t, steps[2].Accepted)
	assert.Equal(t, "draft_creating", string(steps[2].To))

	_, err = run(t, "runway", "walk", "takeoff")
	assert.ErrorContains(t, err, "unknown runway event")
}

func TestUnknownOutputFormat(t *testing.T) {
	_, err := run(t, "failures", "list", "-o", "xml")
	assert.ErrorContains(t, err, "unknown output format")
}

const testSecret = "0123456789abcdef0123456789abcdef"

func testConfig() *config.Config {
	return &config.Config{
		Port:            "8080",
		Environment:     "test",
		LogLevel:        "INFO",
		LogFormat:       "text",
		DatabaseDriver:  "sqlite",
		DatabaseURL:     ":memory:",
		OrchestratorURL: "http://127.0.0.1:1",
		ExecTimeout:     time.Second,
		AuthorityTTL:    time.Minute,
		AuthSecret:      testSecret,
		TelemetryCohort: "test",
		LayoutStore:     "sqlite",
		RateLimitRPS:    100,
		RateLimitBurst:  100,
	}
}

func buildApp(t *testing.T, cfg *config.Config) *app {
	t.Helper()
	require.NoError(t, cfg.Validate())

	var logs bytes.Buffer
	logger := newLogger(&logs, cfg)
	a, err := build(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.close(ctx, logger)
	})
	return a
}

func TestBuild_ServesHealthz(t *testing.T) {
	a := buildApp(t, testConfig())

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/layout/s/o", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestToken_AuthorizesBuiltServer(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "runway.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("auth_secret: "+testSecret+"\n"), 0o600))

	out, err := run(t, "token", "-c", cfgPath, "--subject", "op-1", "--suite", "s", "--office", "o", "--approver")
	require.NoError(t, err)
	tok := strings.TrimSpace(out)

	keys, err := auth.NewHMACKeySet("", []byte(testSecret))
	require.NoError(t, err)
	p, err := auth.NewValidator(keys).Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "op-1", p.ID)
	assert.True(t, p.HasRole(auth.RoleApprover))

	a := buildApp(t, testConfig())
	req := httptest.NewRequest(http.MethodGet, "/v1/layout/s/o", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/layout/s/other", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestToken_RequiresSecret(t *testing.T) {
	wd, wdErr := os.Getwd()
	require.NoError(t, wdErr)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	_, err := run(t, "token", "--subject", "op-1", "--suite", "s")
	assert.ErrorContains(t, err, "auth_secret")
}

func TestBuild_WithoutSecretRefusesAPI(t *testing.T) {
	cfg := testConfig()
	cfg.AuthSecret = ""
	a := buildApp(t, cfg)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/capabilities", nil)
	req.Header.Set("Authorization", "Bearer anything")
	a.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Authentication not configured")
}

func TestClose_ExpiresWaitingActions(t *testing.T) {
	a := buildApp(t, testConfig())
	tk := a.bus.Submit(context.Background(), actionbus.Action{
		Capability: "invoice",
		Verb:       "send_invoice",
		SuiteID:    "s",
		Payload:    map[string]any{"recipient": "acme", "amount": 10.0, "due_date": "2026-11-01"},
	})
	_, done := tk.Result()
	require.False(t, done)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var logs bytes.Buffer
	a.close(ctx, slog.New(slog.NewTextHandler(&logs, nil)))

	res, done := tk.Result()
	require.True(t, done)
	assert.Equal(t, failures.AuthorityExpired, res.FailureCode)
	assert.Contains(t, logs.String(), "expired actions awaiting a decision")
}

func TestNewLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, &config.Config{LogFormat: "json", LogLevel: "WARN", Environment: "test"}).Info("hidden")
	assert.Empty(t, buf.String())

	newLogger(&buf, &config.Config{LogFormat: "json", LogLevel: "INFO", Environment: "test"}).Info("shown")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line[slog.MessageKey])
	assert.Equal(t, "runway", line["service"])
}
