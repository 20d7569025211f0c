package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPIIKey(t *testing.T) {
	pii := []string{
		"email", "user_email", "Email-Address", "phone", "phone_number", "mobile",
		"first_name", "LastName", "full name", "ssn", "dob", "date_of_birth",
		"ip", "name", "recipient", "payee", "participants", "api_token", "password",
		"card.number", "iban",
	}
	for _, k := range pii {
		assert.True(t, IsPIIKey(k), k)
	}

	safe := []string{
		"action_type", "tier", "status", "failure_code", "correlation_id",
		"duration_ms", "stage", "from", "to", "event", "ip_count_bucket", "desk",
	}
	for _, k := range safe {
		assert.False(t, IsPIIKey(k), k)
	}
}

func TestScrub_DropsKeysAndRedactsValues(t *testing.T) {
	in := map[string]any{
		"action_type": "invoice.send_invoice",
		"email":       "a@b.co",
		"note":        "reach me at jane.doe@example.com or +1 (555) 123-4567",
		"due":         "2026-10-16",
		"nested": map[string]any{
			"phone":  "555-123-4567",
			"status": "sent",
		},
		"list":  []any{"ops@example.org", 3, map[string]any{"name": "Jane"}},
		"tags":  []string{"finance", "x@y.io"},
		"count": 7,
	}
	out := Scrub(in)

	assert.Equal(t, "invoice.send_invoice", out["action_type"])
	assert.NotContains(t, out, "email")
	assert.Equal(t, "reach me at [REDACTED] or [REDACTED]", out["note"])
	assert.Equal(t, "2026-10-16", out["due"], "dates are not phone numbers")
	assert.Equal(t, 7, out["count"])

	nested, ok := out["nested"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, nested, "phone")
	assert.Equal(t, "sent", nested["status"])

	list, ok := out["list"].([]any)
	require.True(t, ok)
	assert.Equal(t, Redacted, list[0])
	assert.Equal(t, 3, list[1])
	assert.Empty(t, list[2])

	assert.Equal(t, []string{"finance", Redacted}, out["tags"])
}

func TestScrub_DoesNotMutateInput(t *testing.T) {
	in := map[string]any{"email": "a@b.co", "status": "ok"}
	_ = Scrub(in)
	assert.Len(t, in, 2)
	assert.Equal(t, "a@b.co", in["email"])
}

func TestScrub_Nil(t *testing.T) {
	assert.Nil(t, Scrub(nil))
	assert.Empty(t, Scrub(map[string]any{}))
}
