package failures

import "sync"

// Well-known codes referenced by the pipeline.
const (
	TelemetryDropped     = "F-001"
	LayoutDiscarded      = "F-002"
	BackendUnavailable   = "F-003"
	BackendRejected      = "F-004"
	BackendServerError   = "F-005"
	ExecutionTimeout     = "F-006"
	PolicyDenied         = "F-007"
	UnknownTier          = "F-008"
	UnknownCapability    = "F-009"
	PreflightFailed      = "F-010"
	IllegalTransition    = "F-011"
	InternalInvariant    = "F-012"
	AuthorityExpired     = "F-013"
	ReceiptMissing       = "F-014"
	LedgerWriteFailed    = "F-015"
	RateLimited          = "F-016"
	AuthenticationFailed = "F-017"
	TenantIsolation      = "F-018"
	SensitiveDataLeak    = "F-019"
	CancelledByUser      = "F-020"
)

const securityBlocked = "This action was blocked to protect your account."

var builtinCodes = []Code{
	{Code: TelemetryDropped, Severity: SeverityInfo, Diagnostic: "telemetry sink delivery failed", Retryable: true},
	{Code: LayoutDiscarded, Severity: SeverityWarning, Diagnostic: "persisted layout failed validation or version check; defaults restored"},
	{Code: BackendUnavailable, Severity: SeverityError, UserMessage: "We couldn't reach the server. Check your connection and try again.", Diagnostic: "orchestrator transport error", Retryable: true},
	{Code: BackendRejected, Severity: SeverityError, UserMessage: "The request was rejected. Review the details and try again.", Diagnostic: "orchestrator returned a 4xx response"},
	{Code: BackendServerError, Severity: SeverityError, UserMessage: "Something went wrong on our side. Please try again.", Diagnostic: "orchestrator returned a 5xx response", Retryable: true},
	{Code: ExecutionTimeout, Severity: SeverityError, UserMessage: "The action took too long and was stopped. Please try again.", Diagnostic: "execution context deadline exceeded or cancelled", Retryable: true},
	{Code: PolicyDenied, Severity: SeverityWarning, UserMessage: "This action was not approved.", Diagnostic: "action denied by reviewer"},
	{Code: UnknownTier, Severity: SeverityWarning, UserMessage: "This action isn't available.", Diagnostic: "action carried an unrecognized risk tier; denied fail-closed"},
	{Code: UnknownCapability, Severity: SeverityWarning, UserMessage: "This action isn't available.", Diagnostic: "capability or verb not declared in registry"},
	{Code: PreflightFailed, Severity: SeverityWarning, UserMessage: "Some required details are missing or invalid.", Diagnostic: "payload failed lens or schema preflight"},
	{Code: IllegalTransition, Severity: SeverityWarning, UserMessage: "That step isn't available right now.", Diagnostic: "runway rejected an illegal state transition"},
	{Code: InternalInvariant, Severity: SeverityError, UserMessage: "Something went wrong. Please try again.", Diagnostic: "recovered from an internal invariant violation"},
	{Code: AuthorityExpired, Severity: SeverityWarning, UserMessage: "The approval window expired.", Diagnostic: "authority request timed out before a decision", Retryable: true},
	{Code: ReceiptMissing, Severity: SeverityError, UserMessage: "The action may not have completed. Check its status before retrying.", Diagnostic: "orchestrator success response carried no receipt id"},
	{Code: LedgerWriteFailed, Severity: SeverityError, Diagnostic: "result ledger write failed", Retryable: true},
	{Code: RateLimited, Severity: SeverityWarning, UserMessage: "You're doing that too often. Please wait a moment.", Diagnostic: "request rate limit exceeded", Retryable: true},
	{Code: AuthenticationFailed, Severity: SeverityError, UserMessage: "Your session has expired. Please sign in again.", Diagnostic: "orchestrator returned 401 or 403"},
	{Code: TenantIsolation, Severity: SeverityCritical, UserMessage: securityBlocked, Diagnostic: "tenant isolation violation: suite or office scope mismatch", Retryable: false},
	{Code: SensitiveDataLeak, Severity: SeverityCritical, UserMessage: securityBlocked, Diagnostic: "sensitive data leak detected in outbound payload", Retryable: false},
	{Code: CancelledByUser, Severity: SeverityInfo, UserMessage: "Action cancelled.", Diagnostic: "user cancelled the runway"},
}

var (
	defaultOnce     sync.Once
	defaultTaxonomy *Taxonomy
)

// Default returns the built-in taxonomy.
func Default() *Taxonomy {
	defaultOnce.Do(func() {
		t, err := NewTaxonomy(builtinCodes...)
		if err != nil {
			panic(err)
		}
		defaultTaxonomy = t
	})
	return defaultTaxonomy
}
