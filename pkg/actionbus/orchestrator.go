package actionbus

import (
	"context"
	"errors"
	"net/http"

	"github.com/swayz032/aspire-runway/pkg/failures"
	"github.com/swayz032/aspire-runway/pkg/orchestrator"
)

// OrchestratorExecutor executes actions as orchestrator intents and maps
// transport and status errors onto failure codes.
type OrchestratorExecutor struct {
	client   *orchestrator.Client
	taxonomy *failures.Taxonomy
}

// NewOrchestratorExecutor wraps client. A nil taxonomy uses the built-in one.
func NewOrchestratorExecutor(client *orchestrator.Client, taxonomy *failures.Taxonomy) *OrchestratorExecutor {
	if taxonomy == nil {
		taxonomy = failures.Default()
	}
	return &OrchestratorExecutor{client: client, taxonomy: taxonomy}
}

func (x *OrchestratorExecutor) Execute(ctx context.Context, a Action) (Outcome, error) {
	rec, err := x.client.Execute(ctx, orchestrator.Submission{
		TaskType:      a.TaskType(),
		Params:        a.Payload,
		ActorID:       a.ActorID,
		RiskTier:      string(a.Tier),
		CorrelationID: a.ID,
		SuiteID:       a.SuiteID,
		OfficeID:      a.OfficeID,
	})
	if err != nil {
		return Outcome{}, x.taxonomy.Wrap(classifyOrchestratorError(err), err)
	}
	return Outcome{ReceiptID: rec.ReceiptID, Data: rec.Data}, nil
}

func classifyOrchestratorError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return failures.ExecutionTimeout
	}
	if errors.Is(err, orchestrator.ErrMissingReceipt) {
		return failures.ReceiptMissing
	}
	var apiErr *orchestrator.APIError
	if !errors.As(err, &apiErr) {
		return failures.BackendUnavailable
	}
	switch {
	case apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden:
		return failures.AuthenticationFailed
	case apiErr.Status == http.StatusTooManyRequests:
		return failures.RateLimited
	case apiErr.Status >= 500:
		return failures.BackendServerError
	default:
		return failures.BackendRejected
	}
}
