package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/swayz032/aspire-runway/pkg/failures"
)

// ProblemDetail is an RFC 7807 error body. Every error response of the API
// uses it.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	// TraceID echoes the X-Request-ID of the request.
	TraceID string `json:"trace_id,omitempty"`
	// FailureCode is the taxonomy code when the problem maps to one.
	FailureCode string `json:"failure_code,omitempty"`
}

func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

func problemType(status int) string {
	return fmt.Sprintf("https://runway.errors.local/%d", status)
}

// WriteErrorR writes a problem detail enriched with the request path and id.
func WriteErrorR(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	writeProblem(w, &ProblemDetail{
		Type:     problemType(status),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
		TraceID:  w.Header().Get("X-Request-ID"),
	})
}

func writeProblem(w http.ResponseWriter, p *ProblemDetail) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// WriteBadRequest writes a 400 response.
func WriteBadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", detail)
}

// WriteNotFound writes a 404 response.
func WriteNotFound(w http.ResponseWriter, r *http.Request, detail string) {
	WriteErrorR(w, r, http.StatusNotFound, "Not Found", detail)
}

// WriteMethodNotAllowed writes a 405 response.
func WriteMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteErrorR(w, r, http.StatusMethodNotAllowed, "Method Not Allowed", "The HTTP method is not supported for this endpoint")
}

// WriteConflict writes a 409 response.
func WriteConflict(w http.ResponseWriter, r *http.Request, detail string) {
	WriteErrorR(w, r, http.StatusConflict, "Conflict", detail)
}

// WriteUnprocessable writes a 422 response.
func WriteUnprocessable(w http.ResponseWriter, r *http.Request, detail string) {
	WriteErrorR(w, r, http.StatusUnprocessableEntity, "Unprocessable Entity", detail)
}

// WriteUnauthorized writes a 401 response with a Bearer challenge.
func WriteUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="runway"`)
	WriteErrorR(w, r, http.StatusUnauthorized, "Unauthorized", detail)
}

// WriteForbidden writes a 403 response. code is the taxonomy code, if any.
func WriteForbidden(w http.ResponseWriter, r *http.Request, detail, code string) {
	writeProblem(w, &ProblemDetail{
		Type:        problemType(http.StatusForbidden),
		Title:       "Forbidden",
		Status:      http.StatusForbidden,
		Detail:      detail,
		Instance:    r.URL.Path,
		TraceID:     w.Header().Get("X-Request-ID"),
		FailureCode: code,
	})
}

// WriteTooManyRequests writes a 429 response with a Retry-After header.
func WriteTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs))
	writeProblem(w, &ProblemDetail{
		Type:        problemType(http.StatusTooManyRequests),
		Title:       "Too Many Requests",
		Status:      http.StatusTooManyRequests,
		Detail:      "Rate limit exceeded. Retry after the specified interval.",
		TraceID:     w.Header().Get("X-Request-ID"),
		FailureCode: failures.RateLimited,
	})
}

// WriteInternal writes a 500 response. err is logged and never sent to the
// client.
func WriteInternal(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.ErrorContext(r.Context(), "internal server error",
		"error", err,
		"path", r.URL.Path,
		"request_id", w.Header().Get("X-Request-ID"),
	)
	WriteErrorR(w, r, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred. Please try again later.")
}
