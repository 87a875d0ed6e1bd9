package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/groundwork-ai/groundwork/pkg/errs"
)

// errorBody is the JSON error envelope of every non-2xx response.
type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// statusFor maps the error taxonomy to HTTP status codes. Timed-out
// requests report 504 whether the client or the deadline cancelled.
func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindCancellation:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "kind", kind, "error", err)
	}
	writeJSON(w, status, errorBody{Kind: string(kind), Message: publicMessage(kind, err)})
}

// publicMessage decides what the client may see. Validation and
// not-found messages are crafted by our own handlers; everything else
// can carry upstream provider or driver detail, which stays in the
// server log.
func publicMessage(kind errs.Kind, err error) string {
	switch kind {
	case errs.KindValidation, errs.KindNotFound:
		return err.Error()
	case errs.KindCancellation:
		return "request cancelled or timed out"
	default:
		return "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("encoding response", "error", err)
	}
}
