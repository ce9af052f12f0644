package rca

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bull/rca-code-retrieval/internal/retrieval"
)

// analyzeRequest accepts either a structured request or a bare error log.
type analyzeRequest struct {
	Request
	ErrorLog string `json:"error_log,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewAnalyzeHandler serves POST /analyze. A bare error_log becomes both the
// query and a single log entry.
func NewAnalyzeHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
			return
		}

		var body analyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
			return
		}

		req := body.Request
		if body.ErrorLog != "" {
			req.Logs = append(req.Logs, retrieval.LogEntry{Message: body.ErrorLog})
			if req.Query == "" {
				req.Query = body.ErrorLog
			}
		}

		resp, err := svc.Analyze(r.Context(), req)
		if errors.Is(err, ErrEmptyQuery) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
