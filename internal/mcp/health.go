package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const healthTimeout = 3 * time.Second

// HealthResponse is the JSON body of the /health endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Qdrant    string `json:"qdrant"`
	Sessions  int    `json:"sessions"`
	Timestamp string `json:"timestamp"`
}

// HealthChecker reports vector store connectivity. Implemented by storage.QdrantIndex.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// SessionCounter reports live conversation sessions. Implemented by retrieval.SessionStore.
type SessionCounter interface {
	Len() int
}

// NewHealthHandler creates an HTTP handler for the /health endpoint.
// It returns 503 when Qdrant cannot be reached. sessions may be nil.
func NewHealthHandler(store HealthChecker, sessions SessionCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		response := HealthResponse{
			Status:    "healthy",
			Qdrant:    "connected",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if sessions != nil {
			response.Sessions = sessions.Len()
		}

		status := http.StatusOK
		if err := store.Health(ctx); err != nil {
			response.Status = "unhealthy"
			response.Qdrant = "disconnected"
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(response)
	}
}
