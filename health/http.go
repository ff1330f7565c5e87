package health

import (
	"encoding/json"
	"net/http"
	"time"
)

// LivenessHandler answers 200 while the process runs.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("OK"))
	}
}

// ReadinessHandler answers 200 unless a check is unhealthy. Degraded is ready.
func ReadinessHandler(agg *Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := agg.CheckAll(r.Context())
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(statusCode(report.Status))
		_, _ = w.Write([]byte(report.Status.String()))
	}
}

// Response is the JSON body of the detailed endpoint.
type Response struct {
	Status  Status                   `json:"status"`
	Checked string                   `json:"checked"`
	Checks  map[string]CheckResponse `json:"checks"`
}

// CheckResponse is one check in Response.
type CheckResponse struct {
	Status   Status         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Duration string         `json:"duration"`
	Details  map[string]any `json:"details,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// DetailedHandler answers with every check result as JSON.
func DetailedHandler(agg *Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := agg.CheckAll(r.Context())

		resp := Response{
			Status:  report.Status,
			Checked: report.Checked.UTC().Format(time.RFC3339),
			Checks:  make(map[string]CheckResponse, len(report.Results)),
		}
		for name, res := range report.Results {
			cr := CheckResponse{
				Status:   res.Status,
				Message:  res.Message,
				Duration: res.Duration.String(),
				Details:  res.Details,
			}
			if res.Err != nil {
				cr.Error = res.Err.Error()
			}
			resp.Checks[name] = cr
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode(report.Status))
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// RegisterHandlers mounts /healthz, /readyz and /health on mux.
func RegisterHandlers(mux *http.ServeMux, agg *Aggregator) {
	mux.HandleFunc("/healthz", LivenessHandler())
	mux.HandleFunc("/readyz", ReadinessHandler(agg))
	mux.HandleFunc("/health", DetailedHandler(agg))
}

func statusCode(s Status) int {
	if s == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}
