package handlers

import (
	"log/slog"
	"net/http"
	"time"

	ferrors "git.home.luguber.info/inful/cicdsim/internal/foundation/errors"
	"git.home.luguber.info/inful/cicdsim/internal/server/responses"
	"git.home.luguber.info/inful/cicdsim/internal/version"
)

// Runtime exposes the agent state reported by the health endpoint.
type Runtime interface {
	StartTime() time.Time
	Roots() []string
	Builds() int
	ActiveBuilds() int
}

// MonitoringHandlers contains monitoring-related HTTP handlers.
type MonitoringHandlers struct {
	runtime      Runtime
	errorAdapter *ferrors.HTTPErrorAdapter
	now          func() time.Time
}

func NewMonitoringHandlers(runtime Runtime, logger *slog.Logger) *MonitoringHandlers {
	return &MonitoringHandlers{
		runtime:      runtime,
		errorAdapter: ferrors.NewHTTPErrorAdapter(logger),
		now:          time.Now,
	}
}

// HandleHealthCheck handles the health check endpoint.
func (h *MonitoringHandlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.runtime == nil {
		h.errorAdapter.WriteErrorResponse(w, r, ferrors.DaemonError("agent not available").Build())
		return
	}

	now := h.now()
	health := responses.HealthResponse{
		Status:       "healthy",
		Timestamp:    now.UTC(),
		Version:      version.Version,
		Uptime:       now.Sub(h.runtime.StartTime()).Seconds(),
		Roots:        h.runtime.Roots(),
		Builds:       h.runtime.Builds(),
		ActiveBuilds: h.runtime.ActiveBuilds(),
	}
	if err := writeJSONPretty(w, r, http.StatusOK, health); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r,
			ferrors.WrapError(err, ferrors.CategoryInternal, "failed to write health response").Build())
	}
}
