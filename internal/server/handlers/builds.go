package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	ferrors "git.home.luguber.info/inful/cicdsim/internal/foundation/errors"
	"git.home.luguber.info/inful/cicdsim/internal/server/responses"
	"git.home.luguber.info/inful/cicdsim/internal/status"
	"git.home.luguber.info/inful/cicdsim/internal/version"
)

// BuildReader is the read-only view of the status store the handlers need.
type BuildReader interface {
	Get(id string) (status.Record, error)
	Snapshot() map[string]status.Record
}

// BuildHandlers serves build records.
type BuildHandlers struct {
	store        BuildReader
	errorAdapter *ferrors.HTTPErrorAdapter
}

func NewBuildHandlers(store BuildReader, logger *slog.Logger) *BuildHandlers {
	return &BuildHandlers{
		store:        store,
		errorAdapter: ferrors.NewHTTPErrorAdapter(logger),
	}
}

// HandleIndex answers the liveness probe.
func (h *BuildHandlers) HandleIndex(w http.ResponseWriter, r *http.Request) {
	resp := responses.IndexResponse{Message: "CI/CD Simulator is running. Go to /builds to see status.", Version: version.Version}
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r,
			ferrors.WrapError(err, ferrors.CategoryInternal, "failed to write index response").Build())
	}
}

// HandleListBuilds returns a point-in-time snapshot of every build keyed by id.
func (h *BuildHandlers) HandleListBuilds(w http.ResponseWriter, r *http.Request) {
	resp := responses.BuildsResponse(h.store.Snapshot())
	if err := writeJSONPretty(w, r, http.StatusOK, resp); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r,
			ferrors.WrapError(err, ferrors.CategoryInternal, "failed to encode builds").Build())
	}
}

// HandleGetBuild returns one build record.
func (h *BuildHandlers) HandleGetBuild(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.store.Get(id)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if err := writeJSONPretty(w, r, http.StatusOK, rec); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r,
			ferrors.WrapError(err, ferrors.CategoryInternal, "failed to encode build").
				WithContext("build_id", id).Build())
	}
}
