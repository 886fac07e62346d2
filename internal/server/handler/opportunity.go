package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/termarb/internal/service"
)

// OpportunityHandler serves the latest detection result.
type OpportunityHandler struct {
	latest LatestSource
}

// NewOpportunityHandler creates an OpportunityHandler.
func NewOpportunityHandler(latest LatestSource) *OpportunityHandler {
	return &OpportunityHandler{latest: latest}
}

// List returns every maturity of the latest cycle.
// GET /api/opportunities
func (h *OpportunityHandler) List(w http.ResponseWriter, r *http.Request) {
	snap := h.latest.Latest()
	resp := map[string]any{
		"run_id":     snap.RunID,
		"count":      snap.Set.Count(),
		"maturities": service.ViewsOf(snap.Set),
	}
	if !snap.DetectedAt.IsZero() {
		resp["detected_at"] = snap.DetectedAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get returns one maturity bucket.
// GET /api/opportunities/{maturity}
func (h *OpportunityHandler) Get(w http.ResponseWriter, r *http.Request) {
	maturity, err := strconv.ParseInt(r.PathValue("maturity"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "maturity must be unix seconds")
		return
	}
	snap := h.latest.Latest()
	opps, ok := snap.Set[maturity]
	if !ok {
		writeError(w, http.StatusNotFound, "maturity not found")
		return
	}
	views := make([]service.OpportunityView, 0, len(opps))
	for _, o := range opps {
		views = append(views, service.ViewOf(o))
	}
	writeJSON(w, http.StatusOK, service.MaturityView{Maturity: maturity, Opportunities: views})
}
