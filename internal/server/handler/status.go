package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/termarb/internal/service"
)

// ProfitSummer totals expected profit of submitted executions.
type ProfitSummer interface {
	SumExpectedProfit(ctx context.Context, since time.Time) (float64, error)
}

// LatestSource exposes the most recent detection result.
type LatestSource interface {
	Latest() service.Snapshot
}

// StatusInfo is the static part of the status response.
type StatusInfo struct {
	Mode      string
	Matcher   string
	Selection string
	DryRun    bool
	StartedAt time.Time
}

// StatusHandler serves GET /api/status.
type StatusHandler struct {
	info   StatusInfo
	latest LatestSource
	profit ProfitSummer
	logger *slog.Logger
}

// NewStatusHandler creates a StatusHandler. profit may be nil.
func NewStatusHandler(info StatusInfo, latest LatestSource, profit ProfitSummer, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{info: info, latest: latest, profit: profit, logger: logger}
}

// GetStatus reports runtime configuration and the last detection cycle.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	snap := h.latest.Latest()
	resp := map[string]any{
		"mode":           h.info.Mode,
		"matcher":        h.info.Matcher,
		"selection":      h.info.Selection,
		"dry_run":        h.info.DryRun,
		"uptime_seconds": int64(time.Since(h.info.StartedAt).Seconds()),
		"last_run_id":    snap.RunID,
		"opportunities":  snap.Set.Count(),
	}
	if !snap.DetectedAt.IsZero() {
		resp["last_detected_at"] = snap.DetectedAt.UTC().Format(time.RFC3339)
	}
	if h.profit != nil {
		sum, err := h.profit.SumExpectedProfit(r.Context(), time.Now().Add(-24*time.Hour))
		if err != nil {
			h.logger.WarnContext(r.Context(), "sum expected profit failed", slog.String("error", err.Error()))
		} else {
			resp["expected_profit_24h"] = sum
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
