package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tipjarhq/tipjar/service/stacks"
	"github.com/tipjarhq/tipjar/service/tips"
)

// statsResponse is the wire shape for GET /api/v1/stats. Amounts are in
// microSTX; formatted STX strings are included for display clients.
type statsResponse struct {
	Balance        uint64    `json:"balance"`
	BalanceSTX     string    `json:"balance_stx"`
	TipCount       uint64    `json:"tip_count"`
	TotalTipped    uint64    `json:"total_tipped"`
	TotalTippedSTX string    `json:"total_tipped_stx"`
	UpdatedAt      time.Time `json:"updated_at"`
	LastErr        string    `json:"last_err,omitempty"`
}

// handleListTips returns a handler that serves the cached tip feed,
// newest first.
// GET /api/v1/tips
func handleListTips(repo *tips.Repository, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := repo.Snapshot()
		writeJSON(w, snap, http.StatusOK)
	})
}

// handleGetTip returns a handler that serves a single tip by id from the
// cached feed. Ids outside the cached window report not found even when
// they exist on the ledger; clients needing older tips query the contract
// directly.
// GET /api/v1/tips/{id}
func handleGetTip(repo *tips.Repository, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
		if err != nil || id == 0 {
			logger.Debug("invalid tip id", "id", r.PathValue("id"))
			writeError(w, "invalid tip id", http.StatusBadRequest)
			return
		}

		snap := repo.Snapshot()
		for _, tip := range snap.Tips {
			if tip.ID == id {
				writeJSON(w, tip, http.StatusOK)
				return
			}
		}

		writeError(w, "tip not found", http.StatusNotFound)
	})
}

// handleGetStats returns a handler that serves aggregate contract state.
// GET /api/v1/stats
func handleGetStats(repo *tips.Repository, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := repo.Snapshot()
		writeJSON(w, statsFromSnapshot(snap), http.StatusOK)
	})
}

// handleRefresh returns a handler that invalidates the repository's
// caches so the next poll re-reads the ledger.
// POST /api/v1/refresh
func handleRefresh(repo *tips.Repository, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		repo.Refresh()
		logger.Info("cache refresh requested", "remote_addr", r.RemoteAddr)
		writeJSON(w, map[string]string{"status": "refreshing"}, http.StatusAccepted)
	})
}

func statsFromSnapshot(snap tips.Snapshot) statsResponse {
	return statsResponse{
		Balance:        snap.State.Balance,
		BalanceSTX:     stacks.FormatSTX(snap.State.Balance),
		TipCount:       snap.State.TipCount,
		TotalTipped:    snap.State.TotalTipped,
		TotalTippedSTX: stacks.FormatSTX(snap.State.TotalTipped),
		UpdatedAt:      snap.UpdatedAt,
		LastErr:        snap.LastErr,
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
