package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/itchan-dev/accounts/shared/api"
	"github.com/itchan-dev/accounts/shared/logger"
	"github.com/itchan-dev/accounts/shared/utils"
)

// Health reports 200 when the database answers a ping and 503 otherwise.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.health.Ping(ctx); err != nil {
		logger.Log.Warn("health check failed", "error", err)
		utils.WriteJSON(w, http.StatusServiceUnavailable, api.HealthResponse{Status: "database unavailable"})
		return
	}

	utils.WriteJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
}
