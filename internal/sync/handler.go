package sync

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/buildpoint/buildpoint/internal/platform/httpx"
)

// Handler exposes the offline reconciliation endpoint.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	maxActions int
}

// NewHandler constructs a Handler. maxActions caps the batch size; zero
// falls back to 50.
func NewHandler(logger *slog.Logger, service *Service, maxActions int) *Handler {
	if maxActions <= 0 {
		maxActions = 50
	}
	return &Handler{logger: logger, service: service, maxActions: maxActions}
}

// MountRoutes registers the sync route. Sync bursts happen when a device
// regains connectivity, so the limit is per IP and generous per minute.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(30, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Post("/sync", h.sync)
	})
}

type syncRequest struct {
	Actions []Action `json:"actions"`
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if len(req.Actions) == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "actions required")
		return
	}
	if len(req.Actions) > h.maxActions {
		httpx.Problem(w, http.StatusRequestEntityTooLarge, "Batch Too Large",
			fmt.Sprintf("batch of %d exceeds limit of %d", len(req.Actions), h.maxActions))
		return
	}

	start := time.Now()
	result := h.service.Process(r.Context(), req.Actions)
	h.logger.Info("sync batch processed",
		slog.Int("processed", result.Processed),
		slog.Int("successful", result.Successful),
		slog.Int("failed", result.Failed),
		slog.Duration("duration", time.Since(start)),
	)
	httpx.JSON(w, http.StatusOK, result)
}
