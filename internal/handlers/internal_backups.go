package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/partner-scorecard/api/internal/platform/auth"
	"github.com/partner-scorecard/api/internal/platform/requestctx"
	"github.com/partner-scorecard/api/internal/services"
)

const defaultBackupTrigger = "scheduler"

// InternalBackupHandlers serves the scheduler entry point under /internal. OIDC verification is
// applied by the router group.
type InternalBackupHandlers struct {
	exports services.ExportService
}

// NewInternalBackupHandlers constructs InternalBackupHandlers.
func NewInternalBackupHandlers(exports services.ExportService) *InternalBackupHandlers {
	return &InternalBackupHandlers{exports: exports}
}

// Routes registers /internal/backups:run.
func (h *InternalBackupHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/backups:run", h.runBackup)
}

type runBackupRequest struct {
	Trigger string `json:"trigger" validate:"omitempty,max=64,alphanumunicode"`
}

type backupRunPayload struct {
	RunID       string `json:"runId"`
	Bucket      string `json:"bucket"`
	Object      string `json:"object"`
	Partners    int    `json:"partners"`
	Evaluations int    `json:"evaluations"`
	DownloadURL string `json:"downloadUrl,omitempty"`
	URLExpires  string `json:"urlExpires,omitempty"`
	ExportedAt  string `json:"exportedAt"`
}

func (h *InternalBackupHandlers) runBackup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.exports == nil {
		writeServiceUnavailable(ctx, w, "backup")
		return
	}
	var req runBackupRequest
	if !decodeOptionalRequest(w, r, &req) {
		return
	}

	trigger := strings.TrimSpace(req.Trigger)
	if trigger == "" {
		trigger = defaultBackupTrigger
	}
	actor := ""
	if identity, ok := auth.ServiceIdentityFromContext(ctx); ok {
		actor = identity.Email
	}

	run, err := h.exports.RunScheduledBackup(ctx, services.RunBackupCommand{Trigger: trigger, Actor: actor})
	if err != nil {
		requestctx.Logger(ctx).Error("scheduled backup failed", zap.String("trigger", trigger), zap.Error(err))
		writeExportError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, backupRunPayload{
		RunID:       run.RunID,
		Bucket:      run.Bucket,
		Object:      run.Object,
		Partners:    run.Partners,
		Evaluations: run.Evaluations,
		DownloadURL: run.DownloadURL,
		URLExpires:  formatTime(run.URLExpires),
		ExportedAt:  formatTime(run.ExportedAt),
	})
}
