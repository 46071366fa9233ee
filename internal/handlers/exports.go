package handlers

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	domain "github.com/partner-scorecard/api/internal/domain"
	"github.com/partner-scorecard/api/internal/platform/auth"
	"github.com/partner-scorecard/api/internal/platform/httpx"
	"github.com/partner-scorecard/api/internal/services"
)

// ExportHandlers serves CSV exports and backup downloads under /exports.
type ExportHandlers struct {
	exports services.ExportService
}

// NewExportHandlers constructs ExportHandlers.
func NewExportHandlers(exports services.ExportService) *ExportHandlers {
	return &ExportHandlers{exports: exports}
}

// Routes registers export endpoints. The group is already authenticated.
func (h *ExportHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	approved := r.With(auth.RequireApproved())
	approved.With(
		auth.RequirePermission("canExportData", func(p domain.Permission) bool { return p.CanExportData }),
	).Get("/partners.csv", h.partnersCSV)
	approved.With(
		auth.RequirePermission("canBackupData", func(p domain.Permission) bool { return p.CanBackupData }),
	).Get("/backup", h.backup)
}

func (h *ExportHandlers) partnersCSV(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.exports == nil {
		writeServiceUnavailable(ctx, w, "export")
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	file, err := h.exports.PartnersCSV(ctx, services.PartnersCSVCommand{
		Actor:          caller,
		AcceptLanguage: r.Header.Get("Accept-Language"),
	})
	if err != nil {
		writeExportError(ctx, w, err)
		return
	}
	writeDownload(w, file)
}

func (h *ExportHandlers) backup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.exports == nil {
		writeServiceUnavailable(ctx, w, "export")
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	file, err := h.exports.BackupFile(ctx, services.BackupFileCommand{
		Actor:  caller,
		Format: r.URL.Query().Get("format"),
	})
	if err != nil {
		writeExportError(ctx, w, err)
		return
	}
	writeDownload(w, file)
}

func writeDownload(w http.ResponseWriter, file services.ExportFile) {
	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Body)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Body)
}

func writeExportError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrExportInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrExportForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "insufficient permissions for export", http.StatusForbidden))
	case errors.Is(err, services.ErrBackupNotConfigured):
		httpx.WriteError(ctx, w, httpx.NewError("backup_not_configured", "backup storage is not configured", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrBackupInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("backup_invalid", fmt.Sprintf("backup rejected: %v", err), http.StatusInternalServerError))
	default:
		writeUnexpectedError(ctx, w, "export", err)
	}
}
