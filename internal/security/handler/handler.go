// Package handler serves the operator API: security stats, manual IP
// blocks and compliance reports.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"edgeguard/internal/security/models"
	"edgeguard/internal/security/service/blocking"
	"edgeguard/pkg/platform/httputil"
	"edgeguard/pkg/platform/middleware/admin"
	"edgeguard/pkg/platform/validation"
	"edgeguard/pkg/requestcontext"
)

// Reports answers aggregate queries over the audit log.
type Reports interface {
	QueryMetrics(ctx context.Context, r models.TimeRange) (*models.SecurityMetrics, error)
	GenerateComplianceReport(ctx context.Context, kind models.ReportKind, r models.TimeRange) (*models.ComplianceReport, error)
}

// Blocks manages the IP block registry.
type Blocks interface {
	Block(ctx context.Context, p blocking.BlockParams) (models.BlockEntry, error)
	Unblock(ctx context.Context, key, actor string) (bool, error)
	List(ctx context.Context) ([]models.BlockEntry, error)
}

type Handler struct {
	reports Reports
	blocks  Blocks
	logger  *slog.Logger
}

func New(reports Reports, blocks Blocks, logger *slog.Logger) *Handler {
	return &Handler{
		reports: reports,
		blocks:  blocks,
		logger:  logger,
	}
}

func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/security/stats", h.HandleStats)
	r.Post("/ip/block", h.HandleBlock)
	r.Post("/ip/unblock", h.HandleUnblock)
	r.Get("/ip/blocked", h.HandleListBlocked)
	r.Post("/compliance/report", h.HandleComplianceReport)
}

// HandleStats implements GET /security/stats?hours=N (1..720, default 24).
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	hours, err := validation.ParseIntInRange("hours", r.URL.Query().Get("hours"),
		validation.DefaultStatsHours, 1, validation.MaxStatsHours)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid stats window",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}

	metrics, err := h.reports.QueryMetrics(ctx, models.LastHours(requestcontext.Now(ctx), hours))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to query security metrics",
			"error", err,
			"hours", hours,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, metrics)
}

// HandleBlock implements POST /ip/block.
// Input: { "ip": "203.0.113.7", "reason": "...", "durationHours": 24 }
func (h *Handler) HandleBlock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	r.Body = http.MaxBytesReader(w, r.Body, validation.MaxBodySize)

	req, ok := httputil.DecodeAndPrepare[BlockRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	entry, err := h.blocks.Block(ctx, blocking.BlockParams{
		Key:      req.IP,
		Reason:   req.Reason,
		Source:   models.BlockSourceAdmin,
		Duration: req.Duration(),
		Actor:    admin.Actor(ctx),
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to block ip",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &BlockResponse{
		Blocked:   true,
		IP:        entry.Key,
		ExpiresAt: entry.ExpiresAt,
	})
}

// HandleUnblock implements POST /ip/unblock. Unblocking an address that is
// not blocked succeeds with was_blocked=false.
func (h *Handler) HandleUnblock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	r.Body = http.MaxBytesReader(w, r.Body, validation.MaxBodySize)

	req, ok := httputil.DecodeAndPrepare[UnblockRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	removed, err := h.blocks.Unblock(ctx, req.IP, admin.Actor(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to unblock ip",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &UnblockResponse{
		Unblocked:  true,
		IP:         req.IP,
		WasBlocked: removed,
	})
}

// HandleListBlocked implements GET /ip/blocked.
func (h *Handler) HandleListBlocked(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entries, err := h.blocks.List(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list blocks",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &BlockedListResponse{Blocked: entries, Count: len(entries)})
}

// HandleComplianceReport implements POST /compliance/report.
// Input: { "reportType": "pci_dss", "startDate": "...", "endDate": "..." }
func (h *Handler) HandleComplianceReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	r.Body = http.MaxBytesReader(w, r.Body, validation.MaxBodySize)

	req, ok := httputil.DecodeAndPrepare[ReportRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	report, err := h.reports.GenerateComplianceReport(ctx, models.ReportKind(req.ReportType), req.Range())
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to generate compliance report",
			"error", err,
			"report_type", req.ReportType,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "compliance report generated",
		"event", "compliance_report_generated",
		"log_type", "audit",
		"report_id", report.ID,
		"report_type", report.ReportType,
		"actor", admin.Actor(ctx),
		"request_id", requestID,
	)
	httputil.WriteJSON(w, http.StatusOK, report)
}
