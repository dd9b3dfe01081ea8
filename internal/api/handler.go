// Package api exposes lineage queries and reconciliation over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"catalog-lineage/internal/domain"
)

// maxReconcileBodyBytes caps the size of one ingestion batch.
const maxReconcileBodyBytes = 32 << 20

// LineageQuerier answers lineage queries.
type LineageQuerier interface {
	GetLineage(ctx context.Context, req domain.LineageRequest) (*domain.LineageResult, error)
}

// Reconciler applies ingestion batches and lists their reports.
type Reconciler interface {
	ReconcileResource(ctx context.Context, req domain.ReconcileRequest) (*domain.ReconciliationReport, error)
	ListRuns(ctx context.Context, workspaceID, resourceID string, page domain.PageRequest) ([]domain.ReconciliationReport, int64, error)
}

// Pinger checks store connectivity. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handler serves the lineage HTTP API.
type Handler struct {
	lineage    LineageQuerier
	reconciler Reconciler
	health     Pinger
	logger     *slog.Logger
}

// NewHandler creates a new Handler. health may be nil.
func NewHandler(lineage LineageQuerier, reconciler Reconciler, health Pinger, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		lineage:    lineage,
		reconciler: reconciler,
		health:     health,
		logger:     logger.With("component", "api"),
	}
}

// GetLineage handles GET /v1/workspaces/{workspaceID}/lineage.
// Missing depth parameters default to 1.
func (h *Handler) GetLineage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pred, err := depthParam(q.Get("predecessor_depth"), "predecessor_depth")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	succ, err := depthParam(q.Get("successor_depth"), "successor_depth")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.lineage.GetLineage(r.Context(), domain.LineageRequest{
		WorkspaceID:      chi.URLParam(r, "workspaceID"),
		AssetID:          q.Get("asset_id"),
		PredecessorDepth: pred,
		SuccessorDepth:   succ,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lineageToAPI(res))
}

// Reconcile handles POST /v1/workspaces/{workspaceID}/resources/{resourceID}/reconcile.
// Degraded batches still answer 200; the report carries the failures. A
// cancelled batch answers 504 with its INCOMPLETE report attached.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var body ReconcileRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReconcileBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Code: CodeInvalidArgument, Message: "batch too large"})
			return
		}
		if errors.Is(err, io.EOF) {
			writeError(w, r, h.logger, domain.ErrValidation("request body is required"))
			return
		}
		writeError(w, r, h.logger, domain.ErrValidation("invalid request body: %v", err))
		return
	}

	req := body.toDomain(chi.URLParam(r, "workspaceID"), chi.URLParam(r, "resourceID"))
	report, err := h.reconciler.ReconcileResource(r.Context(), req)
	if err != nil && report != nil && domain.IsCancelled(err) {
		status, code := httpStatusFromDomainError(err)
		partial := reportToAPI(report)
		writeJSON(w, status, ErrorResponse{Code: code, Message: err.Error(), Report: &partial})
		return
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, reportToAPI(report))
}

// ListReconciliations handles GET .../resources/{resourceID}/reconciliations.
func (h *Handler) ListReconciliations(w http.ResponseWriter, r *http.Request) {
	page := domain.PageRequest{PageToken: r.URL.Query().Get("page_token")}
	if v := r.URL.Query().Get("max_results"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, h.logger, domain.ErrValidation("max_results must be a non-negative integer"))
			return
		}
		page.MaxResults = n
	}

	runs, total, err := h.reconciler.ListRuns(r.Context(), chi.URLParam(r, "workspaceID"), chi.URLParam(r, "resourceID"), page)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := ListReconciliationsResponse{
		Data:          make([]ReconciliationReport, len(runs)),
		Total:         total,
		NextPageToken: domain.NextPageToken(page.Offset(), page.Limit(), total),
	}
	for i := range runs {
		out.Data[i] = reportToAPI(&runs[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.PingContext(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func depthParam(v, name string) (int, error) {
	if v == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, domain.ErrValidation("%s must be an integer", name)
	}
	return n, nil
}
