// Package ingestion applies connector-produced metadata batches to the
// lineage graph store.
package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"catalog-lineage/internal/domain"
	"catalog-lineage/internal/retry"
)

// DefaultWorkers bounds concurrent entity upserts within one batch.
const DefaultWorkers = 8

// Config tunes reconciliation.
type Config struct {
	Workers int          // concurrent upserts per phase; <= 0 uses DefaultWorkers
	Retry   retry.Policy // per-entity retry on transient store failures
}

// ReconciliationService applies ingestion batches. Batches for the same
// (workspace, resource) are serialized; entities within a batch are
// upserted concurrently.
type ReconciliationService struct {
	store  domain.GraphWriter
	runs   domain.ReconciliationRunRepository
	cfg    Config
	locks  *resourceLocks
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewReconciliationService creates a new ReconciliationService. runs may be
// nil, in which case reports are only logged.
func NewReconciliationService(store domain.GraphWriter, runs domain.ReconciliationRunRepository, cfg Config, logger *slog.Logger) *ReconciliationService {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconciliationService{
		store:  store,
		runs:   runs,
		cfg:    cfg,
		locks:  newResourceLocks(),
		logger: logger.With("component", "reconciler"),
		tracer: otel.Tracer("catalog-lineage/ingestion"),
		now:    time.Now,
	}
}

// entity is one keyed upsert of a batch.
type entity struct {
	kind   domain.EntityKind
	key    string
	apply  func(ctx context.Context) error
	status domain.EntityStatus
}

// outcome accumulates entity results across concurrent workers.
type outcome struct {
	mu        sync.Mutex
	succeeded int
	skipped   int
	failures  []domain.EntityFailure
}

func (o *outcome) add(e *entity, attempts int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch e.status {
	case domain.EntityStatusSucceeded:
		o.succeeded++
	case domain.EntityStatusSkipped:
		o.skipped++
	case domain.EntityStatusDeadLettered:
		o.failures = append(o.failures, domain.EntityFailure{
			Kind: e.kind, Key: e.key, Attempts: attempts, Error: err.Error(),
		})
	}
}

// ReconcileResource applies req to the graph store and returns the batch
// report. Entity failures are recorded in the report, not returned. The
// error is non-nil only for invalid requests and for cancellation, in which
// case the returned report is INCOMPLETE and already-applied upserts are
// kept.
func (s *ReconciliationService) ReconcileResource(ctx context.Context, req domain.ReconcileRequest) (*domain.ReconciliationReport, error) {
	req, err := normalize(req)
	if err != nil {
		return nil, err
	}

	report := &domain.ReconciliationReport{
		ID:          domain.NewID(),
		WorkspaceID: req.WorkspaceID,
		ResourceID:  req.ResourceID,
		FullResync:  req.FullResync,
		State:       domain.BatchStatePending,
		StartedAt:   s.now().UTC(),
	}

	ctx, span := s.tracer.Start(ctx, "ingestion.ReconcileResource", trace.WithAttributes(
		attribute.String("lineage.workspace_id", req.WorkspaceID),
		attribute.String("lineage.resource_id", req.ResourceID),
		attribute.Bool("lineage.full_resync", req.FullResync),
		attribute.Int("lineage.entities", req.EntityCount()),
	))
	defer span.End()

	release, err := s.locks.acquire(ctx, lockKey(req.WorkspaceID, req.ResourceID))
	if err != nil {
		report.Skipped = req.EntityCount()
		report.PruneSkipped = req.FullResync
		return s.finishCancelled(ctx, span, report, err)
	}
	defer release()

	report.State = domain.BatchStateApplying
	s.logger.Info("reconciliation started",
		"run_id", report.ID,
		"workspace_id", req.WorkspaceID,
		"resource_id", req.ResourceID,
		"entities", req.EntityCount(),
		"full_resync", req.FullResync)

	out := &outcome{}
	assetPhase, childPhase := s.entities(req)
	s.runPhase(ctx, assetPhase, out)
	// Columns and links are applied only after every asset upsert settled.
	s.runPhase(ctx, childPhase, out)

	report.Succeeded = out.succeeded
	report.Skipped = out.skipped
	report.Failed = len(out.failures)
	report.Failures = out.failures

	if out.skipped > 0 {
		report.PruneSkipped = req.FullResync
		cause := ctx.Err()
		if cause == nil {
			cause = context.Canceled
		}
		return s.finishCancelled(ctx, span, report, cause)
	}

	switch {
	case report.Failed > 0:
		report.State = domain.BatchStatePartiallyFailed
		report.PruneSkipped = req.FullResync
		if req.FullResync {
			s.logger.Warn("pruning skipped: batch has dead-lettered entities",
				"run_id", report.ID, "resource_id", req.ResourceID, "failed", report.Failed)
		}
	case req.FullResync:
		if err := s.prune(ctx, req, report); err != nil {
			if isCancellation(err) {
				report.PruneSkipped = true
				return s.finishCancelled(ctx, span, report, err)
			}
			report.State = domain.BatchStatePartiallyFailed
		} else {
			report.State = domain.BatchStateReconciled
		}
	default:
		report.State = domain.BatchStateReconciled
	}

	s.finish(ctx, report)
	if report.Degraded() {
		span.SetStatus(codes.Error, "batch degraded")
	}
	return report, nil
}

// ListRuns returns the stored reports of a resource, newest first.
func (s *ReconciliationService) ListRuns(ctx context.Context, workspaceID, resourceID string, page domain.PageRequest) ([]domain.ReconciliationReport, int64, error) {
	if s.runs == nil {
		return nil, 0, nil
	}
	if err := domain.ValidateID("workspace id", workspaceID); err != nil {
		return nil, 0, err
	}
	if err := domain.ValidateID("resource id", resourceID); err != nil {
		return nil, 0, err
	}
	return s.runs.ListByResource(ctx, workspaceID, resourceID, page)
}

func (s *ReconciliationService) entities(req domain.ReconcileRequest) (assets, children []*entity) {
	ws, res := req.WorkspaceID, req.ResourceID
	for i := range req.Assets {
		a := req.Assets[i]
		assets = append(assets, &entity{kind: domain.EntityKindAsset, key: a.ID,
			apply: func(ctx context.Context) error { return s.store.UpsertAsset(ctx, &a) }})
	}
	for i := range req.Columns {
		c := req.Columns[i]
		children = append(children, &entity{kind: domain.EntityKindColumn, key: c.Ref().String(),
			apply: func(ctx context.Context) error { return s.store.UpsertColumn(ctx, ws, &c) }})
	}
	for _, l := range req.AssetLinks {
		children = append(children, &entity{kind: domain.EntityKindAssetLink, key: l.String(),
			apply: func(ctx context.Context) error { return s.store.UpsertAssetLink(ctx, ws, res, l) }})
	}
	for _, l := range req.ColumnLinks {
		children = append(children, &entity{kind: domain.EntityKindColumnLink, key: l.String(),
			apply: func(ctx context.Context) error { return s.store.UpsertColumnLink(ctx, ws, res, l) }})
	}
	return assets, children
}

// runPhase upserts entities on a bounded worker pool and returns once all
// of them settled. Cancellation is observed before each entity starts.
func (s *ReconciliationService) runPhase(ctx context.Context, entities []*entity, out *outcome) {
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for _, e := range entities {
		e.status = domain.EntityStatusPending
		if ctx.Err() != nil {
			e.status = domain.EntityStatusSkipped
			out.add(e, 0, nil)
			continue
		}
		g.Go(func() error {
			attempts, err := s.applyEntity(ctx, e)
			out.add(e, attempts, err)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *ReconciliationService) applyEntity(ctx context.Context, e *entity) (int, error) {
	if ctx.Err() != nil {
		e.status = domain.EntityStatusSkipped
		return 0, nil
	}
	e.status = domain.EntityStatusApplying
	attempts, err := retry.Do(ctx, s.cfg.Retry, domain.IsTransient, func(ctx context.Context) error {
		err := e.apply(ctx)
		if err != nil && domain.IsTransient(err) {
			e.status = domain.EntityStatusRetrying
			s.logger.Debug("transient upsert failure", "kind", e.kind, "key", e.key, "error", err)
		}
		return err
	})
	switch {
	case err == nil:
		e.status = domain.EntityStatusSucceeded
	case isCancellation(err) && ctx.Err() != nil:
		e.status = domain.EntityStatusSkipped
	default:
		e.status = domain.EntityStatusDeadLettered
		s.logger.Warn("entity dead-lettered",
			"kind", e.kind, "key", e.key, "attempts", attempts, "error", err)
	}
	return attempts, err
}

// prune removes what the full resync no longer contains. It runs only
// after every upsert of the batch succeeded.
func (s *ReconciliationService) prune(ctx context.Context, req domain.ReconcileRequest, report *domain.ReconciliationReport) error {
	keep := make([]string, len(req.Assets))
	for i, a := range req.Assets {
		keep[i] = a.ID
	}
	children := domain.ResourceChildren{
		AssetLinks:  req.AssetLinks,
		ColumnLinks: req.ColumnLinks,
	}
	for _, c := range req.Columns {
		children.Columns = append(children.Columns, c.Ref())
	}

	attempts, err := retry.Do(ctx, s.cfg.Retry, domain.IsTransient, func(ctx context.Context) error {
		removed, err := s.store.DeleteAssetsNotIn(ctx, req.WorkspaceID, req.ResourceID, keep)
		if err != nil {
			return err
		}
		report.PrunedAssets = append(report.PrunedAssets, removed...)
		n, err := s.store.PruneResourceChildren(ctx, req.WorkspaceID, req.ResourceID, children)
		if err != nil {
			return err
		}
		report.PrunedChildren += n
		return nil
	})
	if err != nil {
		if !isCancellation(err) {
			report.Failures = append(report.Failures, domain.EntityFailure{
				Kind: domain.EntityKindPrune, Key: req.ResourceID, Attempts: attempts, Error: err.Error(),
			})
			report.Failed++
			s.logger.Error("prune failed", "run_id", report.ID, "resource_id", req.ResourceID, "error", err)
		}
		return err
	}
	return nil
}

func (s *ReconciliationService) finishCancelled(ctx context.Context, span trace.Span, report *domain.ReconciliationReport, cause error) (*domain.ReconciliationReport, error) {
	report.State = domain.BatchStateIncomplete
	s.finish(ctx, report)
	err := domain.ErrCancelled(cause, "reconciliation of resource %q cancelled", report.ResourceID)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return report, err
}

// finish stamps, logs and stores the report. Storing uses a context that
// survives cancellation of the batch.
func (s *ReconciliationService) finish(ctx context.Context, report *domain.ReconciliationReport) {
	report.FinishedAt = s.now().UTC()

	level := slog.LevelInfo
	if report.Degraded() {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "reconciliation finished",
		"run_id", report.ID,
		"workspace_id", report.WorkspaceID,
		"resource_id", report.ResourceID,
		"state", report.State,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"pruned_assets", len(report.PrunedAssets),
		"pruned_children", report.PrunedChildren,
		"prune_skipped", report.PruneSkipped,
		"failed_keys", report.FailedKeys(),
		"duration", report.FinishedAt.Sub(report.StartedAt))

	if s.runs == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.runs.Save(saveCtx, report); err != nil {
		s.logger.Warn("failed to store reconciliation report", "run_id", report.ID, "error", err)
	}
}

func isCancellation(err error) bool {
	return domain.IsCancelled(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
