package lineage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"catalog-lineage/internal/domain"
	"catalog-lineage/internal/retry"
)

// Config bounds lineage queries.
type Config struct {
	MaxDepth     int           // upper bound for either depth; <= 0 uses the default
	QueryTimeout time.Duration // 0 disables the per-query deadline
	Retry        retry.Policy  // applied to every store read
}

// LineageService answers lineage queries.
type LineageService struct {
	reader domain.GraphReader
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
}

// NewLineageService creates a new LineageService. Store reads are retried
// on transient failures according to cfg.Retry.
func NewLineageService(reader domain.GraphReader, cfg Config, logger *slog.Logger) *LineageService {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = domain.DefaultMaxLineageDepth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LineageService{
		reader: NewRetryingReader(reader, cfg.Retry),
		cfg:    cfg,
		logger: logger.With("component", "lineage"),
		tracer: otel.Tracer("catalog-lineage/lineage"),
	}
}

// MaxDepth returns the configured depth guard.
func (s *LineageService) MaxDepth() int { return s.cfg.MaxDepth }

// GetLineage returns the lineage subgraph around req.AssetID. Results are
// all-or-nothing: any failure returns a single typed error and no result.
func (s *LineageService) GetLineage(ctx context.Context, req domain.LineageRequest) (*domain.LineageResult, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "lineage.GetLineage", trace.WithAttributes(
		attribute.String("lineage.workspace_id", req.WorkspaceID),
		attribute.String("lineage.asset_id", req.AssetID),
		attribute.Int("lineage.predecessor_depth", req.PredecessorDepth),
		attribute.Int("lineage.successor_depth", req.SuccessorDepth),
	))
	defer span.End()

	if s.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.QueryTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := s.getLineage(ctx, req)
	if err != nil {
		err = asCancelled(ctx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Debug("lineage query failed",
			"workspace_id", req.WorkspaceID, "asset_id", req.AssetID, "error", err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("lineage.assets", len(result.Assets)),
		attribute.Int("lineage.asset_links", len(result.AssetLinks)),
		attribute.Int("lineage.column_links", len(result.ColumnLinks)),
	)
	s.logger.Debug("lineage query",
		"workspace_id", req.WorkspaceID,
		"asset_id", req.AssetID,
		"assets", len(result.Assets),
		"asset_links", len(result.AssetLinks),
		"duration", time.Since(start))
	return result, nil
}

func (s *LineageService) getLineage(ctx context.Context, req domain.LineageRequest) (*domain.LineageResult, error) {
	if _, err := s.reader.GetAsset(ctx, req.WorkspaceID, req.AssetID); err != nil {
		return nil, err
	}

	graph := NewGraph(s.reader, req.WorkspaceID)
	t, err := Traverse(ctx, graph.Neighbors, req.AssetID, req.PredecessorDepth, req.SuccessorDepth)
	if err != nil {
		return nil, err
	}
	return Assemble(ctx, s.reader, req.WorkspaceID, t)
}

func (s *LineageService) validate(req domain.LineageRequest) error {
	if err := domain.ValidateID("workspace id", req.WorkspaceID); err != nil {
		return err
	}
	if err := domain.ValidateID("asset id", req.AssetID); err != nil {
		return err
	}
	for _, d := range []struct {
		name  string
		value int
	}{
		{"predecessor_depth", req.PredecessorDepth},
		{"successor_depth", req.SuccessorDepth},
	} {
		if d.value < 0 {
			return domain.ErrValidation("%s must be non-negative, got %d", d.name, d.value)
		}
		if d.value > s.cfg.MaxDepth {
			return domain.ErrValidation("%s must be at most %d, got %d", d.name, s.cfg.MaxDepth, d.value)
		}
	}
	return nil
}

// asCancelled converts deadline and cancellation failures that surfaced
// as raw context errors into a CancelledError.
func asCancelled(ctx context.Context, err error) error {
	if domain.IsCancelled(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrCancelled(err, "lineage query cancelled: %v", err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.ErrCancelled(ctxErr, "lineage query cancelled: %v", ctxErr)
	}
	return err
}
