package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"catalog-lineage/internal/domain"
)

// Reconciler applies a batch. Implemented by ReconciliationService.
type Reconciler interface {
	ReconcileResource(ctx context.Context, req domain.ReconcileRequest) (*domain.ReconciliationReport, error)
}

// ManifestSource is a manifest file reconciled on a cron schedule.
// Workspace and Resource, when set, override the manifest's values.
type ManifestSource struct {
	Name      string
	Schedule  string
	Path      string
	Workspace string
	Resource  string
}

// Scheduler periodically reconciles manifest sources.
type Scheduler struct {
	cron    *cron.Cron
	svc     Reconciler
	logger  *slog.Logger
	mu      sync.Mutex
	entries map[string]cron.EntryID // source name → cron entry
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a new manifest scheduler.
func NewScheduler(svc Reconciler, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		svc:     svc,
		logger:  logger.With("component", "manifest-scheduler"),
		entries: make(map[string]cron.EntryID),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start registers sources and starts the cron loop. Sources with an
// invalid schedule are logged and skipped.
func (s *Scheduler) Start(sources []ManifestSource) error {
	if err := s.Reload(sources); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("manifest scheduler started", "sources", len(s.entries))
	return nil
}

// Stop stops the cron loop, cancels in-flight runs and waits for them.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("manifest scheduler stopped")
}

// Reload replaces all registered sources. Sources are validated before the
// current entries are touched, so a rejected reload keeps the old schedule.
func (s *Scheduler) Reload(sources []ManifestSource) error {
	type planned struct {
		src   ManifestSource
		sched cron.Schedule
	}
	plan := make([]planned, 0, len(sources))
	seen := make(map[string]struct{}, len(sources))
	for _, src := range sources {
		if src.Name == "" || src.Path == "" {
			return domain.ErrValidation("manifest source requires name and path")
		}
		if _, dup := seen[src.Name]; dup {
			return domain.ErrValidation("duplicate manifest source %q", src.Name)
		}
		seen[src.Name] = struct{}{}

		sched, err := cron.ParseStandard(src.Schedule)
		if err != nil {
			s.logger.Warn("invalid cron schedule",
				"source", src.Name,
				"schedule", src.Schedule,
				"error", err,
			)
			continue
		}
		plan = append(plan, planned{src: src, sched: sched})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.entries {
		s.cron.Remove(id)
	}
	s.entries = make(map[string]cron.EntryID, len(plan))
	for _, p := range plan {
		src := p.src
		s.entries[src.Name] = s.cron.Schedule(p.sched, cron.FuncJob(func() {
			if _, err := s.RunNow(s.ctx, src); err != nil {
				s.logger.Warn("scheduled reconciliation failed", "source", src.Name, "error", err)
			}
		}))
		s.logger.Info("scheduled manifest", "source", src.Name, "schedule", src.Schedule)
	}
	return nil
}

// RunNow loads the source's manifest and reconciles it immediately.
func (s *Scheduler) RunNow(ctx context.Context, src ManifestSource) (*domain.ReconciliationReport, error) {
	m, err := LoadManifest(src.Path)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.Name, err)
	}
	return s.svc.ReconcileResource(ctx, m.Request(src.Workspace, src.Resource))
}
