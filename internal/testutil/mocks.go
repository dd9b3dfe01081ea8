// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase.
package testutil

import (
	"context"
	"sync"

	"catalog-lineage/internal/domain"
)

// === Graph Store Mock ===

// MockGraphStore implements domain.GraphStore for testing. Unset Fn fields
// panic when called. The mock may be called concurrently; Fn
// implementations must be safe for that.
type MockGraphStore struct {
	GetAssetFn              func(ctx context.Context, workspaceID, assetID string) (*domain.Asset, error)
	GetAssetsFn             func(ctx context.Context, workspaceID string, assetIDs []string) ([]domain.Asset, error)
	GetOutgoingAssetLinksFn func(ctx context.Context, workspaceID, assetID string) ([]domain.AssetLink, error)
	GetIncomingAssetLinksFn func(ctx context.Context, workspaceID, assetID string) ([]domain.AssetLink, error)
	GetAssetLinksBetweenFn  func(ctx context.Context, workspaceID string, assetIDs []string) ([]domain.AssetLink, error)
	GetColumnsOfFn          func(ctx context.Context, workspaceID string, assetIDs []string) ([]domain.Column, error)
	GetColumnLinksBetweenFn func(ctx context.Context, workspaceID string, assetIDs []string) ([]domain.ColumnLink, error)

	UpsertAssetFn           func(ctx context.Context, a *domain.Asset) error
	UpsertColumnFn          func(ctx context.Context, workspaceID string, c *domain.Column) error
	UpsertAssetLinkFn       func(ctx context.Context, workspaceID, resourceID string, l domain.AssetLink) error
	UpsertColumnLinkFn      func(ctx context.Context, workspaceID, resourceID string, l domain.ColumnLink) error
	ListAssetIDsFn          func(ctx context.Context, workspaceID, resourceID string) ([]string, error)
	DeleteAssetsNotInFn     func(ctx context.Context, workspaceID, resourceID string, keep []string) ([]string, error)
	PruneResourceChildrenFn func(ctx context.Context, workspaceID, resourceID string, keep domain.ResourceChildren) (int64, error)

	mu    sync.Mutex
	calls map[string]int
}

var _ domain.GraphStore = (*MockGraphStore)(nil)

func (m *MockGraphStore) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[name]++
}

// Calls returns how many times the named method was invoked.
func (m *MockGraphStore) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

// GetAsset implements the interface method for testing.
func (m *MockGraphStore) GetAsset(ctx context.Context, workspaceID, assetID string) (*domain.Asset, error) {
	m.record("GetAsset")
	if m.GetAssetFn != nil {
		return m.GetAssetFn(ctx, workspaceID, assetID)
	}
	panic("unexpected call to MockGraphStore.GetAsset")
}

// GetAssets implements the interface method for testing.
func (m *MockGraphStore) GetAssets(ctx context.Context, workspaceID string, assetIDs []string) ([]domain.Asset, error) {
	m.record("GetAssets")
	if m.GetAssetsFn != nil {
		return m.GetAssetsFn(ctx, workspaceID, assetIDs)
	}
	panic("unexpected call to MockGraphStore.GetAssets")
}

// GetOutgoingAssetLinks implements the interface method for testing.
func (m *MockGraphStore) GetOutgoingAssetLinks(ctx context.Context, workspaceID, assetID string) ([]domain.AssetLink, error) {
	m.record("GetOutgoingAssetLinks")
	if m.GetOutgoingAssetLinksFn != nil {
		return m.GetOutgoingAssetLinksFn(ctx, workspaceID, assetID)
	}
	panic("unexpected call to MockGraphStore.GetOutgoingAssetLinks")
}

// GetIncomingAssetLinks implements the interface method for testing.
func (m *MockGraphStore) GetIncomingAssetLinks(ctx context.Context, workspaceID, assetID string) ([]domain.AssetLink, error) {
	m.record("GetIncomingAssetLinks")
	if m.GetIncomingAssetLinksFn != nil {
		return m.GetIncomingAssetLinksFn(ctx, workspaceID, assetID)
	}
	panic("unexpected call to MockGraphStore.GetIncomingAssetLinks")
}

// GetAssetLinksBetween implements the interface method for testing.
func (m *MockGraphStore) GetAssetLinksBetween(ctx context.Context, workspaceID string, assetIDs []string) ([]domain.AssetLink, error) {
	m.record("GetAssetLinksBetween")
	if m.GetAssetLinksBetweenFn != nil {
		return m.GetAssetLinksBetweenFn(ctx, workspaceID, assetIDs)
	}
	panic("unexpected call to MockGraphStore.GetAssetLinksBetween")
}

// GetColumnsOf implements the interface method for testing.
func (m *MockGraphStore) GetColumnsOf(ctx context.Context, workspaceID string, assetIDs []string) ([]domain.Column, error) {
	m.record("GetColumnsOf")
	if m.GetColumnsOfFn != nil {
		return m.GetColumnsOfFn(ctx, workspaceID, assetIDs)
	}
	panic("unexpected call to MockGraphStore.GetColumnsOf")
}

// GetColumnLinksBetween implements the interface method for testing.
func (m *MockGraphStore) GetColumnLinksBetween(ctx context.Context, workspaceID string, assetIDs []string) ([]domain.ColumnLink, error) {
	m.record("GetColumnLinksBetween")
	if m.GetColumnLinksBetweenFn != nil {
		return m.GetColumnLinksBetweenFn(ctx, workspaceID, assetIDs)
	}
	panic("unexpected call to MockGraphStore.GetColumnLinksBetween")
}

// UpsertAsset implements the interface method for testing.
func (m *MockGraphStore) UpsertAsset(ctx context.Context, a *domain.Asset) error {
	m.record("UpsertAsset")
	if m.UpsertAssetFn != nil {
		return m.UpsertAssetFn(ctx, a)
	}
	panic("unexpected call to MockGraphStore.UpsertAsset")
}

// UpsertColumn implements the interface method for testing.
func (m *MockGraphStore) UpsertColumn(ctx context.Context, workspaceID string, c *domain.Column) error {
	m.record("UpsertColumn")
	if m.UpsertColumnFn != nil {
		return m.UpsertColumnFn(ctx, workspaceID, c)
	}
	panic("unexpected call to MockGraphStore.UpsertColumn")
}

// UpsertAssetLink implements the interface method for testing.
func (m *MockGraphStore) UpsertAssetLink(ctx context.Context, workspaceID, resourceID string, l domain.AssetLink) error {
	m.record("UpsertAssetLink")
	if m.UpsertAssetLinkFn != nil {
		return m.UpsertAssetLinkFn(ctx, workspaceID, resourceID, l)
	}
	panic("unexpected call to MockGraphStore.UpsertAssetLink")
}

// UpsertColumnLink implements the interface method for testing.
func (m *MockGraphStore) UpsertColumnLink(ctx context.Context, workspaceID, resourceID string, l domain.ColumnLink) error {
	m.record("UpsertColumnLink")
	if m.UpsertColumnLinkFn != nil {
		return m.UpsertColumnLinkFn(ctx, workspaceID, resourceID, l)
	}
	panic("unexpected call to MockGraphStore.UpsertColumnLink")
}

// ListAssetIDs implements the interface method for testing.
func (m *MockGraphStore) ListAssetIDs(ctx context.Context, workspaceID, resourceID string) ([]string, error) {
	m.record("ListAssetIDs")
	if m.ListAssetIDsFn != nil {
		return m.ListAssetIDsFn(ctx, workspaceID, resourceID)
	}
	panic("unexpected call to MockGraphStore.ListAssetIDs")
}

// DeleteAssetsNotIn implements the interface method for testing.
func (m *MockGraphStore) DeleteAssetsNotIn(ctx context.Context, workspaceID, resourceID string, keep []string) ([]string, error) {
	m.record("DeleteAssetsNotIn")
	if m.DeleteAssetsNotInFn != nil {
		return m.DeleteAssetsNotInFn(ctx, workspaceID, resourceID, keep)
	}
	panic("unexpected call to MockGraphStore.DeleteAssetsNotIn")
}

// PruneResourceChildren implements the interface method for testing.
func (m *MockGraphStore) PruneResourceChildren(ctx context.Context, workspaceID, resourceID string, keep domain.ResourceChildren) (int64, error) {
	m.record("PruneResourceChildren")
	if m.PruneResourceChildrenFn != nil {
		return m.PruneResourceChildrenFn(ctx, workspaceID, resourceID, keep)
	}
	panic("unexpected call to MockGraphStore.PruneResourceChildren")
}

// === Reconciliation Run Repository Mock ===

// MockRunRepo implements domain.ReconciliationRunRepository for testing.
// Saved reports are collected for assertions.
type MockRunRepo struct {
	SaveFn           func(ctx context.Context, r *domain.ReconciliationReport) error
	ListByResourceFn func(ctx context.Context, workspaceID, resourceID string, page domain.PageRequest) ([]domain.ReconciliationReport, int64, error)

	mu    sync.Mutex
	Saved []*domain.ReconciliationReport
}

// Save implements the interface method for testing.
func (m *MockRunRepo) Save(ctx context.Context, r *domain.ReconciliationReport) error {
	if m.SaveFn != nil {
		if err := m.SaveFn(ctx, r); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.Saved = append(m.Saved, r)
	m.mu.Unlock()
	return nil
}

// ListByResource implements the interface method for testing.
func (m *MockRunRepo) ListByResource(ctx context.Context, workspaceID, resourceID string, page domain.PageRequest) ([]domain.ReconciliationReport, int64, error) {
	if m.ListByResourceFn != nil {
		return m.ListByResourceFn(ctx, workspaceID, resourceID, page)
	}
	panic("unexpected call to MockRunRepo.ListByResource")
}

// LastSaved returns the last saved report, or nil if none.
func (m *MockRunRepo) LastSaved() *domain.ReconciliationReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Saved) == 0 {
		return nil
	}
	return m.Saved[len(m.Saved)-1]
}
