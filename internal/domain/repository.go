package domain

import "context"

// GraphReader provides read access to the persisted lineage graph. All
// lookups are scoped to a workspace: records of other workspaces are never
// returned.
type GraphReader interface {
	GetAsset(ctx context.Context, workspaceID, assetID string) (*Asset, error)
	GetAssets(ctx context.Context, workspaceID string, assetIDs []string) ([]Asset, error)

	// GetOutgoingAssetLinks returns links whose source is assetID and whose
	// target is a stored asset.
	GetOutgoingAssetLinks(ctx context.Context, workspaceID, assetID string) ([]AssetLink, error)
	// GetIncomingAssetLinks returns links whose target is assetID and whose
	// source is a stored asset.
	GetIncomingAssetLinks(ctx context.Context, workspaceID, assetID string) ([]AssetLink, error)
	// GetAssetLinksBetween returns links with both endpoints in assetIDs.
	GetAssetLinksBetween(ctx context.Context, workspaceID string, assetIDs []string) ([]AssetLink, error)

	GetColumnsOf(ctx context.Context, workspaceID string, assetIDs []string) ([]Column, error)
	// GetColumnLinksBetween returns column links whose endpoint columns are
	// both owned by assets in assetIDs.
	GetColumnLinksBetween(ctx context.Context, workspaceID string, assetIDs []string) ([]ColumnLink, error)
}

// GraphWriter provides idempotent upserts and resource-scoped pruning.
type GraphWriter interface {
	UpsertAsset(ctx context.Context, a *Asset) error
	UpsertColumn(ctx context.Context, workspaceID string, c *Column) error
	UpsertAssetLink(ctx context.Context, workspaceID, resourceID string, l AssetLink) error
	UpsertColumnLink(ctx context.Context, workspaceID, resourceID string, l ColumnLink) error

	ListAssetIDs(ctx context.Context, workspaceID, resourceID string) ([]string, error)
	// DeleteAssetsNotIn removes the resource's assets absent from keep,
	// together with their columns and every link touching them. Returns the
	// ids of the removed assets.
	DeleteAssetsNotIn(ctx context.Context, workspaceID, resourceID string, keep []string) ([]string, error)
	// PruneResourceChildren removes the resource's columns and links absent
	// from keep. Returns the number of removed rows.
	PruneResourceChildren(ctx context.Context, workspaceID, resourceID string, keep ResourceChildren) (int64, error)
}

// GraphStore combines read and write access to the lineage graph.
type GraphStore interface {
	GraphReader
	GraphWriter
}

// ReconciliationRunRepository persists reconciliation reports.
type ReconciliationRunRepository interface {
	Save(ctx context.Context, r *ReconciliationReport) error
	ListByResource(ctx context.Context, workspaceID, resourceID string, page PageRequest) ([]ReconciliationReport, int64, error)
}
