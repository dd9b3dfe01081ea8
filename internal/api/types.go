package api

import (
	"time"

	"catalog-lineage/internal/domain"
)

// ErrorResponse is the body of every non-2xx response. Report is set when
// a reconciliation stopped early and its partial report is available.
type ErrorResponse struct {
	Code    string                `json:"code"`
	Message string                `json:"message"`
	Report  *ReconciliationReport `json:"report,omitempty"`
}

// Asset is the wire form of domain.Asset.
type Asset struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	ResourceID  string `json:"resource_id,omitempty"`
	Name        string `json:"name,omitempty"`
	Kind        string `json:"kind,omitempty"`
}

// Column is the wire form of domain.Column.
type Column struct {
	AssetID  string `json:"asset_id"`
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	DataType string `json:"data_type,omitempty"`
}

// AssetLink is a directed asset-level edge.
type AssetLink struct {
	SourceAssetID string `json:"source_asset_id"`
	TargetAssetID string `json:"target_asset_id"`
}

// ColumnRef names a column by owning asset and column id.
type ColumnRef struct {
	AssetID  string `json:"asset_id"`
	ColumnID string `json:"column_id"`
}

// ColumnLink is a directed column-level edge.
type ColumnLink struct {
	Source ColumnRef `json:"source"`
	Target ColumnRef `json:"target"`
}

// LineageResponse is the body of GET .../lineage.
type LineageResponse struct {
	AssetID     string       `json:"asset_id"`
	Assets      []Asset      `json:"assets"`
	AssetLinks  []AssetLink  `json:"asset_links"`
	Columns     []Column     `json:"columns"`
	ColumnLinks []ColumnLink `json:"column_links"`
}

// ReconcileRequest is the body of POST .../reconcile. Workspace and
// resource come from the path.
type ReconcileRequest struct {
	FullResync  bool         `json:"full_resync"`
	Assets      []Asset      `json:"assets"`
	Columns     []Column     `json:"columns"`
	AssetLinks  []AssetLink  `json:"asset_links"`
	ColumnLinks []ColumnLink `json:"column_links"`
}

// EntityFailure is a dead-lettered entity of a batch.
type EntityFailure struct {
	Kind     string `json:"kind"`
	Key      string `json:"key"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}

// ReconciliationReport is the outcome of one batch.
type ReconciliationReport struct {
	ID             string          `json:"id"`
	WorkspaceID    string          `json:"workspace_id"`
	ResourceID     string          `json:"resource_id"`
	FullResync     bool            `json:"full_resync"`
	State          string          `json:"state"`
	Succeeded      int             `json:"succeeded"`
	Failed         int             `json:"failed"`
	Skipped        int             `json:"skipped"`
	Failures       []EntityFailure `json:"failures,omitempty"`
	PrunedAssets   []string        `json:"pruned_assets,omitempty"`
	PrunedChildren int64           `json:"pruned_children"`
	PruneSkipped   bool            `json:"prune_skipped"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
}

// ListReconciliationsResponse is a page of stored reports.
type ListReconciliationsResponse struct {
	Data          []ReconciliationReport `json:"data"`
	Total         int64                  `json:"total"`
	NextPageToken string                 `json:"next_page_token,omitempty"`
}

// === Mapping helpers ===

func lineageToAPI(res *domain.LineageResult) LineageResponse {
	out := LineageResponse{
		AssetID:     res.AssetID,
		Assets:      make([]Asset, len(res.Assets)),
		AssetLinks:  make([]AssetLink, len(res.AssetLinks)),
		Columns:     make([]Column, len(res.Columns)),
		ColumnLinks: make([]ColumnLink, len(res.ColumnLinks)),
	}
	for i, a := range res.Assets {
		out.Assets[i] = Asset{ID: a.ID, WorkspaceID: a.WorkspaceID, ResourceID: a.ResourceID, Name: a.Name, Kind: string(a.Kind)}
	}
	for i, l := range res.AssetLinks {
		out.AssetLinks[i] = AssetLink{SourceAssetID: l.SourceAssetID, TargetAssetID: l.TargetAssetID}
	}
	for i, c := range res.Columns {
		out.Columns[i] = Column{AssetID: c.AssetID, ID: c.ID, Name: c.Name, DataType: c.DataType}
	}
	for i, l := range res.ColumnLinks {
		out.ColumnLinks[i] = ColumnLink{
			Source: ColumnRef{AssetID: l.Source.AssetID, ColumnID: l.Source.ColumnID},
			Target: ColumnRef{AssetID: l.Target.AssetID, ColumnID: l.Target.ColumnID},
		}
	}
	return out
}

func (req ReconcileRequest) toDomain(workspaceID, resourceID string) domain.ReconcileRequest {
	out := domain.ReconcileRequest{
		WorkspaceID: workspaceID,
		ResourceID:  resourceID,
		FullResync:  req.FullResync,
	}
	for _, a := range req.Assets {
		out.Assets = append(out.Assets, domain.Asset{
			ID: a.ID, WorkspaceID: a.WorkspaceID, ResourceID: a.ResourceID, Name: a.Name, Kind: domain.AssetKind(a.Kind),
		})
	}
	for _, c := range req.Columns {
		out.Columns = append(out.Columns, domain.Column{AssetID: c.AssetID, ID: c.ID, Name: c.Name, DataType: c.DataType})
	}
	for _, l := range req.AssetLinks {
		out.AssetLinks = append(out.AssetLinks, domain.AssetLink{SourceAssetID: l.SourceAssetID, TargetAssetID: l.TargetAssetID})
	}
	for _, l := range req.ColumnLinks {
		out.ColumnLinks = append(out.ColumnLinks, domain.ColumnLink{
			Source: domain.ColumnRef{AssetID: l.Source.AssetID, ColumnID: l.Source.ColumnID},
			Target: domain.ColumnRef{AssetID: l.Target.AssetID, ColumnID: l.Target.ColumnID},
		})
	}
	return out
}

func reportToAPI(r *domain.ReconciliationReport) ReconciliationReport {
	out := ReconciliationReport{
		ID:             r.ID,
		WorkspaceID:    r.WorkspaceID,
		ResourceID:     r.ResourceID,
		FullResync:     r.FullResync,
		State:          string(r.State),
		Succeeded:      r.Succeeded,
		Failed:         r.Failed,
		Skipped:        r.Skipped,
		PrunedAssets:   r.PrunedAssets,
		PrunedChildren: r.PrunedChildren,
		PruneSkipped:   r.PruneSkipped,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
	}
	for _, f := range r.Failures {
		out.Failures = append(out.Failures, EntityFailure{Kind: string(f.Kind), Key: f.Key, Attempts: f.Attempts, Error: f.Error})
	}
	return out
}
