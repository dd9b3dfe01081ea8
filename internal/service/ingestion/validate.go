package ingestion

import (
	"catalog-lineage/internal/domain"
)

// normalize validates a batch and returns a copy in which assets carry the
// batch scope and duplicate records are collapsed (last occurrence wins).
// Nothing is applied when validation fails.
func normalize(req domain.ReconcileRequest) (domain.ReconcileRequest, error) {
	if err := domain.ValidateID("workspace id", req.WorkspaceID); err != nil {
		return req, err
	}
	if err := domain.ValidateID("resource id", req.ResourceID); err != nil {
		return req, err
	}

	out := req
	out.Assets = nil
	assetIdx := map[string]int{}
	for i, a := range req.Assets {
		if err := domain.ValidateID("asset id", a.ID); err != nil {
			return req, domain.ErrValidation("assets[%d]: %s", i, err.Error())
		}
		switch a.WorkspaceID {
		case "":
			a.WorkspaceID = req.WorkspaceID
		case req.WorkspaceID:
		default:
			return req, domain.ErrValidation("asset %q belongs to workspace %q, batch is for %q", a.ID, a.WorkspaceID, req.WorkspaceID)
		}
		switch a.ResourceID {
		case "":
			a.ResourceID = req.ResourceID
		case req.ResourceID:
		default:
			return req, domain.ErrValidation("asset %q belongs to resource %q, batch is for %q", a.ID, a.ResourceID, req.ResourceID)
		}
		if j, dup := assetIdx[a.ID]; dup {
			out.Assets[j] = a
			continue
		}
		assetIdx[a.ID] = len(out.Assets)
		out.Assets = append(out.Assets, a)
	}

	out.Columns = nil
	colIdx := map[domain.ColumnRef]int{}
	for i, c := range req.Columns {
		if err := domain.ValidateID("column asset id", c.AssetID); err != nil {
			return req, domain.ErrValidation("columns[%d]: %s", i, err.Error())
		}
		if err := domain.ValidateID("column id", c.ID); err != nil {
			return req, domain.ErrValidation("columns[%d]: %s", i, err.Error())
		}
		if j, dup := colIdx[c.Ref()]; dup {
			out.Columns[j] = c
			continue
		}
		colIdx[c.Ref()] = len(out.Columns)
		out.Columns = append(out.Columns, c)
	}

	out.AssetLinks = nil
	seenLinks := map[domain.AssetLink]struct{}{}
	for i, l := range req.AssetLinks {
		if l.SourceAssetID == "" || l.TargetAssetID == "" {
			return req, domain.ErrValidation("asset_links[%d]: source and target are required", i)
		}
		if _, dup := seenLinks[l]; dup {
			continue
		}
		seenLinks[l] = struct{}{}
		out.AssetLinks = append(out.AssetLinks, l)
	}

	out.ColumnLinks = nil
	seenColLinks := map[domain.ColumnLink]struct{}{}
	for i, l := range req.ColumnLinks {
		if l.Source.AssetID == "" || l.Source.ColumnID == "" || l.Target.AssetID == "" || l.Target.ColumnID == "" {
			return req, domain.ErrValidation("column_links[%d]: source and target columns are required", i)
		}
		if _, dup := seenColLinks[l]; dup {
			continue
		}
		seenColLinks[l] = struct{}{}
		out.ColumnLinks = append(out.ColumnLinks, l)
	}
	return out, nil
}
