package lineage

import (
	"context"
	"sort"

	"catalog-lineage/internal/domain"
)

// Assemble builds the LineageResult for a traversal. Only records inside
// the traversal boundary are included: links need both endpoint assets in
// the result, column links additionally need both endpoint columns.
// Assets deleted since the traversal are dropped; a missing root fails the
// whole assembly. A RootOnly traversal yields no links of either kind.
func Assemble(ctx context.Context, reader domain.GraphReader, workspaceID string, t *Traversal) (*domain.LineageResult, error) {
	assets, err := reader.GetAssets(ctx, workspaceID, t.AssetIDs())
	if err != nil {
		return nil, err
	}
	assets = uniqueAssets(assets)

	ids := make([]string, 0, len(assets))
	members := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		ids = append(ids, a.ID)
		members[a.ID] = struct{}{}
	}
	if _, ok := members[t.Root]; !ok {
		return nil, domain.ErrNotFound("asset %q not found in workspace %q", t.Root, workspaceID)
	}

	links := []domain.AssetLink{}
	if !t.RootOnly {
		if err := checkpoint(ctx); err != nil {
			return nil, err
		}
		found, err := reader.GetAssetLinksBetween(ctx, workspaceID, ids)
		if err != nil {
			return nil, err
		}
		links = uniqueAssetLinks(found, members)
	}

	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	columns, err := reader.GetColumnsOf(ctx, workspaceID, ids)
	if err != nil {
		return nil, err
	}
	columns = uniqueColumns(columns, members)

	columnLinks := []domain.ColumnLink{}
	if !t.RootOnly {
		if err := checkpoint(ctx); err != nil {
			return nil, err
		}
		found, err := reader.GetColumnLinksBetween(ctx, workspaceID, ids)
		if err != nil {
			return nil, err
		}
		refs := make(map[domain.ColumnRef]struct{}, len(columns))
		for _, c := range columns {
			refs[c.Ref()] = struct{}{}
		}
		columnLinks = uniqueColumnLinks(found, refs)
	}

	return &domain.LineageResult{
		AssetID:     t.Root,
		Assets:      assets,
		AssetLinks:  links,
		Columns:     columns,
		ColumnLinks: columnLinks,
	}, nil
}

func checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return domain.ErrCancelled(err, "lineage assembly cancelled")
	}
	return nil
}

func uniqueAssets(in []domain.Asset) []domain.Asset {
	seen := make(map[string]struct{}, len(in))
	out := make([]domain.Asset, 0, len(in))
	for _, a := range in {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func uniqueAssetLinks(in []domain.AssetLink, members map[string]struct{}) []domain.AssetLink {
	seen := make(map[domain.AssetLink]struct{}, len(in))
	out := make([]domain.AssetLink, 0, len(in))
	for _, l := range in {
		if _, ok := members[l.SourceAssetID]; !ok {
			continue
		}
		if _, ok := members[l.TargetAssetID]; !ok {
			continue
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func uniqueColumns(in []domain.Column, members map[string]struct{}) []domain.Column {
	seen := make(map[domain.ColumnRef]struct{}, len(in))
	out := make([]domain.Column, 0, len(in))
	for _, c := range in {
		if _, ok := members[c.AssetID]; !ok {
			continue
		}
		if _, dup := seen[c.Ref()]; dup {
			continue
		}
		seen[c.Ref()] = struct{}{}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref().Less(out[j].Ref()) })
	return out
}

func uniqueColumnLinks(in []domain.ColumnLink, refs map[domain.ColumnRef]struct{}) []domain.ColumnLink {
	seen := make(map[domain.ColumnLink]struct{}, len(in))
	out := make([]domain.ColumnLink, 0, len(in))
	for _, l := range in {
		if _, ok := refs[l.Source]; !ok {
			continue
		}
		if _, ok := refs[l.Target]; !ok {
			continue
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
