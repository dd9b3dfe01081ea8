package domain

import "strings"

// AssetKind classifies a catalogued data entity.
type AssetKind string

const (
	AssetKindTable  AssetKind = "table"
	AssetKindView   AssetKind = "view"
	AssetKindModel  AssetKind = "model"
	AssetKindMetric AssetKind = "metric"
	AssetKindSource AssetKind = "source"
)

// Asset is a uniquely identified data entity such as a table or a dbt model.
// ID is globally unique and stable (typically a URN). An asset belongs to
// exactly one workspace for its lifetime.
type Asset struct {
	ID          string
	WorkspaceID string
	ResourceID  string // owning data source
	Name        string
	Kind        AssetKind
}

// Column is owned by exactly one Asset. ID is unique within the asset.
type Column struct {
	AssetID  string
	ID       string
	Name     string
	DataType string
}

// Ref returns the natural key of the column.
func (c Column) Ref() ColumnRef {
	return ColumnRef{AssetID: c.AssetID, ColumnID: c.ID}
}

// ColumnRef identifies a column by its owning asset and its column id.
type ColumnRef struct {
	AssetID  string
	ColumnID string
}

func (r ColumnRef) String() string { return r.AssetID + "." + r.ColumnID }

// Less orders column refs by (asset, column).
func (r ColumnRef) Less(o ColumnRef) bool {
	if r.AssetID != o.AssetID {
		return r.AssetID < o.AssetID
	}
	return r.ColumnID < o.ColumnID
}

// AssetLink is a directed edge meaning Target is derived from Source.
type AssetLink struct {
	SourceAssetID string
	TargetAssetID string
}

func (l AssetLink) String() string { return l.SourceAssetID + " -> " + l.TargetAssetID }

// Less orders asset links by (source, target).
func (l AssetLink) Less(o AssetLink) bool {
	if l.SourceAssetID != o.SourceAssetID {
		return l.SourceAssetID < o.SourceAssetID
	}
	return l.TargetAssetID < o.TargetAssetID
}

// ColumnLink is a directed column-level edge. The owning assets of its
// endpoints are usually, but not necessarily, joined by an AssetLink.
type ColumnLink struct {
	Source ColumnRef
	Target ColumnRef
}

func (l ColumnLink) String() string { return l.Source.String() + " -> " + l.Target.String() }

// Less orders column links by (source, target).
func (l ColumnLink) Less(o ColumnLink) bool {
	if l.Source != o.Source {
		return l.Source.Less(o.Source)
	}
	return l.Target.Less(o.Target)
}

// ValidateID rejects empty or whitespace-padded identifiers.
func ValidateID(field, id string) error {
	if id == "" {
		return ErrValidation("%s is required", field)
	}
	if strings.TrimSpace(id) != id {
		return ErrValidation("%s %q must not have leading or trailing whitespace", field, id)
	}
	return nil
}
