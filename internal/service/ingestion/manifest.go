package ingestion

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"catalog-lineage/internal/domain"
)

// Manifest is a YAML snapshot of one resource, as produced by file-based
// connectors.
//
//	workspace: analytics
//	resource: dbt_core
//	full_resync: true
//	assets:
//	  - id: urn:orders
//	    kind: model
//	    columns:
//	      - {id: order_id, type: bigint}
//	asset_links:
//	  - {source: urn:stg_orders, target: urn:orders}
//	column_links:
//	  - source: {asset: urn:stg_orders, column: order_id}
//	    target: {asset: urn:orders, column: order_id}
type Manifest struct {
	Workspace   string               `yaml:"workspace"`
	Resource    string               `yaml:"resource"`
	FullResync  bool                 `yaml:"full_resync"`
	Assets      []ManifestAsset      `yaml:"assets"`
	AssetLinks  []ManifestAssetLink  `yaml:"asset_links"`
	ColumnLinks []ManifestColumnLink `yaml:"column_links"`
}

// ManifestAsset is an asset with its columns.
type ManifestAsset struct {
	ID      string           `yaml:"id"`
	Name    string           `yaml:"name"`
	Kind    string           `yaml:"kind"`
	Columns []ManifestColumn `yaml:"columns"`
}

// ManifestColumn is a column of a ManifestAsset.
type ManifestColumn struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// ManifestAssetLink is an asset-level edge.
type ManifestAssetLink struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

// ManifestColumnRef names a column by asset and column id.
type ManifestColumnRef struct {
	Asset  string `yaml:"asset"`
	Column string `yaml:"column"`
}

// ManifestColumnLink is a column-level edge.
type ManifestColumnLink struct {
	Source ManifestColumnRef `yaml:"source"`
	Target ManifestColumnRef `yaml:"target"`
}

// ParseManifest decodes a manifest. Unknown fields are rejected.
func ParseManifest(r io.Reader) (*Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, domain.ErrValidation("manifest is empty")
		}
		return nil, domain.ErrValidation("invalid manifest: %v", err)
	}
	return &m, nil
}

// LoadManifest reads and decodes a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close() //nolint:errcheck
	m, err := ParseManifest(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Request converts the manifest into a reconciliation batch. Non-empty
// workspace and resource arguments override the manifest's own.
func (m *Manifest) Request(workspaceID, resourceID string) domain.ReconcileRequest {
	if workspaceID == "" {
		workspaceID = m.Workspace
	}
	if resourceID == "" {
		resourceID = m.Resource
	}
	req := domain.ReconcileRequest{
		WorkspaceID: workspaceID,
		ResourceID:  resourceID,
		FullResync:  m.FullResync,
	}
	for _, a := range m.Assets {
		name := a.Name
		if name == "" {
			name = a.ID
		}
		req.Assets = append(req.Assets, domain.Asset{
			ID: a.ID, WorkspaceID: workspaceID, ResourceID: resourceID,
			Name: name, Kind: domain.AssetKind(a.Kind),
		})
		for _, c := range a.Columns {
			colName := c.Name
			if colName == "" {
				colName = c.ID
			}
			req.Columns = append(req.Columns, domain.Column{
				AssetID: a.ID, ID: c.ID, Name: colName, DataType: c.Type,
			})
		}
	}
	for _, l := range m.AssetLinks {
		req.AssetLinks = append(req.AssetLinks, domain.AssetLink{SourceAssetID: l.Source, TargetAssetID: l.Target})
	}
	for _, l := range m.ColumnLinks {
		req.ColumnLinks = append(req.ColumnLinks, domain.ColumnLink{
			Source: domain.ColumnRef{AssetID: l.Source.Asset, ColumnID: l.Source.Column},
			Target: domain.ColumnRef{AssetID: l.Target.Asset, ColumnID: l.Target.Column},
		})
	}
	return req
}
