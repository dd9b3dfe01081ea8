package domain

// Direction selects which adjacency a traversal follows.
type Direction string

const (
	// DirectionUpstream follows incoming links towards predecessors.
	DirectionUpstream Direction = "upstream"
	// DirectionDownstream follows outgoing links towards successors.
	DirectionDownstream Direction = "downstream"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionUpstream || d == DirectionDownstream
}

// DefaultMaxLineageDepth bounds either depth of a lineage query unless
// configured otherwise.
const DefaultMaxLineageDepth = 10

// LineageRequest asks for the lineage subgraph around AssetID.
type LineageRequest struct {
	WorkspaceID      string
	AssetID          string
	PredecessorDepth int
	SuccessorDepth   int
}

// LineageResult is the request-scoped lineage subgraph. Every slice is
// de-duplicated and sorted by id. It is never persisted and never mutated
// after assembly.
type LineageResult struct {
	AssetID     string
	Assets      []Asset
	AssetLinks  []AssetLink
	Columns     []Column
	ColumnLinks []ColumnLink
}
