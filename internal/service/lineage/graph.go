// Package lineage computes bounded lineage subgraphs over the graph store.
package lineage

import (
	"context"
	"sort"
	"sync"

	"catalog-lineage/internal/domain"
)

// NeighborFunc returns the ids adjacent to id in the given direction,
// sorted and de-duplicated.
type NeighborFunc func(ctx context.Context, id string, dir domain.Direction) ([]string, error)

// Graph is a request-scoped adjacency view over a GraphReader. Adjacency
// is loaded lazily per visited node and cached for the lifetime of the
// Graph, so each (id, direction) is read from the store at most once.
// A Graph must not be shared across requests.
type Graph struct {
	reader      domain.GraphReader
	workspaceID string

	mu         sync.Mutex
	upstream   map[string][]string
	downstream map[string][]string
}

// NewGraph creates an empty adjacency view of the workspace.
func NewGraph(reader domain.GraphReader, workspaceID string) *Graph {
	return &Graph{
		reader:      reader,
		workspaceID: workspaceID,
		upstream:    make(map[string][]string),
		downstream:  make(map[string][]string),
	}
}

// Neighbors implements NeighborFunc. Upstream neighbours are the sources of
// incoming links; downstream neighbours are the targets of outgoing links.
func (g *Graph) Neighbors(ctx context.Context, id string, dir domain.Direction) ([]string, error) {
	cache, err := g.cacheFor(dir)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	ids, ok := cache[id]
	g.mu.Unlock()
	if ok {
		return ids, nil
	}

	var links []domain.AssetLink
	if dir == domain.DirectionUpstream {
		links, err = g.reader.GetIncomingAssetLinks(ctx, g.workspaceID, id)
	} else {
		links, err = g.reader.GetOutgoingAssetLinks(ctx, g.workspaceID, id)
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(links))
	ids = make([]string, 0, len(links))
	for _, l := range links {
		next := l.TargetAssetID
		if dir == domain.DirectionUpstream {
			next = l.SourceAssetID
		}
		if _, dup := seen[next]; dup {
			continue
		}
		seen[next] = struct{}{}
		ids = append(ids, next)
	}
	sort.Strings(ids)

	g.mu.Lock()
	cache[id] = ids
	g.mu.Unlock()
	return ids, nil
}

// Loaded returns the number of (id, direction) entries read so far.
func (g *Graph) Loaded() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.upstream) + len(g.downstream)
}

func (g *Graph) cacheFor(dir domain.Direction) (map[string][]string, error) {
	switch dir {
	case domain.DirectionUpstream:
		return g.upstream, nil
	case domain.DirectionDownstream:
		return g.downstream, nil
	default:
		return nil, domain.ErrValidation("unknown direction %q", dir)
	}
}
