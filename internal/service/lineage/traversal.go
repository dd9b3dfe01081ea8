package lineage

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"catalog-lineage/internal/domain"
)

// Traversal is the outcome of a bounded bidirectional expansion.
type Traversal struct {
	Root string
	// Upstream and Downstream list the reached assets in BFS order,
	// excluding the root.
	Upstream   []string
	Downstream []string
	// UpstreamHops and DownstreamHops map each reached asset to its hop
	// distance from the root in that direction.
	UpstreamHops   map[string]int
	DownstreamHops map[string]int
	// RootOnly is set when both depths are 0. The result then carries the
	// root alone, without links, even if the root links to itself.
	RootOnly bool
}

// AssetIDs returns the sorted union of the root and both expansions.
func (t *Traversal) AssetIDs() []string {
	set := make(map[string]struct{}, 1+len(t.Upstream)+len(t.Downstream))
	set[t.Root] = struct{}{}
	for _, id := range t.Upstream {
		set[id] = struct{}{}
	}
	for _, id := range t.Downstream {
		set[id] = struct{}{}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Traverse expands from root up to predecessorDepth hops over incoming
// links and up to successorDepth hops over outgoing links. The two
// expansions run concurrently and keep separate visited sets. A depth of 0
// performs no expansion in that direction.
func Traverse(ctx context.Context, neighbors NeighborFunc, root string, predecessorDepth, successorDepth int) (*Traversal, error) {
	if predecessorDepth < 0 || successorDepth < 0 {
		return nil, domain.ErrValidation("depths must be non-negative (predecessor=%d, successor=%d)",
			predecessorDepth, successorDepth)
	}
	if err := domain.ValidateID("asset id", root); err != nil {
		return nil, err
	}

	t := &Traversal{Root: root, RootOnly: predecessorDepth == 0 && successorDepth == 0}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		t.Upstream, t.UpstreamHops, err = expand(gctx, neighbors, root, domain.DirectionUpstream, predecessorDepth)
		return err
	})
	g.Go(func() error {
		var err error
		t.Downstream, t.DownstreamHops, err = expand(gctx, neighbors, root, domain.DirectionDownstream, successorDepth)
		return err
	})
	if err := g.Wait(); err != nil {
		// errgroup cancels gctx when the sibling fails; report the caller's
		// cancellation rather than the derived one.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, domain.ErrCancelled(ctxErr, "lineage traversal of %q cancelled", root)
		}
		return nil, err
	}
	return t, nil
}

// expand runs a level-by-level BFS. A node is enqueued only on first
// visit, which bounds the work on cycles, self-loops and diamonds.
func expand(ctx context.Context, neighbors NeighborFunc, root string, dir domain.Direction, maxDepth int) ([]string, map[string]int, error) {
	order := []string{}
	hops := map[string]int{}
	visited := map[string]struct{}{root: {}}

	frontier := []string{root}
	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			if err := ctx.Err(); err != nil {
				return nil, nil, domain.ErrCancelled(err, "lineage traversal cancelled at depth %d", depth)
			}
			ids, err := neighbors(ctx, id, dir)
			if err != nil {
				return nil, nil, err
			}
			for _, n := range ids {
				if _, seen := visited[n]; seen {
					continue
				}
				visited[n] = struct{}{}
				hops[n] = depth
				order = append(order, n)
				next = append(next, n)
			}
		}
		frontier = next
	}
	return order, hops, nil
}
