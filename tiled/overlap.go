package tiled

import (
	"fmt"
	"sort"

	"github.com/janelia-flyem/v3d/v3d"
)

var axisNames = [3]string{"x", "y", "z"}

// axisGrid is the resolved tiling along one axis.  Position k covers the physical span
// [origins[k], ends[k]) and owns [cuts[k-1], cuts[k]), where cuts[-1] is 0.
type axisGrid struct {
	origins []int32
	ends    []int32
	cuts    []int32
}

// position returns the grid position of a tile origin along the axis.
func (g *axisGrid) position(origin int32) (int, bool) {
	k := sort.Search(len(g.origins), func(i int) bool { return g.origins[i] >= origin })
	return k, k < len(g.origins) && g.origins[k] == origin
}

// owner returns the grid position owning a coordinate.
func (g *axisGrid) owner(coord int32) int {
	return sort.Search(len(g.cuts), func(i int) bool { return coord < g.cuts[i] })
}

// ownedSpan returns the half-open owned range of position k.
func (g *axisGrid) ownedSpan(k int) (beg, end int32) {
	if k > 0 {
		beg = g.cuts[k-1]
	}
	return beg, g.cuts[k]
}

// resolveAxis builds the grid along one axis from tile physical extents and splits
// every overlap at its midpoint: for overlap [o, e) of width W = e - o, the earlier
// position owns up to o + W/2 and the later position from there.
func resolveAxis(axis int, dim int32, declared int32, extents []v3d.Extents3d) (*axisGrid, error) {
	sizes := make(map[int32]int32)
	for _, ext := range extents {
		origin := ext.MinPoint[axis]
		size := ext.MaxPoint[axis] - origin + 1
		if prev, found := sizes[origin]; found && prev != size {
			return nil, fmt.Errorf("tiles with %s origin %d have sizes %d and %d", axisNames[axis], origin, prev, size)
		}
		sizes[origin] = size
	}
	g := &axisGrid{}
	for origin := range sizes {
		g.origins = append(g.origins, origin)
	}
	sort.Slice(g.origins, func(i, j int) bool { return g.origins[i] < g.origins[j] })
	g.ends = make([]int32, len(g.origins))
	for k, origin := range g.origins {
		g.ends[k] = origin + sizes[origin]
	}

	n := len(g.origins)
	if g.origins[0] != 0 {
		return nil, fmt.Errorf("first tile along %s starts at %d, not 0", axisNames[axis], g.origins[0])
	}
	if g.ends[n-1] != dim {
		return nil, fmt.Errorf("last tile along %s ends at %d, volume size is %d", axisNames[axis], g.ends[n-1], dim)
	}
	g.cuts = make([]int32, n)
	for k := 0; k < n-1; k++ {
		next := g.origins[k+1]
		if g.ends[k] < next {
			return nil, fmt.Errorf("gap along %s between %d and %d", axisNames[axis], g.ends[k], next)
		}
		if g.ends[k+1] <= g.ends[k] {
			return nil, fmt.Errorf("tile at %s=%d is contained in the tile at %s=%d", axisNames[axis], next, axisNames[axis], g.origins[k])
		}
		width := g.ends[k] - next
		if width != declared {
			v3d.Warningf("Overlap along %s at %d is %d voxels, declared %d\n", axisNames[axis], next, width, declared)
		}
		g.cuts[k] = next + width/2
	}
	g.cuts[n-1] = dim
	return g, nil
}
