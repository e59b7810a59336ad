package mcl

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// CellState classifies one occupancy-grid cell.
type CellState int

const (
	CellFree CellState = iota
	CellOccupied
	CellUnknown
)

// Occupancy-grid cell values as delivered by the map provider.
const (
	cellValueFree     int8 = 0
	cellValueOccupied int8 = 1
	cellValueUnknown  int8 = -1
)

// OccupancyGrid is the raw 2D occupancy structure delivered by the map
// provider: row-major cells, world origin at the corner of cell (0,0).
type OccupancyGrid struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Resolution float64 `json:"resolution"` // meters per cell
	OriginX    float64 `json:"originX"`
	OriginY    float64 `json:"originY"`
	Cells      []int8  `json:"cells"` // -1 unknown, 0 free, 1 occupied
}

// Validate checks structural consistency of a decoded grid.
func (g *OccupancyGrid) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("grid dimensions %dx%d invalid", g.Width, g.Height)
	}
	if g.Resolution <= 0 {
		return fmt.Errorf("grid resolution %f invalid", g.Resolution)
	}
	if len(g.Cells) != g.Width*g.Height {
		return fmt.Errorf("grid has %d cells, expected %d", len(g.Cells), g.Width*g.Height)
	}
	return nil
}

// DistanceField is the queryable map abstraction the sensor model scores
// against: per-cell distance to the nearest occupied cell (clamped at
// maxOccDist), occupancy classification, and world bounds. It is rebuilt
// wholesale on every map update and is read-only afterwards; the
// orchestrator owns it and lends it to the sensor model per scoring call.
type DistanceField struct {
	grid       *OccupancyGrid
	maxOccDist float64
	occDist    []float64
	freeDist   []float64
	bounds     orb.Bound
	freeCells  []orb.Point
}

// BuildDistanceField precomputes the distance transform for a grid. An
// optional bounds override constrains the usable map area when the map
// source cannot self-report bounds; it is intersected with the grid extent.
func BuildDistanceField(grid *OccupancyGrid, maxOccDist float64, override *orb.Bound) (*DistanceField, error) {
	if err := grid.Validate(); err != nil {
		return nil, fmt.Errorf("building distance field: %w", err)
	}
	if maxOccDist <= 0 {
		return nil, fmt.Errorf("building distance field: maxOccDist %f invalid", maxOccDist)
	}

	bounds := orb.Bound{
		Min: orb.Point{grid.OriginX, grid.OriginY},
		Max: orb.Point{
			grid.OriginX + float64(grid.Width)*grid.Resolution,
			grid.OriginY + float64(grid.Height)*grid.Resolution,
		},
	}
	if override != nil {
		// The override constrains, never extends, the grid extent.
		bounds = orb.Bound{
			Min: orb.Point{
				math.Max(bounds.Min[0], override.Min[0]),
				math.Max(bounds.Min[1], override.Min[1]),
			},
			Max: orb.Point{
				math.Min(bounds.Max[0], override.Max[0]),
				math.Min(bounds.Max[1], override.Max[1]),
			},
		}
	}

	f := &DistanceField{
		grid:       grid,
		maxOccDist: maxOccDist,
		bounds:     bounds,
	}
	f.occDist = brushfire(grid, maxOccDist, cellValueOccupied)
	f.freeDist = brushfire(grid, maxOccDist, cellValueFree)

	half := grid.Resolution / 2
	for j := 0; j < grid.Height; j++ {
		for i := 0; i < grid.Width; i++ {
			if grid.Cells[j*grid.Width+i] != cellValueFree {
				continue
			}
			center := orb.Point{
				grid.OriginX + float64(i)*grid.Resolution + half,
				grid.OriginY + float64(j)*grid.Resolution + half,
			}
			if bounds.Contains(center) {
				f.freeCells = append(f.freeCells, center)
			}
		}
	}
	return f, nil
}

// brushfire computes, for every cell, the Euclidean distance in meters to
// the nearest cell holding seedValue, clamped at maxDist. A BFS wavefront
// propagates the index of each cell's nearest seed so distances stay
// Euclidean rather than Manhattan.
func brushfire(grid *OccupancyGrid, maxDist float64, seedValue int8) []float64 {
	w, h := grid.Width, grid.Height
	dist := make([]float64, w*h)
	srcI := make([]int32, w*h)
	srcJ := make([]int32, w*h)
	for k := range dist {
		dist[k] = maxDist
		srcI[k] = -1
	}

	type cell struct{ i, j int32 }
	queue := make([]cell, 0, w*h/4)
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			k := j*w + i
			if grid.Cells[k] == seedValue {
				dist[k] = 0
				srcI[k] = int32(i)
				srcJ[k] = int32(j)
				queue = append(queue, cell{int32(i), int32(j)})
			}
		}
	}

	res := grid.Resolution
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		k := int(c.j)*w + int(c.i)
		si, sj := srcI[k], srcJ[k]
		for _, d := range [4][2]int32{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			ni, nj := c.i+d[0], c.j+d[1]
			if ni < 0 || nj < 0 || ni >= int32(w) || nj >= int32(h) {
				continue
			}
			nk := int(nj)*w + int(ni)
			di := float64(ni - si)
			dj := float64(nj - sj)
			nd := math.Sqrt(di*di+dj*dj) * res
			if nd < dist[nk] {
				dist[nk] = nd
				srcI[nk] = si
				srcJ[nk] = sj
				queue = append(queue, cell{ni, nj})
			}
		}
	}
	return dist
}

// index converts world coordinates to a cell index, reporting validity.
func (f *DistanceField) index(x, y float64) (int, bool) {
	i := int(math.Floor((x - f.grid.OriginX) / f.grid.Resolution))
	j := int(math.Floor((y - f.grid.OriginY) / f.grid.Resolution))
	if i < 0 || j < 0 || i >= f.grid.Width || j >= f.grid.Height {
		return 0, false
	}
	return j*f.grid.Width + i, true
}

// OccDist returns the distance in meters from a world point to the nearest
// occupied cell, clamped at MaxOccDist. Points off the grid return the clamp.
func (f *DistanceField) OccDist(x, y float64) float64 {
	k, ok := f.index(x, y)
	if !ok {
		return f.maxOccDist
	}
	return f.occDist[k]
}

// DistToFreeSpace returns the distance in meters from a world point to the
// nearest free cell, clamped at MaxOccDist. A point in free space returns 0.
func (f *DistanceField) DistToFreeSpace(x, y float64) float64 {
	k, ok := f.index(x, y)
	if !ok {
		return f.maxOccDist
	}
	return f.freeDist[k]
}

// Occupancy classifies the cell under a world point. Points outside the
// grid or the configured bounds are unknown.
func (f *DistanceField) Occupancy(x, y float64) CellState {
	if !f.Contains(x, y) {
		return CellUnknown
	}
	k, ok := f.index(x, y)
	if !ok {
		return CellUnknown
	}
	switch f.grid.Cells[k] {
	case cellValueFree:
		return CellFree
	case cellValueOccupied:
		return CellOccupied
	default:
		return CellUnknown
	}
}

// Contains reports whether a world point lies inside the map bounds.
func (f *DistanceField) Contains(x, y float64) bool {
	return f.bounds.Contains(orb.Point{x, y})
}

// Bounds returns the usable world extent of the map.
func (f *DistanceField) Bounds() orb.Bound {
	return f.bounds
}

// MaxOccDist returns the distance clamp the field was built with.
func (f *DistanceField) MaxOccDist() float64 {
	return f.maxOccDist
}

// Resolution returns the grid cell size in meters.
func (f *DistanceField) Resolution() float64 {
	return f.grid.Resolution
}

// FreeCells returns the centers of all free cells inside the bounds. This is
// the sampling domain for global localization and initial pose priors.
func (f *DistanceField) FreeCells() []orb.Point {
	return f.freeCells
}

// Raycast steps along a heading from a world point and returns the range at
// which the ray first enters an occupied cell, or maxRange if it never does.
// Stepping is a fixed half-resolution walk (DDA): cheap, deterministic, and
// accurate to within one cell, which matches the granularity of the grid.
func (f *DistanceField) Raycast(x, y, heading, maxRange float64) float64 {
	step := f.grid.Resolution / 2
	sin, cos := math.Sincos(heading)
	for r := 0.0; r <= maxRange; r += step {
		if f.Occupancy(x+r*cos, y+r*sin) == CellOccupied {
			return r
		}
	}
	return maxRange
}
