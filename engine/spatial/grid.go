// Package spatial implements the dimension-partitioned uniform grid used for streaming, collision broad phase and world queries.
package spatial

import (
	"math"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/xiaonanln/gostream/engine/entity"
)

var (
	// ErrCorruptIndex is returned by queries that find a cell entry disagreeing with the entry table
	ErrCorruptIndex = errors.New("spatial index corrupt")
	// ErrNotIndexed is returned when updating an object that was never inserted
	ErrNotIndexed = errors.New("object not indexed")
	// ErrAlreadyIndexed is returned when inserting an object twice
	ErrAlreadyIndexed = errors.New("object already indexed")
)

// Hit is a query result with its squared distance to the query position
type Hit struct {
	Ref    entity.Ref
	DistSq entity.Coord
}

type cellCoord struct {
	cx, cy int32
}

type cell map[entity.Ref]struct{}

type dimension struct {
	cells map[cellCoord]cell
	count int
}

type entry struct {
	dim  int32
	pos  entity.Vector3
	cell cellCoord
}

// Grid buckets objects into square XY cells per dimension.
// Writes happen on the main routine; queries may run concurrently from streaming workers.
type Grid struct {
	mu       sync.RWMutex
	cellSize entity.Coord
	dims     map[int32]*dimension
	entries  map[entity.Ref]*entry
}

// NewGrid creates a grid with the given cell edge length
func NewGrid(cellSize entity.Coord) *Grid {
	if cellSize <= 0 {
		panic(errors.Errorf("invalid cell size: %v", cellSize))
	}
	return &Grid{
		cellSize: cellSize,
		dims:     map[int32]*dimension{},
		entries:  map[entity.Ref]*entry{},
	}
}

// toCell clamps to the int32 range, so far-out coordinates share the edge cells
func (g *Grid) toCell(v entity.Coord) int32 {
	c := math.Floor(float64(v) / float64(g.cellSize))
	if c >= math.MaxInt32 {
		return math.MaxInt32
	}
	if c <= math.MinInt32 {
		return math.MinInt32
	}
	return int32(c)
}

func (g *Grid) cellOf(pos entity.Vector3) cellCoord {
	return cellCoord{g.toCell(pos.X), g.toCell(pos.Y)}
}

func (g *Grid) addToCell(ref entity.Ref, dim int32, cc cellCoord) {
	d := g.dims[dim]
	if d == nil {
		d = &dimension{cells: map[cellCoord]cell{}}
		g.dims[dim] = d
	}
	c := d.cells[cc]
	if c == nil {
		c = cell{}
		d.cells[cc] = c
	}
	c[ref] = struct{}{}
	d.count++
}

func (g *Grid) removeFromCell(ref entity.Ref, dim int32, cc cellCoord) {
	d := g.dims[dim]
	if d == nil {
		return
	}
	c := d.cells[cc]
	if _, ok := c[ref]; !ok {
		return
	}
	delete(c, ref)
	d.count--
	if len(c) == 0 {
		delete(d.cells, cc)
	}
	if d.count == 0 {
		delete(g.dims, dim)
	}
}

// Insert adds an object at pos in dim
func (g *Grid) Insert(ref entity.Ref, dim int32, pos entity.Vector3) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.entries[ref]; ok {
		return errors.Wrapf(ErrAlreadyIndexed, "insert %s", ref)
	}
	e := &entry{dim: dim, pos: pos, cell: g.cellOf(pos)}
	g.entries[ref] = e
	g.addToCell(ref, dim, e.cell)
	return nil
}

// Update moves an object inside its dimension; same-cell moves only touch the entry
func (g *Grid) Update(ref entity.Ref, pos entity.Vector3) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.entries[ref]
	if e == nil {
		return errors.Wrapf(ErrNotIndexed, "update %s", ref)
	}
	e.pos = pos
	cc := g.cellOf(pos)
	if cc != e.cell {
		g.removeFromCell(ref, e.dim, e.cell)
		e.cell = cc
		g.addToCell(ref, e.dim, cc)
	}
	return nil
}

// SetDimension moves an object to another dimension
func (g *Grid) SetDimension(ref entity.Ref, dim int32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.entries[ref]
	if e == nil {
		return errors.Wrapf(ErrNotIndexed, "set dimension %s", ref)
	}
	if e.dim == dim {
		return nil
	}
	g.removeFromCell(ref, e.dim, e.cell)
	e.dim = dim
	g.addToCell(ref, dim, e.cell)
	return nil
}

// Remove drops an object; returns false if it was not indexed
func (g *Grid) Remove(ref entity.Ref) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.entries[ref]
	if e == nil {
		return false
	}
	g.removeFromCell(ref, e.dim, e.cell)
	delete(g.entries, ref)
	return true
}

// Contains returns if the object is indexed
func (g *Grid) Contains(ref entity.Ref) bool {
	g.mu.RLock()
	_, ok := g.entries[ref]
	g.mu.RUnlock()
	return ok
}

// Len returns the number of indexed objects
func (g *Grid) Len() int {
	g.mu.RLock()
	n := len(g.entries)
	g.mu.RUnlock()
	return n
}

// visit calls f for every entry in the cells overlapping the XY box; it stops on the first error
func (g *Grid) visit(dim int32, minX, minY, maxX, maxY entity.Coord, f func(ref entity.Ref, e *entry)) error {
	d := g.dims[dim]
	if d == nil {
		return nil
	}
	c0x, c0y := g.toCell(minX), g.toCell(minY)
	c1x, c1y := g.toCell(maxX), g.toCell(maxY)

	check := func(cc cellCoord, c cell) error {
		for ref := range c {
			e := g.entries[ref]
			if e == nil || e.dim != dim || e.cell != cc {
				return errors.Wrapf(ErrCorruptIndex, "%s in cell %v of dimension %d", ref, cc, dim)
			}
			f(ref, e)
		}
		return nil
	}

	span := (int64(c1x) - int64(c0x) + 1) * (int64(c1y) - int64(c0y) + 1)
	if span > int64(len(d.cells)) {
		// sparse dimension: walking occupied cells is cheaper than walking the span
		for cc, c := range d.cells {
			if cc.cx < c0x || cc.cx > c1x || cc.cy < c0y || cc.cy > c1y {
				continue
			}
			if err := check(cc, c); err != nil {
				return err
			}
		}
		return nil
	}

	// int64 counters: the edge cell is math.MaxInt32
	for cx := int64(c0x); cx <= int64(c1x); cx++ {
		for cy := int64(c0y); cy <= int64(c1y); cy++ {
			cc := cellCoord{int32(cx), int32(cy)}
			if c := d.cells[cc]; c != nil {
				if err := check(cc, c); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// QueryRange returns all objects of dim within radius of pos, in no particular order
func (g *Grid) QueryRange(dim int32, pos entity.Vector3, radius entity.Coord) ([]Hit, error) {
	if radius < 0 {
		return nil, nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	radiusSq := radius * radius
	var hits []Hit
	err := g.visit(dim, pos.X-radius, pos.Y-radius, pos.X+radius, pos.Y+radius, func(ref entity.Ref, e *entry) {
		if d := e.pos.DistanceSqTo(pos); d <= radiusSq {
			hits = append(hits, Hit{Ref: ref, DistSq: d})
		}
	})
	if err != nil {
		return nil, err
	}
	return hits, nil
}

// SortHits orders hits by ascending distance, then ref
func SortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].DistSq != hits[j].DistSq {
			return hits[i].DistSq < hits[j].DistSq
		}
		return hits[i].Ref.Less(hits[j].Ref)
	})
}

// QueryNearest returns up to maxCount objects of dim within radius of pos accepted by filter, nearest first.
// A nil filter accepts everything; maxCount <= 0 means no limit.
func (g *Grid) QueryNearest(dim int32, pos entity.Vector3, radius entity.Coord, maxCount int, filter func(entity.Ref) bool) ([]Hit, error) {
	hits, err := g.QueryRange(dim, pos, radius)
	if err != nil {
		return nil, err
	}
	if filter != nil {
		kept := hits[:0]
		for _, h := range hits {
			if filter(h.Ref) {
				kept = append(kept, h)
			}
		}
		hits = kept
	}
	SortHits(hits)
	if maxCount > 0 && len(hits) > maxCount {
		hits = hits[:maxCount]
	}
	return hits, nil
}

// QueryBox returns all objects of dim inside the axis-aligned box, ordered by ref
func (g *Grid) QueryBox(dim int32, min, max entity.Vector3) ([]entity.Ref, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var refs []entity.Ref
	err := g.visit(dim, min.X, min.Y, max.X, max.Y, func(ref entity.Ref, e *entry) {
		p := e.pos
		if p.X >= min.X && p.X <= max.X && p.Y >= min.Y && p.Y <= max.Y && p.Z >= min.Z && p.Z <= max.Z {
			refs = append(refs, ref)
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].Less(refs[j])
	})
	return refs, nil
}

// QueryDimension returns every object of dim, ordered by ref
func (g *Grid) QueryDimension(dim int32) []entity.Ref {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var refs []entity.Ref
	if d := g.dims[dim]; d != nil {
		for _, c := range d.cells {
			for ref := range c {
				refs = append(refs, ref)
			}
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].Less(refs[j])
	})
	return refs
}

// Resync rebuilds the index state of one object from authoritative registry state.
// Stale cell memberships are purged; the object is reinserted if present.
func (g *Grid) Resync(ref entity.Ref, present bool, dim int32, pos entity.Vector3) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for dimID, d := range g.dims {
		for cc, c := range d.cells {
			if _, ok := c[ref]; ok {
				g.removeFromCell(ref, dimID, cc)
			}
		}
	}
	delete(g.entries, ref)
	if present {
		e := &entry{dim: dim, pos: pos, cell: g.cellOf(pos)}
		g.entries[ref] = e
		g.addToCell(ref, dim, e.cell)
	}
}

// CorruptRefs returns the refs whose cell membership disagrees with the entry table
func (g *Grid) CorruptRefs() []entity.Ref {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := map[entity.Ref]bool{}
	for dimID, d := range g.dims {
		for cc, c := range d.cells {
			for ref := range c {
				e := g.entries[ref]
				if e == nil || e.dim != dimID || e.cell != cc {
					seen[ref] = true
				}
			}
		}
	}
	for ref, e := range g.entries {
		d := g.dims[e.dim]
		if d == nil {
			seen[ref] = true
			continue
		}
		if _, ok := d.cells[e.cell][ref]; !ok {
			seen[ref] = true
		}
	}
	refs := make([]entity.Ref, 0, len(seen))
	for ref := range seen {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].Less(refs[j])
	})
	return refs
}
