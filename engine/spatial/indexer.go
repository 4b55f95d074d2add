package spatial

import (
	"github.com/xiaonanln/gostream/engine/entity"
	"github.com/xiaonanln/gostream/engine/gwlog"
)

// Indexer keeps a Grid in sync with a Registry; every streamable object is indexed
type Indexer struct {
	entity.NopListener
	grid     *Grid
	registry *entity.Registry
}

// NewIndexer creates an Indexer and registers it as a registry listener
func NewIndexer(registry *entity.Registry, grid *Grid) *Indexer {
	ix := &Indexer{grid: grid, registry: registry}
	registry.AddListener(ix)
	return ix
}

// Grid returns the maintained grid
func (ix *Indexer) Grid() *Grid {
	return ix.grid
}

func indexed(o *entity.Object) bool {
	return o.Kind().IsStreamable()
}

func (ix *Indexer) OnObjectCreated(o *entity.Object) {
	if !indexed(o) {
		return
	}
	if err := ix.grid.Insert(o.Ref(), o.Dimension(), o.Position()); err != nil {
		gwlog.Errorf("spatial: %v, resyncing", err)
		ix.grid.Resync(o.Ref(), true, o.Dimension(), o.Position())
	}
}

func (ix *Indexer) OnObjectDestroyed(o *entity.Object) {
	if indexed(o) {
		ix.grid.Remove(o.Ref())
	}
}

func (ix *Indexer) OnObjectMoved(o *entity.Object, oldPos entity.Vector3) {
	if !indexed(o) {
		return
	}
	if err := ix.grid.Update(o.Ref(), o.Position()); err != nil {
		gwlog.Errorf("spatial: %v, resyncing", err)
		ix.grid.Resync(o.Ref(), true, o.Dimension(), o.Position())
	}
}

func (ix *Indexer) OnDimensionChanged(o *entity.Object, oldDim int32) {
	if !indexed(o) {
		return
	}
	if err := ix.grid.SetDimension(o.Ref(), o.Dimension()); err != nil {
		gwlog.Errorf("spatial: %v, resyncing", err)
		ix.grid.Resync(o.Ref(), true, o.Dimension(), o.Position())
	}
}

// Resync repairs the grid from authoritative registry state and returns the number of repaired refs
func (ix *Indexer) Resync() int {
	refs := ix.grid.CorruptRefs()
	for _, ref := range refs {
		o := ix.registry.GetRef(ref)
		if o != nil && indexed(o) {
			ix.grid.Resync(ref, true, o.Dimension(), o.Position())
		} else {
			ix.grid.Resync(ref, false, 0, entity.Vector3{})
		}
	}
	// objects missing from the grid entirely
	for _, k := range entity.AllKinds {
		if !k.IsStreamable() {
			continue
		}
		ix.registry.ForEach(k, func(o *entity.Object) bool {
			if !ix.grid.Contains(o.Ref()) {
				ix.grid.Resync(o.Ref(), true, o.Dimension(), o.Position())
				refs = append(refs, o.Ref())
			}
			return true
		})
	}
	if len(refs) > 0 {
		gwlog.Warnf("spatial: resynced %d objects from registry", len(refs))
	}
	return len(refs)
}
