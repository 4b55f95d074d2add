package colshape

import (
	"sort"

	"github.com/xiaonanln/gostream/engine/consts"
	"github.com/xiaonanln/gostream/engine/entity"
	"github.com/xiaonanln/gostream/engine/gwlog"
	"github.com/xiaonanln/gostream/engine/gwutils"
	"github.com/xiaonanln/gostream/engine/opmon"
)

// Index answers the broad-phase box queries; implemented by *spatial.Grid
type Index interface {
	QueryBox(dim int32, min, max entity.Vector3) ([]entity.Ref, error)
}

// Handler receives transitions on the main routine
type Handler interface {
	OnEnter(shape, ent *entity.Object)
	OnLeave(shape, ent *entity.Object)
}

type refSet map[entity.Ref]struct{}

// Engine tracks which collidable entities are inside each shape
type Engine struct {
	registry *entity.Registry
	index    Index
	handler  Handler
	members  map[entity.Ref]refSet
}

// NewEngine creates a collision engine
func NewEngine(registry *entity.Registry, index Index, handler Handler) *Engine {
	return &Engine{
		registry: registry,
		index:    index,
		handler:  handler,
		members:  map[entity.Ref]refSet{},
	}
}

// Tick evaluates every shape once; per shape, leaves are reported before enters, each in ref order
func (e *Engine) Tick() {
	op := opmon.StartOperation("colshape.Tick")
	defer op.Finish(consts.TICK_WARN_THRESHOLD)

	for _, k := range entity.AllKinds {
		if !k.IsShape() {
			continue
		}
		for _, shape := range e.registry.AllOfType(k) {
			if shape.IsValid() {
				e.evaluate(shape)
			}
		}
	}
}

func (e *Engine) evaluate(shape *entity.Object) {
	inside, err := e.inside(shape)
	if err != nil {
		gwlog.Errorf("colshape: %s skipped: %v", shape, err)
		return
	}

	cur := e.members[shape.Ref()]
	var leaves, enters []entity.Ref
	for ref := range cur {
		if _, ok := inside[ref]; !ok {
			leaves = append(leaves, ref)
		}
	}
	for ref := range inside {
		if _, ok := cur[ref]; !ok {
			enters = append(enters, ref)
		}
	}
	sortRefs(leaves)
	sortRefs(enters)
	e.members[shape.Ref()] = inside

	for _, ref := range leaves {
		if ent := e.registry.GetRef(ref); ent != nil {
			e.notify(shape, ent, false)
		}
	}
	for _, ref := range enters {
		if ent := e.registry.GetRef(ref); ent != nil {
			e.notify(shape, ent, true)
		}
	}
}

func (e *Engine) inside(shape *entity.Object) (refSet, error) {
	min, max, ok := Bounds(shape)
	if !ok {
		return refSet{}, nil
	}
	cands, err := e.index.QueryBox(shape.Dimension(), min, max)
	if err != nil {
		return nil, err
	}
	playersOnly := shape.Shape().PlayersOnly
	inside := refSet{}
	for _, ref := range cands {
		if !ref.Kind.IsCollidable() || (playersOnly && ref.Kind != entity.KindPlayer) {
			continue
		}
		ent := e.registry.GetRef(ref)
		if ent == nil || ent.Dimension() != shape.Dimension() {
			continue
		}
		if Contains(shape, ent.Position()) {
			inside[ref] = struct{}{}
		}
	}
	return inside, nil
}

func (e *Engine) notify(shape, ent *entity.Object, enter bool) {
	if consts.DEBUG_COLSHAPES {
		gwlog.Debugf("colshape: %s enter=%v %s", ent, enter, shape)
	}
	if e.handler == nil {
		return
	}
	gwutils.RunPanicless(func() {
		if enter {
			e.handler.OnEnter(shape, ent)
		} else {
			e.handler.OnLeave(shape, ent)
		}
	})
}

// HandleDestroyed forgets a destroyed shape or entity without reporting transitions
func (e *Engine) HandleDestroyed(obj *entity.Object) {
	if obj.Kind().IsShape() {
		delete(e.members, obj.Ref())
		return
	}
	if !obj.Kind().IsCollidable() {
		return
	}
	for _, set := range e.members {
		delete(set, obj.Ref())
	}
}

// IsEntityIn returns if ent was inside shape at the last evaluation
func (e *Engine) IsEntityIn(shape, ent *entity.Object) bool {
	if !shape.IsValid() || !ent.IsValid() {
		return false
	}
	return e.IsEntityIDIn(shape, ent.Ref())
}

// IsEntityIDIn returns if the referenced entity was inside shape at the last evaluation
func (e *Engine) IsEntityIDIn(shape *entity.Object, ref entity.Ref) bool {
	if !shape.IsValid() {
		return false
	}
	_, ok := e.members[shape.Ref()][ref]
	return ok
}

// IsPointIn tests a point against shape right now
func (e *Engine) IsPointIn(shape *entity.Object, p entity.Vector3) bool {
	return shape.IsValid() && Contains(shape, p)
}

// Members returns the entities inside shape, ordered by ref
func (e *Engine) Members(shape *entity.Object) []entity.Ref {
	set := e.members[shape.Ref()]
	refs := make([]entity.Ref, 0, len(set))
	for ref := range set {
		refs = append(refs, ref)
	}
	sortRefs(refs)
	return refs
}

func sortRefs(refs []entity.Ref) {
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].Less(refs[j])
	})
}
