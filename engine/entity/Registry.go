package entity

import (
	"github.com/pkg/errors"
	"github.com/xiaonanln/gostream/engine/gwutils"
)

var (
	// ErrInvalidKind is returned when creating an object of an unknown kind
	ErrInvalidKind = errors.New("invalid object kind")
	// ErrIDsExhausted is returned when a kind has no id left
	ErrIDsExhausted = errors.New("object ids exhausted")
)

// Listener receives registry-change and object-change notifications on the main routine
type Listener interface {
	OnObjectCreated(o *Object)
	OnObjectDestroyed(o *Object)
	OnObjectMoved(o *Object, oldPos Vector3)
	OnDimensionChanged(o *Object, oldDim int32)
	OnObjectChanged(o *Object, field Field)
	OnMetaChanged(c *MetaChange)
}

// NopListener implements Listener with no-ops, embed it to implement only some callbacks
type NopListener struct{}

func (NopListener) OnObjectCreated(o *Object)                  {}
func (NopListener) OnObjectDestroyed(o *Object)                {}
func (NopListener) OnObjectMoved(o *Object, oldPos Vector3)    {}
func (NopListener) OnDimensionChanged(o *Object, oldDim int32) {}
func (NopListener) OnObjectChanged(o *Object, field Field)     {}
func (NopListener) OnMetaChanged(c *MetaChange)                {}

const _MAX_OBJECT_ID = ^ObjectID(0)

// arena holds all objects of one kind, indexed by id
type arena struct {
	slots []*Object
	// ids ready for reuse, oldest first
	free []ObjectID
	// ids of destroyed objects whose destruction is still propagating
	pending []ObjectID
	count   int
}

func newArena() *arena {
	return &arena{
		slots: []*Object{nil}, // id 0 is never used
	}
}

func (a *arena) alloc() (ObjectID, error) {
	if len(a.free) > 0 {
		id := a.free[0]
		a.free = a.free[1:]
		return id, nil
	}
	if ObjectID(len(a.slots)) == _MAX_OBJECT_ID {
		return 0, ErrIDsExhausted
	}
	a.slots = append(a.slots, nil)
	return ObjectID(len(a.slots) - 1), nil
}

// Registry is the authoritative store of all objects; it must only be mutated on the main routine
type Registry struct {
	factory   Factory
	arenas    [kindCount]*arena
	listeners []Listener

	maxStreamingDistance Coord
}

// NewRegistry creates a registry using factory to construct objects; nil selects DefaultFactory
func NewRegistry(factory Factory) *Registry {
	if factory == nil {
		factory = DefaultFactory
	}
	r := &Registry{
		factory: factory,
	}
	for _, k := range AllKinds {
		r.arenas[k] = newArena()
	}
	return r
}

// AddListener registers a listener; listeners are notified in registration order
func (r *Registry) AddListener(l Listener) {
	r.listeners = append(r.listeners, l)
}

// Create constructs and registers a new object
func (r *Registry) Create(kind Kind, opts *Options) (*Object, error) {
	if !kind.IsValid() {
		return nil, ErrInvalidKind
	}
	if opts == nil {
		opts = &Options{}
	}
	if kind.IsWorld() && !opts.Pos.IsFinite() {
		return nil, errors.Errorf("create %s: invalid position %s", kind, opts.Pos)
	}

	obj, err := r.factory(kind, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", kind)
	}
	if obj == nil || obj.Kind() != kind {
		return nil, errors.Errorf("create %s: factory returned %v", kind, obj)
	}

	a := r.arenas[kind]
	id, err := a.alloc()
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", kind)
	}
	obj.ref = Ref{Kind: kind, ID: id}
	obj.registry = r
	a.slots[id] = obj
	a.count++
	r.noteStreamingDistance(obj.streamingDistance)

	for _, l := range r.listeners {
		l := l
		gwutils.RunPanicless(func() {
			l.OnObjectCreated(obj)
		})
	}
	return obj, nil
}

// Destroy removes an object; destroying an already destroyed object is a no-op
func (r *Registry) Destroy(obj *Object) bool {
	if obj == nil || obj.destroyed || obj.registry != r {
		return false
	}
	// members of a group go first
	if obj.Kind() == KindVirtualEntityGroup {
		for _, member := range r.AllOfType(KindVirtualEntity) {
			if member.virtual.group == obj {
				r.Destroy(member)
			}
		}
	}

	a := r.arenas[obj.Kind()]
	obj.destroyed = true
	a.slots[obj.ID()] = nil
	a.count--

	for _, l := range r.listeners {
		l := l
		gwutils.RunPanicless(func() {
			l.OnObjectDestroyed(obj)
		})
	}
	obj.observers = PlayerSet{}
	obj.knownBy = PlayerSet{}
	a.pending = append(a.pending, obj.ID())
	return true
}

// Flush makes the ids of destroyed objects reusable; call once per tick after all destroy notifications ran
func (r *Registry) Flush() {
	for _, k := range AllKinds {
		a := r.arenas[k]
		if len(a.pending) > 0 {
			a.free = append(a.free, a.pending...)
			a.pending = a.pending[:0]
		}
	}
}

// Get returns the live object of kind with id, or nil
func (r *Registry) Get(kind Kind, id ObjectID) *Object {
	if !kind.IsValid() {
		return nil
	}
	a := r.arenas[kind]
	if id == 0 || int(id) >= len(a.slots) {
		return nil
	}
	return a.slots[id]
}

// GetRef returns the live object referenced by ref, or nil
func (r *Registry) GetRef(ref Ref) *Object {
	return r.Get(ref.Kind, ref.ID)
}

// AllOfType returns all live objects of kind ordered by id
func (r *Registry) AllOfType(kind Kind) []*Object {
	if !kind.IsValid() {
		return nil
	}
	a := r.arenas[kind]
	objs := make([]*Object, 0, a.count)
	for _, obj := range a.slots {
		if obj != nil {
			objs = append(objs, obj)
		}
	}
	return objs
}

// ForEach calls f on all live objects of kind in id order until f returns false
func (r *Registry) ForEach(kind Kind, f func(o *Object) bool) {
	if !kind.IsValid() {
		return
	}
	for _, obj := range r.arenas[kind].slots {
		if obj != nil && !f(obj) {
			return
		}
	}
}

// Count returns the number of live objects of kind
func (r *Registry) Count(kind Kind) int {
	if !kind.IsValid() {
		return 0
	}
	return r.arenas[kind].count
}

// MaxStreamingDistance is the largest object-specific streaming distance ever set
func (r *Registry) MaxStreamingDistance() Coord {
	return r.maxStreamingDistance
}

func (r *Registry) noteStreamingDistance(d Coord) {
	if r != nil && d > r.maxStreamingDistance {
		r.maxStreamingDistance = d
	}
}

func (r *Registry) fireMoved(o *Object, old Vector3) {
	if r == nil {
		return
	}
	for _, l := range r.listeners {
		l.OnObjectMoved(o, old)
	}
}

func (r *Registry) fireDimensionChanged(o *Object, old int32) {
	if r == nil {
		return
	}
	for _, l := range r.listeners {
		l.OnDimensionChanged(o, old)
	}
}

func (r *Registry) fireChanged(o *Object, field Field) {
	if r == nil {
		return
	}
	for _, l := range r.listeners {
		l.OnObjectChanged(o, field)
	}
}

func (r *Registry) fireMetaChanged(c *MetaChange) {
	if r == nil {
		return
	}
	for _, l := range r.listeners {
		l.OnMetaChanged(c)
	}
}
