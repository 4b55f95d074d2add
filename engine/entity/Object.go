package entity

import (
	"fmt"
	"sort"
)

// ObjectID is the numeric id of an object, unique per kind
type ObjectID uint32

// Ref identifies an object across kinds
type Ref struct {
	Kind Kind
	ID   ObjectID
}

func (r Ref) String() string {
	return fmt.Sprintf("%s<%d>", r.Kind, r.ID)
}

// Less orders refs by id, then kind
func (r Ref) Less(o Ref) bool {
	if r.ID != o.ID {
		return r.ID < o.ID
	}
	return r.Kind < o.Kind
}

// IsNil returns if the ref points to nothing
func (r Ref) IsNil() bool {
	return r.ID == 0
}

// Object is the single record type of the registry: a shared base plus one payload selected by Kind
type Object struct {
	ref       Ref
	registry  *Registry
	destroyed bool

	dimension         int32
	pos               Vector3
	streamingDistance Coord
	visible           bool
	streamed          bool
	timestamp         uint64

	meta             MetaMap
	syncedMeta       MetaMap
	streamSyncedMeta MetaMap

	// players currently streaming this object
	observers PlayerSet
	// players that were ever told this object exists
	knownBy PlayerSet

	entity     *EntityState
	player     *PlayerState
	shape      *ShapeState
	checkpoint *CheckpointState
	blip       *BlipState
	marker     *MarkerState
	virtual    *VirtualEntityState
	group      *VirtualEntityGroupState
	voice      *VoiceChannelState
}

func newObject(kind Kind) *Object {
	return &Object{
		ref:              Ref{Kind: kind},
		visible:          true,
		streamed:         true,
		meta:             MetaMap{},
		syncedMeta:       MetaMap{},
		streamSyncedMeta: MetaMap{},
		observers:        PlayerSet{},
		knownBy:          PlayerSet{},
	}
}

func (o *Object) String() string {
	if o == nil {
		return "Object<nil>"
	}
	return o.ref.String()
}

// Ref returns the kind and id of the object
func (o *Object) Ref() Ref {
	return o.ref
}

// ID returns the id of the object
func (o *Object) ID() ObjectID {
	return o.ref.ID
}

// Kind returns the type tag of the object
func (o *Object) Kind() Kind {
	return o.ref.Kind
}

// IsValid returns false once the object is destroyed
func (o *Object) IsValid() bool {
	return o != nil && !o.destroyed
}

// Destroy removes the object from the registry; destroying twice is a no-op
func (o *Object) Destroy() {
	if o == nil || o.registry == nil {
		return
	}
	o.registry.Destroy(o)
}

// Timestamp is bumped on every owner-visible mutation
func (o *Object) Timestamp() uint64 {
	return o.timestamp
}

func (o *Object) bump() {
	o.timestamp++
}

// Dimension returns the dimension of the object
func (o *Object) Dimension() int32 {
	return o.dimension
}

// Position returns the position of the object
func (o *Object) Position() Vector3 {
	return o.pos
}

// SetPosition moves a world object; returns false for invalid objects or positions
func (o *Object) SetPosition(pos Vector3) bool {
	if !o.IsValid() || !o.Kind().IsWorld() || !pos.IsFinite() {
		return false
	}
	old := o.pos
	o.pos = pos
	o.bump()
	if o.registry != nil {
		o.registry.fireMoved(o, old)
	}
	return true
}

// SetDimension moves a world object to another dimension
func (o *Object) SetDimension(dim int32) bool {
	if !o.IsValid() || !o.Kind().IsWorld() {
		return false
	}
	if dim == o.dimension {
		return true
	}
	old := o.dimension
	o.dimension = dim
	o.bump()
	if o.registry != nil {
		o.registry.fireDimensionChanged(o, old)
	}
	return true
}

// StreamingDistance returns the object-specific streaming distance, 0 means server default
func (o *Object) StreamingDistance() Coord {
	return o.streamingDistance
}

// EffectiveStreamingDistance returns the streaming distance after applying the server default
func (o *Object) EffectiveStreamingDistance(def Coord) Coord {
	if o.streamingDistance > 0 {
		return o.streamingDistance
	}
	return def
}

// SetStreamingDistance sets the object-specific streaming distance
func (o *Object) SetStreamingDistance(d Coord) bool {
	if !o.IsValid() || !o.Kind().IsStreamable() || d < 0 {
		return false
	}
	o.streamingDistance = d
	o.bump()
	if o.registry != nil {
		o.registry.noteStreamingDistance(d)
		o.registry.fireChanged(o, FieldStreamingDistance)
	}
	return true
}

// Visible returns if clients should render the object
func (o *Object) Visible() bool {
	return o.visible
}

// SetVisible changes the visibility flag
func (o *Object) SetVisible(v bool) bool {
	if !o.IsValid() {
		return false
	}
	o.visible = v
	o.bump()
	if o.registry != nil {
		o.registry.fireChanged(o, FieldVisible)
	}
	return true
}

// Streamed returns false if the object is excluded from streaming
func (o *Object) Streamed() bool {
	return o.streamed
}

// SetStreamed includes or excludes the object from streaming, effective on the next streaming pass
func (o *Object) SetStreamed(v bool) bool {
	if !o.IsValid() || !o.Kind().IsStreamable() {
		return false
	}
	o.streamed = v
	o.bump()
	return true
}

// Observers returns the players currently streaming the object
func (o *Object) Observers() PlayerSet {
	return o.observers
}

// IsObservedBy returns if the player currently streams the object
func (o *Object) IsObservedBy(player *Object) bool {
	return player != nil && o.observers.Contains(player)
}

// KnownBy returns the players that were told the object exists
func (o *Object) KnownBy() PlayerSet {
	return o.knownBy
}

// AddObserver is called by the streaming manager when the object streams in to player
func (o *Object) AddObserver(player *Object) {
	o.observers.Add(player)
	o.knownBy.Add(player)
}

// RemoveObserver is called by the streaming manager when the object streams out of player
func (o *Object) RemoveObserver(player *Object) {
	o.observers.Del(player.ID())
}

// AddKnownBy marks the object as announced to player
func (o *Object) AddKnownBy(player *Object) {
	o.knownBy.Add(player)
}

// ForgetPlayer drops every reference to player
func (o *Object) ForgetPlayer(player ObjectID) {
	o.observers.Del(player)
	o.knownBy.Del(player)
}

// Entity returns the entity payload, nil for non-entities
func (o *Object) Entity() *EntityState { return o.entity }

// Player returns the player payload, nil for non-players
func (o *Object) Player() *PlayerState { return o.player }

// Shape returns the shape payload of colshapes and checkpoints
func (o *Object) Shape() *ShapeState { return o.shape }

// Checkpoint returns the checkpoint payload
func (o *Object) Checkpoint() *CheckpointState { return o.checkpoint }

// Blip returns the blip payload
func (o *Object) Blip() *BlipState { return o.blip }

// Marker returns the marker payload
func (o *Object) Marker() *MarkerState { return o.marker }

// VirtualEntity returns the virtual entity payload
func (o *Object) VirtualEntity() *VirtualEntityState { return o.virtual }

// VirtualEntityGroup returns the virtual entity group payload
func (o *Object) VirtualEntityGroup() *VirtualEntityGroupState { return o.group }

// VoiceChannel returns the voice channel payload
func (o *Object) VoiceChannel() *VoiceChannelState { return o.voice }

// PlayerSet is a set of players indexed by id
type PlayerSet map[ObjectID]*Object

// Add adds a player to the set
func (ps PlayerSet) Add(player *Object) {
	ps[player.ID()] = player
}

// Del removes a player from the set
func (ps PlayerSet) Del(id ObjectID) {
	delete(ps, id)
}

// Contains returns if the player is in the set
func (ps PlayerSet) Contains(player *Object) bool {
	_, ok := ps[player.ID()]
	return ok
}

// Sorted returns the players ordered by id
func (ps PlayerSet) Sorted() []*Object {
	list := make([]*Object, 0, len(ps))
	for _, p := range ps {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID() < list[j].ID()
	})
	return list
}
