package entity

import (
	"sort"
	"time"

	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
)

// Field names a base-state field whose change is replicated to observers
type Field uint8

const (
	FieldRotation Field = iota + 1
	FieldVisible
	FieldStreamingDistance
	FieldCollision
	FieldFrozen
	FieldModel
	FieldNextPos
)

// RGBA is a color
type RGBA struct {
	R, G, B, A uint8
}

// EntityState is the payload of players, vehicles, peds and objects
type EntityState struct {
	owner             *Object
	rot               Vector3
	model             uint32
	collision         bool
	frozen            bool
	migrationDisabled bool
}

// Rotation returns the rotation of the entity
func (o *Object) Rotation() Vector3 {
	if o.entity == nil {
		return Vector3{}
	}
	return o.entity.rot
}

// SetRotation changes the rotation of an entity
func (o *Object) SetRotation(rot Vector3) bool {
	if !o.IsValid() || o.entity == nil || !rot.IsFinite() {
		return false
	}
	o.entity.rot = rot
	o.bump()
	o.registry.fireChanged(o, FieldRotation)
	return true
}

// Model returns the model hash of the entity
func (o *Object) Model() uint32 {
	if o.entity == nil {
		return 0
	}
	return o.entity.model
}

// SetModel changes the model hash of an entity
func (o *Object) SetModel(model uint32) bool {
	if !o.IsValid() || o.entity == nil {
		return false
	}
	o.entity.model = model
	o.bump()
	o.registry.fireChanged(o, FieldModel)
	return true
}

// Collision returns the collision flag of the entity
func (o *Object) Collision() bool {
	return o.entity != nil && o.entity.collision
}

// SetCollision changes the collision flag of an entity
func (o *Object) SetCollision(v bool) bool {
	if !o.IsValid() || o.entity == nil {
		return false
	}
	o.entity.collision = v
	o.bump()
	o.registry.fireChanged(o, FieldCollision)
	return true
}

// Frozen returns the frozen flag of the entity
func (o *Object) Frozen() bool {
	return o.entity != nil && o.entity.frozen
}

// SetFrozen changes the frozen flag of an entity
func (o *Object) SetFrozen(v bool) bool {
	if !o.IsValid() || o.entity == nil {
		return false
	}
	o.entity.frozen = v
	o.bump()
	o.registry.fireChanged(o, FieldFrozen)
	return true
}

// NetOwner returns the player owning the entity, or nil
func (o *Object) NetOwner() *Object {
	if o.entity == nil || !o.entity.owner.IsValid() {
		return nil
	}
	return o.entity.owner
}

// MigrationDisabled returns if automatic owner migration is disabled for the entity
func (o *Object) MigrationDisabled() bool {
	return o.entity != nil && o.entity.migrationDisabled
}

// IsOwnedBy returns if player is the recorded owner, even when player was just destroyed
func (o *Object) IsOwnedBy(player *Object) bool {
	return player != nil && o.entity != nil && o.entity.owner == player
}

// AssignNetOwner is the low-level owner write used by the migration manager; returns the recorded old owner
func (o *Object) AssignNetOwner(owner *Object, disableMigration bool) (old *Object) {
	old = o.entity.owner
	o.entity.owner = owner
	o.entity.migrationDisabled = disableMigration
	if old != owner {
		o.bump()
	}
	return old
}

// PlayerInfo is the connection metadata of a player
type PlayerInfo struct {
	Name      string
	ClientID  string
	IP        string
	AuthToken string
}

// PlayerState is the payload of players
type PlayerState struct {
	info                 PlayerInfo
	ping                 time.Duration
	connectedAt          time.Time
	netOwnershipDisabled bool
	disconnected         xnsyncutil.AtomicBool
	// streamed objects with their squared distance at the last streaming pass
	streamed map[Ref]Coord
}

// Info returns the connection metadata
func (ps *PlayerState) Info() PlayerInfo {
	return ps.info
}

// Name returns the player name
func (ps *PlayerState) Name() string {
	return ps.info.Name
}

// Ping returns the last measured round trip time
func (ps *PlayerState) Ping() time.Duration {
	return ps.ping
}

// SetPing records a measured round trip time
func (ps *PlayerState) SetPing(d time.Duration) {
	ps.ping = d
}

// ConnectedAt returns the time the player was accepted
func (ps *PlayerState) ConnectedAt() time.Time {
	return ps.connectedAt
}

// NetOwnershipDisabled returns if the player is excluded from automatic ownership
func (ps *PlayerState) NetOwnershipDisabled() bool {
	return ps.netOwnershipDisabled
}

// SetNetOwnershipDisabled excludes or includes the player in automatic ownership
func (ps *PlayerState) SetNetOwnershipDisabled(v bool) {
	ps.netOwnershipDisabled = v
}

// MarkDisconnected flags the player as gone; safe to call from network goroutines
func (ps *PlayerState) MarkDisconnected() {
	ps.disconnected.Store(true)
}

// Disconnected returns if the connection of the player is gone
func (ps *PlayerState) Disconnected() bool {
	return ps.disconnected.Load()
}

// StreamedCount returns the number of objects streamed to the player
func (ps *PlayerState) StreamedCount() int {
	return len(ps.streamed)
}

// IsStreamed returns if the object is streamed to the player
func (ps *PlayerState) IsStreamed(ref Ref) bool {
	_, ok := ps.streamed[ref]
	return ok
}

// StreamedDistanceSq returns the squared distance of a streamed object at the last streaming pass
func (ps *PlayerState) StreamedDistanceSq(ref Ref) (Coord, bool) {
	d, ok := ps.streamed[ref]
	return d, ok
}

// StreamedRefs returns the streamed objects ordered by ref
func (ps *PlayerState) StreamedRefs() []Ref {
	refs := make([]Ref, 0, len(ps.streamed))
	for ref := range ps.streamed {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].Less(refs[j])
	})
	return refs
}

// SetStreamed records an object as streamed at squared distance distSq
func (ps *PlayerState) SetStreamed(ref Ref, distSq Coord) {
	ps.streamed[ref] = distSq
}

// Unstream forgets a streamed object
func (ps *PlayerState) Unstream(ref Ref) {
	delete(ps.streamed, ref)
}

// ShapeType selects the containment predicate of a colshape
type ShapeType uint8

const (
	ShapeSphere ShapeType = iota + 1
	ShapeCylinder
	ShapeCircle
	ShapeCuboid
	ShapeRectangle
	ShapePolygon
	ShapeCheckpoint
)

var shapeTypeNames = map[ShapeType]string{
	ShapeSphere:     "Sphere",
	ShapeCylinder:   "Cylinder",
	ShapeCircle:     "Circle",
	ShapeCuboid:     "Cuboid",
	ShapeRectangle:  "Rectangle",
	ShapePolygon:    "Polygon",
	ShapeCheckpoint: "Checkpoint",
}

func (st ShapeType) String() string {
	if name, ok := shapeTypeNames[st]; ok {
		return name
	}
	return "Unknown"
}

// ShapeState is the geometry of colshapes and checkpoints
type ShapeState struct {
	Type        ShapeType
	Radius      Coord
	Height      Coord
	Min         Vector3
	Max         Vector3
	Points      []Vector2
	MinZ        Coord
	MaxZ        Coord
	PlayersOnly bool
}

// CheckpointState is the payload of checkpoints
type CheckpointState struct {
	CheckpointType uint8
	NextPos        Vector3
	Color          RGBA
	IconColor      RGBA
}

// SetNextPos chains the checkpoint to the next position of a route
func (o *Object) SetNextPos(next Vector3) bool {
	if !o.IsValid() || o.checkpoint == nil || !next.IsFinite() {
		return false
	}
	o.checkpoint.NextPos = next
	o.bump()
	o.registry.fireChanged(o, FieldNextPos)
	return true
}

// BlipState is the payload of blips
type BlipState struct {
	Sprite     uint16
	Color      uint16
	Name       string
	ShortRange bool
}

// MarkerState is the payload of markers
type MarkerState struct {
	MarkerType uint32
	Color      RGBA
	Scale      Vector3
	Dir        Vector3
}

// VirtualEntityState is the payload of virtual entities
type VirtualEntityState struct {
	group *Object
}

// Group returns the group the virtual entity belongs to
func (vs *VirtualEntityState) Group() *Object {
	return vs.group
}

// VirtualEntityGroupState is the payload of virtual entity groups
type VirtualEntityGroupState struct {
	MaxEntitiesInStream int
}
