package entity

import (
	"time"

	"github.com/pkg/errors"
)

// Factory constructs the record of a new object; the registry assigns its id afterwards.
// A custom factory is injected with NewRegistry and usually decorates DefaultFactory.
type Factory func(kind Kind, opts *Options) (*Object, error)

// ShapeOptions describes the geometry of a new colshape
type ShapeOptions struct {
	Type   ShapeType
	Radius Coord
	Height Coord
	// Cuboid and Rectangle corners; Rectangle ignores Z
	Min Vector3
	Max Vector3
	// Polygon outline on the XY plane between MinZ and MaxZ
	Points      []Vector2
	MinZ        Coord
	MaxZ        Coord
	PlayersOnly bool
}

// Options carries the creation parameters of every kind; only the fields relevant to the kind are read
type Options struct {
	Dimension         int32
	Pos               Vector3
	Rot               Vector3
	Model             uint32
	StreamingDistance Coord

	Player     *PlayerInfo
	Shape      *ShapeOptions
	Checkpoint *CheckpointState
	Blip       *BlipState
	Marker     *MarkerState
	// Group is the virtual entity group of a new virtual entity
	Group *Object
	// MaxEntitiesInStream bounds a new virtual entity group
	MaxEntitiesInStream int
	Voice               *VoiceChannelOptions
}

// VoiceChannelOptions describes a new voice channel
type VoiceChannelOptions struct {
	Spatial     bool
	MaxDistance Coord
	Priority    int
	Filter      uint32
}

// DefaultFactory builds objects from the capability table of their kind
func DefaultFactory(kind Kind, opts *Options) (*Object, error) {
	if opts.StreamingDistance < 0 {
		return nil, errors.Errorf("negative streaming distance %v", opts.StreamingDistance)
	}
	obj := newObject(kind)
	if kind.IsWorld() {
		obj.dimension = opts.Dimension
		obj.pos = opts.Pos
	}
	if kind.IsStreamable() {
		obj.streamingDistance = opts.StreamingDistance
	}
	if kind.IsEntity() {
		obj.entity = &EntityState{
			rot:       opts.Rot,
			model:     opts.Model,
			collision: true,
		}
	}

	switch kind {
	case KindPlayer:
		if opts.Player == nil {
			return nil, errors.New("player info required")
		}
		obj.player = &PlayerState{
			info:        *opts.Player,
			connectedAt: time.Now(),
			streamed:    map[Ref]Coord{},
		}
	case KindColShape, KindCheckpoint:
		shape, err := newShapeState(kind, opts)
		if err != nil {
			return nil, err
		}
		obj.shape = shape
		if kind == KindCheckpoint {
			cp := CheckpointState{}
			if opts.Checkpoint != nil {
				cp = *opts.Checkpoint
			}
			obj.checkpoint = &cp
		}
	case KindBlip:
		blip := BlipState{}
		if opts.Blip != nil {
			blip = *opts.Blip
		}
		obj.blip = &blip
	case KindMarker:
		marker := MarkerState{Scale: Vector3{1, 1, 1}}
		if opts.Marker != nil {
			marker = *opts.Marker
		}
		obj.marker = &marker
	case KindVirtualEntity:
		if opts.Group == nil || !opts.Group.IsValid() || opts.Group.group == nil {
			return nil, errors.New("virtual entity requires a valid group")
		}
		obj.virtual = &VirtualEntityState{group: opts.Group}
	case KindVirtualEntityGroup:
		if opts.MaxEntitiesInStream <= 0 {
			return nil, errors.Errorf("max entities in stream must be positive: %d", opts.MaxEntitiesInStream)
		}
		obj.group = &VirtualEntityGroupState{MaxEntitiesInStream: opts.MaxEntitiesInStream}
	case KindVoiceChannel:
		vo := VoiceChannelOptions{}
		if opts.Voice != nil {
			vo = *opts.Voice
		}
		obj.voice = &VoiceChannelState{
			spatial:     vo.Spatial,
			maxDistance: vo.MaxDistance,
			priority:    vo.Priority,
			filter:      vo.Filter,
			players:     map[ObjectID]*voiceMember{},
		}
	}
	return obj, nil
}

func newShapeState(kind Kind, opts *Options) (*ShapeState, error) {
	if kind == KindCheckpoint {
		so := ShapeOptions{Type: ShapeCheckpoint, Radius: 1, Height: 1}
		if opts.Shape != nil {
			so.Radius, so.Height, so.PlayersOnly = opts.Shape.Radius, opts.Shape.Height, opts.Shape.PlayersOnly
		}
		if so.Radius <= 0 || so.Height <= 0 {
			return nil, errors.Errorf("checkpoint radius and height must be positive: %v %v", so.Radius, so.Height)
		}
		return &ShapeState{Type: ShapeCheckpoint, Radius: so.Radius, Height: so.Height, PlayersOnly: so.PlayersOnly}, nil
	}

	so := opts.Shape
	if so == nil {
		return nil, errors.New("shape options required")
	}
	st := &ShapeState{
		Type:        so.Type,
		Radius:      so.Radius,
		Height:      so.Height,
		Min:         so.Min,
		Max:         so.Max,
		MinZ:        so.MinZ,
		MaxZ:        so.MaxZ,
		PlayersOnly: so.PlayersOnly,
	}
	switch so.Type {
	case ShapeSphere, ShapeCircle:
		if so.Radius <= 0 {
			return nil, errors.Errorf("%s radius must be positive: %v", so.Type, so.Radius)
		}
	case ShapeCylinder:
		if so.Radius <= 0 || so.Height <= 0 {
			return nil, errors.Errorf("cylinder radius and height must be positive: %v %v", so.Radius, so.Height)
		}
	case ShapeCuboid, ShapeRectangle:
		if so.Min.X > so.Max.X || so.Min.Y > so.Max.Y || (so.Type == ShapeCuboid && so.Min.Z > so.Max.Z) {
			return nil, errors.Errorf("%s min %s exceeds max %s", so.Type, so.Min, so.Max)
		}
	case ShapePolygon:
		if len(so.Points) < 3 {
			return nil, errors.Errorf("polygon needs at least 3 points, got %d", len(so.Points))
		}
		if so.MinZ > so.MaxZ {
			return nil, errors.Errorf("polygon minZ %v exceeds maxZ %v", so.MinZ, so.MaxZ)
		}
		st.Points = append([]Vector2(nil), so.Points...)
	default:
		return nil, errors.Errorf("unknown shape type %d", so.Type)
	}
	return st, nil
}
