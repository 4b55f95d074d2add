package entity

import (
	"fmt"
	"strings"
)

// Kind is the type tag of every object in the registry
type Kind uint8

const (
	KindPlayer Kind = iota + 1
	KindVehicle
	KindPed
	KindObject
	KindBlip
	KindMarker
	KindColShape
	KindCheckpoint
	KindVirtualEntity
	KindVirtualEntityGroup
	KindVoiceChannel

	kindCount = int(KindVoiceChannel) + 1
)

// capability describes what the engine does with objects of one kind
type capability struct {
	name string
	// world objects have a dimension and a position
	world bool
	// entities have rotation, flags and may carry a net owner
	entity bool
	// streamable objects live in the spatial index and are streamed to players
	streamable bool
	// ownable entities take part in net owner migration
	ownable bool
	// collidable objects are tested against colshapes
	collidable bool
	// shapes are colshapes or checkpoints
	shape bool
	// global objects are announced to every player instead of being streamed
	global bool
	// priority orders stream-in candidates, lower first
	priority int
}

var capabilities = [kindCount]capability{
	KindPlayer:             {name: "Player", world: true, entity: true, streamable: true, collidable: true, priority: 0},
	KindVehicle:            {name: "Vehicle", world: true, entity: true, streamable: true, ownable: true, collidable: true, priority: 1},
	KindPed:                {name: "Ped", world: true, entity: true, streamable: true, ownable: true, collidable: true, priority: 2},
	KindObject:             {name: "Object", world: true, entity: true, streamable: true, ownable: true, collidable: true, priority: 3},
	KindCheckpoint:         {name: "Checkpoint", world: true, streamable: true, shape: true, priority: 4},
	KindMarker:             {name: "Marker", world: true, streamable: true, priority: 5},
	KindVirtualEntity:      {name: "VirtualEntity", world: true, streamable: true, priority: 6},
	KindBlip:               {name: "Blip", world: true, global: true},
	KindColShape:           {name: "ColShape", world: true, shape: true},
	KindVirtualEntityGroup: {name: "VirtualEntityGroup"},
	KindVoiceChannel:       {name: "VoiceChannel"},
}

// AllKinds lists every valid kind in ascending order
var AllKinds = []Kind{
	KindPlayer, KindVehicle, KindPed, KindObject, KindBlip, KindMarker, KindColShape,
	KindCheckpoint, KindVirtualEntity, KindVirtualEntityGroup, KindVoiceChannel,
}

func (k Kind) caps() *capability {
	if !k.IsValid() {
		return &capability{}
	}
	return &capabilities[k]
}

// IsValid returns if k is a known kind
func (k Kind) IsValid() bool {
	return k >= KindPlayer && int(k) < kindCount
}

// IsWorld returns if objects of this kind have a position and a dimension
func (k Kind) IsWorld() bool { return k.caps().world }

// IsEntity returns if objects of this kind are entities
func (k Kind) IsEntity() bool { return k.caps().entity }

// IsStreamable returns if objects of this kind are streamed to players
func (k Kind) IsStreamable() bool { return k.caps().streamable }

// IsOwnable returns if objects of this kind can have a net owner
func (k Kind) IsOwnable() bool { return k.caps().ownable }

// IsCollidable returns if objects of this kind are tested against colshapes
func (k Kind) IsCollidable() bool { return k.caps().collidable }

// IsShape returns if objects of this kind are colshapes
func (k Kind) IsShape() bool { return k.caps().shape }

// IsGlobal returns if objects of this kind are known by every player
func (k Kind) IsGlobal() bool { return k.caps().global }

// StreamPriority orders stream-in candidates, lower ranks first
func (k Kind) StreamPriority() int { return k.caps().priority }

func (k Kind) String() string {
	if !k.IsValid() {
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
	return k.caps().name
}

// ParseKind converts a kind name (case insensitive) to Kind
func ParseKind(name string) (Kind, bool) {
	for _, k := range AllKinds {
		if strings.EqualFold(k.String(), name) {
			return k, true
		}
	}
	return 0, false
}

// KindMask is a set of kinds used to filter queries
type KindMask uint32

// AllEntityKinds matches every entity kind
const AllEntityKinds = KindMask(1<<KindPlayer | 1<<KindVehicle | 1<<KindPed | 1<<KindObject)

// MaskOf builds a KindMask from kinds
func MaskOf(kinds ...Kind) KindMask {
	var m KindMask
	for _, k := range kinds {
		m |= 1 << k
	}
	return m
}

// Has returns if the mask contains k
func (m KindMask) Has(k Kind) bool {
	return m&(1<<k) != 0
}
