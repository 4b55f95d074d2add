package world

import (
	"github.com/xiaonanln/gostream/engine/entity"
	"github.com/xiaonanln/gostream/engine/proto"
)

func wireRef(o *entity.Object) proto.ObjectRef {
	if o == nil {
		return proto.ObjectRef{}
	}
	return proto.ObjectRef{Kind: uint8(o.Kind()), ID: uint32(o.ID())}
}

func wireVec(v entity.Vector3) proto.Vector3 {
	return proto.Vector3{X: float32(v.X), Y: float32(v.Y), Z: float32(v.Z)}
}

func fromWireVec(v proto.Vector3) entity.Vector3 {
	return entity.Vector3{X: entity.Coord(v.X), Y: entity.Coord(v.Y), Z: entity.Coord(v.Z)}
}

func fromWireRef(r proto.ObjectRef) entity.Ref {
	return entity.Ref{Kind: entity.Kind(r.Kind), ID: entity.ObjectID(r.ID)}
}

func packRGBA(c entity.RGBA) uint32 {
	return uint32(c.R)<<24 | uint32(c.G)<<16 | uint32(c.B)<<8 | uint32(c.A)
}

// kindExtra carries the payload fields that only some kinds have
func kindExtra(o *entity.Object) map[string]interface{} {
	switch o.Kind() {
	case entity.KindCheckpoint:
		shape, cp := o.Shape(), o.Checkpoint()
		return map[string]interface{}{
			"type":      cp.CheckpointType,
			"radius":    float32(shape.Radius),
			"height":    float32(shape.Height),
			"color":     packRGBA(cp.Color),
			"iconColor": packRGBA(cp.IconColor),
			"nextPos":   wireVec(cp.NextPos),
		}
	case entity.KindMarker:
		m := o.Marker()
		return map[string]interface{}{
			"type":  m.MarkerType,
			"color": packRGBA(m.Color),
			"scale": wireVec(m.Scale),
			"dir":   wireVec(m.Dir),
		}
	case entity.KindBlip:
		b := o.Blip()
		return map[string]interface{}{
			"sprite":     b.Sprite,
			"color":      b.Color,
			"name":       b.Name,
			"shortRange": b.ShortRange,
		}
	case entity.KindVirtualEntity:
		return map[string]interface{}{
			"group": uint32(o.VirtualEntity().Group().ID()),
		}
	case entity.KindPlayer:
		return map[string]interface{}{
			"name": o.Player().Name(),
		}
	}
	return nil
}

func streamInMsg(o *entity.Object) *proto.StreamIn {
	return &proto.StreamIn{
		Object:           wireRef(o),
		Dimension:        o.Dimension(),
		Pos:              wireVec(o.Position()),
		Rot:              wireVec(o.Rotation()),
		Model:            o.Model(),
		Visible:          o.Visible(),
		Owner:            wireRef(o.NetOwner()),
		SyncedMeta:       o.Meta(entity.TierSynced).Copy(),
		StreamSyncedMeta: o.Meta(entity.TierStreamSynced).Copy(),
		Extra:            kindExtra(o),
	}
}

func objectCreateMsg(o *entity.Object) *proto.ObjectCreate {
	return &proto.ObjectCreate{
		Object:     wireRef(o),
		Dimension:  o.Dimension(),
		Pos:        wireVec(o.Position()),
		SyncedMeta: o.Meta(entity.TierSynced).Copy(),
		Extra:      kindExtra(o),
	}
}

// fieldValue returns the wire value of a replicated base-state field
func fieldValue(o *entity.Object, field entity.Field) (interface{}, bool) {
	switch field {
	case entity.FieldRotation:
		return wireVec(o.Rotation()), true
	case entity.FieldVisible:
		return o.Visible(), true
	case entity.FieldCollision:
		return o.Collision(), true
	case entity.FieldFrozen:
		return o.Frozen(), true
	case entity.FieldModel:
		return o.Model(), true
	case entity.FieldNextPos:
		return wireVec(o.Checkpoint().NextPos), true
	}
	// streaming distance stays on the server
	return nil, false
}
