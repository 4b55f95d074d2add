package world

import (
	"github.com/xiaonanln/gostream/engine/consts"
	"github.com/xiaonanln/gostream/engine/entity"
	"github.com/xiaonanln/gostream/engine/event"
	"github.com/xiaonanln/gostream/engine/gwlog"
	"github.com/xiaonanln/gostream/engine/proto"
)

// replication turns registry, streaming, migration and colshape callbacks into
// script events and client messages
type replication struct {
	*Server
}

// audience returns who mirrors o: every player told about a global object, the observers otherwise
func audience(o *entity.Object) []*entity.Object {
	if o.Kind().IsGlobal() {
		return o.KnownBy().Sorted()
	}
	return o.Observers().Sorted()
}

func (r *replication) OnObjectCreated(o *entity.Object) {
	r.events.Emit(&event.BaseObjectCreateEvent{Object: o})
	if !o.IsValid() || !o.Kind().IsGlobal() {
		return
	}
	msg := objectCreateMsg(o)
	for _, p := range r.Players() {
		o.AddKnownBy(p)
		r.send(p, proto.MT_OBJECT_CREATE, msg)
	}
}

func (r *replication) OnObjectDestroyed(o *entity.Object) {
	// owners migrate while observer sets are intact
	r.migration.HandleDestroyed(o)

	remove := &proto.ObjectRemove{Object: wireRef(o)}
	for _, p := range o.KnownBy().Sorted() {
		if p != o {
			r.send(p, proto.MT_OBJECT_REMOVE, remove)
		}
	}
	r.streaming.HandleDestroyed(o)
	r.colshapes.HandleDestroyed(o)

	if o.Kind() == entity.KindPlayer {
		r.rpc.DropTarget(o.ID())
		r.protector.ForgetPlayer(uint32(o.ID()))
		r.registry.ForEach(entity.KindVoiceChannel, func(vc *entity.Object) bool {
			vc.VoiceChannel().RemovePlayer(o)
			return true
		})
	}
	if consts.DEBUG_STREAMING {
		gwlog.Debugf("%s: %s destroyed, removed from %d clients", r.Server, o, len(o.KnownBy()))
	}
	r.events.Emit(&event.BaseObjectRemoveEvent{Object: o})
}

func (r *replication) OnObjectMoved(o *entity.Object, oldPos entity.Vector3) {
	msg := &proto.ObjectPosition{Object: wireRef(o), Pos: wireVec(o.Position())}
	// a reporting client already knows where it put the object
	r.sendToPlayers(audience(o), r.syncSource, proto.MT_OBJECT_POSITION, msg)
	if o.Kind() == entity.KindPlayer && o != r.syncSource && !o.IsObservedBy(o) {
		r.send(o, proto.MT_OBJECT_POSITION, msg)
	}
}

func (r *replication) OnDimensionChanged(o *entity.Object, oldDim int32) {
	if o.Kind() == entity.KindPlayer {
		r.send(o, proto.MT_OBJECT_UPDATE, &proto.ObjectUpdate{
			Object: wireRef(o),
			Field:  proto.FIELD_DIMENSION,
			Value:  o.Dimension(),
		})
		r.events.Emit(&event.PlayerDimensionChangeEvent{Player: o, OldDimension: oldDim, NewDimension: o.Dimension()})
	}
	if o.Kind().IsGlobal() {
		r.sendToPlayers(o.KnownBy().Sorted(), nil, proto.MT_OBJECT_CREATE, objectCreateMsg(o))
	}
}

func (r *replication) OnObjectChanged(o *entity.Object, field entity.Field) {
	value, ok := fieldValue(o, field)
	if !ok {
		return
	}
	msg := &proto.ObjectUpdate{Object: wireRef(o), Field: uint8(field), Value: value}
	r.sendToPlayers(audience(o), r.syncSource, proto.MT_OBJECT_UPDATE, msg)
	if o.Kind() == entity.KindPlayer && o != r.syncSource && !o.IsObservedBy(o) {
		r.send(o, proto.MT_OBJECT_UPDATE, msg)
	}
}

func (r *replication) OnMetaChanged(c *entity.MetaChange) {
	r.events.Emit(&event.MetaChangeEvent{MetaChange: c})
	o := c.Object
	if !o.IsValid() {
		return
	}
	msg := &proto.MetaChange{Object: wireRef(o), Key: c.Key, Value: c.NewValue, Deleted: c.Deleted}
	switch c.Tier {
	case entity.TierSynced:
		r.sendToPlayers(o.KnownBy().Sorted(), nil, proto.MT_SYNCED_META_CHANGE, msg)
	case entity.TierStreamSynced:
		r.sendToPlayers(o.Observers().Sorted(), nil, proto.MT_STREAM_SYNCED_META_CHANGE, msg)
	}
}

// OnStreamIn sends the full snapshot; later deltas are sent by the listener callbacks above
func (r *replication) OnStreamIn(player, obj *entity.Object) {
	r.send(player, proto.MT_STREAM_IN, streamInMsg(obj))
	r.migration.OnStreamIn(player, obj)
}

func (r *replication) OnStreamOut(player, obj *entity.Object) {
	r.send(player, proto.MT_STREAM_OUT, &proto.StreamOut{Object: wireRef(obj)})
	r.migration.OnStreamOut(player, obj)
}

func (r *replication) OnNetOwnerChange(ent, oldOwner, newOwner *entity.Object) {
	if consts.DEBUG_MIGRATION {
		gwlog.Debugf("%s: net owner of %s: %s -> %s", r.Server, ent, oldOwner, newOwner)
	}
	r.events.Emit(&event.NetOwnerChangeEvent{Entity: ent, OldOwner: oldOwner, NewOwner: newOwner})
	if !ent.IsValid() {
		return
	}
	msg := &proto.NetOwnerChange{Object: wireRef(ent), Owner: wireRef(newOwner), DisableMigration: ent.MigrationDisabled()}
	r.sendToPlayers(ent.Observers().Sorted(), nil, proto.MT_NET_OWNER_CHANGE, msg)
}

func (r *replication) OnEnter(shape, ent *entity.Object) {
	r.colShapeTransition(shape, ent, true)
}

func (r *replication) OnLeave(shape, ent *entity.Object) {
	r.colShapeTransition(shape, ent, false)
}

func (r *replication) colShapeTransition(shape, ent *entity.Object, enter bool) {
	if consts.DEBUG_COLSHAPES {
		gwlog.Debugf("%s: %s in %s: %v", r.Server, ent, shape, enter)
	}
	ev := event.ColShapeTransitionEvent{Shape: shape, Entity: ent, Enter: enter}
	r.events.Emit(&ev)
	r.events.Emit(&event.ColShapeGenericEvent{ColShapeTransitionEvent: ev})
}
