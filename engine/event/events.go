package event

import (
	"github.com/xiaonanln/gostream/engine/entity"
)

// Server event names
const (
	PlayerBeforeConnect    = "playerBeforeConnect"
	PlayerConnect          = "playerConnect"
	PlayerDisconnect       = "playerDisconnect"
	PlayerDimensionChange  = "playerDimensionChange"
	BaseObjectCreate       = "baseObjectCreate"
	BaseObjectRemove       = "baseObjectRemove"
	MetaChange             = "metaChange"
	SyncedMetaChange       = "syncedMetaChange"
	StreamSyncedMetaChange = "streamSyncedMetaChange"
	GlobalMetaChange       = "globalMetaChange"
	GlobalSyncedMetaChange = "globalSyncedMetaChange"
	NetOwnerChange         = "netOwnerChange"
	ColShapeEvent          = "colshape"
	EntityEnterColShape    = "entityEnterColshape"
	EntityLeaveColShape    = "entityLeaveColshape"
	EntityEnterCheckpoint  = "entityEnterCheckpoint"
	EntityLeaveCheckpoint  = "entityLeaveCheckpoint"
	PlayerControlRequest   = "playerRequestControl"
	ScriptRPC              = "scriptRPC"
	ScriptRPCAnswer        = "scriptRPCAnswer"
	ClientEventSuppressed  = "clientEventSuppressed"
)

// PlayerBeforeConnectEvent is emitted before a connection is accepted; cancel to refuse it
type PlayerBeforeConnectEvent struct {
	Cancellable
	Info entity.PlayerInfo
	// Reason is sent to the refused client
	Reason string
}

func (*PlayerBeforeConnectEvent) EventName() string { return PlayerBeforeConnect }

// PlayerConnectEvent is emitted once a player object exists
type PlayerConnectEvent struct {
	Player *entity.Object
}

func (*PlayerConnectEvent) EventName() string { return PlayerConnect }

// PlayerDisconnectEvent is emitted before the player object is destroyed
type PlayerDisconnectEvent struct {
	Player *entity.Object
	Reason string
}

func (*PlayerDisconnectEvent) EventName() string { return PlayerDisconnect }

// PlayerDimensionChangeEvent is emitted after a player moved to another dimension
type PlayerDimensionChangeEvent struct {
	Player       *entity.Object
	OldDimension int32
	NewDimension int32
}

func (*PlayerDimensionChangeEvent) EventName() string { return PlayerDimensionChange }

// BaseObjectCreateEvent is emitted after an object was created
type BaseObjectCreateEvent struct {
	Object *entity.Object
}

func (*BaseObjectCreateEvent) EventName() string { return BaseObjectCreate }

// BaseObjectRemoveEvent is emitted when an object is destroyed
type BaseObjectRemoveEvent struct {
	Object *entity.Object
}

func (*BaseObjectRemoveEvent) EventName() string { return BaseObjectRemove }

// MetaChangeEvent reports a write to one of the meta tiers of an object
type MetaChangeEvent struct {
	*entity.MetaChange
}

func (ev *MetaChangeEvent) EventName() string {
	switch ev.Tier {
	case entity.TierSynced:
		return SyncedMetaChange
	case entity.TierStreamSynced:
		return StreamSyncedMetaChange
	}
	return MetaChange
}

// GlobalMetaChangeEvent reports a write to the server-wide meta
type GlobalMetaChangeEvent struct {
	Synced   bool
	Key      string
	OldValue interface{}
	NewValue interface{}
	Deleted  bool
}

func (ev *GlobalMetaChangeEvent) EventName() string {
	if ev.Synced {
		return GlobalSyncedMetaChange
	}
	return GlobalMetaChange
}

// NetOwnerChangeEvent reports an owner change; OldOwner and NewOwner may be nil
type NetOwnerChangeEvent struct {
	Entity   *entity.Object
	OldOwner *entity.Object
	NewOwner *entity.Object
}

func (*NetOwnerChangeEvent) EventName() string { return NetOwnerChange }

// ColShapeTransitionEvent reports an entity entering or leaving a colshape or checkpoint
type ColShapeTransitionEvent struct {
	Shape  *entity.Object
	Entity *entity.Object
	Enter  bool
}

func (ev *ColShapeTransitionEvent) EventName() string {
	checkpoint := ev.Shape.Kind() == entity.KindCheckpoint
	switch {
	case ev.Enter && checkpoint:
		return EntityEnterCheckpoint
	case ev.Enter:
		return EntityEnterColShape
	case checkpoint:
		return EntityLeaveCheckpoint
	}
	return EntityLeaveColShape
}

// ColShapeGenericEvent is emitted for every transition in addition to the specific one
type ColShapeGenericEvent struct {
	ColShapeTransitionEvent
}

func (*ColShapeGenericEvent) EventName() string { return ColShapeEvent }

// PlayerControlRequestEvent is emitted when a client asks to own an entity; cancel to refuse
type PlayerControlRequestEvent struct {
	Cancellable
	Player *entity.Object
	Target *entity.Object
}

func (*PlayerControlRequestEvent) EventName() string { return PlayerControlRequest }

// ScriptRPCEvent is emitted when a client calls a server rpc; cancel to drop the call
type ScriptRPCEvent struct {
	Cancellable
	Player *entity.Object
	Name   string
	Args   []interface{}
	// AnswerID is 0 when the client expects no answer
	AnswerID uint32
}

func (*ScriptRPCEvent) EventName() string { return ScriptRPC }

// ScriptRPCAnswerEvent is emitted when a client answers a server rpc; cancel to drop the answer
type ScriptRPCAnswerEvent struct {
	Cancellable
	Player   *entity.Object
	AnswerID uint32
	Answer   interface{}
	Error    string
}

func (*ScriptRPCAnswerEvent) EventName() string { return ScriptRPCAnswer }

// ClientEventSuppressedEvent is emitted when the event-rate protection drops a client event
type ClientEventSuppressedEvent struct {
	Player *entity.Object
	Name   string
	Count  int
}

func (*ClientEventSuppressedEvent) EventName() string { return ClientEventSuppressed }

// ClientEvent is a custom event sent by a client; it goes through the client dispatcher keyed by Name
type ClientEvent struct {
	Player *entity.Object
	Name   string
	Args   []interface{}
}

func (ev *ClientEvent) EventName() string { return ev.Name }

// ServerEvent is a custom event emitted by scripts on the server dispatcher
type ServerEvent struct {
	Name string
	Args []interface{}
}

func (ev *ServerEvent) EventName() string { return ev.Name }
