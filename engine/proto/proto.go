// Package proto defines the messages exchanged between the server and its clients
package proto

import (
	"github.com/pkg/errors"
	"github.com/xiaonanln/gostream/engine/netutil"
)

// MsgType is the type of message types
type MsgType uint16

const (
	// MT_INVALID is the invalid message type
	MT_INVALID MsgType = iota
	// MT_HANDSHAKE is the first message of a client, answered by MT_HANDSHAKE_ACK
	MT_HANDSHAKE
	// MT_HANDSHAKE_ACK accepts or refuses a client
	MT_HANDSHAKE_ACK
	// MT_HEARTBEAT_FROM_CLIENT is sent by client to notify the server that the client is alive
	MT_HEARTBEAT_FROM_CLIENT
)

// Messages from server to client
const (
	// MT_STREAM_IN carries the base state and stream synced meta snapshot of a streamed-in object
	MT_STREAM_IN MsgType = 100 + iota
	// MT_STREAM_OUT drops the client mirror of an object
	MT_STREAM_OUT
	// MT_OBJECT_CREATE announces a global object
	MT_OBJECT_CREATE
	// MT_OBJECT_REMOVE removes a known object from the client
	MT_OBJECT_REMOVE
	// MT_OBJECT_UPDATE changes a base-state field of a streamed object
	MT_OBJECT_UPDATE
	// MT_OBJECT_POSITION moves a streamed object
	MT_OBJECT_POSITION
	// MT_SYNCED_META_CHANGE is sent to every client knowing the object
	MT_SYNCED_META_CHANGE
	// MT_STREAM_SYNCED_META_CHANGE is sent to observers only
	MT_STREAM_SYNCED_META_CHANGE
	// MT_GLOBAL_SYNCED_META_CHANGE is sent to every client
	MT_GLOBAL_SYNCED_META_CHANGE
	// MT_NET_OWNER_CHANGE is sent to observers of the entity
	MT_NET_OWNER_CHANGE
	// MT_SERVER_EVENT is a custom event emitted to clients
	MT_SERVER_EVENT
	// MT_RPC_CALL_ON_CLIENT calls a client rpc
	MT_RPC_CALL_ON_CLIENT
	// MT_RPC_ANSWER_TO_CLIENT answers a client rpc
	MT_RPC_ANSWER_TO_CLIENT
	// MT_KICK closes the connection with a reason
	MT_KICK
)

// Messages from client to server
const (
	// MT_CLIENT_EVENT is a custom event emitted by a client
	MT_CLIENT_EVENT MsgType = 200 + iota
	// MT_RPC_CALL_ON_SERVER calls a server rpc
	MT_RPC_CALL_ON_SERVER
	// MT_RPC_ANSWER_TO_SERVER answers a server rpc
	MT_RPC_ANSWER_TO_SERVER
	// MT_SYNC_POSITION reports the position of the player or of an entity it owns
	MT_SYNC_POSITION
	// MT_REQUEST_CONTROL asks for the net ownership of an entity
	MT_REQUEST_CONTROL
)

// Vector3 is the wire form of positions and rotations
type Vector3 struct {
	X float32 `msgpack:"x"`
	Y float32 `msgpack:"y"`
	Z float32 `msgpack:"z"`
}

// ObjectRef identifies an object on the wire
type ObjectRef struct {
	Kind uint8  `msgpack:"k"`
	ID   uint32 `msgpack:"i"`
}

// Handshake is sent by a connecting client
type Handshake struct {
	Name      string `msgpack:"name"`
	AuthToken string `msgpack:"token"`
}

// HandshakeAck answers a handshake; Player is zero when refused
type HandshakeAck struct {
	Accepted   bool                   `msgpack:"ok"`
	Reason     string                 `msgpack:"reason,omitempty"`
	Player     ObjectRef              `msgpack:"player"`
	GlobalMeta map[string]interface{} `msgpack:"gmeta,omitempty"`
}

// StreamIn carries everything a client needs to mirror an object
type StreamIn struct {
	Object           ObjectRef              `msgpack:"obj"`
	Dimension        int32                  `msgpack:"dim"`
	Pos              Vector3                `msgpack:"pos"`
	Rot              Vector3                `msgpack:"rot"`
	Model            uint32                 `msgpack:"model,omitempty"`
	Visible          bool                   `msgpack:"visible"`
	Owner            ObjectRef              `msgpack:"owner"`
	SyncedMeta       map[string]interface{} `msgpack:"smeta,omitempty"`
	StreamSyncedMeta map[string]interface{} `msgpack:"ssmeta,omitempty"`
	Extra            map[string]interface{} `msgpack:"extra,omitempty"`
}

// StreamOut drops a mirror
type StreamOut struct {
	Object ObjectRef `msgpack:"obj"`
}

// ObjectCreate announces a global object such as a blip
type ObjectCreate struct {
	Object     ObjectRef              `msgpack:"obj"`
	Dimension  int32                  `msgpack:"dim"`
	Pos        Vector3                `msgpack:"pos"`
	SyncedMeta map[string]interface{} `msgpack:"smeta,omitempty"`
	Extra      map[string]interface{} `msgpack:"extra,omitempty"`
}

// ObjectRemove removes a known object
type ObjectRemove struct {
	Object ObjectRef `msgpack:"obj"`
}

// FIELD_DIMENSION is the ObjectUpdate field sent to a player whose own dimension changed;
// other field values are the server's entity field numbers
const FIELD_DIMENSION uint8 = 255

// ObjectUpdate changes one base-state field
type ObjectUpdate struct {
	Object ObjectRef   `msgpack:"obj"`
	Field  uint8       `msgpack:"f"`
	Value  interface{} `msgpack:"v"`
}

// ObjectPosition moves an object
type ObjectPosition struct {
	Object ObjectRef `msgpack:"obj"`
	Pos    Vector3   `msgpack:"pos"`
}

// MetaChange is a synced, stream synced or global synced meta write
type MetaChange struct {
	Object  ObjectRef   `msgpack:"obj"`
	Key     string      `msgpack:"key"`
	Value   interface{} `msgpack:"v"`
	Deleted bool        `msgpack:"del,omitempty"`
}

// NetOwnerChange tells observers who simulates an entity
type NetOwnerChange struct {
	Object ObjectRef `msgpack:"obj"`
	Owner  ObjectRef `msgpack:"owner"`
	// DisableMigration pins the owner
	DisableMigration bool `msgpack:"pinned,omitempty"`
}

// CustomEvent is an event between scripts on both sides
type CustomEvent struct {
	Name string        `msgpack:"name"`
	Args []interface{} `msgpack:"args"`
}

// RPCCall calls a remote rpc; AnswerID 0 expects no answer
type RPCCall struct {
	Name     string        `msgpack:"name"`
	Args     []interface{} `msgpack:"args"`
	AnswerID uint32        `msgpack:"aid"`
}

// RPCAnswer resolves or rejects a remote future
type RPCAnswer struct {
	AnswerID uint32      `msgpack:"aid"`
	Value    interface{} `msgpack:"v"`
	Error    string      `msgpack:"err,omitempty"`
}

// SyncPosition is a client-authoritative position report
type SyncPosition struct {
	Object ObjectRef `msgpack:"obj"`
	Pos    Vector3   `msgpack:"pos"`
	Rot    Vector3   `msgpack:"rot"`
}

// RequestControl asks for the ownership of Object
type RequestControl struct {
	Object ObjectRef `msgpack:"obj"`
}

// Kick is sent before the server closes a connection
type Kick struct {
	Reason string `msgpack:"reason"`
}

// Heartbeat is sent by the client periodically with the round trip it measured last
type Heartbeat struct {
	PingMillis uint32 `msgpack:"ping,omitempty"`
}

// New returns an empty message of msgType to unpack into
func New(msgType MsgType) (interface{}, error) {
	switch msgType {
	case MT_HANDSHAKE:
		return &Handshake{}, nil
	case MT_HANDSHAKE_ACK:
		return &HandshakeAck{}, nil
	case MT_HEARTBEAT_FROM_CLIENT:
		return &Heartbeat{}, nil
	case MT_STREAM_IN:
		return &StreamIn{}, nil
	case MT_STREAM_OUT:
		return &StreamOut{}, nil
	case MT_OBJECT_CREATE:
		return &ObjectCreate{}, nil
	case MT_OBJECT_REMOVE:
		return &ObjectRemove{}, nil
	case MT_OBJECT_UPDATE:
		return &ObjectUpdate{}, nil
	case MT_OBJECT_POSITION:
		return &ObjectPosition{}, nil
	case MT_SYNCED_META_CHANGE, MT_STREAM_SYNCED_META_CHANGE, MT_GLOBAL_SYNCED_META_CHANGE:
		return &MetaChange{}, nil
	case MT_NET_OWNER_CHANGE:
		return &NetOwnerChange{}, nil
	case MT_SERVER_EVENT, MT_CLIENT_EVENT:
		return &CustomEvent{}, nil
	case MT_RPC_CALL_ON_CLIENT, MT_RPC_CALL_ON_SERVER:
		return &RPCCall{}, nil
	case MT_RPC_ANSWER_TO_CLIENT, MT_RPC_ANSWER_TO_SERVER:
		return &RPCAnswer{}, nil
	case MT_SYNC_POSITION:
		return &SyncPosition{}, nil
	case MT_REQUEST_CONTROL:
		return &RequestControl{}, nil
	case MT_KICK:
		return &Kick{}, nil
	}
	return nil, errors.Errorf("unknown message type %d", msgType)
}

// Decode unpacks a payload of msgType
func Decode(msgType MsgType, payload []byte) (interface{}, error) {
	msg, err := New(msgType)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return msg, nil
	}
	if err := netutil.MSG_PACKER.UnpackMsg(payload, msg); err != nil {
		return nil, errors.Wrapf(err, "decode message type %d", msgType)
	}
	return msg, nil
}

// Encode packs msg
func Encode(msg interface{}) ([]byte, error) {
	return netutil.MSG_PACKER.PackMsg(msg, nil)
}
