package world

import (
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/gostream/engine/colshape"
	"github.com/xiaonanln/gostream/engine/entity"
	"github.com/xiaonanln/gostream/engine/event"
	"github.com/xiaonanln/gostream/engine/gwlog"
	"github.com/xiaonanln/gostream/engine/proto"
	"github.com/xiaonanln/gostream/engine/rpc"
	"github.com/xiaonanln/gostream/engine/spatial"
)

// ErrNotConnected is returned when calling a player without a connection
var ErrNotConnected = errors.New("player not connected")

// Create creates an object of kind; players are only created by connecting clients
func (s *Server) Create(kind entity.Kind, opts *entity.Options) (*entity.Object, error) {
	if kind == entity.KindPlayer {
		return nil, errors.Errorf("players are created by connecting clients")
	}
	return s.registry.Create(kind, opts)
}

// CreateVehicle creates a vehicle
func (s *Server) CreateVehicle(model uint32, dim int32, pos, rot entity.Vector3) (*entity.Object, error) {
	return s.Create(entity.KindVehicle, &entity.Options{Model: model, Dimension: dim, Pos: pos, Rot: rot})
}

// CreatePed creates a ped
func (s *Server) CreatePed(model uint32, dim int32, pos, rot entity.Vector3) (*entity.Object, error) {
	return s.Create(entity.KindPed, &entity.Options{Model: model, Dimension: dim, Pos: pos, Rot: rot})
}

// CreateObject creates a networked prop
func (s *Server) CreateObject(model uint32, dim int32, pos, rot entity.Vector3) (*entity.Object, error) {
	return s.Create(entity.KindObject, &entity.Options{Model: model, Dimension: dim, Pos: pos, Rot: rot})
}

// CreateBlip creates a map blip announced to every player
func (s *Server) CreateBlip(dim int32, pos entity.Vector3, blip entity.BlipState) (*entity.Object, error) {
	return s.Create(entity.KindBlip, &entity.Options{Dimension: dim, Pos: pos, Blip: &blip})
}

// CreateMarker creates a streamed marker
func (s *Server) CreateMarker(dim int32, pos entity.Vector3, marker entity.MarkerState) (*entity.Object, error) {
	return s.Create(entity.KindMarker, &entity.Options{Dimension: dim, Pos: pos, Marker: &marker})
}

// CreateColShape creates a server-side trigger volume
func (s *Server) CreateColShape(dim int32, pos entity.Vector3, shape entity.ShapeOptions) (*entity.Object, error) {
	return s.Create(entity.KindColShape, &entity.Options{Dimension: dim, Pos: pos, Shape: &shape})
}

// CreateCheckpoint creates a streamed checkpoint that also acts as a cylinder trigger
func (s *Server) CreateCheckpoint(dim int32, pos entity.Vector3, radius, height entity.Coord, cp entity.CheckpointState) (*entity.Object, error) {
	return s.Create(entity.KindCheckpoint, &entity.Options{
		Dimension:  dim,
		Pos:        pos,
		Shape:      &entity.ShapeOptions{Radius: radius, Height: height},
		Checkpoint: &cp,
	})
}

// CreateVirtualEntityGroup creates a group bounding how many of its entities a player streams
func (s *Server) CreateVirtualEntityGroup(maxEntitiesInStream int) (*entity.Object, error) {
	return s.Create(entity.KindVirtualEntityGroup, &entity.Options{MaxEntitiesInStream: maxEntitiesInStream})
}

// CreateVirtualEntity creates a script-defined streamed entity in group
func (s *Server) CreateVirtualEntity(group *entity.Object, dim int32, pos entity.Vector3, streamingDistance entity.Coord) (*entity.Object, error) {
	return s.Create(entity.KindVirtualEntity, &entity.Options{Group: group, Dimension: dim, Pos: pos, StreamingDistance: streamingDistance})
}

// CreateVoiceChannel creates a voice channel
func (s *Server) CreateVoiceChannel(opts entity.VoiceChannelOptions) (*entity.Object, error) {
	return s.Create(entity.KindVoiceChannel, &entity.Options{Voice: &opts})
}

// Destroy destroys obj; destroying a player kicks its client
func (s *Server) Destroy(obj *entity.Object) bool {
	if !obj.IsValid() {
		return false
	}
	if obj.Kind() == entity.KindPlayer {
		if c := s.ClientOf(obj); c != nil {
			c.Kick("destroyed")
			s.Disconnect(c, "destroyed")
			return true
		}
	}
	return s.registry.Destroy(obj)
}

// GetByID returns the object, or nil
func (s *Server) GetByID(kind entity.Kind, id entity.ObjectID) *entity.Object {
	return s.registry.Get(kind, id)
}

// AllOfType returns every object of kind ordered by id
func (s *Server) AllOfType(kind entity.Kind) []*entity.Object {
	return s.registry.AllOfType(kind)
}

// scan visits the world objects of kinds that are not in the spatial index
func (s *Server) scan(kinds entity.KindMask, f func(o *entity.Object)) {
	for _, k := range entity.AllKinds {
		if !kinds.Has(k) || !k.IsWorld() || k.IsStreamable() {
			continue
		}
		s.registry.ForEach(k, func(o *entity.Object) bool {
			f(o)
			return true
		})
	}
}

func (s *Server) refsToObjects(refs []entity.Ref, kinds entity.KindMask) []*entity.Object {
	objs := make([]*entity.Object, 0, len(refs))
	for _, ref := range refs {
		if !kinds.Has(ref.Kind) {
			continue
		}
		if o := s.registry.GetRef(ref); o != nil {
			objs = append(objs, o)
		}
	}
	return objs
}

func sortObjects(objs []*entity.Object) {
	sort.Slice(objs, func(i, j int) bool {
		return objs[i].Ref().Less(objs[j].Ref())
	})
}

// GetEntitiesInDimension returns the objects of kinds in dim ordered by ref
func (s *Server) GetEntitiesInDimension(dim int32, kinds entity.KindMask) []*entity.Object {
	objs := s.refsToObjects(s.indexer.Grid().QueryDimension(dim), kinds)
	s.scan(kinds, func(o *entity.Object) {
		if o.Dimension() == dim {
			objs = append(objs, o)
		}
	})
	sortObjects(objs)
	return objs
}

// GetEntitiesInRange returns the objects of kinds within radius of pos ordered by ref
func (s *Server) GetEntitiesInRange(pos entity.Vector3, radius entity.Coord, dim int32, kinds entity.KindMask) []*entity.Object {
	hits, err := s.indexer.Grid().QueryRange(dim, pos, radius)
	if err != nil {
		gwlog.Errorf("%s: range query failed: %v", s, err)
		return nil
	}
	refs := make([]entity.Ref, len(hits))
	for i, h := range hits {
		refs[i] = h.Ref
	}
	objs := s.refsToObjects(refs, kinds)
	radiusSq := radius * radius
	s.scan(kinds, func(o *entity.Object) {
		if o.Dimension() == dim && o.Position().DistanceSqTo(pos) <= radiusSq {
			objs = append(objs, o)
		}
	})
	sortObjects(objs)
	return objs
}

// GetClosestEntities returns up to maxCount objects of kinds within radius of pos, nearest first
func (s *Server) GetClosestEntities(pos entity.Vector3, radius entity.Coord, dim int32, maxCount int, kinds entity.KindMask) []*entity.Object {
	hits, err := s.indexer.Grid().QueryRange(dim, pos, radius)
	if err != nil {
		gwlog.Errorf("%s: nearest query failed: %v", s, err)
		return nil
	}
	kept := hits[:0]
	for _, h := range hits {
		if kinds.Has(h.Ref.Kind) {
			kept = append(kept, h)
		}
	}
	hits = kept
	radiusSq := radius * radius
	s.scan(kinds, func(o *entity.Object) {
		if o.Dimension() != dim {
			return
		}
		if d := o.Position().DistanceSqTo(pos); d <= radiusSq {
			hits = append(hits, spatial.Hit{Ref: o.Ref(), DistSq: d})
		}
	})
	spatial.SortHits(hits)
	if maxCount > 0 && len(hits) > maxCount {
		hits = hits[:maxCount]
	}
	objs := make([]*entity.Object, 0, len(hits))
	for _, h := range hits {
		if o := s.registry.GetRef(h.Ref); o != nil {
			objs = append(objs, o)
		}
	}
	return objs
}

// SetNetOwner makes player the owner of ent, or resets it when player is nil
func (s *Server) SetNetOwner(ent, player *entity.Object, disableMigration bool) error {
	return s.migration.SetNetOwner(ent, player, disableMigration)
}

// ResetNetOwner clears the owner of ent
func (s *Server) ResetNetOwner(ent *entity.Object, disableMigration bool) {
	s.migration.ResetNetOwner(ent, disableMigration)
}

// IsEntityIn returns if ent is inside shape as of the last colshape pass
func (s *Server) IsEntityIn(shape, ent *entity.Object) bool {
	return s.colshapes.IsEntityIn(shape, ent)
}

// IsEntityIDIn returns if the object ref is inside shape as of the last colshape pass
func (s *Server) IsEntityIDIn(shape *entity.Object, ref entity.Ref) bool {
	return s.colshapes.IsEntityIDIn(shape, ref)
}

// IsPointIn tests p against shape right away
func (s *Server) IsPointIn(shape *entity.Object, p entity.Vector3) bool {
	return s.colshapes.IsPointIn(shape, p)
}

// LinkRoute chains checkpoints through their next position
func (s *Server) LinkRoute(checkpoints ...*entity.Object) error {
	return colshape.LinkRoute(checkpoints)
}

// On registers a server event handler
func (s *Server) On(name string, h event.Handler) *event.Handle {
	return s.events.On(name, h)
}

// Once registers a server event handler for the next event only
func (s *Server) Once(name string, h event.Handler) *event.Handle {
	return s.events.Once(name, h)
}

// OnAny registers a handler of every server event
func (s *Server) OnAny(h event.Handler) *event.Handle {
	return s.events.OnAny(h)
}

// OnClient registers a handler of a custom client event
func (s *Server) OnClient(name string, h event.Handler) *event.Handle {
	return s.clientEvents.On(name, h)
}

// OnceClient registers a handler of the next custom client event name
func (s *Server) OnceClient(name string, h event.Handler) *event.Handle {
	return s.clientEvents.Once(name, h)
}

// Emit emits a custom server event to server handlers
func (s *Server) Emit(name string, args ...interface{}) bool {
	return s.events.Emit(&event.ServerEvent{Name: name, Args: args})
}

// EmitClient sends a custom event to player
func (s *Server) EmitClient(player *entity.Object, name string, args ...interface{}) {
	s.send(player, proto.MT_SERVER_EVENT, &proto.CustomEvent{Name: name, Args: args})
}

// EmitClients sends a custom event to each of players; disconnected ones are skipped
func (s *Server) EmitClients(players []*entity.Object, name string, args ...interface{}) {
	s.sendToPlayers(players, nil, proto.MT_SERVER_EVENT, &proto.CustomEvent{Name: name, Args: args})
}

// EmitAllClients sends a custom event to every connected player
func (s *Server) EmitAllClients(name string, args ...interface{}) {
	s.sendToPlayers(s.Players(), nil, proto.MT_SERVER_EVENT, &proto.CustomEvent{Name: name, Args: args})
}

// CallClient calls a client rpc of player; timeout <= 0 selects the configured timeout
func (s *Server) CallClient(player *entity.Object, name string, timeout time.Duration, args ...interface{}) *rpc.Future {
	if player == nil {
		f := rpc.NewFuture()
		f.Reject(errors.Wrapf(ErrNotConnected, "rpc %s", name))
		return f
	}
	return s.rpc.Call(player.ID(), name, timeout, func(answerID uint32) error {
		c := s.ClientOf(player)
		if c == nil || player.Player() == nil || player.Player().Disconnected() {
			return errors.Wrapf(ErrNotConnected, "%s", player)
		}
		c.Send(proto.MT_RPC_CALL_ON_CLIENT, &proto.RPCCall{Name: name, Args: args, AnswerID: answerID})
		return nil
	})
}

// RegisterRPC registers the handler of a client-to-server rpc
func (s *Server) RegisterRPC(name string, h rpc.HandlerFunc) error {
	return s.rpcHandlers.Register(name, h)
}

// UnregisterRPC removes the handler of a client-to-server rpc
func (s *Server) UnregisterRPC(name string) {
	s.rpcHandlers.Unregister(name)
}

// Kick disconnects player with reason
func (s *Server) Kick(player *entity.Object, reason string) {
	c := s.ClientOf(player)
	if c == nil {
		return
	}
	c.Kick(reason)
	s.Disconnect(c, fmt.Sprintf("kicked: %s", reason))
}

// Protector returns the client event rate protection
func (s *Server) Protector() *event.Protector {
	return s.protector
}

// GetMeta returns server-wide meta
func (s *Server) GetMeta(key string) interface{} {
	return s.globalMeta.Get(key)
}

// SetMeta writes server-wide meta, kept on the server only
func (s *Server) SetMeta(key string, val interface{}) {
	s.writeGlobalMeta(false, key, val, false)
}

// DeleteMeta deletes server-wide meta
func (s *Server) DeleteMeta(key string) {
	s.writeGlobalMeta(false, key, nil, true)
}

// GetSyncedMeta returns server-wide synced meta
func (s *Server) GetSyncedMeta(key string) interface{} {
	return s.globalSyncedMeta.Get(key)
}

// SetSyncedMeta writes server-wide synced meta and broadcasts it to every player
func (s *Server) SetSyncedMeta(key string, val interface{}) {
	s.writeGlobalMeta(true, key, val, false)
}

// DeleteSyncedMeta deletes server-wide synced meta
func (s *Server) DeleteSyncedMeta(key string) {
	s.writeGlobalMeta(true, key, nil, true)
}

func (s *Server) writeGlobalMeta(synced bool, key string, val interface{}, deleted bool) {
	m := s.globalMeta
	if synced {
		m = s.globalSyncedMeta
	}
	old, had := m[key]
	if deleted {
		if !had {
			return
		}
		delete(m, key)
	} else {
		m[key] = val
	}
	s.events.Emit(&event.GlobalMetaChangeEvent{Synced: synced, Key: key, OldValue: old, NewValue: val, Deleted: deleted})
	if synced {
		s.sendToPlayers(s.Players(), nil, proto.MT_GLOBAL_SYNCED_META_CHANGE, &proto.MetaChange{Key: key, Value: val, Deleted: deleted})
	}
}
