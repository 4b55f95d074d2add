package world

import (
	"fmt"
	"time"

	"github.com/xiaonanln/gostream/engine/consts"
	"github.com/xiaonanln/gostream/engine/entity"
	"github.com/xiaonanln/gostream/engine/event"
	"github.com/xiaonanln/gostream/engine/gwlog"
	"github.com/xiaonanln/gostream/engine/opmon"
	"github.com/xiaonanln/gostream/engine/proto"
	"github.com/xiaonanln/gostream/engine/rpc"
)

// Connect registers a new connection; the player is created on its handshake
func (s *Server) Connect(c Client) {
	if _, ok := s.sessions[c.ID()]; ok {
		return
	}
	s.sessions[c.ID()] = &session{client: c}
	if consts.DEBUG_CLIENTS {
		gwlog.Debugf("%s: client %s connected from %s", s, c.ID(), c.IP())
	}
}

// Disconnect destroys the player of a closed connection; calling it twice is a no-op
func (s *Server) Disconnect(c Client, reason string) {
	sess := s.sessions[c.ID()]
	if sess == nil {
		return
	}
	delete(s.sessions, c.ID())
	player := sess.player
	if player == nil {
		return
	}
	player.Player().MarkDisconnected()
	s.events.Emit(&event.PlayerDisconnectEvent{Player: player, Reason: reason})
	// pending rpcs and protector counters of the player are dropped by its destruction
	s.registry.Destroy(player)
	delete(s.playerSessions, player.ID())
	if consts.DEBUG_CLIENTS {
		gwlog.Debugf("%s: %s disconnected: %s", s, player, reason)
	}
}

// HandleMessage serves one decoded message of a connection
func (s *Server) HandleMessage(c Client, msgType proto.MsgType, msg interface{}) {
	sess := s.sessions[c.ID()]
	if sess == nil {
		return
	}
	op := opmon.StartOperation("world.HandleMessage")
	defer op.Finish(consts.TICK_WARN_THRESHOLD)

	if sess.player == nil {
		if hs, ok := msg.(*proto.Handshake); ok && msgType == proto.MT_HANDSHAKE {
			s.handleHandshake(sess, hs)
		} else {
			gwlog.Warnf("%s: %s sent %d before handshake", s, c.ID(), msgType)
			c.Kick("handshake required")
		}
		return
	}

	player := sess.player
	switch m := msg.(type) {
	case *proto.Heartbeat:
		player.Player().SetPing(time.Duration(m.PingMillis) * time.Millisecond)
	case *proto.CustomEvent:
		s.handleClientEvent(player, m)
	case *proto.RPCCall:
		s.handleClientRPC(player, m)
	case *proto.RPCAnswer:
		s.handleClientRPCAnswer(player, m)
	case *proto.SyncPosition:
		s.handleSyncPosition(player, m)
	case *proto.RequestControl:
		s.handleRequestControl(player, m)
	default:
		gwlog.Warnf("%s: unexpected message %d from %s", s, msgType, player)
	}
}

func (s *Server) handleHandshake(sess *session, hs *proto.Handshake) {
	info := entity.PlayerInfo{
		Name:      hs.Name,
		ClientID:  string(sess.client.ID()),
		IP:        sess.client.IP(),
		AuthToken: hs.AuthToken,
	}
	before := &event.PlayerBeforeConnectEvent{Info: info}
	if s.events.Emit(before) {
		reason := before.Reason
		if reason == "" {
			reason = "connection refused"
		}
		sess.client.Send(proto.MT_HANDSHAKE_ACK, &proto.HandshakeAck{Accepted: false, Reason: reason})
		sess.client.Kick(reason)
		return
	}

	player, err := s.registry.Create(entity.KindPlayer, &entity.Options{Player: &info})
	if err != nil {
		gwlog.Errorf("%s: create player for %s failed: %v", s, sess.client.ID(), err)
		sess.client.Send(proto.MT_HANDSHAKE_ACK, &proto.HandshakeAck{Accepted: false, Reason: "server full"})
		sess.client.Kick("server full")
		return
	}
	sess.player = player
	s.playerSessions[player.ID()] = sess
	player.AddKnownBy(player)

	sess.client.Send(proto.MT_HANDSHAKE_ACK, &proto.HandshakeAck{
		Accepted:   true,
		Player:     wireRef(player),
		GlobalMeta: s.globalSyncedMeta.Copy(),
	})
	for _, blip := range s.registry.AllOfType(entity.KindBlip) {
		blip.AddKnownBy(player)
		s.send(player, proto.MT_OBJECT_CREATE, objectCreateMsg(blip))
	}
	s.events.Emit(&event.PlayerConnectEvent{Player: player})
}

func (s *Server) handleClientEvent(player *entity.Object, m *proto.CustomEvent) {
	if !s.protector.Allow(uint32(player.ID()), m.Name) {
		return
	}
	s.clientEvents.Emit(&event.ClientEvent{Player: player, Name: m.Name, Args: m.Args})
}

func (s *Server) onClientEventSuppressed(playerID uint32, name string, count int) {
	player := s.registry.Get(entity.KindPlayer, entity.ObjectID(playerID))
	if player == nil {
		return
	}
	gwlog.Warnf("%s: %s exceeded the rate of client event %s (%d)", s, player, name, count)
	s.events.Emit(&event.ClientEventSuppressedEvent{Player: player, Name: name, Count: count})
}

func (s *Server) handleClientRPC(player *entity.Object, m *proto.RPCCall) {
	reply := func(answerID uint32, value interface{}, errMsg string) {
		s.send(player, proto.MT_RPC_ANSWER_TO_CLIENT, &proto.RPCAnswer{AnswerID: answerID, Value: value, Error: errMsg})
	}
	call := rpc.NewCall(player, m.Name, m.Args, m.AnswerID, reply)
	ev := &event.ScriptRPCEvent{Player: player, Name: m.Name, Args: m.Args, AnswerID: m.AnswerID}
	if s.events.Emit(ev) {
		call.AnswerWithError(fmt.Sprintf("rpc %s cancelled", m.Name))
		return
	}
	s.rpcHandlers.Dispatch(call)
}

func (s *Server) handleClientRPCAnswer(player *entity.Object, m *proto.RPCAnswer) {
	ev := &event.ScriptRPCAnswerEvent{Player: player, AnswerID: m.AnswerID, Answer: m.Value, Error: m.Error}
	if s.events.Emit(ev) {
		return
	}
	s.rpc.Answer(player.ID(), m.AnswerID, m.Value, m.Error)
}

func (s *Server) handleSyncPosition(player *entity.Object, m *proto.SyncPosition) {
	target := s.registry.GetRef(fromWireRef(m.Object))
	if target == nil || (target != player && !target.IsOwnedBy(player)) {
		if consts.DEBUG_MIGRATION {
			gwlog.Debugf("%s: %s reported position of %v it does not control", s, player, m.Object)
		}
		return
	}
	pos, rot := fromWireVec(m.Pos), fromWireVec(m.Rot)
	if !pos.IsFinite() || !rot.IsFinite() {
		return
	}
	s.syncSource = player
	if pos != target.Position() {
		target.SetPosition(pos)
	}
	if target.Kind().IsEntity() && rot != target.Rotation() {
		target.SetRotation(rot)
	}
	s.syncSource = nil
}

func (s *Server) handleRequestControl(player *entity.Object, m *proto.RequestControl) {
	target := s.registry.GetRef(fromWireRef(m.Object))
	if target == nil || !target.Kind().IsOwnable() || !target.IsObservedBy(player) || target.IsOwnedBy(player) {
		return
	}
	if s.events.Emit(&event.PlayerControlRequestEvent{Player: player, Target: target}) {
		return
	}
	if err := s.migration.SetNetOwner(target, player, false); err != nil {
		gwlog.Warnf("%s: control request of %s for %s failed: %v", s, player, target, err)
	}
}
