package world

import (
	"sort"

	"github.com/xiaonanln/gostream/engine/common"
	"github.com/xiaonanln/gostream/engine/entity"
	"github.com/xiaonanln/gostream/engine/gate"
	"github.com/xiaonanln/gostream/engine/proto"
)

// Client is the connection behind a player
type Client interface {
	ID() common.ClientID
	IP() string
	// Send queues a message; it must not block the main routine
	Send(msgType proto.MsgType, msg interface{})
	// Kick sends the reason and closes the connection; the disconnect is reported later
	Kick(reason string)
}

type session struct {
	client Client
	player *entity.Object
}

func (s *Server) sortedSessions() []*session {
	list := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		list = append(list, sess)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].client.ID() < list[j].client.ID()
	})
	return list
}

// send delivers msg to the client of player unless the player is gone
func (s *Server) send(player *entity.Object, msgType proto.MsgType, msg interface{}) {
	if !player.IsValid() || player.Player() == nil || player.Player().Disconnected() {
		return
	}
	sess := s.playerSessions[player.ID()]
	if sess == nil {
		return
	}
	sess.client.Send(msgType, msg)
}

func (s *Server) sendToPlayers(players []*entity.Object, except *entity.Object, msgType proto.MsgType, msg interface{}) {
	for _, p := range players {
		if p != except {
			s.send(p, msgType, msg)
		}
	}
}

// Players returns the connected players ordered by id
func (s *Server) Players() []*entity.Object {
	players := make([]*entity.Object, 0, len(s.playerSessions))
	for _, p := range s.registry.AllOfType(entity.KindPlayer) {
		if s.playerSessions[p.ID()] != nil {
			players = append(players, p)
		}
	}
	return players
}

// ClientOf returns the connection of player, or nil
func (s *Server) ClientOf(player *entity.Object) Client {
	if !player.IsValid() {
		return nil
	}
	if sess := s.playerSessions[player.ID()]; sess != nil {
		return sess.client
	}
	return nil
}

// PlayerOf returns the player of a connection, or nil before its handshake
func (s *Server) PlayerOf(id common.ClientID) *entity.Object {
	if sess := s.sessions[id]; sess != nil {
		return sess.player
	}
	return nil
}

type gateClient struct {
	gs *gate.Service
	cp *gate.ClientProxy
}

func (c gateClient) ID() common.ClientID {
	return c.cp.ID()
}

func (c gateClient) IP() string {
	return c.cp.IP()
}

func (c gateClient) Send(msgType proto.MsgType, msg interface{}) {
	c.gs.Send(c.cp, msgType, msg)
}

func (c gateClient) Kick(reason string) {
	c.gs.Kick(c.cp, reason)
}

// gateHandler feeds gate callbacks, already posted to the main routine, into the server
type gateHandler struct {
	s  *Server
	gs *gate.Service
}

func (h *gateHandler) client(cp *gate.ClientProxy) Client {
	return gateClient{gs: h.gs, cp: cp}
}

func (h *gateHandler) OnClientConnect(cp *gate.ClientProxy) {
	h.s.Connect(h.client(cp))
}

func (h *gateHandler) OnClientMessage(cp *gate.ClientProxy, msgType proto.MsgType, msg interface{}) {
	h.s.HandleMessage(h.client(cp), msgType, msg)
}

func (h *gateHandler) OnClientDisconnect(cp *gate.ClientProxy) {
	h.s.Disconnect(h.client(cp), "connection closed")
}

// NewGate creates the gate service whose clients join this server
func (s *Server) NewGate(opts gate.Options) *gate.Service {
	h := &gateHandler{s: s}
	h.gs = gate.NewService(opts, h, s.queue)
	return h.gs
}
