package world

import (
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
	"github.com/xiaonanln/gostream/engine/common"
	"github.com/xiaonanln/gostream/engine/config"
	"github.com/xiaonanln/gostream/engine/entity"
	"github.com/xiaonanln/gostream/engine/event"
	"github.com/xiaonanln/gostream/engine/proto"
	"github.com/xiaonanln/gostream/engine/rpc"
)

type sentMsg struct {
	msgType proto.MsgType
	msg     interface{}
}

type fakeClient struct {
	id     common.ClientID
	msgs   []sentMsg
	kicked []string
}

func (c *fakeClient) ID() common.ClientID { return c.id }
func (c *fakeClient) IP() string          { return "127.0.0.1" }

func (c *fakeClient) Send(msgType proto.MsgType, msg interface{}) {
	c.msgs = append(c.msgs, sentMsg{msgType, msg})
}

func (c *fakeClient) Kick(reason string) {
	c.kicked = append(c.kicked, reason)
}

func (c *fakeClient) take() []sentMsg {
	msgs := c.msgs
	c.msgs = nil
	return msgs
}

func (c *fakeClient) types() []proto.MsgType {
	var types []proto.MsgType
	for _, m := range c.take() {
		types = append(types, m.msgType)
	}
	return types
}

func (c *fakeClient) count(msgType proto.MsgType) int {
	n := 0
	for _, m := range c.msgs {
		if m.msgType == msgType {
			n++
		}
	}
	return n
}

func (c *fakeClient) last(msgType proto.MsgType) interface{} {
	for i := len(c.msgs) - 1; i >= 0; i-- {
		if c.msgs[i].msgType == msgType {
			return c.msgs[i].msg
		}
	}
	return nil
}

func newTestServer(t *testing.T) *Server {
	return NewServer(config.Default(), nil)
}

func connect(t *testing.T, s *Server, name string) (*fakeClient, *entity.Object) {
	c := &fakeClient{id: common.ClientID(name)}
	s.Connect(c)
	s.HandleMessage(c, proto.MT_HANDSHAKE, &proto.Handshake{Name: name})
	p := s.PlayerOf(c.id)
	assert.Tf(t, p != nil, "%s should be connected", name)
	return c, p
}

func vehicleAt(t *testing.T, s *Server, x entity.Coord) *entity.Object {
	v, err := s.CreateVehicle(1, 0, entity.Vector3{X: x}, entity.Vector3{})
	assert.Equal(t, nil, err)
	return v
}

func TestHandshake(t *testing.T) {
	s := newTestServer(t)
	connected := 0
	s.On(event.PlayerConnect, func(ev event.Event) { connected++ })

	c, p := connect(t, s, "alice")
	ack := c.last(proto.MT_HANDSHAKE_ACK).(*proto.HandshakeAck)
	assert.T(t, ack.Accepted, "accepted")
	assert.Equal(t, wireRef(p), ack.Player)
	assert.Equal(t, "alice", p.Player().Name())
	assert.Equal(t, 1, connected)
	assert.Equal(t, []*entity.Object{p}, s.Players())

	// a second handshake is not a valid message for a connected player
	s.HandleMessage(c, proto.MT_HANDSHAKE, &proto.Handshake{Name: "again"})
	assert.Equal(t, 1, s.Registry().Count(entity.KindPlayer))
}

func TestMessagesBeforeHandshakeKick(t *testing.T) {
	s := newTestServer(t)
	c := &fakeClient{id: "early"}
	s.Connect(c)
	s.HandleMessage(c, proto.MT_CLIENT_EVENT, &proto.CustomEvent{Name: "x"})
	assert.Equal(t, []string{"handshake required"}, c.kicked)
	assert.T(t, s.PlayerOf(c.id) == nil, "no player")
}

func TestHandshakeRefused(t *testing.T) {
	s := newTestServer(t)
	s.On(event.PlayerBeforeConnect, func(ev event.Event) {
		e := ev.(*event.PlayerBeforeConnectEvent)
		if e.Info.Name == "mallory" {
			e.Reason = "banned"
			e.Cancel()
		}
	})
	c := &fakeClient{id: "m"}
	s.Connect(c)
	s.HandleMessage(c, proto.MT_HANDSHAKE, &proto.Handshake{Name: "mallory"})
	ack := c.last(proto.MT_HANDSHAKE_ACK).(*proto.HandshakeAck)
	assert.T(t, !ack.Accepted, "refused")
	assert.Equal(t, "banned", ack.Reason)
	assert.Equal(t, []string{"banned"}, c.kicked)
	assert.Equal(t, 0, s.Registry().Count(entity.KindPlayer))
}

func TestStreamInPrecedesStreamSyncedDelta(t *testing.T) {
	s := newTestServer(t)
	c, _ := connect(t, s, "alice")
	v := vehicleAt(t, s, 10)
	c.take()

	// no observers: stored, no traffic
	v.SetStreamSyncedMeta("fuel", 50)
	assert.Equal(t, 0, len(c.msgs))

	s.StreamingPass()
	in := c.last(proto.MT_STREAM_IN).(*proto.StreamIn)
	assert.Equal(t, wireRef(v), in.Object)
	assert.Equal(t, 50, in.StreamSyncedMeta["fuel"])

	v.SetStreamSyncedMeta("fuel", 40)
	assert.Equal(t, []proto.MsgType{
		proto.MT_STREAM_IN,
		proto.MT_NET_OWNER_CHANGE,
		proto.MT_STREAM_SYNCED_META_CHANGE,
	}, c.types())

	v.SetPosition(entity.Vector3{X: 1000})
	s.StreamingPass()
	assert.Equal(t, []proto.MsgType{proto.MT_OBJECT_POSITION, proto.MT_STREAM_OUT}, c.types())
	assert.T(t, v.NetOwner() == nil, "unowned without observers")
}

func TestSyncedReachesKnownByStreamSyncedObserversOnly(t *testing.T) {
	s := newTestServer(t)
	ca, _ := connect(t, s, "a")
	cb, b := connect(t, s, "b")
	v := vehicleAt(t, s, 10)
	s.StreamingPass()

	// b streams the vehicle out but still knows it
	b.SetPosition(entity.Vector3{X: 2000})
	s.StreamingPass()
	assert.T(t, !v.IsObservedBy(b), "b no longer observes")
	assert.T(t, v.KnownBy().Contains(b), "b still knows the vehicle")
	ca.take()
	cb.take()

	v.SetSyncedMeta("color", "red")
	v.SetStreamSyncedMeta("doors", 4)
	v.SetMeta("secret", true)
	assert.Equal(t, []proto.MsgType{proto.MT_SYNCED_META_CHANGE, proto.MT_STREAM_SYNCED_META_CHANGE}, ca.types())
	assert.Equal(t, []proto.MsgType{proto.MT_SYNCED_META_CHANGE}, cb.types())

	// destruction is announced to everyone who knows the object
	s.Destroy(v)
	assert.Equal(t, []proto.MsgType{proto.MT_OBJECT_REMOVE}, ca.types())
	assert.Equal(t, []proto.MsgType{proto.MT_OBJECT_REMOVE}, cb.types())
}

func TestBlipsAnnouncedToEveryPlayer(t *testing.T) {
	s := newTestServer(t)
	early, err := s.CreateBlip(0, entity.Vector3{X: 5000}, entity.BlipState{Sprite: 1, Name: "home"})
	assert.Equal(t, nil, err)

	c, p := connect(t, s, "alice")
	create := c.last(proto.MT_OBJECT_CREATE).(*proto.ObjectCreate)
	assert.Equal(t, wireRef(early), create.Object)
	assert.Equal(t, "home", create.Extra["name"])
	c.take()

	late, _ := s.CreateBlip(0, entity.Vector3{X: -5000}, entity.BlipState{Sprite: 2})
	assert.Equal(t, 1, c.count(proto.MT_OBJECT_CREATE))
	assert.T(t, late.KnownBy().Contains(p), "known")

	late.SetSyncedMeta("owner", "alice")
	late.SetPosition(entity.Vector3{X: -4000})
	s.Destroy(late)
	assert.Equal(t, []proto.MsgType{
		proto.MT_OBJECT_CREATE,
		proto.MT_SYNCED_META_CHANGE,
		proto.MT_OBJECT_POSITION,
		proto.MT_OBJECT_REMOVE,
	}, c.types())
}

func TestSyncPositionOnlyForSelfAndOwned(t *testing.T) {
	s := newTestServer(t)
	ca, a := connect(t, s, "a")
	cb, b := connect(t, s, "b")
	v := vehicleAt(t, s, 10)
	s.StreamingPass()
	assert.Equal(t, a, v.NetOwner())
	ca.take()
	cb.take()

	s.HandleMessage(ca, proto.MT_SYNC_POSITION, &proto.SyncPosition{Object: wireRef(v), Pos: proto.Vector3{X: 12}})
	assert.Equal(t, entity.Coord(12), v.Position().X)
	assert.Equal(t, 0, ca.count(proto.MT_OBJECT_POSITION))
	assert.Equal(t, 1, cb.count(proto.MT_OBJECT_POSITION))

	// b neither is the vehicle nor owns it
	s.HandleMessage(cb, proto.MT_SYNC_POSITION, &proto.SyncPosition{Object: wireRef(v), Pos: proto.Vector3{X: 99}})
	assert.Equal(t, entity.Coord(12), v.Position().X)
	s.HandleMessage(cb, proto.MT_SYNC_POSITION, &proto.SyncPosition{Object: wireRef(a), Pos: proto.Vector3{X: 99}})
	assert.Equal(t, entity.Coord(0), a.Position().X)

	s.HandleMessage(cb, proto.MT_SYNC_POSITION, &proto.SyncPosition{Object: wireRef(b), Pos: proto.Vector3{Y: 3}})
	assert.Equal(t, entity.Coord(3), b.Position().Y)
	pos := ca.last(proto.MT_OBJECT_POSITION).(*proto.ObjectPosition)
	assert.Equal(t, wireRef(b), pos.Object)
}

func TestRequestControl(t *testing.T) {
	s := newTestServer(t)
	ca, a := connect(t, s, "a")
	cb, b := connect(t, s, "b")
	v := vehicleAt(t, s, 10)
	s.StreamingPass()
	assert.Equal(t, a, v.NetOwner())

	deny := true
	s.On(event.PlayerControlRequest, func(ev event.Event) {
		if deny {
			ev.(*event.PlayerControlRequestEvent).Cancel()
		}
	})
	s.HandleMessage(cb, proto.MT_REQUEST_CONTROL, &proto.RequestControl{Object: wireRef(v)})
	assert.Equal(t, a, v.NetOwner())

	deny = false
	ca.take()
	s.HandleMessage(cb, proto.MT_REQUEST_CONTROL, &proto.RequestControl{Object: wireRef(v)})
	assert.Equal(t, b, v.NetOwner())
	change := ca.last(proto.MT_NET_OWNER_CHANGE).(*proto.NetOwnerChange)
	assert.Equal(t, wireRef(b), change.Owner)
}

func TestClientCallsServerRPC(t *testing.T) {
	s := newTestServer(t)
	c, p := connect(t, s, "alice")
	assert.Equal(t, nil, s.RegisterRPC("double", func(call *rpc.Call) {
		assert.Equal(t, p, call.Player)
		call.Answer(call.ArgInt(0) * 2)
	}))
	c.take()

	s.HandleMessage(c, proto.MT_RPC_CALL_ON_SERVER, &proto.RPCCall{Name: "double", Args: []interface{}{int64(42)}, AnswerID: 5})
	ans := c.last(proto.MT_RPC_ANSWER_TO_CLIENT).(*proto.RPCAnswer)
	assert.Equal(t, uint32(5), ans.AnswerID)
	assert.Equal(t, int64(84), ans.Value)

	s.On(event.ScriptRPC, func(ev event.Event) { ev.(*event.ScriptRPCEvent).Cancel() })
	s.HandleMessage(c, proto.MT_RPC_CALL_ON_SERVER, &proto.RPCCall{Name: "double", Args: []interface{}{int64(1)}, AnswerID: 6})
	ans = c.last(proto.MT_RPC_ANSWER_TO_CLIENT).(*proto.RPCAnswer)
	assert.Equal(t, uint32(6), ans.AnswerID)
	assert.Equal(t, "rpc double cancelled", ans.Error)
}

func TestServerCallsClientRPC(t *testing.T) {
	s := newTestServer(t)
	now := time.Unix(1000, 0)
	s.rpc.SetClock(func() time.Time { return now })
	c, p := connect(t, s, "alice")

	f := s.CallClient(p, "ping", 0, 42)
	call := c.last(proto.MT_RPC_CALL_ON_CLIENT).(*proto.RPCCall)
	assert.Equal(t, "ping", call.Name)
	s.HandleMessage(c, proto.MT_RPC_ANSWER_TO_SERVER, &proto.RPCAnswer{AnswerID: call.AnswerID, Value: int64(84)})
	v, err := f.Result()
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(84), v)

	slow := s.CallClient(p, "ping", 0)
	now = now.Add(s.Config().RPC.Timeout)
	s.Tick()
	_, err = slow.Result()
	assert.Equal(t, rpc.ErrTimeout, errors.Cause(err))

	gone := s.CallClient(p, "ping", 0)
	s.Disconnect(c, "closed")
	_, err = gone.Result()
	assert.Equal(t, rpc.ErrTargetGone, errors.Cause(err))

	_, err = s.CallClient(p, "ping", 0).Result()
	assert.Equal(t, ErrNotConnected, errors.Cause(err))
}

func TestClientEventProtection(t *testing.T) {
	cfg := config.Default()
	cfg.EventProtection.Enabled = true
	cfg.EventProtection.MaxEventsPerInterval = 2
	s := NewServer(cfg, nil)
	c, p := connect(t, s, "alice")

	received := 0
	s.OnClient("spam", func(ev event.Event) {
		e := ev.(*event.ClientEvent)
		assert.Equal(t, p, e.Player)
		received++
	})
	var suppressed []*event.ClientEventSuppressedEvent
	s.On(event.ClientEventSuppressed, func(ev event.Event) {
		suppressed = append(suppressed, ev.(*event.ClientEventSuppressedEvent))
	})
	for i := 0; i < 5; i++ {
		s.HandleMessage(c, proto.MT_CLIENT_EVENT, &proto.CustomEvent{Name: "spam"})
	}
	assert.Equal(t, 2, received)
	assert.Equal(t, 1, len(suppressed))
	assert.Equal(t, "spam", suppressed[0].Name)
	assert.Equal(t, 0, len(c.kicked))

	s.Protector().IgnorePlayer(uint32(p.ID()))
	s.HandleMessage(c, proto.MT_CLIENT_EVENT, &proto.CustomEvent{Name: "spam"})
	assert.Equal(t, 3, received)
}

func TestDisconnectMigratesOwnership(t *testing.T) {
	s := newTestServer(t)
	ca, a := connect(t, s, "a")
	cb, b := connect(t, s, "b")
	v := vehicleAt(t, s, 10)
	s.StreamingPass()
	assert.Equal(t, a, v.NetOwner())

	var reason string
	s.On(event.PlayerDisconnect, func(ev event.Event) {
		reason = ev.(*event.PlayerDisconnectEvent).Reason
	})
	cb.take()
	s.Disconnect(ca, "connection closed")
	s.Disconnect(ca, "connection closed")
	assert.Equal(t, "connection closed", reason)
	assert.Equal(t, b, v.NetOwner())
	assert.T(t, !a.IsValid(), "player destroyed")
	assert.Equal(t, []proto.MsgType{proto.MT_NET_OWNER_CHANGE, proto.MT_OBJECT_REMOVE}, cb.types())
	assert.Equal(t, []*entity.Object{b}, s.Players())
}

func TestColShapeEvents(t *testing.T) {
	s := newTestServer(t)
	shape, err := s.CreateColShape(0, entity.Vector3{X: 100}, entity.ShapeOptions{Type: entity.ShapeSphere, Radius: 5})
	assert.Equal(t, nil, err)
	v := vehicleAt(t, s, 0)

	var transitions []string
	s.On(event.EntityEnterColShape, func(ev event.Event) { transitions = append(transitions, "enter") })
	s.On(event.EntityLeaveColShape, func(ev event.Event) { transitions = append(transitions, "leave") })
	generic := 0
	s.On(event.ColShapeEvent, func(ev event.Event) { generic++ })

	s.ColShapePass()
	v.SetPosition(entity.Vector3{X: 101})
	s.ColShapePass()
	assert.T(t, s.IsEntityIn(shape, v), "inside")
	s.ColShapePass()
	v.SetPosition(entity.Vector3{})
	s.ColShapePass()
	v.SetPosition(entity.Vector3{X: 99})
	s.ColShapePass()
	assert.Equal(t, []string{"enter", "leave", "enter"}, transitions)
	assert.Equal(t, 3, generic)
	assert.T(t, s.IsPointIn(shape, entity.Vector3{X: 104}), "point inside")
}

func TestGlobalSyncedMeta(t *testing.T) {
	s := newTestServer(t)
	s.SetSyncedMeta("weather", "rain")
	c, _ := connect(t, s, "alice")
	ack := c.last(proto.MT_HANDSHAKE_ACK).(*proto.HandshakeAck)
	assert.Equal(t, "rain", ack.GlobalMeta["weather"])
	c.take()

	s.SetMeta("hidden", 1)
	s.SetSyncedMeta("weather", "sun")
	s.DeleteSyncedMeta("weather")
	s.DeleteSyncedMeta("weather")
	assert.Equal(t, []proto.MsgType{proto.MT_GLOBAL_SYNCED_META_CHANGE, proto.MT_GLOBAL_SYNCED_META_CHANGE}, c.types())
	assert.Equal(t, 1, s.GetMeta("hidden"))
	assert.Equal(t, nil, s.GetSyncedMeta("weather"))
}

func TestQueries(t *testing.T) {
	s := newTestServer(t)
	near := vehicleAt(t, s, 10)
	far := vehicleAt(t, s, 30)
	vehicleAt(t, s, 500)
	ped, _ := s.CreatePed(1, 0, entity.Vector3{X: 5}, entity.Vector3{})
	shape, _ := s.CreateColShape(0, entity.Vector3{X: 1}, entity.ShapeOptions{Type: entity.ShapeSphere, Radius: 1})
	s.CreateVehicle(1, 7, entity.Vector3{X: 1}, entity.Vector3{})

	vehicles := entity.MaskOf(entity.KindVehicle)
	assert.Equal(t, []*entity.Object{near, far}, s.GetEntitiesInRange(entity.Vector3{}, 50, 0, vehicles))
	assert.Equal(t, []*entity.Object{shape, ped, near}, s.GetClosestEntities(entity.Vector3{}, 50, 0, 3, entity.MaskOf(entity.KindVehicle, entity.KindPed, entity.KindColShape)))
	assert.Equal(t, 1, len(s.GetEntitiesInDimension(7, vehicles)))
	assert.Equal(t, 3, len(s.GetEntitiesInDimension(0, vehicles)))
}

func TestPlayerKickedDuringStreamInLeavesNoObserver(t *testing.T) {
	s := newTestServer(t)
	_, alice := connect(t, s, "alice")
	v1 := vehicleAt(t, s, 10)
	v2 := vehicleAt(t, s, 20)
	s.On(event.NetOwnerChange, func(ev event.Event) {
		if e := ev.(*event.NetOwnerChangeEvent); e.NewOwner == alice {
			s.Destroy(alice)
		}
	})
	s.StreamingPass()
	assert.T(t, !alice.IsValid(), "alice destroyed")
	for _, v := range []*entity.Object{v1, v2} {
		assert.Equal(t, 0, len(v.Observers()))
		assert.Equal(t, 0, len(v.KnownBy()))
	}

	// bob may get alice's id but never streamed v2
	s.Registry().Flush()
	cb, bob := connect(t, s, "bob")
	assert.T(t, !v2.IsObservedBy(bob), "bob does not observe v2")
	s.HandleMessage(cb, proto.MT_REQUEST_CONTROL, &proto.RequestControl{Object: wireRef(v2)})
	assert.T(t, v2.NetOwner() == nil, "no owner without observation")
}

func TestPlayerDimensionChangeEvent(t *testing.T) {
	s := newTestServer(t)
	c, p := connect(t, s, "alice")
	var got []*event.PlayerDimensionChangeEvent
	s.On(event.PlayerDimensionChange, func(ev event.Event) {
		got = append(got, ev.(*event.PlayerDimensionChangeEvent))
	})
	c.take()

	p.SetDimension(3)
	assert.Equal(t, 1, len(got))
	assert.Equal(t, p, got[0].Player)
	assert.Equal(t, int32(0), got[0].OldDimension)
	assert.Equal(t, int32(3), got[0].NewDimension)
	update := c.last(proto.MT_OBJECT_UPDATE).(*proto.ObjectUpdate)
	assert.Equal(t, proto.FIELD_DIMENSION, update.Field)

	// other kinds do not fire it
	v := vehicleAt(t, s, 10)
	v.SetDimension(3)
	assert.Equal(t, 1, len(got))
}

func TestEmitClients(t *testing.T) {
	s := newTestServer(t)
	ca, a := connect(t, s, "a")
	cb, _ := connect(t, s, "b")
	cc, c := connect(t, s, "c")
	ca.take()
	cb.take()
	cc.take()

	s.EmitClients([]*entity.Object{a, c}, "round", 1)
	assert.Equal(t, []proto.MsgType{proto.MT_SERVER_EVENT}, ca.types())
	assert.Equal(t, 0, len(cb.types()))
	ev := cc.last(proto.MT_SERVER_EVENT).(*proto.CustomEvent)
	assert.Equal(t, "round", ev.Name)
	assert.Equal(t, []interface{}{1}, ev.Args)
}

func TestStreamingOptionsAtRuntime(t *testing.T) {
	s := newTestServer(t)
	_, p := connect(t, s, "alice")
	v := vehicleAt(t, s, 50)
	opts := s.StreamingOptions()
	opts.StreamingDistance = 20
	s.SetStreamingOptions(opts)
	s.StreamingPass()
	assert.T(t, !v.IsObservedBy(p), "out of the shorter distance")

	opts.StreamingDistance = 100
	s.SetStreamingOptions(opts)
	s.StreamingPass()
	assert.T(t, v.IsObservedBy(p), "in range again")
	assert.Equal(t, entity.Coord(100), s.StreamingOptions().StreamingDistance)

	mopts := s.MigrationOptions()
	mopts.Distance = 10
	s.SetMigrationOptions(mopts)
	assert.Equal(t, entity.Coord(10), s.MigrationOptions().Distance)
}
