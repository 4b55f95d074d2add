package gate

import (
	"fmt"
	"net"
	"time"

	"github.com/xiaonanln/gostream/engine/common"
	"github.com/xiaonanln/gostream/engine/consts"
	"github.com/xiaonanln/gostream/engine/gwlog"
	"github.com/xiaonanln/gostream/engine/netutil"
	"github.com/xiaonanln/gostream/engine/proto"
)

// ClientProxy is one client connection managed by the gate
type ClientProxy struct {
	*netutil.PacketConnection
	clientid      common.ClientID
	transport     string
	connectTime   time.Time
	heartbeatTime time.Time
	worker        int
}

func newClientProxy(conn net.Conn, transport string, compress bool, workers int) *ClientProxy {
	cp := &ClientProxy{
		clientid:    common.GenClientID(),
		transport:   transport,
		connectTime: time.Now(),
	}
	cp.heartbeatTime = cp.connectTime
	cp.worker = workerIndex(cp.clientid, workers)
	c := netutil.NewClientConnection(conn, compress, consts.BUFFERED_READ_BUFFSIZE, consts.BUFFERED_WRITE_BUFFSIZE)
	cp.PacketConnection = netutil.NewPacketConnection(c, cp, consts.MAX_PACKET_PAYLOAD_LENGTH)
	return cp
}

func (cp *ClientProxy) String() string {
	return fmt.Sprintf("ClientProxy<%s@%s/%s>", cp.clientid, cp.RemoteAddr(), cp.transport)
}

// ID returns the unique id of the connection
func (cp *ClientProxy) ID() common.ClientID {
	return cp.clientid
}

// Transport returns tcp, kcp or websocket
func (cp *ClientProxy) Transport() string {
	return cp.transport
}

// IP returns the remote ip of the connection
func (cp *ClientProxy) IP() string {
	addr := cp.RemoteAddr()
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// HeartbeatTime returns when the last packet arrived; read on the main routine only
func (cp *ClientProxy) HeartbeatTime() time.Time {
	return cp.heartbeatTime
}

// ConnectTime returns when the connection was accepted
func (cp *ClientProxy) ConnectTime() time.Time {
	return cp.connectTime
}

// Ping returns the time since the last heartbeat
func (cp *ClientProxy) Ping(now time.Time) time.Duration {
	return now.Sub(cp.heartbeatTime)
}

func (cp *ClientProxy) serve(gs *Service) {
	defer func() {
		cp.Close()
		gs.onClientProxyClose(cp)

		if err := recover(); err != nil && !netutil.IsConnectionError(err) {
			gwlog.TraceError("%s error: %v", cp, err)
		} else if consts.DEBUG_CLIENTS {
			gwlog.Debugf("%s disconnected", cp)
		}
	}()

	err := cp.RecvLoop(func(pkt *netutil.Packet) {
		if consts.DEBUG_PACKETS {
			gwlog.Debugf("%s recv packet: msgtype=%d, payload(%d)", cp, pkt.MsgType, len(pkt.Payload))
		}
		gs.recvQueues[cp.worker].Push(recvItem{cp: cp, msgType: proto.MsgType(pkt.MsgType), payload: pkt.Payload})
	})
	if err != nil {
		gwlog.Panic(err)
	}
}
