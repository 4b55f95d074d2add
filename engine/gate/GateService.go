package gate

import (
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	"github.com/xiaonanln/gostream/engine/common"
	"github.com/xiaonanln/gostream/engine/consts"
	"github.com/xiaonanln/gostream/engine/gwlog"
	"github.com/xiaonanln/gostream/engine/gwutils"
	"github.com/xiaonanln/gostream/engine/netutil"
	"github.com/xiaonanln/gostream/engine/opmon"
	"github.com/xiaonanln/gostream/engine/post"
	"github.com/xiaonanln/gostream/engine/proto"
	"github.com/xtaci/kcp-go"
	"golang.org/x/net/websocket"
)

type recvItem struct {
	cp      *ClientProxy
	msgType proto.MsgType
	payload []byte
}

type sendItem struct {
	cp      *ClientProxy
	msgType proto.MsgType
	msg     interface{}
}

// Service owns all client connections
type Service struct {
	opts    Options
	handler Handler
	queue   *post.Queue

	clientProxies     map[common.ClientID]*ClientProxy
	clientProxiesLock sync.RWMutex
	recvQueues        []*xnsyncutil.SyncQueue
	sendQueues        []*xnsyncutil.SyncQueue
	workers           sync.WaitGroup

	listeners   []net.Listener
	terminating xnsyncutil.AtomicBool
}

// NewService creates the gate; handler callbacks are posted to queue
func NewService(opts Options, handler Handler, queue *post.Queue) *Service {
	if opts.RecvWorkers <= 0 {
		opts.RecvWorkers = 1
	}
	if opts.SendWorkers <= 0 {
		opts.SendWorkers = 1
	}
	gs := &Service{
		opts:          opts,
		handler:       handler,
		queue:         queue,
		clientProxies: map[common.ClientID]*ClientProxy{},
	}
	for i := 0; i < opts.RecvWorkers; i++ {
		gs.recvQueues = append(gs.recvQueues, xnsyncutil.NewSyncQueue())
	}
	for i := 0; i < opts.SendWorkers; i++ {
		gs.sendQueues = append(gs.sendQueues, xnsyncutil.NewSyncQueue())
	}
	return gs
}

func (gs *Service) String() string {
	return fmt.Sprintf("GateService<%s>", gs.opts.ListenAddr)
}

// Start starts the workers and every configured listener
func (gs *Service) Start() error {
	for i := range gs.recvQueues {
		q := gs.recvQueues[i]
		gs.workers.Add(1)
		go func() {
			defer gs.workers.Done()
			gs.recvRoutine(q)
		}()
	}
	for i := range gs.sendQueues {
		q := gs.sendQueues[i]
		gs.workers.Add(1)
		go func() {
			defer gs.workers.Done()
			gs.sendRoutine(q)
		}()
	}

	if gs.opts.ListenAddr != "" {
		ln, err := net.Listen("tcp", gs.opts.ListenAddr)
		if err != nil {
			return err
		}
		gs.listeners = append(gs.listeners, ln)
		go gs.serveTCP(ln)
	}
	if gs.opts.KCPAddr != "" {
		ln, err := kcp.ListenWithOptions(gs.opts.KCPAddr, nil, 10, 3)
		if err != nil {
			return err
		}
		gs.listeners = append(gs.listeners, ln)
		go gs.serveKCP(ln)
	}
	if gs.opts.WebSocketAddr != "" {
		ln, err := net.Listen("tcp", gs.opts.WebSocketAddr)
		if err != nil {
			return err
		}
		gs.listeners = append(gs.listeners, ln)
		go gs.serveWebSocket(ln)
	}
	return nil
}

// Addrs returns the bound address of every listener, in start order
func (gs *Service) Addrs() []net.Addr {
	addrs := make([]net.Addr, 0, len(gs.listeners))
	for _, ln := range gs.listeners {
		addrs = append(addrs, ln.Addr())
	}
	return addrs
}

func (gs *Service) serveTCP(ln net.Listener) {
	err := netutil.ServeTCP(ln, gs)
	if !gs.terminating.Load() {
		gwlog.Errorf("%s: tcp listener stopped: %v", gs, err)
	}
}

// ServeTCPConnection handle TCP connections from clients
func (gs *Service) ServeTCPConnection(conn net.Conn) {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetWriteBuffer(consts.CLIENT_PROXY_WRITE_BUFFER_SIZE)
		tcpConn.SetReadBuffer(consts.CLIENT_PROXY_READ_BUFFER_SIZE)
		tcpConn.SetNoDelay(consts.CLIENT_PROXY_SET_TCP_NO_DELAY)
	}
	gs.handleClientConnection(conn, "tcp")
}

func (gs *Service) serveKCP(ln *kcp.Listener) {
	gwlog.Infof("Listening on KCP: %s ...", ln.Addr())
	for {
		conn, err := ln.AcceptKCP()
		if err != nil {
			if !gs.terminating.Load() {
				gwlog.Errorf("%s: kcp listener stopped: %v", gs, err)
			}
			return
		}
		go gs.handleKCPConn(conn)
	}
}

func (gs *Service) handleKCPConn(conn *kcp.UDPSession) {
	gwlog.Infof("KCP connection from %s", conn.RemoteAddr())

	conn.SetReadBuffer(consts.CLIENT_PROXY_READ_BUFFER_SIZE)
	conn.SetWriteBuffer(consts.CLIENT_PROXY_WRITE_BUFFER_SIZE)
	// turbo mode
	conn.SetStreamMode(true)
	conn.SetWriteDelay(true)
	conn.SetNoDelay(1, 10, 2, 1)
	gs.handleClientConnection(conn, "kcp")
}

func (gs *Service) serveWebSocket(ln net.Listener) {
	gwlog.Infof("Listening on WebSocket: ws://%s/ws ...", ln.Addr())
	mux := http.NewServeMux()
	mux.Handle("/ws", websocket.Handler(gs.handleWebSocketConn))
	err := http.Serve(ln, mux)
	if !gs.terminating.Load() {
		gwlog.Errorf("%s: websocket listener stopped: %v", gs, err)
	}
}

func (gs *Service) handleWebSocketConn(wsConn *websocket.Conn) {
	gwlog.Debugf("WebSocket Connection: %s", wsConn.RemoteAddr())
	wsConn.PayloadType = websocket.BinaryFrame
	gs.handleClientConnection(wsConn, "websocket")
}

func (gs *Service) handleClientConnection(netconn net.Conn, transport string) {
	if gs.terminating.Load() {
		// not accepting more connections
		netconn.Close()
		return
	}

	cp := newClientProxy(netconn, transport, gs.opts.Compress && transport != "websocket", len(gs.sendQueues))

	gs.clientProxiesLock.Lock()
	gs.clientProxies[cp.clientid] = cp
	gs.clientProxiesLock.Unlock()

	if consts.DEBUG_CLIENTS {
		gwlog.Debugf("%s: client %s connected", gs, cp)
	}
	gs.queue.Post(func() {
		gs.handler.OnClientConnect(cp)
	})
	cp.serve(gs)
}

func (gs *Service) onClientProxyClose(cp *ClientProxy) {
	gs.clientProxiesLock.Lock()
	_, ok := gs.clientProxies[cp.clientid]
	delete(gs.clientProxies, cp.clientid)
	gs.clientProxiesLock.Unlock()
	if !ok {
		return
	}

	// through the recv queue so that the disconnect follows every message of the client
	gs.recvQueues[cp.worker%len(gs.recvQueues)].Push(recvItem{cp: cp, msgType: proto.MT_INVALID})
}

func (gs *Service) recvRoutine(q *xnsyncutil.SyncQueue) {
	for {
		v := q.Pop()
		if v == nil { // queue closed
			return
		}
		item := v.(recvItem)
		if item.msgType == proto.MT_INVALID {
			gs.queue.Post(func() {
				gs.handler.OnClientDisconnect(item.cp)
			})
			continue
		}

		op := opmon.StartOperation("gate.decode")
		msg, err := proto.Decode(item.msgType, item.payload)
		op.Finish(consts.TICK_WARN_THRESHOLD)
		if err != nil {
			gwlog.Warnf("%s: bad packet from %s: %v", gs, item.cp, err)
			item.cp.Close()
			continue
		}
		gs.queue.Post(func() {
			item.cp.heartbeatTime = time.Now()
			gs.handler.OnClientMessage(item.cp, item.msgType, msg)
		})
	}
}

// Send queues msg to the client; it is encoded and flushed by a send worker
func (gs *Service) Send(cp *ClientProxy, msgType proto.MsgType, msg interface{}) {
	if cp.IsClosed() {
		return
	}
	gs.sendQueues[cp.worker%len(gs.sendQueues)].Push(sendItem{cp: cp, msgType: msgType, msg: msg})
}

// Broadcast queues msg to every connected client
func (gs *Service) Broadcast(msgType proto.MsgType, msg interface{}) {
	for _, cp := range gs.Clients() {
		gs.Send(cp, msgType, msg)
	}
}

func (gs *Service) sendRoutine(q *xnsyncutil.SyncQueue) {
	for {
		v := q.Pop()
		if v == nil {
			return
		}
		item := v.(sendItem)
		if item.msgType == proto.MT_INVALID { // kick
			go closeAfterFlush(item.cp)
			continue
		}
		gwutils.RunPanicless(func() {
			gs.sendItem(item)
		})
	}
}

// closeAfterFlush waits for queued packets to reach the stream before closing
func closeAfterFlush(cp *ClientProxy) {
	if err := cp.Flush(); err != nil && !cp.IsClosed() {
		gwlog.Warnf("%s: flush before close failed: %v", cp, err)
	}
	cp.Close()
}

func (gs *Service) sendItem(item sendItem) {
	payload, err := proto.Encode(item.msg)
	if err != nil {
		gwlog.Errorf("%s: encode %T for %s failed: %v", gs, item.msg, item.cp, err)
		return
	}
	if consts.DEBUG_PACKETS {
		gwlog.Debugf("%s send packet: msgtype=%d, payload(%d)", item.cp, item.msgType, len(payload))
	}
	if err := item.cp.SendPacket(uint16(item.msgType), payload); err != nil && !item.cp.IsClosed() {
		gwlog.Warnf("%s: send to %s failed: %v", gs, item.cp, err)
		item.cp.Close()
	}
}

// Kick sends the reason and closes the client once queued messages are flushed
func (gs *Service) Kick(cp *ClientProxy, reason string) {
	gs.Send(cp, proto.MT_KICK, &proto.Kick{Reason: reason})
	gs.sendQueues[cp.worker%len(gs.sendQueues)].Push(sendItem{cp: cp, msgType: proto.MT_INVALID})
}

// GetClient returns the client of id, or nil
func (gs *Service) GetClient(id common.ClientID) *ClientProxy {
	gs.clientProxiesLock.RLock()
	defer gs.clientProxiesLock.RUnlock()
	return gs.clientProxies[id]
}

// Clients returns the connected clients sorted by id
func (gs *Service) Clients() []*ClientProxy {
	gs.clientProxiesLock.RLock()
	clients := make([]*ClientProxy, 0, len(gs.clientProxies))
	for _, cp := range gs.clientProxies {
		clients = append(clients, cp)
	}
	gs.clientProxiesLock.RUnlock()
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].clientid < clients[j].clientid
	})
	return clients
}

// Terminate closes the listeners, every client and the workers
func (gs *Service) Terminate() {
	if gs.terminating.Load() {
		return
	}
	gs.terminating.Store(true)
	for _, ln := range gs.listeners {
		ln.Close()
	}
	for _, cp := range gs.Clients() { // close all connected clients when terminating
		cp.Close()
	}
	for _, q := range gs.sendQueues {
		q.Close()
	}
	for _, q := range gs.recvQueues {
		q.Close()
	}
	gs.workers.Wait()
}
