// Package gate accepts client connections over TCP, KCP and WebSocket and moves their packets
// between the network and the main routine.
package gate

import (
	"github.com/cespare/xxhash/v2"
	"github.com/xiaonanln/gostream/engine/common"
	"github.com/xiaonanln/gostream/engine/proto"
)

// Handler receives client lifecycle and messages; every call happens on the main routine
type Handler interface {
	OnClientConnect(cp *ClientProxy)
	OnClientMessage(cp *ClientProxy, msgType proto.MsgType, msg interface{})
	OnClientDisconnect(cp *ClientProxy)
}

// Options configures listeners and workers; empty addresses disable a transport
type Options struct {
	ListenAddr    string
	KCPAddr       string
	WebSocketAddr string
	Compress      bool
	RecvWorkers   int
	SendWorkers   int
}

func workerIndex(id common.ClientID, workers int) int {
	if workers <= 1 {
		return 0
	}
	return int(xxhash.Sum64String(string(id)) % uint64(workers))
}
