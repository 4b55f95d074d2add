package netutil

import (
	"net"
	"time"

	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	"github.com/xiaonanln/gostream/engine/gwlog"
)

const (
	_RESTART_TCP_SERVER_INTERVAL = 3 * time.Second
)

// TCPServerDelegate is the implementations that a TCP server should provide
type TCPServerDelegate interface {
	ServeTCPConnection(net.Conn)
}

// ServeTCPForever serves on specified address as TCP server until stop is set
func ServeTCPForever(listenAddr string, delegate TCPServerDelegate, stop *xnsyncutil.AtomicBool) {
	for stop == nil || !stop.Load() {
		err := serveTCPForeverOnce(listenAddr, delegate)
		if stop != nil && stop.Load() {
			return
		}
		gwlog.Errorf("server@%s failed with error: %v, will restart after %s", listenAddr, err, _RESTART_TCP_SERVER_INTERVAL)
		time.Sleep(_RESTART_TCP_SERVER_INTERVAL)
	}
}

func serveTCPForeverOnce(listenAddr string, delegate TCPServerDelegate) (err error) {
	defer func() {
		if r := recover(); r != nil {
			gwlog.TraceError("serveTCPImpl: paniced with error %s", r)
		}
	}()

	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	return ServeTCP(ln, delegate)
}

// ServeTCP accepts connections on ln and serves each one in its own goroutine
func ServeTCP(ln net.Listener, delegate TCPServerDelegate) error {
	gwlog.Infof("Listening on TCP: %s ...", ln.Addr())
	defer ln.Close()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if IsTimeoutError(err) {
				continue
			}
			return err
		}

		gwlog.Infof("Connection from: %s", conn.RemoteAddr())
		go delegate.ServeTCPConnection(conn)
	}
}
