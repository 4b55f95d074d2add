package netutil

import (
	"net"

	"github.com/xiaonanln/netconnutil"
)

// Connection is a network stream that buffers writes until Flush
type Connection interface {
	netconnutil.FlushableConn
}

// NetConn adapts a plain net.Conn to Connection; Flush does nothing
type NetConn struct {
	net.Conn
}

// Flush is a no-op since net.Conn writes are unbuffered
func (n NetConn) Flush() error {
	return nil
}

// NewClientConnection wraps a raw client socket: temporary errors are retried and both directions are buffered
func NewClientConnection(conn net.Conn, compress bool, readBufferSize, writeBufferSize int) Connection {
	conn = netconnutil.NewNoTempErrorConn(conn)
	var c Connection = NetConn{conn}
	if compress {
		c = netconnutil.NewSnappyConn(c)
	}
	return netconnutil.NewBufferedConn(c, readBufferSize, writeBufferSize)
}
