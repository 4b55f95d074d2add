package netutil

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/pktconn"
)

const (
	_SIZE_FIELD_SIZE  = 4
	_TYPE_FIELD_SIZE  = 2
	_HEADER_SIZE      = _SIZE_FIELD_SIZE + _TYPE_FIELD_SIZE
	_MAX_PAYLOAD_SIZE = pktconn.MaxPayloadLength - _TYPE_FIELD_SIZE

	_FLUSH_POLL_INTERVAL = time.Millisecond
	_FLUSH_TIMEOUT       = time.Second
)

var (
	// ErrConnectionClosed is returned when using a closed packet connection
	ErrConnectionClosed = errors.New("packet connection closed")
	// ErrPayloadTooLarge is returned for packets above the connection's payload limit
	ErrPayloadTooLarge = errors.New("packet payload too large")
	// ErrPacketTooShort is returned for packets that do not carry a message type
	ErrPacketTooShort = errors.New("packet too short")
)

// Packet is one framed message
type Packet struct {
	MsgType uint16
	Payload []byte
}

// countingConn counts the bytes pktconn has written and flushed to the stream
type countingConn struct {
	Connection
	pc *PacketConnection
}

func (c countingConn) Write(b []byte) (int, error) {
	n, err := c.Connection.Write(b)
	atomic.AddUint64(&c.pc.written, uint64(n))
	return n, err
}

func (c countingConn) Flush() error {
	err := c.Connection.Flush()
	if err == nil {
		atomic.StoreUint64(&c.pc.flushed, atomic.LoadUint64(&c.pc.written))
	}
	return err
}

// PacketConnection sends and receives packets upon a stream connection using pktconn.
// Each pktconn packet starts with the message type as uint16, followed by the payload.
// Sends may come from any goroutine; receives must come from one.
type PacketConnection struct {
	queued     uint64
	written    uint64
	flushed    uint64
	pc         *pktconn.PacketConn
	maxPayload int

	recvOnce sync.Once
	recvChan chan *pktconn.Packet
}

// NewPacketConnection creates a packet connection based on network connection; maxPayload <= 0 selects the default limit
func NewPacketConnection(conn Connection, tag interface{}, maxPayload int) *PacketConnection {
	if maxPayload <= 0 || maxPayload > _MAX_PAYLOAD_SIZE {
		maxPayload = _MAX_PAYLOAD_SIZE
	}
	pc := &PacketConnection{
		maxPayload: maxPayload,
		recvChan:   make(chan *pktconn.Packet, pktconn.DefaultRecvChanSize),
	}
	config := pktconn.DefaultConfig()
	config.Tag = tag
	pc.pc = pktconn.NewPacketConnWithConfig(context.TODO(), countingConn{conn, pc}, config)
	return pc
}

// Tag returns the value given at creation
func (pc *PacketConnection) Tag() interface{} {
	return pc.pc.Tag
}

// SendPacket queues one packet; pktconn writes it out after its flush delay
func (pc *PacketConnection) SendPacket(msgType uint16, payload []byte) error {
	if pc.IsClosed() {
		return ErrConnectionClosed
	}
	if len(payload) > pc.maxPayload {
		return errors.Wrapf(ErrPayloadTooLarge, "send %d bytes", len(payload))
	}

	packet := pktconn.NewPacket()
	packet.WriteUint16(msgType)
	packet.WriteBytes(payload)
	atomic.AddUint64(&pc.queued, uint64(_HEADER_SIZE+len(payload)))
	pc.pc.Send(packet)
	packet.Release()
	return nil
}

// Flush blocks until every queued packet is flushed to the stream, the connection closes or a timeout passes
func (pc *PacketConnection) Flush() error {
	target := atomic.LoadUint64(&pc.queued)
	timeout := time.NewTimer(_FLUSH_TIMEOUT)
	defer timeout.Stop()
	ticker := time.NewTicker(_FLUSH_POLL_INTERVAL)
	defer ticker.Stop()

	for atomic.LoadUint64(&pc.flushed) < target {
		select {
		case <-pc.pc.Done():
			return ErrConnectionClosed
		case <-timeout.C:
			return errors.Errorf("%s: flush timeout", pc)
		case <-ticker.C:
		}
	}
	return nil
}

// RecvPacket blocks until the next packet arrives
func (pc *PacketConnection) RecvPacket() (*Packet, error) {
	pc.recvOnce.Do(func() {
		go func() {
			_ = pc.pc.RecvChan(pc.recvChan)
			close(pc.recvChan)
		}()
	})

	packet, ok := <-pc.recvChan
	if !ok {
		if err := pc.pc.Err(); err != nil && !IsConnectionError(err) {
			return nil, err
		}
		return nil, ErrConnectionClosed
	}
	defer packet.Release()

	if packet.GetPayloadLen() < _TYPE_FIELD_SIZE {
		pc.Close()
		return nil, ErrPacketTooShort
	}
	msgType := packet.ReadUint16()
	body := packet.UnreadPayload()
	if len(body) > pc.maxPayload {
		pc.Close()
		return nil, errors.Wrapf(ErrPayloadTooLarge, "recv %d bytes", len(body))
	}
	payload := make([]byte, len(body))
	copy(payload, body)
	return &Packet{MsgType: msgType, Payload: payload}, nil
}

// RecvLoop receives packets and hands them to handle until the connection fails
func (pc *PacketConnection) RecvLoop(handle func(pkt *Packet)) error {
	for {
		pkt, err := pc.RecvPacket()
		if err != nil {
			return err
		}
		handle(pkt)
	}
}

// Close the connection
func (pc *PacketConnection) Close() error {
	return pc.pc.Close()
}

// IsClosed returns if the connection was closed locally or by a failure
func (pc *PacketConnection) IsClosed() bool {
	select {
	case <-pc.pc.Done():
		return true
	default:
		return false
	}
}

// RemoteAddr return the remote address
func (pc *PacketConnection) RemoteAddr() net.Addr {
	return pc.pc.RemoteAddr()
}

// LocalAddr returns the local address
func (pc *PacketConnection) LocalAddr() net.Addr {
	return pc.pc.LocalAddr()
}

func (pc *PacketConnection) String() string {
	return fmt.Sprintf("[%s >>> %s]", pc.LocalAddr(), pc.RemoteAddr())
}
