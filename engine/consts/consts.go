package consts

import "time"

// Tunable Options
const (
	// For Underlying Networking
	// BUFFERED_READ_BUFFSIZE is the read buffer size for buffered client connections
	BUFFERED_READ_BUFFSIZE = 16384
	// BUFFERED_WRITE_BUFFSIZE is the write buffer size for buffered client connections
	BUFFERED_WRITE_BUFFSIZE = 16384
	// MAX_PACKET_PAYLOAD_LENGTH is the largest packet payload accepted from a client
	MAX_PACKET_PAYLOAD_LENGTH = 4 * 1024 * 1024

	// CLIENT_PROXY_WRITE_BUFFER_SIZE is the socket write buffer size for client connections
	CLIENT_PROXY_WRITE_BUFFER_SIZE = 1024 * 1024
	// CLIENT_PROXY_READ_BUFFER_SIZE is the socket read buffer size for client connections
	CLIENT_PROXY_READ_BUFFER_SIZE = 1024 * 1024
	// CLIENT_PROXY_SET_TCP_NO_DELAY = true sets client connections to TcpNoDelay
	CLIENT_PROXY_SET_TCP_NO_DELAY = true

	// SERVER_TICK_INTERVAL is the main tick interval when not configured
	SERVER_TICK_INTERVAL = time.Millisecond * 10
	// TICK_WARN_THRESHOLD is the duration above which a single pass is reported by opmon
	TICK_WARN_THRESHOLD = time.Millisecond * 50

	// SPATIAL_CELL_SIZE is the edge length of a spatial grid cell
	SPATIAL_CELL_SIZE = 100

	// PROCESS_MONITOR_INTERVAL is how often the process monitor samples cpu and memory
	PROCESS_MONITOR_INTERVAL = time.Minute
	// OPMON_DUMP_INTERVAL is the interval to dump operation stats, 0 disables dumping
	OPMON_DUMP_INTERVAL = 0
)

// Debug Options
const (
	// DEBUG_PACKETS enables logging of every client packet
	DEBUG_PACKETS = false
	// DEBUG_STREAMING enables logging of stream-in and stream-out
	DEBUG_STREAMING = false
	// DEBUG_MIGRATION enables logging of net owner changes
	DEBUG_MIGRATION = false
	// DEBUG_COLSHAPES enables logging of colshape transitions
	DEBUG_COLSHAPES = false
	// DEBUG_RPC enables logging of rpc calls and answers
	DEBUG_RPC = false
	// DEBUG_CLIENTS enables logging of client connections
	DEBUG_CLIENTS = true
)
