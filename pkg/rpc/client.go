package rpc

import (
	"net"
	"time"

	"github.com/Snider/Fabric/pkg/wire"
)

// Call dials addr, writes requestBody as one frame, reads exactly one
// response frame, and closes the connection — the mandated one
// request/response per connection.
func Call(addr string, requestBody []byte, timeout time.Duration) ([]byte, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if timeout > 0 {
		conn.SetDeadline(time.Now().Add(timeout))
	}

	if err := wire.WriteFrame(conn, requestBody); err != nil {
		return nil, err
	}

	return wire.ReadFrame(conn)
}
