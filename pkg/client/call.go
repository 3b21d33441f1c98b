// Package client provides typed, one-request-per-connection wrappers
// over pkg/rpc and pkg/wire for every tracker- and peer-facing message
// kind, modeled on the teacher's controller.go request/response
// pattern but simplified: this protocol has no persistent connection or
// pending-request map, since every call is a single dial/write/read/close
// round trip (pkg/rpc.Call already provides that).
package client

import (
	"time"

	"github.com/Snider/Fabric/pkg/ferrors"
	"github.com/Snider/Fabric/pkg/rpc"
	"github.com/Snider/Fabric/pkg/wire"
)

// DefaultTimeout is used by callers that don't need a tighter deadline.
const DefaultTimeout = 30 * time.Second

// call sends req to addr and decodes the response into resp, or returns
// the reconstructed *ferrors.FabricError if the remote side replied
// with an ERROR frame.
func call(addr string, timeout time.Duration, req interface{}, resp interface{}) error {
	reqBody, err := wire.EncodeMessage(req)
	if err != nil {
		return err
	}

	respBody, err := rpc.Call(addr, reqBody, timeout)
	if err != nil {
		return err
	}

	var env wire.Envelope
	if err := wire.DecodeMessage(respBody, &env); err != nil {
		return err
	}
	if env.Type == wire.TypeError {
		var errBody wire.ErrorBody
		if err := wire.DecodeMessage(respBody, &errBody); err != nil {
			return err
		}
		return ferrors.FromWire(errBody.Code, errBody.Error)
	}

	return wire.DecodeMessage(respBody, resp)
}
