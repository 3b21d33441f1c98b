package cmd

import (
	"github.com/Snider/Fabric/pkg/ferrors"
	"github.com/Snider/Fabric/pkg/wire"
)

// encodeError converts any handler error into an ERROR frame body,
// translating fabric errors to their wire code/message and falling back
// to an internal-error code for anything else.
func encodeError(err error) []byte {
	fe := ferrors.AsFabricError(err)
	body, _ := wire.EncodeMessage(wire.NewErrorBody(string(fe.Code), fe.Message))
	return body
}
