package peerserver

import "github.com/Snider/Fabric/pkg/wire"

// handleSetMem serves both SET_MEM and SET_MEM_REMOTE — the wire only
// distinguishes them at the envelope level, and the in-memory store makes
// no distinction between a local and a remote writer.
func (p *Peer) handleSetMem(body []byte) ([]byte, error) {
	var req wire.SetMemBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	p.mem.Set(req.Key, req.Value)
	return wire.EncodeMessage(wire.Envelope{Type: req.Type})
}

// handleGetMem serves both GET_MEM and GET_MEM_REMOTE.
func (p *Peer) handleGetMem(body []byte) ([]byte, error) {
	var req wire.GetMemBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	v, found := p.mem.Get(req.Key)
	return wire.EncodeMessage(wire.MemResponseBody{
		Type:  wire.TypeMemResponse,
		Key:   req.Key,
		Value: v,
		Found: found,
	})
}
