package peerserver

import (
	"encoding/base64"
	"net"
	"strconv"

	"github.com/Snider/Fabric/pkg/ferrors"
	"github.com/Snider/Fabric/pkg/ownedfile"
	"github.com/Snider/Fabric/pkg/wire"
)

func (p *Peer) selfPeerAddress() wire.PeerAddress {
	host, portStr, err := net.SplitHostPort(p.cfg.SelfAddress)
	if err != nil {
		return wire.PeerAddress{IP: p.cfg.SelfAddress}
	}
	port, _ := strconv.Atoi(portStr)
	return wire.PeerAddress{IP: host, Port: port}
}

func (p *Peer) handlePutFile(body []byte) ([]byte, error) {
	var req wire.PutFileBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(req.ContentBase64)
	if err != nil {
		return nil, ferrors.Validation("content is not valid base64")
	}
	if err := p.quota.ReserveStorageBytes(int64(len(data))); err != nil {
		return nil, err
	}
	if err := p.files.Put(req.Filename, data); err != nil {
		p.quota.ReleaseStorageBytes(int64(len(data)))
		return nil, err
	}
	return wire.EncodeMessage(wire.Envelope{Type: wire.TypePutFile})
}

func (p *Peer) handleGetFile(body []byte) ([]byte, error) {
	var req wire.GetFileBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	data, err := p.files.Get(req.Filename)
	if err != nil {
		return nil, err
	}
	return wire.EncodeMessage(wire.FileResponseBody{
		Type:          wire.TypeGetFile,
		Filename:      req.Filename,
		ContentBase64: base64.StdEncoding.EncodeToString(data),
	})
}

// handleUploadToPeer stores an already-obfuscated owned file on behalf of
// its owner. Replication (how many peers the owner fans out to) is a
// client-side concern — this handler only ever speaks for itself, so it
// always reports a single-element Stored list on success.
func (p *Peer) handleUploadToPeer(body []byte) ([]byte, error) {
	var req wire.UploadToPeerBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	ciphertext, err := base64.StdEncoding.DecodeString(req.CiphertextBase64)
	if err != nil {
		return nil, ferrors.Validation("ciphertext is not valid base64")
	}
	if err := p.quota.ReserveStorageBytes(int64(len(ciphertext))); err != nil {
		return nil, err
	}
	owner := ownedfile.Owner{IP: req.OwnerIP, Port: req.OwnerPort}
	if err := p.owned.Upload(req.Filename, ciphertext, owner); err != nil {
		p.quota.ReleaseStorageBytes(int64(len(ciphertext)))
		return nil, err
	}
	return wire.EncodeMessage(wire.UploadToPeerResponse{
		Type:   wire.TypeUploadToPeer,
		Stored: []wire.PeerAddress{p.selfPeerAddress()},
	})
}

func (p *Peer) handleGetOwnedFile(body []byte) ([]byte, error) {
	var req wire.GetOwnedFileBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	requester := ownedfile.Owner{IP: req.RequesterIP, Port: req.RequesterPort}
	data, err := p.owned.Retrieve(req.Filename, requester)
	if err != nil {
		return nil, err
	}
	return wire.EncodeMessage(wire.GetOwnedFileResponse{
		Type:             wire.TypeGetOwnedFile,
		Filename:         req.Filename,
		CiphertextBase64: base64.StdEncoding.EncodeToString(data),
	})
}
