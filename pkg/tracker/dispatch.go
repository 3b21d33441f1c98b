package tracker

import (
	"context"

	"github.com/Snider/Fabric/pkg/ferrors"
	"github.com/Snider/Fabric/pkg/wire"
)

// Dispatch decodes one request frame body, routes it to the matching
// Tracker operation, and returns the response frame body. It is the
// rpc.Handler wired into the tracker's Server.
func (t *Tracker) Dispatch(ctx context.Context, body []byte) ([]byte, error) {
	var env wire.Envelope
	if err := wire.DecodeMessage(body, &env); err != nil {
		return nil, err
	}

	switch env.Type {
	case wire.TypeRegister:
		return t.handleRegister(body)
	case wire.TypeUnregister:
		return t.handleUnregister(body)
	case wire.TypeUpdateLoad:
		return t.handleUpdateLoad(body)
	case wire.TypeRequestCPU:
		return t.handleRequestCPU()
	case wire.TypeRegisterFile:
		return t.handleRegisterFile(body)
	case wire.TypeFindFile:
		return t.handleFindFile(body)
	case wire.TypeRegisterOwnedFile:
		return t.handleRegisterOwnedFile(body)
	case wire.TypeFindOwnedFile:
		return t.handleFindOwnedFile(body)
	case wire.TypeReportOwnedFiles:
		return t.handleReportOwnedFiles(body)
	case wire.TypeListOwnedFiles:
		return t.handleListOwnedFiles(body)
	case wire.TypeDeleteOwnedFile:
		return t.handleDeleteOwnedFile(body)
	case wire.TypeStatus:
		return t.handleStatus()
	default:
		return nil, ferrors.UnknownMessage(string(env.Type))
	}
}

func toWireOwner(o OwnerRef) wire.OwnerRef {
	return wire.OwnerRef{IP: o.IP, Port: o.Port, ID: o.ID}
}

func fromWireOwner(o wire.OwnerRef) OwnerRef {
	return OwnerRef{IP: o.IP, Port: o.Port, ID: o.ID}
}

func fromPeerKey(k PeerKey) wire.PeerAddress {
	return wire.PeerAddress{IP: k.IP, Port: k.Port}
}

func (t *Tracker) handleRegister(body []byte) ([]byte, error) {
	var req wire.RegisterBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	if req.Port == 0 {
		return nil, ferrors.Validation("port is required")
	}
	count, err := t.Register(req.IP, req.Port, req.CPULoad, req.DurableID, req.OldIP)
	if err != nil {
		return nil, err
	}
	return wire.EncodeMessage(wire.RegisterResponse{Type: wire.TypeStatus, PeerCount: count})
}

func (t *Tracker) handleUnregister(body []byte) ([]byte, error) {
	var req wire.UnregisterBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	t.Unregister(req.IP, req.Port)
	return wire.EncodeMessage(wire.StatusBody{Type: wire.TypeStatus})
}

func (t *Tracker) handleUpdateLoad(body []byte) ([]byte, error) {
	var req wire.UpdateLoadBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	t.UpdateLoad(req.IP, req.Port, req.CPULoad)
	return wire.EncodeMessage(wire.StatusBody{Type: wire.TypeStatus})
}

func (t *Tracker) handleRequestCPU() ([]byte, error) {
	key, load, err := t.RequestCPU()
	if err != nil {
		return nil, err
	}
	return wire.EncodeMessage(wire.CPUResponseBody{Type: wire.TypeCPUResponse, IP: key.IP, Port: key.Port, CPULoad: load})
}

func (t *Tracker) handleStatus() ([]byte, error) {
	count, avg := t.Status()
	return wire.EncodeMessage(wire.TrackerStatusResponse{Type: wire.TypeStatus, PeerCount: count, AverageLoad: avg})
}

func (t *Tracker) handleRegisterFile(body []byte) ([]byte, error) {
	var req wire.RegisterFileBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	if req.Filename == "" {
		return nil, ferrors.Validation("filename is required")
	}
	t.RegisterFile(req.Filename, req.IP, req.Port)
	return wire.EncodeMessage(wire.StatusBody{Type: wire.TypeStatus})
}

func (t *Tracker) handleFindFile(body []byte) ([]byte, error) {
	var req wire.FindFileBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	keys := t.FindFile(req.Filename)
	peers := make([]wire.PeerAddress, 0, len(keys))
	for _, k := range keys {
		peers = append(peers, fromPeerKey(k))
	}
	return wire.EncodeMessage(wire.FilePeersBody{Type: wire.TypeFilePeers, Peers: peers})
}

func (t *Tracker) handleRegisterOwnedFile(body []byte) ([]byte, error) {
	var req wire.RegisterOwnedFileBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	if req.Filename == "" {
		return nil, ferrors.Validation("filename is required")
	}
	if err := t.RegisterOwnedFile(req.Filename, fromWireOwner(req.Owner), fromWireOwner(req.Storage)); err != nil {
		return nil, err
	}
	return wire.EncodeMessage(wire.StatusBody{Type: wire.TypeStatus})
}

func (t *Tracker) handleFindOwnedFile(body []byte) ([]byte, error) {
	var req wire.FindOwnedFileBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	entry, err := t.FindOwnedFile(req.Filename, fromWireOwner(req.Requester))
	if err != nil {
		return nil, err
	}
	storage := make([]wire.PeerAddress, 0, len(entry.Storage))
	for _, k := range entry.Storage {
		storage = append(storage, fromPeerKey(k))
	}
	return wire.EncodeMessage(wire.OwnedFileResponseBody{
		Type:     wire.TypeOwnedFileResponse,
		Filename: req.Filename,
		Owner:    toWireOwner(OwnerRef{IP: entry.OwnerAddress.IP, Port: entry.OwnerAddress.Port, ID: entry.OwnerID}),
		Storage:  storage,
	})
}

func (t *Tracker) handleReportOwnedFiles(body []byte) ([]byte, error) {
	var req wire.ReportOwnedFilesBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	files := make([]struct {
		Filename string
		Owner    OwnerRef
	}, 0, len(req.Files))
	for _, f := range req.Files {
		files = append(files, struct {
			Filename string
			Owner    OwnerRef
		}{Filename: f.Filename, Owner: fromWireOwner(f.Owner)})
	}
	t.ReportOwnedFiles(fromWireOwner(req.Storage), files)
	return wire.EncodeMessage(wire.StatusBody{Type: wire.TypeStatus})
}

func (t *Tracker) handleListOwnedFiles(body []byte) ([]byte, error) {
	var req wire.ListOwnedFilesBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	names, err := t.ListOwnedFiles(fromWireOwner(req.Requester))
	if err != nil {
		return nil, err
	}
	entries := make([]wire.ReportOwnedFilesEntry, 0, len(names))
	for _, n := range names {
		entries = append(entries, wire.ReportOwnedFilesEntry{Filename: n, Owner: req.Requester})
	}
	return wire.EncodeMessage(wire.ListOwnedFilesResponse{Type: wire.TypeListOwnedFiles, Files: entries})
}

func (t *Tracker) handleDeleteOwnedFile(body []byte) ([]byte, error) {
	var req wire.DeleteOwnedFileBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	if err := t.DeleteOwnedFile(req.Filename, fromWireOwner(req.Requester)); err != nil {
		return nil, err
	}
	return wire.EncodeMessage(wire.StatusBody{Type: wire.TypeStatus})
}
