package client

import (
	"time"

	"github.com/Snider/Fabric/pkg/wire"
)

// Tracker is a typed client for every Peer<->Tracker message kind.
type Tracker struct {
	Addr    string
	Timeout time.Duration
}

// NewTracker returns a Tracker client dialing addr with DefaultTimeout.
func NewTracker(addr string) *Tracker {
	return &Tracker{Addr: addr, Timeout: DefaultTimeout}
}

func (t *Tracker) timeout() time.Duration {
	if t.Timeout > 0 {
		return t.Timeout
	}
	return DefaultTimeout
}

// Register announces ip/port/cpuLoad (and optionally a durable identity
// and prior address) to the tracker, returning the current peer count.
func (t *Tracker) Register(ip string, port int, cpuLoad float64, durableID, oldIP string) (int, error) {
	req := wire.RegisterBody{Type: wire.TypeRegister, IP: ip, Port: port, CPULoad: cpuLoad, DurableID: durableID, OldIP: oldIP}
	var resp wire.RegisterResponse
	if err := call(t.Addr, t.timeout(), req, &resp); err != nil {
		return 0, err
	}
	return resp.PeerCount, nil
}

// Unregister removes ip/port from the tracker.
func (t *Tracker) Unregister(ip string, port int) error {
	req := wire.UnregisterBody{Type: wire.TypeUnregister, IP: ip, Port: port}
	var resp wire.Envelope
	return call(t.Addr, t.timeout(), req, &resp)
}

// UpdateLoad reports ip/port's current CPU load.
func (t *Tracker) UpdateLoad(ip string, port int, cpuLoad float64) error {
	req := wire.UpdateLoadBody{Type: wire.TypeUpdateLoad, IP: ip, Port: port, CPULoad: cpuLoad}
	var resp wire.Envelope
	return call(t.Addr, t.timeout(), req, &resp)
}

// RequestCPU asks the tracker for the least-loaded peer.
func (t *Tracker) RequestCPU() (wire.CPUResponseBody, error) {
	req := wire.RequestCPUBody{Type: wire.TypeRequestCPU}
	var resp wire.CPUResponseBody
	err := call(t.Addr, t.timeout(), req, &resp)
	return resp, err
}

// RegisterFile announces a public file replica at ip/port.
func (t *Tracker) RegisterFile(filename, ip string, port int) error {
	req := wire.RegisterFileBody{Type: wire.TypeRegisterFile, Filename: filename, IP: ip, Port: port}
	var resp wire.Envelope
	return call(t.Addr, t.timeout(), req, &resp)
}

// FindFile returns the live peers known to hold filename.
func (t *Tracker) FindFile(filename string) ([]wire.PeerAddress, error) {
	req := wire.FindFileBody{Type: wire.TypeFindFile, Filename: filename}
	var resp wire.FilePeersBody
	err := call(t.Addr, t.timeout(), req, &resp)
	return resp.Peers, err
}

// RegisterOwnedFile records filename's custody by owner at storage.
func (t *Tracker) RegisterOwnedFile(filename string, owner, storage wire.OwnerRef) error {
	req := wire.RegisterOwnedFileBody{Type: wire.TypeRegisterOwnedFile, Filename: filename, Owner: owner, Storage: storage}
	var resp wire.Envelope
	return call(t.Addr, t.timeout(), req, &resp)
}

// FindOwnedFile resolves filename's owner and storage addresses for
// requester, subject to the ownership check.
func (t *Tracker) FindOwnedFile(filename string, requester wire.OwnerRef) (wire.OwnedFileResponseBody, error) {
	req := wire.FindOwnedFileBody{Type: wire.TypeFindOwnedFile, Filename: filename, Requester: requester}
	var resp wire.OwnedFileResponseBody
	err := call(t.Addr, t.timeout(), req, &resp)
	return resp, err
}

// ReportOwnedFiles lets a storage peer re-announce its on-disk owned
// files, e.g. after restart.
func (t *Tracker) ReportOwnedFiles(storage wire.OwnerRef, files []wire.ReportOwnedFilesEntry) error {
	req := wire.ReportOwnedFilesBody{Type: wire.TypeReportOwnedFiles, Storage: storage, Files: files}
	var resp wire.Envelope
	return call(t.Addr, t.timeout(), req, &resp)
}

// ListOwnedFiles enumerates filenames owned by requester.
func (t *Tracker) ListOwnedFiles(requester wire.OwnerRef) ([]wire.ReportOwnedFilesEntry, error) {
	req := wire.ListOwnedFilesBody{Type: wire.TypeListOwnedFiles, Requester: requester}
	var resp wire.ListOwnedFilesResponse
	err := call(t.Addr, t.timeout(), req, &resp)
	return resp.Files, err
}

// DeleteOwnedFile removes filename's custody record, subject to the
// ownership check.
func (t *Tracker) DeleteOwnedFile(filename string, requester wire.OwnerRef) error {
	req := wire.DeleteOwnedFileBody{Type: wire.TypeDeleteOwnedFile, Filename: filename, Requester: requester}
	var resp wire.Envelope
	return call(t.Addr, t.timeout(), req, &resp)
}

// Status reports the tracker's peer count and average load.
func (t *Tracker) Status() (wire.TrackerStatusResponse, error) {
	req := wire.StatusBody{Type: wire.TypeStatus}
	var resp wire.TrackerStatusResponse
	err := call(t.Addr, t.timeout(), req, &resp)
	return resp, err
}
