// Package tracker implements the central peer registry and dispatcher:
// liveness tracking, least-load selection, and the authoritative
// owned-file ownership registry that survives tracker and peer restarts
// and tolerates peer address changes. Modeled on the teacher's
// pkg/node.PeerRegistry (debounced atomic persistence, copy-on-read
// accessors, single coarse lock around registry mutation).
package tracker

import (
	"fmt"
	"time"
)

// PeerKey identifies a peer by its externally visible address. Port is
// the fallback identity key because IP may change across restarts while
// the peer keeps its listening port stable.
type PeerKey struct {
	IP   string
	Port int
}

func (k PeerKey) String() string {
	return fmt.Sprintf("%s:%d", k.IP, k.Port)
}

// PeerInfo is the tracker's bookkeeping record for one live peer.
type PeerInfo struct {
	CPULoad      float64
	LastUpdate   time.Time
	RegisteredAt time.Time
	DurableID    string
}

// OwnedFileEntry is the authoritative ownership record for one filename.
type OwnedFileEntry struct {
	OwnerID      string    `json:"owner_id"`
	OwnerAddress PeerKey   `json:"owner_address"`
	Storage      []PeerKey `json:"storage"`
}

// legacyOwnerID formats the placeholder owner-id used before a peer has
// ever supplied a durable_id: "port_<N>".
func legacyOwnerID(port int) string {
	return fmt.Sprintf("port_%d", port)
}
