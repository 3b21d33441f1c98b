package tracker

import (
	"sync"
	"time"

	"github.com/Snider/Fabric/pkg/ferrors"
	"github.com/Snider/Fabric/pkg/logging"
)

// Tracker holds all registry state behind a single mutex. Handlers never
// call back into another exported method while holding the lock — every
// method takes the lock itself and releases it before any blocking I/O
// (disk persistence), matching the "release before fsync" rule.
type Tracker struct {
	mu sync.Mutex

	peers        map[PeerKey]*PeerInfo
	durableIndex map[string]PeerKey

	fileRegistry map[string]map[PeerKey]struct{}

	ownedFiles map[string]*OwnedFileEntry

	peerTimeout time.Duration
	statePath   string
	logger      *logging.Logger
}

// New constructs a Tracker. statePath may be empty to disable
// persistence (used by tests).
func New(peerTimeout time.Duration, statePath string, logger *logging.Logger) *Tracker {
	if logger == nil {
		logger = logging.GetGlobal()
	}
	t := &Tracker{
		peers:        make(map[PeerKey]*PeerInfo),
		durableIndex: make(map[string]PeerKey),
		fileRegistry: make(map[string]map[PeerKey]struct{}),
		ownedFiles:   make(map[string]*OwnedFileEntry),
		peerTimeout:  peerTimeout,
		statePath:    statePath,
		logger:       logger.WithComponent(logging.ComponentTracker),
	}
	if statePath != "" {
		if err := t.loadOwnedFiles(); err != nil {
			t.logger.Warn("failed to load persisted owned-file registry", logging.Fields{"error": err.Error()})
		}
	}
	return t
}

// Register upserts a peer and, when durable_id is renamed onto a new
// address, rewrites every owned_file_registry entry it owns.
func (t *Tracker) Register(ip string, port int, cpuLoad float64, durableID, oldIP string) (int, error) {
	t.mu.Lock()

	key := PeerKey{IP: ip, Port: port}
	now := time.Now()

	if durableID != "" {
		if prevKey, ok := t.durableIndex[durableID]; ok && prevKey != key {
			t.renameOwnedFilesLocked(prevKey, key, durableID)
			delete(t.peers, prevKey)
		}
		t.durableIndex[durableID] = key
		t.upgradeLegacyOwnersLocked(durableID, port)
	}

	if existing, ok := t.peers[key]; ok {
		existing.CPULoad = cpuLoad
		if now.After(existing.LastUpdate) {
			existing.LastUpdate = now
		}
		if durableID != "" {
			existing.DurableID = durableID
		}
	} else {
		t.peers[key] = &PeerInfo{
			CPULoad:      cpuLoad,
			LastUpdate:   now,
			RegisteredAt: now,
			DurableID:    durableID,
		}
	}

	count := len(t.peers)
	mutated := durableID != ""
	t.mu.Unlock()

	if mutated {
		t.persistOwnedFiles()
	}
	return count, nil
}

// Unregister removes a peer. Ownership records are untouched — owners
// keep their ownership even when their peer process is gone.
func (t *Tracker) Unregister(ip string, port int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, PeerKey{IP: ip, Port: port})
}

// UpdateLoad refreshes cpu_load/last_update, auto-registering an unknown
// peer.
func (t *Tracker) UpdateLoad(ip string, port int, cpuLoad float64) {
	t.mu.Lock()
	key := PeerKey{IP: ip, Port: port}
	now := time.Now()
	if existing, ok := t.peers[key]; ok {
		existing.CPULoad = cpuLoad
		if now.After(existing.LastUpdate) {
			existing.LastUpdate = now
		}
		t.mu.Unlock()
		return
	}
	t.peers[key] = &PeerInfo{CPULoad: cpuLoad, LastUpdate: now, RegisteredAt: now}
	t.mu.Unlock()
}

// RequestCPU returns the peer with minimum cpu_load, ties broken by
// earliest last_update.
func (t *Tracker) RequestCPU() (PeerKey, float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var best PeerKey
	var bestLoad float64
	var bestUpdate time.Time
	found := false

	for key, info := range t.peers {
		if !found || info.CPULoad < bestLoad || (info.CPULoad == bestLoad && info.LastUpdate.Before(bestUpdate)) {
			best = key
			bestLoad = info.CPULoad
			bestUpdate = info.LastUpdate
			found = true
		}
	}

	if !found {
		return PeerKey{}, 0, ferrors.NoPeersAvailable()
	}
	return best, bestLoad, nil
}

// Status returns a snapshot of live peer count and average load, used by
// the STATUS handler.
func (t *Tracker) Status() (peerCount int, avgLoad float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.peers) == 0 {
		return 0, 0
	}
	var sum float64
	for _, info := range t.peers {
		sum += info.CPULoad
	}
	return len(t.peers), sum / float64(len(t.peers))
}

// RegisterFile adds (ip, port) as a public-replica holder of filename.
func (t *Tracker) RegisterFile(filename, ip string, port int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	holders, ok := t.fileRegistry[filename]
	if !ok {
		holders = make(map[PeerKey]struct{})
		t.fileRegistry[filename] = holders
	}
	holders[PeerKey{IP: ip, Port: port}] = struct{}{}
}

// FindFile returns the alive holders of filename's public replica.
func (t *Tracker) FindFile(filename string) []PeerKey {
	t.mu.Lock()
	defer t.mu.Unlock()

	holders, ok := t.fileRegistry[filename]
	if !ok {
		return nil
	}
	var alive []PeerKey
	for key := range holders {
		if t.isAliveLocked(key) {
			alive = append(alive, key)
		}
	}
	return alive
}

func (t *Tracker) isAliveLocked(key PeerKey) bool {
	info, ok := t.peers[key]
	if !ok {
		return false
	}
	return time.Since(info.LastUpdate) < t.peerTimeout
}

// Sweep evicts peers whose last_update exceeds peerTimeout and prunes
// them from every file_registry entry, removing entries left empty.
func (t *Tracker) Sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for key, info := range t.peers {
		if now.Sub(info.LastUpdate) >= t.peerTimeout {
			delete(t.peers, key)
			for did, k := range t.durableIndex {
				if k == key {
					delete(t.durableIndex, did)
				}
			}
		}
	}

	for filename, holders := range t.fileRegistry {
		for key := range holders {
			if _, alive := t.peers[key]; !alive {
				delete(holders, key)
			}
		}
		if len(holders) == 0 {
			delete(t.fileRegistry, filename)
		}
	}
}

// RunSweepLoop runs Sweep every interval until stop is closed.
func (t *Tracker) RunSweepLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.Sweep()
		case <-stop:
			t.logger.Debug("sweep loop stopped")
			return
		}
	}
}
