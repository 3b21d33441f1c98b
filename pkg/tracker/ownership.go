package tracker

import (
	"github.com/Snider/Fabric/pkg/ferrors"
)

// OwnerRef is a wire-agnostic owner/requester/storage address, mirroring
// wire.OwnerRef without importing the wire package from tracker internals.
type OwnerRef struct {
	IP   string
	Port int
	ID   string
}

func (o OwnerRef) key() PeerKey { return PeerKey{IP: o.IP, Port: o.Port} }

// ownerIdentity returns the identity string used to compare ownership:
// the durable_id when present, else the legacy port-only placeholder.
func ownerIdentity(ownerID string, port int) string {
	if ownerID != "" {
		return ownerID
	}
	return legacyOwnerID(port)
}

// RegisterOwnedFile adds a storage address to filename's ownership entry,
// creating it if absent. Rejects with OwnershipConflict if the entry
// already exists under a different owner.
func (t *Tracker) RegisterOwnedFile(filename string, owner, storage OwnerRef) error {
	t.mu.Lock()

	entry, exists := t.ownedFiles[filename]
	ownerID := ownerIdentity(owner.ID, owner.Port)

	if exists {
		existingID := ownerIdentity(entry.OwnerID, entry.OwnerAddress.Port)
		if existingID != ownerID {
			t.mu.Unlock()
			return ferrors.OwnershipConflict(filename)
		}
		addStorage(entry, storage.key())
	} else {
		entry = &OwnedFileEntry{
			OwnerID:      owner.ID,
			OwnerAddress: owner.key(),
			Storage:      []PeerKey{storage.key()},
		}
		t.ownedFiles[filename] = entry
	}

	t.mu.Unlock()
	t.persistOwnedFiles()
	return nil
}

func addStorage(entry *OwnedFileEntry, key PeerKey) {
	for _, s := range entry.Storage {
		if s == key {
			return
		}
	}
	entry.Storage = append(entry.Storage, key)
}

// FindOwnedFile verifies ownership and returns the alive storage
// addresses for filename, per the three-step check order in the wire
// protocol: durable_id match, legacy port-only owner upgrade, then
// address-port equality with IP rewrite on change.
func (t *Tracker) FindOwnedFile(filename string, requester OwnerRef) (OwnedFileEntry, error) {
	t.mu.Lock()

	entry, ok := t.ownedFiles[filename]
	if !ok {
		t.mu.Unlock()
		return OwnedFileEntry{}, ferrors.NotFound("owned file %q not registered", filename)
	}

	if err := t.authorizeOwnerLocked(entry, requester); err != nil {
		t.mu.Unlock()
		return OwnedFileEntry{}, err
	}

	pruned := t.pruneDeadStorageLocked(entry)

	result := *entry
	result.Storage = append([]PeerKey(nil), entry.Storage...)
	t.mu.Unlock()

	if pruned {
		t.persistOwnedFiles()
	}
	return result, nil
}

// authorizeOwnerLocked must be called with the lock held. It implements
// the ownership check in priority order and mutates entry in place on a
// legacy-upgrade or address rewrite.
func (t *Tracker) authorizeOwnerLocked(entry *OwnedFileEntry, requester OwnerRef) error {
	// (a) durable_id match.
	if entry.OwnerID != "" && requester.ID != "" && entry.OwnerID == requester.ID {
		if entry.OwnerAddress.IP != requester.IP {
			entry.OwnerAddress.IP = requester.IP
		}
		return nil
	}

	// (b) legacy port-only owner_id upgrade.
	if entry.OwnerID == "" && entry.OwnerAddress.Port == requester.Port {
		if requester.ID != "" {
			entry.OwnerID = requester.ID
		}
		entry.OwnerAddress.IP = requester.IP
		return nil
	}

	// (c) owner address's port equals requester port.
	if entry.OwnerAddress.Port == requester.Port {
		if entry.OwnerAddress.IP != requester.IP {
			entry.OwnerAddress.IP = requester.IP
		}
		return nil
	}

	return ferrors.Unauthorized("requester does not own %q", requester.ID)
}

// pruneDeadStorageLocked removes storage addresses for peers no longer
// alive and reports whether anything changed.
func (t *Tracker) pruneDeadStorageLocked(entry *OwnedFileEntry) bool {
	var alive []PeerKey
	changed := false
	for _, key := range entry.Storage {
		if t.isAliveLocked(key) {
			alive = append(alive, key)
		} else {
			changed = true
		}
	}
	entry.Storage = alive
	return changed
}

// upgradeLegacyOwnersLocked rewrites any port_<N>-keyed ownership entries
// to durableID once a peer first supplies one, matching Register's
// "upgrade any port-only owner_id entries" requirement. Must be called
// with the lock held.
func (t *Tracker) upgradeLegacyOwnersLocked(durableID string, port int) {
	legacy := legacyOwnerID(port)
	for _, entry := range t.ownedFiles {
		if entry.OwnerID == "" && entry.OwnerAddress.Port == port {
			entry.OwnerID = durableID
		}
		_ = legacy
	}
}

// renameOwnedFilesLocked rewrites owner_address in every entry owned by
// durableID from prevKey to newKey. Must be called with the lock held.
func (t *Tracker) renameOwnedFilesLocked(prevKey, newKey PeerKey, durableID string) {
	for _, entry := range t.ownedFiles {
		if entry.OwnerID == durableID || (entry.OwnerID == "" && entry.OwnerAddress == prevKey) {
			entry.OwnerAddress = newKey
		}
	}
}

// ReportOwnedFiles merges a storage peer's self-reported (filename,
// owner) pairs into the registry, repairing tracker state after a
// restart that lost in-memory ownership data.
func (t *Tracker) ReportOwnedFiles(storage OwnerRef, files []struct {
	Filename string
	Owner    OwnerRef
}) {
	t.mu.Lock()
	mutated := false
	for _, f := range files {
		entry, exists := t.ownedFiles[f.Filename]
		if !exists {
			t.ownedFiles[f.Filename] = &OwnedFileEntry{
				OwnerID:      f.Owner.ID,
				OwnerAddress: f.Owner.key(),
				Storage:      []PeerKey{storage.key()},
			}
			mutated = true
			continue
		}
		before := len(entry.Storage)
		addStorage(entry, storage.key())
		if len(entry.Storage) != before {
			mutated = true
		}
	}
	t.mu.Unlock()

	if mutated {
		t.persistOwnedFiles()
	}
}

// ListOwnedFiles enumerates every filename owned by requester.
func (t *Tracker) ListOwnedFiles(requester OwnerRef) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []string
	for filename, entry := range t.ownedFiles {
		if err := t.authorizeOwnerLocked(entry, requester); err == nil {
			out = append(out, filename)
		}
	}
	return out, nil
}

// DeleteOwnedFile removes filename's ownership entry after the same
// ownership check as FindOwnedFile.
func (t *Tracker) DeleteOwnedFile(filename string, requester OwnerRef) error {
	t.mu.Lock()

	entry, ok := t.ownedFiles[filename]
	if !ok {
		t.mu.Unlock()
		return ferrors.NotFound("owned file %q not registered", filename)
	}
	if err := t.authorizeOwnerLocked(entry, requester); err != nil {
		t.mu.Unlock()
		return err
	}
	delete(t.ownedFiles, filename)

	t.mu.Unlock()
	t.persistOwnedFiles()
	return nil
}
