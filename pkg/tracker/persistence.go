package tracker

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/Snider/Fabric/pkg/logging"
)

// persistedFile is the on-disk shape of one owned_file_registry entry.
type persistedFile struct {
	Filename     string    `json:"filename"`
	OwnerID      string    `json:"owner_id"`
	OwnerAddress PeerKey   `json:"owner_address"`
	Storage      []PeerKey `json:"storage"`
}

// persistOwnedFiles writes the full owned_file_registry to statePath via
// write-to-temp-then-rename. A failure is logged but never blocks the
// response that already mutated in-memory state — the next successful
// write resyncs disk.
func (t *Tracker) persistOwnedFiles() {
	if t.statePath == "" {
		return
	}

	t.mu.Lock()
	snapshot := make([]persistedFile, 0, len(t.ownedFiles))
	for filename, entry := range t.ownedFiles {
		snapshot = append(snapshot, persistedFile{
			Filename:     filename,
			OwnerID:      entry.OwnerID,
			OwnerAddress: entry.OwnerAddress,
			Storage:      append([]PeerKey(nil), entry.Storage...),
		})
	}
	t.mu.Unlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		t.logger.Error("marshal owned-file registry failed", logging.Fields{"error": err.Error()})
		return
	}

	if err := os.MkdirAll(filepath.Dir(t.statePath), 0700); err != nil {
		t.logger.Error("mkdir state dir failed", logging.Fields{"error": err.Error()})
		return
	}

	tmp := t.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		t.logger.Error("write temp state file failed", logging.Fields{"error": err.Error()})
		return
	}
	if err := os.Rename(tmp, t.statePath); err != nil {
		t.logger.Error("rename state file failed", logging.Fields{"error": err.Error()})
	}
}

// loadOwnedFiles reloads owned_file_registry from statePath, if present.
func (t *Tracker) loadOwnedFiles() error {
	data, err := os.ReadFile(t.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var snapshot []persistedFile
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range snapshot {
		t.ownedFiles[p.Filename] = &OwnedFileEntry{
			OwnerID:      p.OwnerID,
			OwnerAddress: p.OwnerAddress,
			Storage:      p.Storage,
		}
	}
	return nil
}
