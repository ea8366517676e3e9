// Package journal persists an engine's committed batches as a JSON file
// and replays them into a fresh engine, giving command line hosts durable
// state without a database dependency.
package journal

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"meridian-network/core"
)

// Batch is the serialised form of one committed version.
type Batch struct {
	Version uint64   `json:"version"`
	Updates []Update `json:"updates"`
}

// Update is one substate change within a batch.
type Update struct {
	Node  string `json:"node"`
	Part  uint8  `json:"part"`
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
	Del   bool   `json:"del,omitempty"`
}

// Save rewrites path from the store's batch history.
func Save(path string, store *core.MemorySubstateStore) error {
	history := store.History()
	journal := make([]Batch, 0, len(history))
	for _, batch := range history {
		jb := Batch{Version: batch.Version}
		for _, u := range batch.Updates {
			ju := Update{
				Node: u.NodeID.String(),
				Part: uint8(u.Partition),
				Key:  hex.EncodeToString(u.Key.Encoded()),
			}
			if u.IsDelete() {
				ju.Del = true
			} else {
				ju.Value = base64.StdEncoding.EncodeToString(u.Value)
			}
			jb.Updates = append(jb.Updates, ju)
		}
		journal = append(journal, jb)
	}
	raw, err := json.MarshalIndent(journal, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

// Load decodes path into commit batches; a missing file yields nil.
func Load(path string) ([]*core.CommitBatch, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var journal []Batch
	if err := json.Unmarshal(raw, &journal); err != nil {
		return nil, fmt.Errorf("decode state journal: %w", err)
	}
	batches := make([]*core.CommitBatch, 0, len(journal))
	for _, jb := range journal {
		batch := &core.CommitBatch{Version: jb.Version}
		for _, ju := range jb.Updates {
			node, err := core.ParseNodeIDHex(ju.Node)
			if err != nil {
				return nil, err
			}
			keyRaw, err := hex.DecodeString(ju.Key)
			if err != nil {
				return nil, err
			}
			key, err := core.DecodeSubstateKey(keyRaw)
			if err != nil {
				return nil, err
			}
			update := core.SubstateUpdate{NodeID: node, Partition: core.PartitionNumber(ju.Part), Key: key}
			if !ju.Del {
				if update.Value, err = base64.StdEncoding.DecodeString(ju.Value); err != nil {
					return nil, err
				}
			}
			batch.Updates = append(batch.Updates, update)
		}
		batches = append(batches, batch)
	}
	return batches, nil
}
