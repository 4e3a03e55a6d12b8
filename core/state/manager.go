package state

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"auctionhouse/storage"
)

// Manager reads and writes auction house state. Writes land in an in-memory
// overlay and only reach the database on Commit, as a single batch. Snapshot
// and RevertToSnapshot unwind overlay writes, which is how a failed operation
// leaves no trace.
//
// Manager is not safe for concurrent use; the executor serializes access.
type Manager struct {
	db      storage.Database
	dirty   map[string]*entry
	journal []journalEntry
}

type entry struct {
	value   []byte
	deleted bool
}

type journalEntry struct {
	key  string
	prev *entry
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, dirty: make(map[string]*entry)}
}

func kvKey(prefix []byte, id []byte) []byte {
	buf := make([]byte, len(prefix)+len(id))
	copy(buf, prefix)
	copy(buf[len(prefix):], id)
	return ethcrypto.Keccak256(buf)
}

func (m *Manager) get(key []byte) ([]byte, bool, error) {
	if e, ok := m.dirty[string(key)]; ok {
		if e.deleted {
			return nil, false, nil
		}
		return append([]byte(nil), e.value...), true, nil
	}
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (m *Manager) record(key string) {
	var prev *entry
	if e, ok := m.dirty[key]; ok {
		copied := *e
		prev = &copied
	}
	m.journal = append(m.journal, journalEntry{key: key, prev: prev})
}

func (m *Manager) put(key, value []byte) {
	k := string(key)
	m.record(k)
	m.dirty[k] = &entry{value: append([]byte(nil), value...)}
}

func (m *Manager) delete(key []byte) {
	k := string(key)
	m.record(k)
	m.dirty[k] = &entry{deleted: true}
}

// Snapshot returns an identifier for the current overlay state.
func (m *Manager) Snapshot() int {
	return len(m.journal)
}

// RevertToSnapshot discards every write made after the snapshot was taken.
func (m *Manager) RevertToSnapshot(id int) {
	if id < 0 || id > len(m.journal) {
		return
	}
	for i := len(m.journal) - 1; i >= id; i-- {
		j := m.journal[i]
		if j.prev == nil {
			delete(m.dirty, j.key)
		} else {
			m.dirty[j.key] = j.prev
		}
	}
	m.journal = m.journal[:id]
}

// Pending reports the number of keys written since the last commit.
func (m *Manager) Pending() int {
	return len(m.dirty)
}

// Commit writes the overlay to the database atomically and clears it.
func (m *Manager) Commit() error {
	if len(m.dirty) == 0 {
		m.journal = m.journal[:0]
		return nil
	}
	batch := m.db.NewBatch()
	for key, e := range m.dirty {
		if e.deleted {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), e.value)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.Discard()
	return nil
}

// Discard drops every uncommitted write.
func (m *Manager) Discard() {
	m.dirty = make(map[string]*entry)
	m.journal = m.journal[:0]
}

// KVPut stores an RLP-encoded value under an arbitrary key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.put(kvKey(kvPrefix, key), encoded)
	return nil
}

// KVGet decodes the value stored under key into out.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	data, ok, err := m.get(kvKey(kvPrefix, key))
	if err != nil || !ok {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}
