package state

import (
	"errors"
	"fmt"
	"math"
)

// SchemaVersion identifies the on-disk layout of auction and custody
// records. Increment it whenever a stored encoding changes incompatibly.
const SchemaVersion uint32 = 1

var (
	schemaVersionKey = []byte("schema/version")
	// ErrSchemaVersionMismatch indicates the stored schema version does not
	// match the version supported by the current binary.
	ErrSchemaVersionMismatch = errors.New("state: schema version mismatch")
)

// SetSchemaVersion stages version for the next commit.
func (m *Manager) SetSchemaVersion(version uint32) error {
	if m == nil {
		return fmt.Errorf("state: manager unavailable")
	}
	return m.KVPut(schemaVersionKey, uint64(version))
}

// StoredSchemaVersion returns the recorded schema version and whether one was
// present.
func (m *Manager) StoredSchemaVersion() (uint32, bool, error) {
	if m == nil {
		return 0, false, fmt.Errorf("state: manager unavailable")
	}
	var stored uint64
	ok, err := m.KVGet(schemaVersionKey, &stored)
	if err != nil || !ok {
		return 0, false, err
	}
	if stored > uint64(math.MaxUint32) {
		return 0, false, fmt.Errorf("state: schema version overflow: %d", stored)
	}
	return uint32(stored), true, nil
}

// CheckSchemaVersion compares the stored version with SchemaVersion. A
// missing version is reported as stamped=false so the caller can record it.
// When allowMigrate is true mismatches are tolerated for manual migrations.
func (m *Manager) CheckSchemaVersion(allowMigrate bool) (stamped bool, err error) {
	version, ok, err := m.StoredSchemaVersion()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if version == SchemaVersion || allowMigrate {
		return true, nil
	}
	return true, fmt.Errorf("%w: on-disk=%d expected=%d", ErrSchemaVersionMismatch, version, SchemaVersion)
}
