package state

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"auctionhouse/native/custody"
)

// CustodyAccountPut stores a custody account.
func (m *Manager) CustodyAccountPut(acc *custody.Account) error {
	if acc == nil {
		return fmt.Errorf("nil custody account")
	}
	encoded, err := rlp.EncodeToBytes(acc)
	if err != nil {
		return err
	}
	m.put(kvKey(custodyAccountPrefix, acc.Address[:]), encoded)
	return nil
}

// CustodyAccountGet loads a custody account.
func (m *Manager) CustodyAccountGet(addr [20]byte) (*custody.Account, bool, error) {
	data, ok, err := m.get(kvKey(custodyAccountPrefix, addr[:]))
	if err != nil || !ok {
		return nil, false, err
	}
	acc := new(custody.Account)
	if err := rlp.DecodeBytes(data, acc); err != nil {
		return nil, false, fmt.Errorf("decode custody account %x: %w", addr, err)
	}
	return acc, true, nil
}

// CustodyAccountDelete removes a custody account.
func (m *Manager) CustodyAccountDelete(addr [20]byte) error {
	m.delete(kvKey(custodyAccountPrefix, addr[:]))
	return nil
}

// CustodyMintPut stores a mint definition.
func (m *Manager) CustodyMintPut(mint *custody.Mint) error {
	if mint == nil {
		return fmt.Errorf("nil mint")
	}
	encoded, err := rlp.EncodeToBytes(mint)
	if err != nil {
		return err
	}
	m.put(kvKey(custodyMintPrefix, mint.ID[:]), encoded)
	return nil
}

// CustodyMintGet loads a mint definition.
func (m *Manager) CustodyMintGet(id [20]byte) (*custody.Mint, bool, error) {
	data, ok, err := m.get(kvKey(custodyMintPrefix, id[:]))
	if err != nil || !ok {
		return nil, false, err
	}
	mint := new(custody.Mint)
	if err := rlp.DecodeBytes(data, mint); err != nil {
		return nil, false, fmt.Errorf("decode mint %x: %w", id, err)
	}
	return mint, true, nil
}

// ReserveGet returns the native reserve balance of an identity.
func (m *Manager) ReserveGet(addr [20]byte) (uint64, error) {
	data, ok, err := m.get(kvKey(reservePrefix, addr[:]))
	if err != nil || !ok {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("reserve %x: corrupt value", addr)
	}
	return binary.BigEndian.Uint64(data), nil
}

// ReservePut sets the native reserve balance of an identity.
func (m *Manager) ReservePut(addr [20]byte, amount uint64) error {
	key := kvKey(reservePrefix, addr[:])
	if amount == 0 {
		m.delete(key)
		return nil
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], amount)
	m.put(key, buf[:])
	return nil
}
