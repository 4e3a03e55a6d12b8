package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"auctionhouse/native/auction"
)

// storedAuction is the RLP layout of an auction record. RLP has no signed
// integers, so timestamps are stored as their two's complement bit pattern.
type storedAuction struct {
	ID              [32]byte
	Exhibitor       [20]byte
	ExhibitorPayout [20]byte
	AssetEscrow     [20]byte
	HighestBidder   [20]byte
	BidEscrow       [20]byte
	BidRefund       [20]byte
	Price           uint64
	EndAt           uint64
	AssetMint       [20]byte
	PaymentMint     [20]byte
	Deposit         uint64
	CreatedAt       uint64
	BidCount        uint32
	Status          uint8
}

func newStoredAuction(a *auction.Auction) *storedAuction {
	return &storedAuction{
		ID:              a.ID,
		Exhibitor:       a.Exhibitor,
		ExhibitorPayout: a.ExhibitorPayout,
		AssetEscrow:     a.AssetEscrow,
		HighestBidder:   a.HighestBidder,
		BidEscrow:       a.BidEscrow,
		BidRefund:       a.BidRefund,
		Price:           a.Price,
		EndAt:           uint64(a.EndAt),
		AssetMint:       a.AssetMint,
		PaymentMint:     a.PaymentMint,
		Deposit:         a.Deposit,
		CreatedAt:       uint64(a.CreatedAt),
		BidCount:        a.BidCount,
		Status:          uint8(a.Status),
	}
}

func (s *storedAuction) toAuction() *auction.Auction {
	return &auction.Auction{
		ID:              s.ID,
		Exhibitor:       s.Exhibitor,
		ExhibitorPayout: s.ExhibitorPayout,
		AssetEscrow:     s.AssetEscrow,
		HighestBidder:   s.HighestBidder,
		BidEscrow:       s.BidEscrow,
		BidRefund:       s.BidRefund,
		Price:           s.Price,
		EndAt:           int64(s.EndAt),
		AssetMint:       s.AssetMint,
		PaymentMint:     s.PaymentMint,
		Deposit:         s.Deposit,
		CreatedAt:       int64(s.CreatedAt),
		BidCount:        s.BidCount,
		Status:          auction.Status(s.Status),
	}
}

// AuctionPut stores an open auction record and marks its slot open.
func (m *Manager) AuctionPut(a *auction.Auction) error {
	if a == nil {
		return fmt.Errorf("nil auction")
	}
	if err := a.Validate(); err != nil {
		return err
	}
	if a.Status != auction.StatusOpen {
		return fmt.Errorf("auction %x: only open records are stored, got %s", a.ID, a.Status)
	}
	encoded, err := rlp.EncodeToBytes(newStoredAuction(a))
	if err != nil {
		return err
	}
	m.put(kvKey(auctionPrefix, a.ID[:]), encoded)
	m.put(kvKey(auctionStatusPrefix, a.ID[:]), []byte{byte(auction.StatusOpen)})
	return nil
}

// AuctionGet loads the record stored in a slot.
func (m *Manager) AuctionGet(id [32]byte) (*auction.Auction, bool, error) {
	data, ok, err := m.get(kvKey(auctionPrefix, id[:]))
	if err != nil || !ok {
		return nil, false, err
	}
	stored := new(storedAuction)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false, fmt.Errorf("decode auction %x: %w", id, err)
	}
	return stored.toAuction(), true, nil
}

// AuctionStatus returns the lifecycle tag of a slot. Slots that were never
// written are unclaimed.
func (m *Manager) AuctionStatus(id [32]byte) (auction.Status, error) {
	data, ok, err := m.get(kvKey(auctionStatusPrefix, id[:]))
	if err != nil {
		return auction.StatusUnclaimed, err
	}
	if !ok || len(data) == 0 {
		return auction.StatusUnclaimed, nil
	}
	status := auction.Status(data[0])
	if !status.Valid() {
		return auction.StatusUnclaimed, fmt.Errorf("auction %x: corrupt status %d", id, data[0])
	}
	return status, nil
}

// AuctionTerminate removes the record and leaves a terminated tombstone.
func (m *Manager) AuctionTerminate(id [32]byte) error {
	status, err := m.AuctionStatus(id)
	if err != nil {
		return err
	}
	if status != auction.StatusOpen {
		return fmt.Errorf("auction %x: cannot terminate %s slot", id, status)
	}
	m.delete(kvKey(auctionPrefix, id[:]))
	m.put(kvKey(auctionStatusPrefix, id[:]), []byte{byte(auction.StatusTerminated)})
	return nil
}
