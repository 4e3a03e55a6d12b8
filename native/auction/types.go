package auction

import "fmt"

// Status is the lifecycle tag stored alongside every auction slot.
type Status uint8

const (
	// StatusUnclaimed marks a slot that has never held an auction.
	StatusUnclaimed Status = iota
	// StatusOpen marks a live auction.
	StatusOpen
	// StatusTerminated marks a slot whose auction was cancelled or settled.
	// The record itself is gone; the tag keeps the slot from being reused.
	StatusTerminated
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusUnclaimed, StatusOpen, StatusTerminated:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusUnclaimed:
		return "unclaimed"
	case StatusOpen:
		return "open"
	case StatusTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Auction is the escrow record for a single exhibited asset. While the
// auction is open AssetEscrow holds the asset and, once a bid exists,
// BidEscrow holds exactly Price units of PaymentMint, both under the
// program's control identity. HighestBidder equals Exhibitor until the first
// bid is accepted.
type Auction struct {
	ID              [32]byte
	Exhibitor       [20]byte
	ExhibitorPayout [20]byte
	AssetEscrow     [20]byte
	HighestBidder   [20]byte
	BidEscrow       [20]byte
	BidRefund       [20]byte
	Price           uint64
	EndAt           int64
	AssetMint       [20]byte
	PaymentMint     [20]byte
	Deposit         uint64
	CreatedAt       int64
	BidCount        uint32
	Status          Status
}

// HasBid reports whether any bid has been accepted.
func (a *Auction) HasBid() bool {
	return a != nil && a.HighestBidder != a.Exhibitor
}

// Clone returns a copy of the record.
func (a *Auction) Clone() *Auction {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

// Validate checks the structural invariants of a stored record.
func (a *Auction) Validate() error {
	if a == nil {
		return fmt.Errorf("nil auction")
	}
	if !a.Status.Valid() {
		return fmt.Errorf("invalid auction status: %d", a.Status)
	}
	if a.Exhibitor == ([20]byte{}) {
		return fmt.Errorf("auction exhibitor must be set")
	}
	if a.AssetEscrow == ([20]byte{}) || a.ExhibitorPayout == ([20]byte{}) {
		return fmt.Errorf("auction custody accounts must be set")
	}
	if a.HasBid() && a.BidCount == 0 {
		return fmt.Errorf("auction has a bidder but no recorded bids")
	}
	if !a.HasBid() && (a.BidEscrow != a.ExhibitorPayout || a.BidRefund != a.ExhibitorPayout) {
		return fmt.Errorf("auction without bids must point bid accounts at the payout account")
	}
	return nil
}
