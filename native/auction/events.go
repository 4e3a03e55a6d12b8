package auction

import (
	"encoding/hex"
	"strconv"

	"auctionhouse/core/types"
	"auctionhouse/crypto"
)

const (
	EventTypeAuctionExhibited = "auction.exhibited"
	EventTypeAuctionBid       = "auction.bid"
	EventTypeAuctionRefunded  = "auction.refunded"
	EventTypeAuctionCancelled = "auction.cancelled"
	EventTypeAuctionSettled   = "auction.settled"
)

func identity(addr [20]byte) string {
	return crypto.AddressFromRaw(crypto.IdentityPrefix, addr).String()
}

func account(addr [20]byte) string {
	return crypto.AddressFromRaw(crypto.AccountPrefix, addr).String()
}

// Exhibited is emitted when an asset enters escrow and bidding opens.
type Exhibited struct {
	ID          [32]byte
	Exhibitor   [20]byte
	AssetMint   [20]byte
	PaymentMint [20]byte
	AssetEscrow [20]byte
	Price       uint64
	EndAt       int64
}

func (Exhibited) EventType() string { return EventTypeAuctionExhibited }

func (e Exhibited) Event() *types.Event {
	return &types.Event{
		Type: EventTypeAuctionExhibited,
		Attributes: map[string]string{
			"id":          hex.EncodeToString(e.ID[:]),
			"exhibitor":   identity(e.Exhibitor),
			"assetMint":   account(e.AssetMint),
			"paymentMint": account(e.PaymentMint),
			"assetEscrow": account(e.AssetEscrow),
			"price":       strconv.FormatUint(e.Price, 10),
			"endAt":       strconv.FormatInt(e.EndAt, 10),
		},
	}
}

// BidPlaced is emitted for every accepted bid.
type BidPlaced struct {
	ID        [32]byte
	Bidder    [20]byte
	BidEscrow [20]byte
	Price     uint64
	BidCount  uint32
}

func (BidPlaced) EventType() string { return EventTypeAuctionBid }

func (e BidPlaced) Event() *types.Event {
	return &types.Event{
		Type: EventTypeAuctionBid,
		Attributes: map[string]string{
			"id":        hex.EncodeToString(e.ID[:]),
			"bidder":    identity(e.Bidder),
			"bidEscrow": account(e.BidEscrow),
			"price":     strconv.FormatUint(e.Price, 10),
			"bidCount":  strconv.FormatUint(uint64(e.BidCount), 10),
		},
	}
}

// Refunded is emitted when an outbid bidder's funds are returned.
type Refunded struct {
	ID            [32]byte
	Bidder        [20]byte
	RefundAccount [20]byte
	Amount        uint64
}

func (Refunded) EventType() string { return EventTypeAuctionRefunded }

func (e Refunded) Event() *types.Event {
	return &types.Event{
		Type: EventTypeAuctionRefunded,
		Attributes: map[string]string{
			"id":            hex.EncodeToString(e.ID[:]),
			"bidder":        identity(e.Bidder),
			"refundAccount": account(e.RefundAccount),
			"amount":        strconv.FormatUint(e.Amount, 10),
		},
	}
}

// Cancelled is emitted when the exhibitor withdraws an auction before any bid.
type Cancelled struct {
	ID        [32]byte
	Exhibitor [20]byte
}

func (Cancelled) EventType() string { return EventTypeAuctionCancelled }

func (e Cancelled) Event() *types.Event {
	return &types.Event{
		Type: EventTypeAuctionCancelled,
		Attributes: map[string]string{
			"id":        hex.EncodeToString(e.ID[:]),
			"exhibitor": identity(e.Exhibitor),
		},
	}
}

// Settled is emitted when Close exchanges the asset for the winning bid.
type Settled struct {
	ID        [32]byte
	Exhibitor [20]byte
	Winner    [20]byte
	Price     uint64
	SettledBy [20]byte
}

func (Settled) EventType() string { return EventTypeAuctionSettled }

func (e Settled) Event() *types.Event {
	return &types.Event{
		Type: EventTypeAuctionSettled,
		Attributes: map[string]string{
			"id":        hex.EncodeToString(e.ID[:]),
			"exhibitor": identity(e.Exhibitor),
			"winner":    identity(e.Winner),
			"price":     strconv.FormatUint(e.Price, 10),
			"settledBy": identity(e.SettledBy),
		},
	}
}
