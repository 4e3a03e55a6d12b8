package auction

import (
	"errors"
	"fmt"
	"testing"

	"auctionhouse/crypto"
	"auctionhouse/native/custody"
)

func sampleAuction() *Auction {
	var rec Auction
	rec.ID[0] = 0x01
	rec.Exhibitor[0] = 0x02
	rec.ExhibitorPayout[0] = 0x03
	rec.AssetEscrow[0] = 0x04
	rec.HighestBidder = rec.Exhibitor
	rec.BidEscrow = rec.ExhibitorPayout
	rec.BidRefund = rec.ExhibitorPayout
	rec.Status = StatusOpen
	return &rec
}

func TestAuctionValidate(t *testing.T) {
	rec := sampleAuction()
	if err := rec.Validate(); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}

	bid := rec.Clone()
	bid.HighestBidder[0] = 0x09
	if err := bid.Validate(); err == nil {
		t.Fatalf("expected bidder without bid count to fail")
	}
	bid.BidCount = 1
	if err := bid.Validate(); err != nil {
		t.Fatalf("record with bid rejected: %v", err)
	}

	stale := rec.Clone()
	stale.BidEscrow[0] = 0x0A
	if err := stale.Validate(); err == nil {
		t.Fatalf("expected stray bid escrow to fail")
	}

	bad := rec.Clone()
	bad.Status = Status(9)
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected invalid status to fail")
	}
	if got := bad.Status.String(); got != "status(9)" {
		t.Fatalf("unexpected status string %q", got)
	}
}

func TestAuctionCloneIsIndependent(t *testing.T) {
	rec := sampleAuction()
	clone := rec.Clone()
	clone.Price = 500
	if rec.Price != 0 {
		t.Fatalf("clone mutated original")
	}
	var nilRec *Auction
	if nilRec.Clone() != nil || nilRec.HasBid() {
		t.Fatalf("nil record should clone to nil and report no bid")
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{nil, KindNone},
		{ErrUnauthorized, KindAuthorization},
		{fmt.Errorf("transfer: %w", custody.ErrNotAuthority), KindAuthorization},
		{fmt.Errorf("%w: bid escrow", ErrAccountMismatch), KindPrecondition},
		{custody.ErrAccountNotFound, KindPrecondition},
		{ErrAuctionExpired, KindState},
		{ErrNoBids, KindState},
		{custody.ErrInsufficientReserve, KindInsufficient},
		{fmt.Errorf("mint: %w", custody.ErrSupplyExceeded), KindInsufficient},
		{custody.ErrAccountExists, KindState},
		{custody.ErrMintExists, KindState},
		{custody.ErrOverflow, KindPrecondition},
		{ErrPriceTooLow, KindOrdering},
		{errors.New("disk on fire"), KindInternal},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestEventAttributes(t *testing.T) {
	var id [32]byte
	id[31] = 0xFF
	var bidder, escrow [20]byte
	bidder[0] = 0x11
	escrow[0] = 0x22

	evt := BidPlaced{ID: id, Bidder: bidder, BidEscrow: escrow, Price: 42, BidCount: 3}.Event()
	if evt.Type != EventTypeAuctionBid {
		t.Fatalf("unexpected type %s", evt.Type)
	}
	if evt.Attributes["price"] != "42" || evt.Attributes["bidCount"] != "3" {
		t.Fatalf("unexpected attributes %+v", evt.Attributes)
	}
	if evt.Attributes["bidder"] != crypto.AddressFromRaw(crypto.IdentityPrefix, bidder).String() {
		t.Fatalf("bidder should be bech32 encoded, got %s", evt.Attributes["bidder"])
	}
	if evt.Attributes["id"][62:] != "ff" {
		t.Fatalf("id should be hex encoded, got %s", evt.Attributes["id"])
	}

	exhibited := Exhibited{ID: id, EndAt: -30}.Event()
	if exhibited.Attributes["endAt"] != "-30" {
		t.Fatalf("unexpected endAt %s", exhibited.Attributes["endAt"])
	}
}
