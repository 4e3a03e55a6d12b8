package auction

import (
	"errors"

	"auctionhouse/native/custody"
)

var (
	errNilState  = errors.New("auction engine: state not configured")
	errNilLedger = errors.New("auction engine: custody ledger not configured")
)

// Authorization failures.
var (
	// ErrUnauthorized is returned when the caller is not the identity the
	// operation requires, or does not control a supplied account.
	ErrUnauthorized = errors.New("auction: unauthorized")
)

// Precondition mismatches.
var (
	// ErrAccountMismatch is returned when a supplied account reference does not
	// match the identifier stored in the record.
	ErrAccountMismatch = errors.New("auction: account mismatch")
	// ErrMintMismatch is returned when a supplied account holds the wrong instrument.
	ErrMintMismatch = errors.New("auction: mint mismatch")
	// ErrNotNonFungible is returned when the exhibited mint can hold more than one unit.
	ErrNotNonFungible = errors.New("auction: asset is not non-fungible")
	// ErrEscrowNotEmpty is returned when a fresh escrow account already holds units.
	ErrEscrowNotEmpty = errors.New("auction: escrow account not empty")
)

// State-invariant failures.
var (
	ErrAuctionNotFound   = errors.New("auction: auction not found")
	ErrSlotClaimed       = errors.New("auction: slot already claimed")
	ErrAuctionExpired    = errors.New("auction: auction has ended")
	ErrAuctionNotExpired = errors.New("auction: auction has not ended")
	ErrBidExists         = errors.New("auction: a bid has already been placed")
	ErrNoBids            = errors.New("auction: no bids to settle")
	ErrInvalidDuration   = errors.New("auction: invalid duration")
)

// Insufficient-resource failures.
var (
	ErrInsufficientFunds = errors.New("auction: insufficient funds")
)

// Ordering failures.
var (
	// ErrPriceTooLow is returned when a bid does not strictly exceed the current price.
	ErrPriceTooLow = errors.New("auction: bid must exceed current price")
)

// Kind groups failures by the reason a caller should act on.
type Kind uint8

const (
	KindNone Kind = iota
	KindAuthorization
	KindPrecondition
	KindState
	KindInsufficient
	KindOrdering
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindAuthorization:
		return "authorization"
	case KindPrecondition:
		return "precondition"
	case KindState:
		return "state"
	case KindInsufficient:
		return "insufficient"
	case KindOrdering:
		return "ordering"
	default:
		return "internal"
	}
}

var kindTable = []struct {
	err  error
	kind Kind
}{
	{ErrUnauthorized, KindAuthorization},
	{custody.ErrNotAuthority, KindAuthorization},
	{ErrAccountMismatch, KindPrecondition},
	{ErrMintMismatch, KindPrecondition},
	{ErrNotNonFungible, KindPrecondition},
	{ErrEscrowNotEmpty, KindPrecondition},
	{custody.ErrAccountNotFound, KindPrecondition},
	{custody.ErrMintNotFound, KindPrecondition},
	{custody.ErrMintMismatch, KindPrecondition},
	{custody.ErrSelfTransfer, KindPrecondition},
	{custody.ErrZeroAddress, KindPrecondition},
	{custody.ErrOverflow, KindPrecondition},
	{ErrAuctionNotFound, KindState},
	{ErrSlotClaimed, KindState},
	{ErrAuctionExpired, KindState},
	{ErrAuctionNotExpired, KindState},
	{ErrBidExists, KindState},
	{ErrNoBids, KindState},
	{ErrInvalidDuration, KindState},
	{custody.ErrAccountExists, KindState},
	{custody.ErrMintExists, KindState},
	{ErrInsufficientFunds, KindInsufficient},
	{custody.ErrInsufficientBalance, KindInsufficient},
	{custody.ErrAccountNotEmpty, KindInsufficient},
	{custody.ErrInsufficientReserve, KindInsufficient},
	{custody.ErrSupplyExceeded, KindInsufficient},
	{ErrPriceTooLow, KindOrdering},
}

// KindOf classifies err. Errors that belong to no known class are internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, entry := range kindTable {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	return KindInternal
}
