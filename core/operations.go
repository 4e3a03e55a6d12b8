package core

import (
	"auctionhouse/core/types"
	"auctionhouse/native/auction"
	"auctionhouse/native/custody"
)

// Header identifies the signer of an operation and orders its operations.
// Nonce must equal the number of operations the signer has applied so far.
type Header struct {
	Caller [20]byte
	Nonce  uint64
}

func (h Header) header() Header { return h }

// Operation is a single state transition accepted by the Executor.
type Operation interface {
	Name() string
	header() Header
	apply(x *Executor, caller [20]byte, r *Receipt) error
}

// Receipt describes the outcome of an applied operation.
type Receipt struct {
	Operation string
	Caller    [20]byte
	Nonce     uint64
	Auction   *auction.Auction
	Account   *custody.Account
	Mint      *custody.Mint
	Events    []*types.Event
}

const (
	OpExhibit      = "exhibit"
	OpBid          = "bid"
	OpCancel       = "cancel"
	OpClose        = "close"
	OpCreateMint   = "create_mint"
	OpOpenAccount  = "open_account"
	OpMintTo       = "mint_to"
	OpTransfer     = "transfer"
	OpCloseAccount = "close_account"
)

// ExhibitOp puts a single asset unit up for auction.
type ExhibitOp struct {
	Header
	Accounts auction.ExhibitAccounts
	Price    uint64
	Duration uint64
}

func (ExhibitOp) Name() string { return OpExhibit }

func (op ExhibitOp) apply(x *Executor, caller [20]byte, r *Receipt) error {
	rec, err := x.engine.Exhibit(caller, op.Accounts, op.Price, op.Duration)
	if err != nil {
		return err
	}
	r.Auction = rec
	x.metrics.AuctionOpened()
	return nil
}

// BidOp places a strictly higher bid.
type BidOp struct {
	Header
	Accounts auction.BidAccounts
	Price    uint64
}

func (BidOp) Name() string { return OpBid }

func (op BidOp) apply(x *Executor, caller [20]byte, r *Receipt) error {
	rec, err := x.engine.Bid(caller, op.Accounts, op.Price)
	if err != nil {
		return err
	}
	r.Auction = rec
	return nil
}

// CancelOp withdraws an auction that has no bids.
type CancelOp struct {
	Header
	Accounts auction.CancelAccounts
}

func (CancelOp) Name() string { return OpCancel }

func (op CancelOp) apply(x *Executor, caller [20]byte, r *Receipt) error {
	rec, err := x.engine.Auction(op.Accounts.Auction)
	if err != nil {
		return err
	}
	if err := x.engine.Cancel(caller, op.Accounts); err != nil {
		return err
	}
	rec.Status = auction.StatusTerminated
	r.Auction = rec
	x.metrics.AuctionClosed()
	return nil
}

// CloseOp settles an expired auction. Anyone may submit it.
type CloseOp struct {
	Header
	Accounts auction.CloseAccounts
}

func (CloseOp) Name() string { return OpClose }

func (op CloseOp) apply(x *Executor, caller [20]byte, r *Receipt) error {
	rec, err := x.engine.Auction(op.Accounts.Auction)
	if err != nil {
		return err
	}
	if err := x.engine.Close(caller, op.Accounts); err != nil {
		return err
	}
	rec.Status = auction.StatusTerminated
	r.Auction = rec
	x.metrics.AuctionClosed()
	x.metrics.ObserveSettlement(rec.Price)
	return nil
}

// CreateMintOp registers a new instrument with the caller as mint authority.
// A MaxSupply of one makes the mint non-fungible.
type CreateMintOp struct {
	Header
	Mint      [20]byte
	Decimals  uint8
	MaxSupply uint64
}

func (CreateMintOp) Name() string { return OpCreateMint }

func (op CreateMintOp) apply(x *Executor, caller [20]byte, r *Receipt) error {
	mint, err := x.ledger.CreateMint(op.Mint, caller, op.Decimals, op.MaxSupply)
	if err != nil {
		return err
	}
	r.Mint = mint
	return nil
}

// OpenAccountOp creates an empty custody account paid for by the caller.
// A zero Authority assigns the account to the caller.
type OpenAccountOp struct {
	Header
	Address   [20]byte
	Mint      [20]byte
	Authority [20]byte
}

func (OpenAccountOp) Name() string { return OpOpenAccount }

func (op OpenAccountOp) apply(x *Executor, caller [20]byte, r *Receipt) error {
	authority := op.Authority
	if authority == ([20]byte{}) {
		authority = caller
	}
	acc, err := x.ledger.OpenAccount(caller, op.Address, op.Mint, authority)
	if err != nil {
		return err
	}
	r.Account = acc
	return nil
}

// MintToOp issues units of a mint the caller controls.
type MintToOp struct {
	Header
	Mint    [20]byte
	Account [20]byte
	Amount  uint64
}

func (MintToOp) Name() string { return OpMintTo }

func (op MintToOp) apply(x *Executor, caller [20]byte, r *Receipt) error {
	if err := x.ledger.MintTo(op.Mint, op.Account, op.Amount, caller); err != nil {
		return err
	}
	acc, err := x.ledger.Account(op.Account)
	if err != nil {
		return err
	}
	r.Account = acc
	return nil
}

// TransferOp moves units out of an account the caller controls.
type TransferOp struct {
	Header
	From   [20]byte
	To     [20]byte
	Amount uint64
}

func (TransferOp) Name() string { return OpTransfer }

func (op TransferOp) apply(x *Executor, caller [20]byte, r *Receipt) error {
	if err := x.ledger.Transfer(op.From, op.To, op.Amount, caller); err != nil {
		return err
	}
	acc, err := x.ledger.Account(op.From)
	if err != nil {
		return err
	}
	r.Account = acc
	return nil
}

// CloseAccountOp releases an empty account the caller controls and returns
// its storage deposit to Destination.
type CloseAccountOp struct {
	Header
	Account     [20]byte
	Destination [20]byte
}

func (CloseAccountOp) Name() string { return OpCloseAccount }

func (op CloseAccountOp) apply(x *Executor, caller [20]byte, r *Receipt) error {
	dest := op.Destination
	if dest == ([20]byte{}) {
		dest = caller
	}
	return x.ledger.CloseAccount(op.Account, dest, caller)
}
