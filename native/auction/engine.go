package auction

import (
	"errors"
	"fmt"
	"math"
	"time"

	"auctionhouse/core/events"
	"auctionhouse/crypto"
	"auctionhouse/native/custody"
)

// EscrowSeed is the derivation seed of the program control identity.
const EscrowSeed = "escrow"

type engineState interface {
	AuctionGet(id [32]byte) (*Auction, bool, error)
	AuctionPut(*Auction) error
	AuctionStatus(id [32]byte) (Status, error)
	AuctionTerminate(id [32]byte) error
}

type custodyLedger interface {
	Account(addr [20]byte) (*custody.Account, error)
	Mint(id [20]byte) (*custody.Mint, error)
	SetAuthority(account, current, next [20]byte) error
	Transfer(from, to [20]byte, amount uint64, authority [20]byte) error
	CloseAccount(account, destination, authority [20]byte) error
	CreditReserve(addr [20]byte, amount uint64) error
	DebitReserve(addr [20]byte, amount uint64) error
}

// Engine runs the auction escrow state machine. Every operation re-reads the
// record, validates all preconditions and then performs its custody moves
// under the program control identity. The engine does not stage writes
// itself: callers run each operation inside a state snapshot and revert it
// when an error is returned.
type Engine struct {
	state         engineState
	ledger        custodyLedger
	emitter       events.Emitter
	control       [20]byte
	recordDeposit uint64
	nowFn         func() int64
}

// NewEngine creates an engine whose control identity is derived from
// programID. Callers can override the emitter via SetEmitter.
func NewEngine(programID []byte) *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		control: crypto.DeriveProgramAddress(programID, EscrowSeed),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the custody ledger the engine moves assets through.
func (e *Engine) SetLedger(ledger custodyLedger) { e.ledger = ledger }

// SetRecordDeposit configures the reserve amount locked by each open record.
func (e *Engine) SetRecordDeposit(amount uint64) { e.recordDeposit = amount }

// ControlIdentity returns the identity that holds authority over escrowed
// accounts.
func (e *Engine) ControlIdentity() [20]byte { return e.control }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	return nil
}

// Auction returns a copy of an open auction record.
func (e *Engine) Auction(id [32]byte) (*Auction, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadOpen(id)
}

// Status returns the lifecycle tag of a slot.
func (e *Engine) Status(id [32]byte) (Status, error) {
	if err := e.ready(); err != nil {
		return StatusUnclaimed, err
	}
	return e.state.AuctionStatus(id)
}

func (e *Engine) loadOpen(id [32]byte) (*Auction, error) {
	rec, ok, err := e.state.AuctionGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || rec.Status != StatusOpen {
		return nil, fmt.Errorf("%w: %x", ErrAuctionNotFound, id)
	}
	return rec, nil
}

// account loads a custody account that the caller referenced.
func (e *Engine) account(addr [20]byte, role string) (*custody.Account, error) {
	acc, err := e.ledger.Account(addr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", role, err)
	}
	return acc, nil
}

// release empties a program-held fungible escrow into target and closes it,
// reclaiming storage to closeTo. The full balance moves, since anyone can top
// up an escrow account. If target no longer exists, or was reopened for
// another mint or under another authority, the escrow account itself is
// handed to owner. It returns the amount released and the account that now
// holds it.
func (e *Engine) release(escrowAddr, target, owner, closeTo [20]byte) (uint64, [20]byte, error) {
	escrow, err := e.account(escrowAddr, "bid escrow")
	if err != nil {
		return 0, [20]byte{}, err
	}
	dst, err := e.ledger.Account(target)
	if err != nil && !errors.Is(err, custody.ErrAccountNotFound) {
		return 0, [20]byte{}, err
	}
	if err != nil || dst.Mint != escrow.Mint || !dst.ControlledBy(owner) {
		if err := e.ledger.SetAuthority(escrowAddr, e.control, owner); err != nil {
			return 0, [20]byte{}, err
		}
		return escrow.Amount, escrowAddr, nil
	}
	if err := e.ledger.Transfer(escrowAddr, target, escrow.Amount, e.control); err != nil {
		return 0, [20]byte{}, err
	}
	if err := e.ledger.CloseAccount(escrowAddr, closeTo, e.control); err != nil {
		return 0, [20]byte{}, err
	}
	return escrow.Amount, target, nil
}

// Exhibit claims an unclaimed slot, moves the single asset unit into program
// custody and opens bidding at initialPrice for durationSec seconds.
func (e *Engine) Exhibit(caller [20]byte, accts ExhibitAccounts, initialPrice, durationSec uint64) (*Auction, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	status, err := e.state.AuctionStatus(accts.Auction)
	if err != nil {
		return nil, err
	}
	if status != StatusUnclaimed {
		return nil, fmt.Errorf("%w: slot %x is %s", ErrSlotClaimed, accts.Auction, status)
	}
	if caller == ([20]byte{}) {
		return nil, fmt.Errorf("%w: missing exhibitor", ErrUnauthorized)
	}
	now := e.now()
	if durationSec == 0 || durationSec > uint64(math.MaxInt64) || int64(durationSec) > math.MaxInt64-now {
		return nil, fmt.Errorf("%w: %d seconds", ErrInvalidDuration, durationSec)
	}
	if accts.AssetEscrow == accts.AssetSource {
		return nil, fmt.Errorf("%w: asset escrow must differ from asset source", ErrAccountMismatch)
	}

	source, err := e.account(accts.AssetSource, "asset source")
	if err != nil {
		return nil, err
	}
	if !source.ControlledBy(caller) {
		return nil, fmt.Errorf("%w: exhibitor does not control asset source", ErrUnauthorized)
	}
	mint, err := e.ledger.Mint(source.Mint)
	if err != nil {
		return nil, err
	}
	if !mint.NonFungible() {
		return nil, fmt.Errorf("%w: mint %x", ErrNotNonFungible, source.Mint)
	}
	if source.Amount != 1 {
		return nil, fmt.Errorf("%w: asset source holds %d units", ErrInsufficientFunds, source.Amount)
	}

	escrow, err := e.account(accts.AssetEscrow, "asset escrow")
	if err != nil {
		return nil, err
	}
	if escrow.Mint != source.Mint {
		return nil, fmt.Errorf("%w: asset escrow", ErrMintMismatch)
	}
	if !escrow.ControlledBy(caller) {
		return nil, fmt.Errorf("%w: exhibitor does not control asset escrow", ErrUnauthorized)
	}
	if escrow.Amount != 0 {
		return nil, fmt.Errorf("%w: asset escrow holds %d", ErrEscrowNotEmpty, escrow.Amount)
	}

	payout, err := e.account(accts.ExhibitorPayout, "exhibitor payout")
	if err != nil {
		return nil, err
	}
	if payout.Mint == source.Mint {
		return nil, fmt.Errorf("%w: payout account must hold the payment instrument", ErrMintMismatch)
	}

	if err := e.ledger.DebitReserve(caller, e.recordDeposit); err != nil {
		return nil, err
	}
	if err := e.ledger.SetAuthority(accts.AssetEscrow, caller, e.control); err != nil {
		return nil, err
	}
	if err := e.ledger.Transfer(accts.AssetSource, accts.AssetEscrow, 1, caller); err != nil {
		return nil, err
	}

	rec := &Auction{
		ID:              accts.Auction,
		Exhibitor:       caller,
		ExhibitorPayout: accts.ExhibitorPayout,
		AssetEscrow:     accts.AssetEscrow,
		HighestBidder:   caller,
		BidEscrow:       accts.ExhibitorPayout,
		BidRefund:       accts.ExhibitorPayout,
		Price:           initialPrice,
		EndAt:           now + int64(durationSec),
		AssetMint:       source.Mint,
		PaymentMint:     payout.Mint,
		Deposit:         e.recordDeposit,
		CreatedAt:       now,
		Status:          StatusOpen,
	}
	if err := e.state.AuctionPut(rec); err != nil {
		return nil, err
	}
	e.emit(Exhibited{
		ID:          rec.ID,
		Exhibitor:   rec.Exhibitor,
		AssetMint:   rec.AssetMint,
		PaymentMint: rec.PaymentMint,
		AssetEscrow: rec.AssetEscrow,
		Price:       rec.Price,
		EndAt:       rec.EndAt,
	})
	return rec.Clone(), nil
}

// Bid replaces the leading bid with a strictly higher one. The displaced
// bidder is refunded in full and their escrow account closed before the new
// funds enter custody, so at most one bidder is ever escrowed.
func (e *Engine) Bid(caller [20]byte, accts BidAccounts, price uint64) (*Auction, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	rec, err := e.loadOpen(accts.Auction)
	if err != nil {
		return nil, err
	}
	if e.now() >= rec.EndAt {
		return nil, fmt.Errorf("%w: ended at %d", ErrAuctionExpired, rec.EndAt)
	}
	if accts.HighestBidder != rec.HighestBidder ||
		accts.HighestBidEscrow != rec.BidEscrow ||
		accts.HighestBidRefund != rec.BidRefund {
		return nil, fmt.Errorf("%w: highest bidder accounts", ErrAccountMismatch)
	}
	if caller == ([20]byte{}) || caller == rec.HighestBidder {
		return nil, fmt.Errorf("%w: caller already holds the highest bid", ErrUnauthorized)
	}
	if caller == rec.Exhibitor {
		return nil, fmt.Errorf("%w: exhibitor cannot bid", ErrUnauthorized)
	}
	if price <= rec.Price {
		return nil, fmt.Errorf("%w: %d <= %d", ErrPriceTooLow, price, rec.Price)
	}
	if accts.BidEscrow == accts.BidSource {
		return nil, fmt.Errorf("%w: bid escrow must differ from bid source", ErrAccountMismatch)
	}
	if accts.BidEscrow == rec.ExhibitorPayout || accts.BidEscrow == rec.AssetEscrow ||
		accts.BidEscrow == rec.BidRefund {
		return nil, fmt.Errorf("%w: bid escrow collides with auction accounts", ErrAccountMismatch)
	}

	source, err := e.account(accts.BidSource, "bid source")
	if err != nil {
		return nil, err
	}
	if !source.ControlledBy(caller) {
		return nil, fmt.Errorf("%w: bidder does not control bid source", ErrUnauthorized)
	}
	if source.Mint != rec.PaymentMint {
		return nil, fmt.Errorf("%w: bid source", ErrMintMismatch)
	}
	if source.Amount < price {
		return nil, fmt.Errorf("%w: bid source holds %d, bid %d", ErrInsufficientFunds, source.Amount, price)
	}
	escrow, err := e.account(accts.BidEscrow, "bid escrow")
	if err != nil {
		return nil, err
	}
	if !escrow.ControlledBy(caller) {
		return nil, fmt.Errorf("%w: bidder does not control bid escrow", ErrUnauthorized)
	}
	if escrow.Mint != rec.PaymentMint {
		return nil, fmt.Errorf("%w: bid escrow", ErrMintMismatch)
	}
	if escrow.Amount != 0 {
		return nil, fmt.Errorf("%w: bid escrow holds %d", ErrEscrowNotEmpty, escrow.Amount)
	}

	var refund *Refunded
	if rec.HasBid() {
		amount, delivered, err := e.release(rec.BidEscrow, rec.BidRefund, rec.HighestBidder, rec.HighestBidder)
		if err != nil {
			return nil, err
		}
		refund = &Refunded{ID: rec.ID, Bidder: rec.HighestBidder, RefundAccount: delivered, Amount: amount}
	}

	if err := e.ledger.SetAuthority(accts.BidEscrow, caller, e.control); err != nil {
		return nil, err
	}
	if err := e.ledger.Transfer(accts.BidSource, accts.BidEscrow, price, caller); err != nil {
		return nil, err
	}

	rec.Price = price
	rec.HighestBidder = caller
	rec.BidEscrow = accts.BidEscrow
	rec.BidRefund = accts.BidSource
	rec.BidCount++
	if err := e.state.AuctionPut(rec); err != nil {
		return nil, err
	}
	if refund != nil {
		e.emit(*refund)
	}
	e.emit(BidPlaced{ID: rec.ID, Bidder: caller, BidEscrow: rec.BidEscrow, Price: price, BidCount: rec.BidCount})
	return rec.Clone(), nil
}

// Cancel returns the asset to the exhibitor and destroys the record. It is
// only available while no bid exists.
func (e *Engine) Cancel(caller [20]byte, accts CancelAccounts) error {
	if err := e.ready(); err != nil {
		return err
	}
	rec, err := e.loadOpen(accts.Auction)
	if err != nil {
		return err
	}
	if caller != rec.Exhibitor {
		return fmt.Errorf("%w: only the exhibitor may cancel", ErrUnauthorized)
	}
	if rec.HasBid() {
		return ErrBidExists
	}
	if accts.AssetEscrow != rec.AssetEscrow {
		return fmt.Errorf("%w: asset escrow", ErrAccountMismatch)
	}
	target, err := e.account(accts.AssetReturn, "asset return")
	if err != nil {
		return err
	}
	if !target.ControlledBy(rec.Exhibitor) {
		return fmt.Errorf("%w: exhibitor does not control asset return account", ErrUnauthorized)
	}
	if target.Mint != rec.AssetMint {
		return fmt.Errorf("%w: asset return", ErrMintMismatch)
	}
	escrow, err := e.account(rec.AssetEscrow, "asset escrow")
	if err != nil {
		return err
	}

	if err := e.ledger.Transfer(rec.AssetEscrow, accts.AssetReturn, escrow.Amount, e.control); err != nil {
		return err
	}
	if err := e.ledger.CloseAccount(rec.AssetEscrow, rec.Exhibitor, e.control); err != nil {
		return err
	}
	if err := e.ledger.CreditReserve(rec.Exhibitor, rec.Deposit); err != nil {
		return err
	}
	if err := e.state.AuctionTerminate(rec.ID); err != nil {
		return err
	}
	e.emit(Cancelled{ID: rec.ID, Exhibitor: rec.Exhibitor})
	return nil
}

// Close settles an expired auction: the asset goes to the winning bidder,
// the winning bid to the exhibitor's payout account, both escrow accounts are
// closed and the record is destroyed. Any caller may settle.
func (e *Engine) Close(caller [20]byte, accts CloseAccounts) error {
	if err := e.ready(); err != nil {
		return err
	}
	rec, err := e.loadOpen(accts.Auction)
	if err != nil {
		return err
	}
	if e.now() < rec.EndAt {
		return fmt.Errorf("%w: ends at %d", ErrAuctionNotExpired, rec.EndAt)
	}
	if accts.Exhibitor != rec.Exhibitor ||
		accts.AssetEscrow != rec.AssetEscrow ||
		accts.ExhibitorPayout != rec.ExhibitorPayout ||
		accts.WinningBidder != rec.HighestBidder ||
		accts.WinningBidEscrow != rec.BidEscrow {
		return fmt.Errorf("%w: settlement accounts", ErrAccountMismatch)
	}
	if !rec.HasBid() {
		return ErrNoBids
	}
	receiver, err := e.account(accts.WinnerAssetReceiver, "winner asset receiver")
	if err != nil {
		return err
	}
	if !receiver.ControlledBy(rec.HighestBidder) {
		return fmt.Errorf("%w: winner does not control asset receiver", ErrUnauthorized)
	}
	if receiver.Mint != rec.AssetMint {
		return fmt.Errorf("%w: winner asset receiver", ErrMintMismatch)
	}
	assetEscrow, err := e.account(rec.AssetEscrow, "asset escrow")
	if err != nil {
		return err
	}

	if err := e.ledger.Transfer(rec.AssetEscrow, accts.WinnerAssetReceiver, assetEscrow.Amount, e.control); err != nil {
		return err
	}
	if _, _, err := e.release(rec.BidEscrow, rec.ExhibitorPayout, rec.Exhibitor, rec.HighestBidder); err != nil {
		return err
	}
	if err := e.ledger.CloseAccount(rec.AssetEscrow, rec.Exhibitor, e.control); err != nil {
		return err
	}
	if err := e.ledger.CreditReserve(rec.Exhibitor, rec.Deposit); err != nil {
		return err
	}
	if err := e.state.AuctionTerminate(rec.ID); err != nil {
		return err
	}
	e.emit(Settled{
		ID:        rec.ID,
		Exhibitor: rec.Exhibitor,
		Winner:    rec.HighestBidder,
		Price:     rec.Price,
		SettledBy: caller,
	})
	return nil
}
