package custody

import (
	"fmt"
	"math"
)

type ledgerState interface {
	CustodyAccountGet(addr [20]byte) (*Account, bool, error)
	CustodyAccountPut(*Account) error
	CustodyAccountDelete(addr [20]byte) error
	CustodyMintGet(id [20]byte) (*Mint, bool, error)
	CustodyMintPut(*Mint) error
	ReserveGet(addr [20]byte) (uint64, error)
	ReservePut(addr [20]byte, amount uint64) error
}

// Ledger implements the custody primitives the auction escrow relies on:
// authority reassignment, transfers between accounts of the same mint and
// closing empty accounts. It performs no staging of its own; callers run it
// inside a state snapshot so a failed operation leaves nothing behind.
type Ledger struct {
	state          ledgerState
	accountDeposit uint64
}

// NewLedger creates a ledger with no state configured.
func NewLedger() *Ledger {
	return &Ledger{}
}

// SetState configures the state backend used by the ledger.
func (l *Ledger) SetState(state ledgerState) { l.state = state }

// SetAccountDeposit configures the storage deposit charged by OpenAccount.
func (l *Ledger) SetAccountDeposit(amount uint64) { l.accountDeposit = amount }

// AccountDeposit returns the storage deposit charged per custody account.
func (l *Ledger) AccountDeposit() uint64 { return l.accountDeposit }

func (l *Ledger) ready() error {
	if l == nil || l.state == nil {
		return errNilState
	}
	return nil
}

func addChecked(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// Account loads a custody account.
func (l *Ledger) Account(addr [20]byte) (*Account, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	acc, ok, err := l.state.CustodyAccountGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrAccountNotFound, addr)
	}
	return acc, nil
}

// Mint loads a mint definition.
func (l *Ledger) Mint(id [20]byte) (*Mint, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	mint, ok, err := l.state.CustodyMintGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrMintNotFound, id)
	}
	return mint, nil
}

// Reserve returns the native reserve balance of an identity.
func (l *Ledger) Reserve(addr [20]byte) (uint64, error) {
	if err := l.ready(); err != nil {
		return 0, err
	}
	return l.state.ReserveGet(addr)
}

// CreditReserve adds amount to an identity's reserve.
func (l *Ledger) CreditReserve(addr [20]byte, amount uint64) error {
	if err := l.ready(); err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	current, err := l.state.ReserveGet(addr)
	if err != nil {
		return err
	}
	next, err := addChecked(current, amount)
	if err != nil {
		return err
	}
	return l.state.ReservePut(addr, next)
}

// DebitReserve removes amount from an identity's reserve.
func (l *Ledger) DebitReserve(addr [20]byte, amount uint64) error {
	if err := l.ready(); err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	current, err := l.state.ReserveGet(addr)
	if err != nil {
		return err
	}
	if current < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientReserve, current, amount)
	}
	return l.state.ReservePut(addr, current-amount)
}

// CreateMint registers a new instrument controlled by authority.
func (l *Ledger) CreateMint(id, authority [20]byte, decimals uint8, maxSupply uint64) (*Mint, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	if id == ([20]byte{}) || authority == ([20]byte{}) {
		return nil, ErrZeroAddress
	}
	if _, ok, err := l.state.CustodyMintGet(id); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%w: %x", ErrMintExists, id)
	}
	mint := &Mint{ID: id, Authority: authority, Decimals: decimals, MaxSupply: maxSupply}
	if err := l.state.CustodyMintPut(mint); err != nil {
		return nil, err
	}
	return mint.Clone(), nil
}

// OpenAccount creates an empty custody account for mint under authority. The
// payer funds the storage deposit from its reserve.
func (l *Ledger) OpenAccount(payer, address, mint, authority [20]byte) (*Account, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	if address == ([20]byte{}) || authority == ([20]byte{}) {
		return nil, ErrZeroAddress
	}
	if _, err := l.Mint(mint); err != nil {
		return nil, err
	}
	if _, ok, err := l.state.CustodyAccountGet(address); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%w: %x", ErrAccountExists, address)
	}
	if err := l.DebitReserve(payer, l.accountDeposit); err != nil {
		return nil, err
	}
	acc := &Account{Address: address, Mint: mint, Authority: authority, Deposit: l.accountDeposit}
	if err := l.state.CustodyAccountPut(acc); err != nil {
		return nil, err
	}
	return acc.Clone(), nil
}

// MintTo issues new units of mint into dest. Only the mint authority may
// issue.
func (l *Ledger) MintTo(mintID, dest [20]byte, amount uint64, authority [20]byte) error {
	mint, err := l.Mint(mintID)
	if err != nil {
		return err
	}
	if mint.Authority != authority {
		return ErrNotAuthority
	}
	acc, err := l.Account(dest)
	if err != nil {
		return err
	}
	if acc.Mint != mintID {
		return ErrMintMismatch
	}
	supply, err := addChecked(mint.Supply, amount)
	if err != nil {
		return err
	}
	if mint.MaxSupply > 0 && supply > mint.MaxSupply {
		return fmt.Errorf("%w: supply %d, max %d", ErrSupplyExceeded, supply, mint.MaxSupply)
	}
	balance, err := addChecked(acc.Amount, amount)
	if err != nil {
		return err
	}
	mint.Supply = supply
	acc.Amount = balance
	if err := l.state.CustodyMintPut(mint); err != nil {
		return err
	}
	return l.state.CustodyAccountPut(acc)
}

// SetAuthority hands exclusive control of account from current to next.
func (l *Ledger) SetAuthority(account, current, next [20]byte) error {
	acc, err := l.Account(account)
	if err != nil {
		return err
	}
	if !acc.ControlledBy(current) {
		return fmt.Errorf("%w: set authority on %x", ErrNotAuthority, account)
	}
	if next == ([20]byte{}) {
		return ErrZeroAddress
	}
	acc.Authority = next
	return l.state.CustodyAccountPut(acc)
}

// Transfer moves amount units between two accounts of the same mint.
// authority must control the source account. A zero amount is a no-op once
// the accounts have been validated.
func (l *Ledger) Transfer(from, to [20]byte, amount uint64, authority [20]byte) error {
	if from == to {
		return ErrSelfTransfer
	}
	src, err := l.Account(from)
	if err != nil {
		return err
	}
	dst, err := l.Account(to)
	if err != nil {
		return err
	}
	if src.Mint != dst.Mint {
		return fmt.Errorf("%w: %x -> %x", ErrMintMismatch, from, to)
	}
	if !src.ControlledBy(authority) {
		return fmt.Errorf("%w: transfer from %x", ErrNotAuthority, from)
	}
	if amount == 0 {
		return nil
	}
	if src.Amount < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, src.Amount, amount)
	}
	credited, err := addChecked(dst.Amount, amount)
	if err != nil {
		return err
	}
	src.Amount -= amount
	dst.Amount = credited
	if err := l.state.CustodyAccountPut(src); err != nil {
		return err
	}
	return l.state.CustodyAccountPut(dst)
}

// CloseAccount releases an empty account and returns its deposit to the
// destination identity's reserve.
func (l *Ledger) CloseAccount(account, destination, authority [20]byte) error {
	acc, err := l.Account(account)
	if err != nil {
		return err
	}
	if !acc.ControlledBy(authority) {
		return fmt.Errorf("%w: close %x", ErrNotAuthority, account)
	}
	if acc.Amount != 0 {
		return fmt.Errorf("%w: %x holds %d", ErrAccountNotEmpty, account, acc.Amount)
	}
	if err := l.CreditReserve(destination, acc.Deposit); err != nil {
		return err
	}
	return l.state.CustodyAccountDelete(account)
}
