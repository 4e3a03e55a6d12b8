package custody

import "errors"

var (
	errNilState = errors.New("custody: state not configured")

	// ErrAccountNotFound is returned when a referenced custody account does not exist.
	ErrAccountNotFound = errors.New("custody: account not found")
	// ErrAccountExists is returned when opening an address that is already in use.
	ErrAccountExists = errors.New("custody: account already exists")
	// ErrMintNotFound is returned when a referenced mint does not exist.
	ErrMintNotFound = errors.New("custody: mint not found")
	// ErrMintExists is returned when creating a mint that is already registered.
	ErrMintExists = errors.New("custody: mint already exists")
	// ErrMintMismatch is returned when two accounts hold different instruments.
	ErrMintMismatch = errors.New("custody: mint mismatch")
	// ErrNotAuthority is returned when the signer does not control the account or mint.
	ErrNotAuthority = errors.New("custody: signer is not the authority")
	// ErrInsufficientBalance is returned when a transfer source lacks the amount.
	ErrInsufficientBalance = errors.New("custody: insufficient balance")
	// ErrAccountNotEmpty is returned when closing an account that still holds units.
	ErrAccountNotEmpty = errors.New("custody: account not empty")
	// ErrInsufficientReserve is returned when a payer cannot cover a storage deposit.
	ErrInsufficientReserve = errors.New("custody: insufficient reserve")
	// ErrSupplyExceeded is returned when minting past a mint's cap.
	ErrSupplyExceeded = errors.New("custody: max supply exceeded")
	// ErrSelfTransfer is returned when source and destination are the same account.
	ErrSelfTransfer = errors.New("custody: source and destination are identical")
	// ErrZeroAddress is returned when an address argument is empty.
	ErrZeroAddress = errors.New("custody: zero address")
	// ErrOverflow is returned when a balance would exceed the uint64 range.
	ErrOverflow = errors.New("custody: amount overflow")
)
