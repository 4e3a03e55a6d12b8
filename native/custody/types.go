package custody

// Mint describes an instrument. A mint with MaxSupply of one is a
// non-fungible asset; zero means uncapped.
type Mint struct {
	ID        [20]byte
	Authority [20]byte
	Decimals  uint8
	Supply    uint64
	MaxSupply uint64
}

// NonFungible reports whether the mint can only ever hold a single unit.
func (m *Mint) NonFungible() bool {
	return m != nil && m.MaxSupply == 1
}

// Clone returns a copy of the mint.
func (m *Mint) Clone() *Mint {
	if m == nil {
		return nil
	}
	clone := *m
	return &clone
}

// Account is a custody account holding units of a single mint. Authority is
// the only identity that may move units out of it, reassign it or close it.
// Deposit is the storage deposit returned to the close destination.
type Account struct {
	Address   [20]byte
	Mint      [20]byte
	Authority [20]byte
	Amount    uint64
	Deposit   uint64
}

// Clone returns a copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

// ControlledBy reports whether id is the account's current authority.
func (a *Account) ControlledBy(id [20]byte) bool {
	return a != nil && a.Authority == id
}
