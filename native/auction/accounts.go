package auction

// ExhibitAccounts are the account references supplied with Exhibit. The
// caller is the exhibitor and must control both asset accounts.
type ExhibitAccounts struct {
	// AssetSource holds the single unit being exhibited.
	AssetSource [20]byte
	// AssetEscrow is an empty account of the same mint that the program
	// takes over for the lifetime of the auction.
	AssetEscrow [20]byte
	// ExhibitorPayout receives the winning bid and fixes the payment mint.
	ExhibitorPayout [20]byte
	// Auction is the slot the record is written to.
	Auction [32]byte
}

// BidAccounts are the account references supplied with Bid. The Highest*
// fields must repeat what the record currently stores.
type BidAccounts struct {
	BidEscrow        [20]byte
	BidSource        [20]byte
	HighestBidder    [20]byte
	HighestBidEscrow [20]byte
	HighestBidRefund [20]byte
	Auction          [32]byte
}

// CancelAccounts are the account references supplied with Cancel.
type CancelAccounts struct {
	// AssetReturn receives the asset back and must be controlled by the exhibitor.
	AssetReturn [20]byte
	AssetEscrow [20]byte
	Auction     [32]byte
}

// CloseAccounts are the account references supplied with Close. Everything
// except WinnerAssetReceiver must match the record.
type CloseAccounts struct {
	Exhibitor           [20]byte
	AssetEscrow         [20]byte
	ExhibitorPayout     [20]byte
	WinningBidder       [20]byte
	WinningBidEscrow    [20]byte
	WinnerAssetReceiver [20]byte
	Auction             [32]byte
}
