package rpc

import (
	"auctionhouse/core"
	"auctionhouse/core/types"
	"auctionhouse/native/auction"
	"auctionhouse/native/custody"
)

// Method names served at /rpc.
const (
	MethodExhibit      = "auction_exhibit"
	MethodBid          = "auction_bid"
	MethodCancel       = "auction_cancel"
	MethodClose        = "auction_close"
	MethodGet          = "auction_get"
	MethodStatus       = "auction_status"
	MethodEvents       = "auction_events"
	MethodCreateMint   = "custody_createMint"
	MethodOpenAccount  = "custody_openAccount"
	MethodMintTo       = "custody_mintTo"
	MethodTransfer     = "custody_transfer"
	MethodCloseAccount = "custody_closeAccount"
	MethodAccount      = "custody_account"
	MethodReserve      = "custody_reserve"
)

// Payloads of the signed methods. Identities use the auc prefix, accounts and
// mints the acct prefix, auction slots are 32-byte hex strings.

type ExhibitParams struct {
	AssetSource     string `json:"assetSource"`
	AssetEscrow     string `json:"assetEscrow"`
	ExhibitorPayout string `json:"exhibitorPayout"`
	Auction         string `json:"auction"`
	Price           uint64 `json:"price"`
	Duration        uint64 `json:"duration"`
}

type BidParams struct {
	BidEscrow        string `json:"bidEscrow"`
	BidSource        string `json:"bidSource"`
	HighestBidder    string `json:"highestBidder"`
	HighestBidEscrow string `json:"highestBidEscrow"`
	HighestBidRefund string `json:"highestBidRefund"`
	Auction          string `json:"auction"`
	Price            uint64 `json:"price"`
}

type CancelParams struct {
	AssetReturn string `json:"assetReturn"`
	AssetEscrow string `json:"assetEscrow"`
	Auction     string `json:"auction"`
}

type CloseParams struct {
	Exhibitor           string `json:"exhibitor"`
	AssetEscrow         string `json:"assetEscrow"`
	ExhibitorPayout     string `json:"exhibitorPayout"`
	WinningBidder       string `json:"winningBidder"`
	WinningBidEscrow    string `json:"winningBidEscrow"`
	WinnerAssetReceiver string `json:"winnerAssetReceiver"`
	Auction             string `json:"auction"`
}

type CreateMintParams struct {
	Mint      string `json:"mint"`
	Decimals  uint8  `json:"decimals"`
	MaxSupply uint64 `json:"maxSupply"`
}

type OpenAccountParams struct {
	Address   string `json:"address"`
	Mint      string `json:"mint"`
	Authority string `json:"authority,omitempty"`
}

type MintToParams struct {
	Mint    string `json:"mint"`
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
}

type TransferParams struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

type CloseAccountParams struct {
	Account     string `json:"account"`
	Destination string `json:"destination,omitempty"`
}

type AuctionIDParams struct {
	Auction string `json:"auction"`
}

type AddressParams struct {
	Address string `json:"address"`
}

type EventsParams struct {
	Limit int `json:"limit,omitempty"`
}

// AuctionJSON is the wire form of an auction record.
type AuctionJSON struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	Exhibitor       string `json:"exhibitor"`
	ExhibitorPayout string `json:"exhibitorPayout"`
	AssetEscrow     string `json:"assetEscrow"`
	HighestBidder   string `json:"highestBidder"`
	BidEscrow       string `json:"bidEscrow"`
	BidRefund       string `json:"bidRefund"`
	Price           uint64 `json:"price"`
	EndAt           int64  `json:"endAt"`
	AssetMint       string `json:"assetMint"`
	PaymentMint     string `json:"paymentMint"`
	Deposit         uint64 `json:"deposit"`
	CreatedAt       int64  `json:"createdAt"`
	BidCount        uint32 `json:"bidCount"`
	HasBid          bool   `json:"hasBid"`
}

type AccountJSON struct {
	Address   string `json:"address"`
	Mint      string `json:"mint"`
	Authority string `json:"authority"`
	Amount    uint64 `json:"amount"`
	Deposit   uint64 `json:"deposit"`
}

type MintJSON struct {
	ID        string `json:"id"`
	Authority string `json:"authority"`
	Decimals  uint8  `json:"decimals"`
	Supply    uint64 `json:"supply"`
	MaxSupply uint64 `json:"maxSupply"`
}

type EventJSON struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

type ReceiptJSON struct {
	Operation string       `json:"operation"`
	Caller    string       `json:"caller"`
	Nonce     uint64       `json:"nonce"`
	Auction   *AuctionJSON `json:"auction,omitempty"`
	Account   *AccountJSON `json:"account,omitempty"`
	Mint      *MintJSON    `json:"mint,omitempty"`
	Events    []EventJSON  `json:"events"`
}

type StatusJSON struct {
	Auction string `json:"auction"`
	Status  string `json:"status"`
}

type ReserveJSON struct {
	Identity string `json:"identity"`
	Reserve  uint64 `json:"reserve"`
	Nonce    uint64 `json:"nonce"`
}

func formatAuction(a *auction.Auction) *AuctionJSON {
	if a == nil {
		return nil
	}
	return &AuctionJSON{
		ID:              FormatAuctionID(a.ID),
		Status:          a.Status.String(),
		Exhibitor:       formatIdentity(a.Exhibitor),
		ExhibitorPayout: formatAccount(a.ExhibitorPayout),
		AssetEscrow:     formatAccount(a.AssetEscrow),
		HighestBidder:   formatIdentity(a.HighestBidder),
		BidEscrow:       formatAccount(a.BidEscrow),
		BidRefund:       formatAccount(a.BidRefund),
		Price:           a.Price,
		EndAt:           a.EndAt,
		AssetMint:       formatAccount(a.AssetMint),
		PaymentMint:     formatAccount(a.PaymentMint),
		Deposit:         a.Deposit,
		CreatedAt:       a.CreatedAt,
		BidCount:        a.BidCount,
		HasBid:          a.HasBid(),
	}
}

func formatCustodyAccount(acc *custody.Account) *AccountJSON {
	if acc == nil {
		return nil
	}
	return &AccountJSON{
		Address:   formatAccount(acc.Address),
		Mint:      formatAccount(acc.Mint),
		Authority: formatIdentity(acc.Authority),
		Amount:    acc.Amount,
		Deposit:   acc.Deposit,
	}
}

func formatMint(m *custody.Mint) *MintJSON {
	if m == nil {
		return nil
	}
	return &MintJSON{
		ID:        formatAccount(m.ID),
		Authority: formatIdentity(m.Authority),
		Decimals:  m.Decimals,
		Supply:    m.Supply,
		MaxSupply: m.MaxSupply,
	}
}

func formatEvents(evts []*types.Event) []EventJSON {
	out := make([]EventJSON, 0, len(evts))
	for _, evt := range evts {
		if evt == nil {
			continue
		}
		out = append(out, EventJSON{Type: evt.Type, Attributes: evt.Attributes})
	}
	return out
}

func formatReceipt(r *core.Receipt) *ReceiptJSON {
	return &ReceiptJSON{
		Operation: r.Operation,
		Caller:    formatIdentity(r.Caller),
		Nonce:     r.Nonce,
		Auction:   formatAuction(r.Auction),
		Account:   formatCustodyAccount(r.Account),
		Mint:      formatMint(r.Mint),
		Events:    formatEvents(r.Events),
	}
}
