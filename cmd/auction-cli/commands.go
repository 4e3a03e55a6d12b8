package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"auctionhouse/cmd/internal/passphrase"
	"auctionhouse/crypto"
	"auctionhouse/rpc"
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func required(values map[string]string) error {
	var missing []string
	for name, value := range values {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, "-"+name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
	}
	return nil
}

func runKeygen(c *cli, args []string) error {
	fs := newFlagSet("keygen")
	out := fs.String("out", "", "Keystore file to create")
	light := fs.Bool("light", false, "Use light scrypt parameters (local testing only)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"out": *out}); err != nil {
		return err
	}
	pass, err := passphrase.NewSource(passphraseEnv, "new keystore").Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	params := crypto.StandardKeystore
	if *light {
		params = crypto.LightKeystore
	}
	if err := crypto.SaveToKeystore(*out, key, pass, params); err != nil {
		return err
	}
	return c.print(map[string]string{"identity": key.PubKey().Address().String(), "keystore": *out})
}

func runAddress(c *cli, args []string) error {
	if err := newFlagSet("address").Parse(args); err != nil {
		return err
	}
	key, err := c.signer()
	if err != nil {
		return err
	}
	return c.print(map[string]string{"identity": key.PubKey().Address().String()})
}

// runNewAccount prints a fresh random account address for open-account.
func runNewAccount(c *cli, args []string) error {
	if err := newFlagSet("new-account").Parse(args); err != nil {
		return err
	}
	seed, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	addr := crypto.AddressFromRaw(crypto.AccountPrefix, seed.PubKey().Address().Raw())
	return c.print(map[string]string{"account": addr.String()})
}

func runCreateMint(c *cli, args []string) error {
	fs := newFlagSet("create-mint")
	mint := fs.String("mint", "", "Mint address (acct prefix)")
	decimals := fs.Uint("decimals", 0, "Display decimals")
	maxSupply := fs.Uint64("max-supply", 0, "Supply cap; 1 creates a non-fungible mint, 0 means uncapped")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"mint": *mint}); err != nil {
		return err
	}
	if *decimals > 255 {
		return fmt.Errorf("decimals must be at most 255")
	}
	return c.submit(rpc.MethodCreateMint, rpc.CreateMintParams{Mint: *mint, Decimals: uint8(*decimals), MaxSupply: *maxSupply})
}

func runOpenAccount(c *cli, args []string) error {
	fs := newFlagSet("open-account")
	address := fs.String("address", "", "Account address to open")
	mint := fs.String("mint", "", "Mint the account holds")
	authority := fs.String("authority", "", "Controlling identity (defaults to the signer)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"address": *address, "mint": *mint}); err != nil {
		return err
	}
	return c.submit(rpc.MethodOpenAccount, rpc.OpenAccountParams{Address: *address, Mint: *mint, Authority: *authority})
}

func runMintTo(c *cli, args []string) error {
	fs := newFlagSet("mint")
	mint := fs.String("mint", "", "Mint to issue from")
	account := fs.String("account", "", "Receiving account")
	amount := fs.Uint64("amount", 0, "Units to issue")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"mint": *mint, "account": *account}); err != nil {
		return err
	}
	return c.submit(rpc.MethodMintTo, rpc.MintToParams{Mint: *mint, Account: *account, Amount: *amount})
}

func runTransfer(c *cli, args []string) error {
	fs := newFlagSet("transfer")
	from := fs.String("from", "", "Source account")
	to := fs.String("to", "", "Destination account")
	amount := fs.Uint64("amount", 0, "Units to move")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"from": *from, "to": *to}); err != nil {
		return err
	}
	return c.submit(rpc.MethodTransfer, rpc.TransferParams{From: *from, To: *to, Amount: *amount})
}

func runCloseAccount(c *cli, args []string) error {
	fs := newFlagSet("close-account")
	account := fs.String("account", "", "Empty account to close")
	destination := fs.String("destination", "", "Identity receiving the deposit (defaults to the signer)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"account": *account}); err != nil {
		return err
	}
	return c.submit(rpc.MethodCloseAccount, rpc.CloseAccountParams{Account: *account, Destination: *destination})
}

func runExhibit(c *cli, args []string) error {
	fs := newFlagSet("exhibit")
	auctionID := fs.String("auction", "", "Auction slot (32-byte hex)")
	source := fs.String("asset-source", "", "Account holding the asset")
	escrow := fs.String("asset-escrow", "", "Empty account that will hold the asset")
	payout := fs.String("payout", "", "Account receiving the winning bid")
	price := fs.Uint64("price", 0, "Opening price")
	duration := fs.Uint64("duration", 0, "Auction length in seconds")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{
		"auction": *auctionID, "asset-source": *source, "asset-escrow": *escrow, "payout": *payout,
	}); err != nil {
		return err
	}
	return c.submit(rpc.MethodExhibit, rpc.ExhibitParams{
		AssetSource:     *source,
		AssetEscrow:     *escrow,
		ExhibitorPayout: *payout,
		Auction:         *auctionID,
		Price:           *price,
		Duration:        *duration,
	})
}

func (c *cli) fetchAuction(id string) (*rpc.AuctionJSON, error) {
	var rec rpc.AuctionJSON
	if err := c.call(rpc.MethodGet, rpc.AuctionIDParams{Auction: id}, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// runBid fills the displaced bidder's accounts from the current record.
func runBid(c *cli, args []string) error {
	fs := newFlagSet("bid")
	auctionID := fs.String("auction", "", "Auction slot (32-byte hex)")
	source := fs.String("bid-source", "", "Account funding the bid")
	escrow := fs.String("bid-escrow", "", "Empty account that will hold the bid")
	price := fs.Uint64("price", 0, "Bid amount")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"auction": *auctionID, "bid-source": *source, "bid-escrow": *escrow}); err != nil {
		return err
	}
	rec, err := c.fetchAuction(*auctionID)
	if err != nil {
		return err
	}
	return c.submit(rpc.MethodBid, rpc.BidParams{
		BidEscrow:        *escrow,
		BidSource:        *source,
		HighestBidder:    rec.HighestBidder,
		HighestBidEscrow: rec.BidEscrow,
		HighestBidRefund: rec.BidRefund,
		Auction:          *auctionID,
		Price:            *price,
	})
}

func runCancel(c *cli, args []string) error {
	fs := newFlagSet("cancel")
	auctionID := fs.String("auction", "", "Auction slot (32-byte hex)")
	assetReturn := fs.String("asset-return", "", "Account receiving the asset back")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"auction": *auctionID, "asset-return": *assetReturn}); err != nil {
		return err
	}
	rec, err := c.fetchAuction(*auctionID)
	if err != nil {
		return err
	}
	return c.submit(rpc.MethodCancel, rpc.CancelParams{
		AssetReturn: *assetReturn,
		AssetEscrow: rec.AssetEscrow,
		Auction:     *auctionID,
	})
}

func runClose(c *cli, args []string) error {
	fs := newFlagSet("close")
	auctionID := fs.String("auction", "", "Auction slot (32-byte hex)")
	receiver := fs.String("receiver", "", "Winner's account receiving the asset")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"auction": *auctionID, "receiver": *receiver}); err != nil {
		return err
	}
	rec, err := c.fetchAuction(*auctionID)
	if err != nil {
		return err
	}
	return c.submit(rpc.MethodClose, rpc.CloseParams{
		Exhibitor:           rec.Exhibitor,
		AssetEscrow:         rec.AssetEscrow,
		ExhibitorPayout:     rec.ExhibitorPayout,
		WinningBidder:       rec.HighestBidder,
		WinningBidEscrow:    rec.BidEscrow,
		WinnerAssetReceiver: *receiver,
		Auction:             *auctionID,
	})
}

func runGet(c *cli, args []string) error {
	fs := newFlagSet("get")
	auctionID := fs.String("auction", "", "Auction slot (32-byte hex)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"auction": *auctionID}); err != nil {
		return err
	}
	rec, err := c.fetchAuction(*auctionID)
	if err != nil {
		return err
	}
	return c.print(rec)
}

func runStatus(c *cli, args []string) error {
	fs := newFlagSet("status")
	auctionID := fs.String("auction", "", "Auction slot (32-byte hex)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"auction": *auctionID}); err != nil {
		return err
	}
	var status rpc.StatusJSON
	if err := c.call(rpc.MethodStatus, rpc.AuctionIDParams{Auction: *auctionID}, &status); err != nil {
		return err
	}
	return c.print(status)
}

func runEvents(c *cli, args []string) error {
	fs := newFlagSet("events")
	limit := fs.Int("limit", 0, "Return only the most recent N events")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var evts []rpc.EventJSON
	if err := c.call(rpc.MethodEvents, rpc.EventsParams{Limit: *limit}, &evts); err != nil {
		return err
	}
	return c.print(evts)
}

func runAccount(c *cli, args []string) error {
	fs := newFlagSet("account")
	address := fs.String("address", "", "Account address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"address": *address}); err != nil {
		return err
	}
	var acc rpc.AccountJSON
	if err := c.call(rpc.MethodAccount, rpc.AddressParams{Address: *address}, &acc); err != nil {
		return err
	}
	return c.print(acc)
}

func runReserve(c *cli, args []string) error {
	fs := newFlagSet("reserve")
	identity := fs.String("identity", "", "Identity to inspect (defaults to the signer)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id := strings.TrimSpace(*identity)
	if id == "" {
		key, err := c.signer()
		if err != nil {
			return err
		}
		id = key.PubKey().Address().String()
	}
	var reserve rpc.ReserveJSON
	if err := c.call(rpc.MethodReserve, rpc.AddressParams{Address: id}, &reserve); err != nil {
		return err
	}
	return c.print(reserve)
}
