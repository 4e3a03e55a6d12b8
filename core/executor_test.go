package core

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"auctionhouse/core/events"
	"auctionhouse/core/state"
	"auctionhouse/native/auction"
	"auctionhouse/native/custody"
	"auctionhouse/storage"
)

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

var (
	issuer    = newTestAddress(0x0F)
	exhibitor = newTestAddress(0x01)
	bidder    = newTestAddress(0x02)
	keeper    = newTestAddress(0x03)
	slot      = [32]byte{0x5A}

	assetMint   = newTestAddress(0xA0)
	paymentMint = newTestAddress(0xB0)

	assetSource = newTestAddress(0x40)
	assetEscrow = newTestAddress(0x41)
	payout      = newTestAddress(0x42)
	bidSource   = newTestAddress(0x43)
	bidEscrow   = newTestAddress(0x44)
	receiver    = newTestAddress(0x45)
)

type harness struct {
	t        *testing.T
	exec     *Executor
	recorder *events.Recorder
	now      int64
	nonces   map[[20]byte]uint64
}

func newHarness(t *testing.T, db storage.Database) *harness {
	t.Helper()
	h := &harness{t: t, recorder: events.NewRecorder(0), nonces: make(map[[20]byte]uint64)}
	h.exec = NewExecutor(db, Options{
		ProgramID:      []byte("executor-test"),
		RecordDeposit:  5,
		AccountDeposit: 2,
		Now:            func() int64 { return h.now },
		Emitter:        h.recorder,
	})
	return h
}

func (h *harness) header(caller [20]byte) Header {
	nonce := h.nonces[caller]
	h.nonces[caller] = nonce + 1
	return Header{Caller: caller, Nonce: nonce}
}

func (h *harness) apply(op Operation) (*Receipt, error) {
	return h.exec.Apply(context.Background(), op)
}

func (h *harness) mustApply(op Operation) *Receipt {
	h.t.Helper()
	receipt, err := h.apply(op)
	require.NoError(h.t, err, op.Name())
	return receipt
}

// setup funds identities and opens every account an auction needs. payer
// covers the storage deposits of the exhibitor's accounts.
func (h *harness) setup(reserves map[[20]byte]uint64, payer [20]byte) {
	h.t.Helper()
	applied, err := h.exec.InitGenesis(reserves)
	require.NoError(h.t, err)
	require.True(h.t, applied)

	h.mustApply(CreateMintOp{Header: h.header(issuer), Mint: assetMint, MaxSupply: 1})
	h.mustApply(CreateMintOp{Header: h.header(issuer), Mint: paymentMint, Decimals: 6})
	for _, acc := range []struct {
		addr, mint [20]byte
	}{
		{assetSource, assetMint},
		{assetEscrow, assetMint},
		{payout, paymentMint},
	} {
		h.mustApply(OpenAccountOp{Header: h.header(payer), Address: acc.addr, Mint: acc.mint, Authority: exhibitor})
	}
	h.mustApply(OpenAccountOp{Header: h.header(bidder), Address: bidSource, Mint: paymentMint})
	h.mustApply(OpenAccountOp{Header: h.header(bidder), Address: bidEscrow, Mint: paymentMint})
	h.mustApply(OpenAccountOp{Header: h.header(bidder), Address: receiver, Mint: assetMint})
	h.mustApply(MintToOp{Header: h.header(issuer), Mint: assetMint, Account: assetSource, Amount: 1})
	h.mustApply(MintToOp{Header: h.header(issuer), Mint: paymentMint, Account: bidSource, Amount: 1_000})
}

func (h *harness) exhibit() *Receipt {
	h.t.Helper()
	return h.mustApply(ExhibitOp{
		Header: h.header(exhibitor),
		Accounts: auction.ExhibitAccounts{
			AssetSource:     assetSource,
			AssetEscrow:     assetEscrow,
			ExhibitorPayout: payout,
			Auction:         slot,
		},
		Price:    100,
		Duration: 60,
	})
}

func (h *harness) bid(price uint64) (*Receipt, error) {
	rec, err := h.exec.Auction(slot)
	require.NoError(h.t, err)
	return h.apply(BidOp{
		Header: h.header(bidder),
		Accounts: auction.BidAccounts{
			BidEscrow:        bidEscrow,
			BidSource:        bidSource,
			HighestBidder:    rec.HighestBidder,
			HighestBidEscrow: rec.BidEscrow,
			HighestBidRefund: rec.BidRefund,
			Auction:          slot,
		},
		Price: price,
	})
}

func (h *harness) closeOp(caller [20]byte) CloseOp {
	return CloseOp{
		Header: h.header(caller),
		Accounts: auction.CloseAccounts{
			Exhibitor:           exhibitor,
			AssetEscrow:         assetEscrow,
			ExhibitorPayout:     payout,
			WinningBidder:       bidder,
			WinningBidEscrow:    bidEscrow,
			WinnerAssetReceiver: receiver,
			Auction:             slot,
		},
	}
}

func (h *harness) amount(addr [20]byte) uint64 {
	h.t.Helper()
	acc, err := h.exec.Account(addr)
	require.NoError(h.t, err)
	return acc.Amount
}

func defaultReserves() map[[20]byte]uint64 {
	return map[[20]byte]uint64{exhibitor: 100, bidder: 100, keeper: 100}
}

func TestExecutorAuctionLifecycle(t *testing.T) {
	h := newHarness(t, storage.NewMemDB())
	h.setup(defaultReserves(), exhibitor)

	receipt := h.exhibit()
	require.Equal(t, OpExhibit, receipt.Operation)
	require.NotNil(t, receipt.Auction)
	require.Len(t, receipt.Events, 1)
	require.Equal(t, auction.EventTypeAuctionExhibited, receipt.Events[0].Type)

	h.now = 30
	receipt, err := h.bid(250)
	require.NoError(t, err)
	require.Equal(t, bidder, receipt.Auction.HighestBidder)

	h.now = 60
	receipt = h.mustApply(h.closeOp(keeper))
	require.Equal(t, auction.StatusTerminated, receipt.Auction.Status)
	require.Equal(t, uint64(250), receipt.Auction.Price)

	require.Equal(t, uint64(1), h.amount(receiver))
	require.Equal(t, uint64(250), h.amount(payout))
	require.Equal(t, uint64(750), h.amount(bidSource))
	status, err := h.exec.Status(slot)
	require.NoError(t, err)
	require.Equal(t, auction.StatusTerminated, status)

	var types []string
	for _, evt := range h.recorder.Events() {
		types = append(types, evt.Type)
	}
	require.Equal(t, []string{
		auction.EventTypeAuctionExhibited,
		auction.EventTypeAuctionBid,
		auction.EventTypeAuctionSettled,
	}, types)
}

func TestExecutorRejectedOperationConsumesNonce(t *testing.T) {
	h := newHarness(t, storage.NewMemDB())
	h.setup(defaultReserves(), exhibitor)
	h.exhibit()
	before := len(h.recorder.Events())

	_, err := h.bid(100)
	require.ErrorIs(t, err, auction.ErrPriceTooLow)
	require.Len(t, h.recorder.Events(), before)
	require.Equal(t, uint64(1_000), h.amount(bidSource))

	nonce, err := h.exec.Nonce(bidder)
	require.NoError(t, err)
	require.Equal(t, h.nonces[bidder], nonce)

	_, err = h.bid(150)
	require.NoError(t, err)
}

func TestExecutorNonceMismatch(t *testing.T) {
	h := newHarness(t, storage.NewMemDB())
	_, err := h.apply(CreateMintOp{Header: Header{Caller: issuer, Nonce: 3}, Mint: assetMint, MaxSupply: 1})
	require.ErrorIs(t, err, ErrNonceMismatch)

	nonce, err := h.exec.Nonce(issuer)
	require.NoError(t, err)
	require.Zero(t, nonce)
	_, err = h.exec.Mint(assetMint)
	require.ErrorIs(t, err, custody.ErrMintNotFound)

	_, err = h.apply(CreateMintOp{Header: Header{}, Mint: assetMint})
	require.ErrorIs(t, err, ErrMissingCaller)
	_, err = h.apply(nil)
	require.ErrorIs(t, err, ErrNilOperation)
}

func TestExecutorRevertsPartialSettlement(t *testing.T) {
	h := newHarness(t, storage.NewMemDB())
	reserves := defaultReserves()
	reserves[exhibitor] = math.MaxUint64
	h.setup(reserves, keeper)
	h.exhibit()
	h.now = 10
	_, err := h.bid(300)
	require.NoError(t, err)
	before := len(h.recorder.Events())

	h.now = 60
	_, err = h.apply(h.closeOp(keeper))
	require.ErrorIs(t, err, custody.ErrOverflow)

	require.Equal(t, uint64(1), h.amount(assetEscrow), "asset transfer reverted")
	require.Zero(t, h.amount(receiver))
	require.Equal(t, uint64(300), h.amount(bidEscrow), "payment release reverted")
	require.Zero(t, h.amount(payout))
	rec, err := h.exec.Auction(slot)
	require.NoError(t, err)
	require.Equal(t, bidder, rec.HighestBidder)
	require.Len(t, h.recorder.Events(), before)
}

type failingDB struct {
	*storage.MemDB
	fail bool
}

func (db *failingDB) NewBatch() storage.Batch {
	return &failingBatch{Batch: db.MemDB.NewBatch(), db: db}
}

type failingBatch struct {
	storage.Batch
	db *failingDB
}

func (b *failingBatch) Write() error {
	if b.db.fail {
		return errors.New("disk full")
	}
	return b.Batch.Write()
}

func TestExecutorCommitFailureLeavesNoTrace(t *testing.T) {
	db := &failingDB{MemDB: storage.NewMemDB()}
	h := newHarness(t, db)
	h.setup(defaultReserves(), exhibitor)

	db.fail = true
	_, err := h.apply(ExhibitOp{
		Header: h.header(exhibitor),
		Accounts: auction.ExhibitAccounts{
			AssetSource:     assetSource,
			AssetEscrow:     assetEscrow,
			ExhibitorPayout: payout,
			Auction:         slot,
		},
		Price:    100,
		Duration: 60,
	})
	require.ErrorContains(t, err, "disk full")
	require.Empty(t, filterType(h.recorder, auction.EventTypeAuctionExhibited))

	db.fail = false
	status, err := h.exec.Status(slot)
	require.NoError(t, err)
	require.Equal(t, auction.StatusUnclaimed, status)
	require.Equal(t, uint64(1), h.amount(assetSource))
	nonce, err := h.exec.Nonce(exhibitor)
	require.NoError(t, err)
	require.Equal(t, h.nonces[exhibitor]-1, nonce)
}

func filterType(rec *events.Recorder, typ string) []string {
	var out []string
	for _, evt := range rec.Events() {
		if evt.Type == typ {
			out = append(out, evt.Type)
		}
	}
	return out
}

func TestExecutorGenesisAppliedOnce(t *testing.T) {
	db := storage.NewMemDB()
	h := newHarness(t, db)
	applied, err := h.exec.InitGenesis(map[[20]byte]uint64{keeper: 40})
	require.NoError(t, err)
	require.True(t, applied)

	reopened := newHarness(t, db)
	applied, err = reopened.exec.InitGenesis(map[[20]byte]uint64{keeper: 40})
	require.NoError(t, err)
	require.False(t, applied)

	reserve, err := reopened.exec.Reserve(keeper)
	require.NoError(t, err)
	require.Equal(t, uint64(40), reserve)
}

func TestExecutorHonoursCancelledContext(t *testing.T) {
	h := newHarness(t, storage.NewMemDB())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.exec.Apply(ctx, CreateMintOp{Header: Header{Caller: issuer}, Mint: assetMint, MaxSupply: 1})
	require.ErrorIs(t, err, context.Canceled)
}

func TestExecutorSchemaVersion(t *testing.T) {
	db := storage.NewMemDB()
	h := newHarness(t, db)
	require.NoError(t, h.exec.EnsureSchema(false))
	require.NoError(t, newHarness(t, db).exec.EnsureSchema(false), "stamped directory reopens")

	mgr := state.NewManager(db)
	require.NoError(t, mgr.SetSchemaVersion(state.SchemaVersion+1))
	require.NoError(t, mgr.Commit())

	err := newHarness(t, db).exec.EnsureSchema(false)
	require.ErrorIs(t, err, state.ErrSchemaVersionMismatch)
	require.NoError(t, newHarness(t, db).exec.EnsureSchema(true))
}
