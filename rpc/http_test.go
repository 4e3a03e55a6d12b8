package rpc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"auctionhouse/core"
	"auctionhouse/core/events"
	"auctionhouse/crypto"
	"auctionhouse/native/auction"
	"auctionhouse/storage"
)

func newTestAccount(fill byte) string {
	var raw [20]byte
	for i := range raw {
		raw[i] = fill
	}
	return formatAccount(raw)
}

var (
	assetMint   = newTestAccount(0xA0)
	paymentMint = newTestAccount(0xB0)
	assetSource = newTestAccount(0x40)
	assetEscrow = newTestAccount(0x41)
	payout      = newTestAccount(0x42)
	bidSource   = newTestAccount(0x43)
	bidEscrow   = newTestAccount(0x44)
	receiver    = newTestAccount(0x45)
	slot        = FormatAuctionID([32]byte{0x77})
)

type rpcFixture struct {
	t         *testing.T
	client    *Client
	recorder  *events.Recorder
	now       int64
	issuer    *crypto.PrivateKey
	exhibitor *crypto.PrivateKey
	bidder    *crypto.PrivateKey
}

func mustKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return key
}

func identityOf(key *crypto.PrivateKey) string {
	return key.PubKey().Address().String()
}

func newRPCFixture(t *testing.T, cfg ServerConfig) *rpcFixture {
	t.Helper()
	f := &rpcFixture{
		t:         t,
		recorder:  events.NewRecorder(0),
		issuer:    mustKey(t),
		exhibitor: mustKey(t),
		bidder:    mustKey(t),
	}
	exec := core.NewExecutor(storage.NewMemDB(), core.Options{
		ProgramID:      []byte("rpc-test"),
		RecordDeposit:  5,
		AccountDeposit: 2,
		Now:            func() int64 { return f.now },
		Emitter:        f.recorder,
	})
	applied, err := exec.InitGenesis(map[[20]byte]uint64{
		f.exhibitor.PubKey().Address().Raw(): 100,
		f.bidder.PubKey().Address().Raw():    100,
	})
	require.NoError(t, err)
	require.True(t, applied)

	cfg.Events = f.recorder
	ts := httptest.NewServer(NewServer(exec, cfg).Handler())
	t.Cleanup(ts.Close)
	f.client = NewClient(ts.URL, ts.Client())
	return f
}

func (f *rpcFixture) submit(key *crypto.PrivateKey, method string, payload interface{}) (*ReceiptJSON, error) {
	return f.client.SubmitNext(context.Background(), key, method, payload)
}

func (f *rpcFixture) mustSubmit(key *crypto.PrivateKey, method string, payload interface{}) *ReceiptJSON {
	f.t.Helper()
	receipt, err := f.submit(key, method, payload)
	require.NoError(f.t, err, method)
	return receipt
}

func (f *rpcFixture) setup() {
	f.t.Helper()
	f.mustSubmit(f.issuer, MethodCreateMint, CreateMintParams{Mint: assetMint, MaxSupply: 1})
	f.mustSubmit(f.issuer, MethodCreateMint, CreateMintParams{Mint: paymentMint, Decimals: 6})
	for _, acc := range []OpenAccountParams{
		{Address: assetSource, Mint: assetMint},
		{Address: assetEscrow, Mint: assetMint},
		{Address: payout, Mint: paymentMint},
	} {
		f.mustSubmit(f.exhibitor, MethodOpenAccount, acc)
	}
	for _, acc := range []OpenAccountParams{
		{Address: bidSource, Mint: paymentMint},
		{Address: bidEscrow, Mint: paymentMint},
		{Address: receiver, Mint: assetMint},
	} {
		f.mustSubmit(f.bidder, MethodOpenAccount, acc)
	}
	f.mustSubmit(f.issuer, MethodMintTo, MintToParams{Mint: assetMint, Account: assetSource, Amount: 1})
	f.mustSubmit(f.issuer, MethodMintTo, MintToParams{Mint: paymentMint, Account: bidSource, Amount: 1_000})
}

func (f *rpcFixture) exhibit() *ReceiptJSON {
	f.t.Helper()
	return f.mustSubmit(f.exhibitor, MethodExhibit, ExhibitParams{
		AssetSource:     assetSource,
		AssetEscrow:     assetEscrow,
		ExhibitorPayout: payout,
		Auction:         slot,
		Price:           100,
		Duration:        60,
	})
}

func (f *rpcFixture) auction() *AuctionJSON {
	f.t.Helper()
	var out AuctionJSON
	require.NoError(f.t, f.client.Call(context.Background(), MethodGet, AuctionIDParams{Auction: slot}, &out))
	return &out
}

func (f *rpcFixture) bidParams(price uint64) BidParams {
	current := f.auction()
	return BidParams{
		BidEscrow:        bidEscrow,
		BidSource:        bidSource,
		HighestBidder:    current.HighestBidder,
		HighestBidEscrow: current.BidEscrow,
		HighestBidRefund: current.BidRefund,
		Auction:          slot,
		Price:            price,
	}
}

func (f *rpcFixture) amount(account string) uint64 {
	f.t.Helper()
	var out AccountJSON
	require.NoError(f.t, f.client.Call(context.Background(), MethodAccount, AddressParams{Address: account}, &out))
	return out.Amount
}

func requireRPCCode(t *testing.T, err error, code int) {
	t.Helper()
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr), "expected rpc error, got %v", err)
	require.Equal(t, code, rpcErr.Code, rpcErr.Error())
}

func TestAuctionLifecycleOverRPC(t *testing.T) {
	f := newRPCFixture(t, ServerConfig{})
	f.setup()

	receipt := f.exhibit()
	require.Equal(t, core.OpExhibit, receipt.Operation)
	require.Equal(t, identityOf(f.exhibitor), receipt.Caller)
	require.NotNil(t, receipt.Auction)
	require.Equal(t, "open", receipt.Auction.Status)
	require.Equal(t, int64(60), receipt.Auction.EndAt)
	require.False(t, receipt.Auction.HasBid)

	f.now = 20
	receipt = f.mustSubmit(f.bidder, MethodBid, f.bidParams(250))
	require.Equal(t, identityOf(f.bidder), receipt.Auction.HighestBidder)
	require.Equal(t, uint64(250), f.amount(bidEscrow))

	f.now = 60
	receipt = f.mustSubmit(f.bidder, MethodClose, CloseParams{
		Exhibitor:           identityOf(f.exhibitor),
		AssetEscrow:         assetEscrow,
		ExhibitorPayout:     payout,
		WinningBidder:       identityOf(f.bidder),
		WinningBidEscrow:    bidEscrow,
		WinnerAssetReceiver: receiver,
		Auction:             slot,
	})
	require.Equal(t, "terminated", receipt.Auction.Status)

	var status StatusJSON
	require.NoError(t, f.client.Call(context.Background(), MethodStatus, AuctionIDParams{Auction: slot}, &status))
	require.Equal(t, "terminated", status.Status)
	require.Equal(t, uint64(1), f.amount(receiver))
	require.Equal(t, uint64(250), f.amount(payout))

	var evts []EventJSON
	require.NoError(t, f.client.Call(context.Background(), MethodEvents, EventsParams{Limit: 3}, &evts))
	require.Len(t, evts, 3)
	require.Equal(t, auction.EventTypeAuctionExhibited, evts[0].Type)
	require.Equal(t, auction.EventTypeAuctionSettled, evts[2].Type)
}

func TestAuctionGetUnknownSlot(t *testing.T) {
	f := newRPCFixture(t, ServerConfig{})
	err := f.client.Call(context.Background(), MethodGet, AuctionIDParams{Auction: slot}, &AuctionJSON{})
	requireRPCCode(t, err, codeNotFound)

	var status StatusJSON
	require.NoError(t, f.client.Call(context.Background(), MethodStatus, AuctionIDParams{Auction: slot}, &status))
	require.Equal(t, "unclaimed", status.Status)
}

func TestBidBelowPriceIsRejected(t *testing.T) {
	f := newRPCFixture(t, ServerConfig{})
	f.setup()
	f.exhibit()

	_, err := f.submit(f.bidder, MethodBid, f.bidParams(100))
	requireRPCCode(t, err, codePriceTooLow)
	require.Equal(t, uint64(1_000), f.amount(bidSource))

	nonce, err := f.client.Nonce(context.Background(), identityOf(f.bidder))
	require.NoError(t, err)
	require.Equal(t, uint64(4), nonce, "rejected bid still consumes its nonce")
}

func TestCancelByStrangerIsForbidden(t *testing.T) {
	f := newRPCFixture(t, ServerConfig{})
	f.setup()
	f.exhibit()

	cancel := CancelParams{AssetReturn: assetSource, AssetEscrow: assetEscrow, Auction: slot}
	_, err := f.submit(f.bidder, MethodCancel, cancel)
	requireRPCCode(t, err, codeForbidden)

	receipt := f.mustSubmit(f.exhibitor, MethodCancel, cancel)
	require.Equal(t, "terminated", receipt.Auction.Status)
	require.Equal(t, uint64(1), f.amount(assetSource))
}

func TestCustodySetupMistakesAreClientErrors(t *testing.T) {
	f := newRPCFixture(t, ServerConfig{})
	f.setup()

	_, err := f.submit(f.exhibitor, MethodOpenAccount, OpenAccountParams{Address: payout, Mint: paymentMint})
	requireRPCCode(t, err, codeInvalidState)

	_, err = f.submit(f.issuer, MethodCreateMint, CreateMintParams{Mint: assetMint, MaxSupply: 1})
	requireRPCCode(t, err, codeInvalidState)

	_, err = f.submit(f.issuer, MethodMintTo, MintToParams{Mint: assetMint, Account: assetSource, Amount: 1})
	requireRPCCode(t, err, codeInsufficient)
	require.Equal(t, uint64(1), f.amount(assetSource))
}

func TestSignedRequestRejectsForgedCaller(t *testing.T) {
	f := newRPCFixture(t, ServerConfig{})
	params, err := Sign(f.bidder, MethodCreateMint, 0, CreateMintParams{Mint: assetMint, MaxSupply: 1})
	require.NoError(t, err)
	params.Caller = identityOf(f.issuer)

	err = f.client.Call(context.Background(), MethodCreateMint, params, nil)
	requireRPCCode(t, err, codeUnauthorized)
}

func TestSignedRequestNonceMismatch(t *testing.T) {
	f := newRPCFixture(t, ServerConfig{})
	_, err := f.client.Submit(context.Background(), f.issuer, MethodCreateMint, 7, CreateMintParams{Mint: assetMint, MaxSupply: 1})
	requireRPCCode(t, err, codeNonceMismatch)

	nonce, err := f.client.Nonce(context.Background(), identityOf(f.issuer))
	require.NoError(t, err)
	require.Zero(t, nonce)
}

func TestSignedRequestRejectsUnknownFields(t *testing.T) {
	f := newRPCFixture(t, ServerConfig{})
	payload := map[string]interface{}{"mint": assetMint, "maxSupply": 1, "supply": 5}
	_, err := f.client.Submit(context.Background(), f.issuer, MethodCreateMint, 0, payload)
	requireRPCCode(t, err, codeInvalidParams)
}

func TestSignedRequestRejectsWrongAddressKind(t *testing.T) {
	f := newRPCFixture(t, ServerConfig{})
	payload := CreateMintParams{Mint: identityOf(f.issuer), MaxSupply: 1}
	_, err := f.client.Submit(context.Background(), f.issuer, MethodCreateMint, 0, payload)
	requireRPCCode(t, err, codeInvalidParams)
}

func postRaw(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url+"/rpc", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestMalformedRequests(t *testing.T) {
	exec := core.NewExecutor(storage.NewMemDB(), core.Options{ProgramID: []byte("rpc-test")})
	ts := httptest.NewServer(NewServer(exec, ServerConfig{MaxBodyBytes: 256}).Handler())
	defer ts.Close()

	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"empty", "", http.StatusBadRequest},
		{"invalid json", "{", http.StatusBadRequest},
		{"unknown method", `{"jsonrpc":"2.0","method":"auction_fly","params":[],"id":1}`, http.StatusNotFound},
		{"wrong version", `{"jsonrpc":"1.0","method":"auction_get","params":[],"id":1}`, http.StatusBadRequest},
		{"missing params", `{"jsonrpc":"2.0","method":"auction_get","params":[],"id":1}`, http.StatusBadRequest},
		{"too large", `{"jsonrpc":"2.0","method":"` + strings.Repeat("x", 512) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postRaw(t, ts.URL, tc.body)
			require.Equal(t, tc.status, resp.StatusCode)
			require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		})
	}
}

func TestRequestIDHeader(t *testing.T) {
	exec := core.NewExecutor(storage.NewMemDB(), core.Options{ProgramID: []byte("rpc-test")})
	ts := httptest.NewServer(NewServer(exec, ServerConfig{}).Handler())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(requestIDHeader, "6f1c8a52-4c1e-4b8e-9a57-0c2f3f7b9d10")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "6f1c8a52-4c1e-4b8e-9a57-0c2f3f7b9d10", resp.Header.Get(requestIDHeader))

	req.Header.Set(requestIDHeader, "not-a-uuid")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.NotEqual(t, "not-a-uuid", resp.Header.Get(requestIDHeader))
	require.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

func TestServerRateLimitsClients(t *testing.T) {
	f := newRPCFixture(t, ServerConfig{RateLimitPerSecond: 0.001, RateLimitBurst: 1})
	var status StatusJSON
	require.NoError(t, f.client.Call(context.Background(), MethodStatus, AuctionIDParams{Auction: slot}, &status))
	err := f.client.Call(context.Background(), MethodStatus, AuctionIDParams{Auction: slot}, &status)
	requireRPCCode(t, err, codeRateLimited)
}

func TestRateLimiterRefillsAndSweeps(t *testing.T) {
	limiter := NewRateLimiter(1, 2)
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }

	require.True(t, limiter.Allow("a"))
	require.True(t, limiter.Allow("a"))
	require.False(t, limiter.Allow("a"))
	require.True(t, limiter.Allow("b"))

	now = now.Add(time.Second)
	require.True(t, limiter.Allow("a"))

	now = now.Add(2 * visitorIdleTTL)
	require.True(t, limiter.Allow("c"))
	limiter.mu.Lock()
	_, kept := limiter.visitors["a"]
	limiter.mu.Unlock()
	require.False(t, kept)

	require.True(t, NewRateLimiter(0, 0).Allow("anyone"))
}

func TestClientIDIgnoresHeadersFromUntrustedPeers(t *testing.T) {
	trust := newProxyTrust(false, nil)
	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	req.RemoteAddr = "10.0.0.9:5555"
	require.Equal(t, "10.0.0.9", trust.clientID(req))

	req.Header.Set("X-Forwarded-For", "192.0.2.1, 10.0.0.1")
	req.Header.Set("X-Real-IP", "198.51.100.7")
	require.Equal(t, "10.0.0.9", trust.clientID(req))
}

func TestClientIDHonorsTrustedProxies(t *testing.T) {
	trust := newProxyTrust(false, []string{"10.0.0.9", "172.16.0.0/12", "not-an-ip"})
	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	req.RemoteAddr = "10.0.0.9:5555"
	req.Header.Set("X-Forwarded-For", "192.0.2.1, 10.0.0.1")
	require.Equal(t, "192.0.2.1", trust.clientID(req))

	req.Header.Set("X-Real-IP", "198.51.100.7")
	require.Equal(t, "198.51.100.7", trust.clientID(req))

	req.RemoteAddr = "172.20.1.1:4000"
	require.Equal(t, "198.51.100.7", trust.clientID(req))

	req.RemoteAddr = "10.0.0.10:4000"
	require.Equal(t, "10.0.0.10", trust.clientID(req))

	all := newProxyTrust(true, nil)
	require.Equal(t, "198.51.100.7", all.clientID(req))
}

func TestServerRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	f := newRPCFixture(t, ServerConfig{RateLimitPerSecond: 0.001, RateLimitBurst: 1})
	post := func(forwarded string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, f.client.endpoint+"/rpc",
			strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"auction_status","params":[{"auction":"`+slot+`"}]}`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", forwarded)
		resp, err := f.client.http.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}
	require.Equal(t, http.StatusOK, post("198.51.100.1").StatusCode)
	require.Equal(t, http.StatusTooManyRequests, post("198.51.100.2").StatusCode)
}

func TestMetricMethodBoundsLabels(t *testing.T) {
	require.Equal(t, MethodBid, metricMethod(MethodBid))
	require.Equal(t, MethodReserve, metricMethod(MethodReserve))
	require.Equal(t, "unknown", metricMethod("auction_"+strings.Repeat("z", 40)))
}
