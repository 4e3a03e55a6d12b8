package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"auctionhouse/core"
	"auctionhouse/observability/logging"
)

type opBuilder func(h core.Header, payload json.RawMessage) (core.Operation, error)

var signedMethods = map[string]opBuilder{
	MethodExhibit:      buildExhibit,
	MethodBid:          buildBid,
	MethodCancel:       buildCancel,
	MethodClose:        buildClose,
	MethodCreateMint:   buildCreateMint,
	MethodOpenAccount:  buildOpenAccount,
	MethodMintTo:       buildMintTo,
	MethodTransfer:     buildTransfer,
	MethodCloseAccount: buildCloseAccount,
}

// decodeStrict rejects unknown fields so a typo never silently zeroes an
// account reference.
func decodeStrict(raw json.RawMessage, out interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func singleParam(req *RPCRequest) (json.RawMessage, error) {
	if len(req.Params) != 1 {
		return nil, errors.New("exactly one parameter object expected")
	}
	return req.Params[0], nil
}

func (s *Server) handleSigned(w http.ResponseWriter, r *http.Request, req *RPCRequest, build opBuilder) {
	raw, err := singleParam(req)
	if err != nil {
		s.fail(w, r, req, http.StatusBadRequest, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	var params SignedParams
	if err := decodeStrict(raw, &params); err != nil {
		s.fail(w, r, req, http.StatusBadRequest, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := params.Verify(req.Method)
	if err != nil {
		s.logger.Debug("signature rejected",
			slog.String("requestId", RequestIDFromContext(r.Context())),
			logging.MaskField("signature", params.Signature))
		s.fail(w, r, req, http.StatusUnauthorized, codeUnauthorized, "unauthorized", err.Error())
		return
	}
	op, err := build(core.Header{Caller: caller, Nonce: params.Nonce}, params.Payload)
	if err != nil {
		s.fail(w, r, req, http.StatusBadRequest, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	receipt, err := s.exec.Apply(r.Context(), op)
	if err != nil {
		s.failWith(w, r, req, err)
		return
	}
	s.succeed(w, r, req, formatReceipt(receipt))
}

func buildExhibit(h core.Header, payload json.RawMessage) (core.Operation, error) {
	var p ExhibitParams
	if err := decodeStrict(payload, &p); err != nil {
		return nil, err
	}
	op := core.ExhibitOp{Header: h, Price: p.Price, Duration: p.Duration}
	var err error
	if op.Accounts.AssetSource, err = parseAccount(p.AssetSource); err != nil {
		return nil, fmt.Errorf("assetSource: %w", err)
	}
	if op.Accounts.AssetEscrow, err = parseAccount(p.AssetEscrow); err != nil {
		return nil, fmt.Errorf("assetEscrow: %w", err)
	}
	if op.Accounts.ExhibitorPayout, err = parseAccount(p.ExhibitorPayout); err != nil {
		return nil, fmt.Errorf("exhibitorPayout: %w", err)
	}
	if op.Accounts.Auction, err = parseAuctionID(p.Auction); err != nil {
		return nil, err
	}
	return op, nil
}

func buildBid(h core.Header, payload json.RawMessage) (core.Operation, error) {
	var p BidParams
	if err := decodeStrict(payload, &p); err != nil {
		return nil, err
	}
	op := core.BidOp{Header: h, Price: p.Price}
	var err error
	if op.Accounts.BidEscrow, err = parseAccount(p.BidEscrow); err != nil {
		return nil, fmt.Errorf("bidEscrow: %w", err)
	}
	if op.Accounts.BidSource, err = parseAccount(p.BidSource); err != nil {
		return nil, fmt.Errorf("bidSource: %w", err)
	}
	if op.Accounts.HighestBidder, err = parseIdentity(p.HighestBidder); err != nil {
		return nil, fmt.Errorf("highestBidder: %w", err)
	}
	if op.Accounts.HighestBidEscrow, err = parseAccount(p.HighestBidEscrow); err != nil {
		return nil, fmt.Errorf("highestBidEscrow: %w", err)
	}
	if op.Accounts.HighestBidRefund, err = parseAccount(p.HighestBidRefund); err != nil {
		return nil, fmt.Errorf("highestBidRefund: %w", err)
	}
	if op.Accounts.Auction, err = parseAuctionID(p.Auction); err != nil {
		return nil, err
	}
	return op, nil
}

func buildCancel(h core.Header, payload json.RawMessage) (core.Operation, error) {
	var p CancelParams
	if err := decodeStrict(payload, &p); err != nil {
		return nil, err
	}
	op := core.CancelOp{Header: h}
	var err error
	if op.Accounts.AssetReturn, err = parseAccount(p.AssetReturn); err != nil {
		return nil, fmt.Errorf("assetReturn: %w", err)
	}
	if op.Accounts.AssetEscrow, err = parseAccount(p.AssetEscrow); err != nil {
		return nil, fmt.Errorf("assetEscrow: %w", err)
	}
	if op.Accounts.Auction, err = parseAuctionID(p.Auction); err != nil {
		return nil, err
	}
	return op, nil
}

func buildClose(h core.Header, payload json.RawMessage) (core.Operation, error) {
	var p CloseParams
	if err := decodeStrict(payload, &p); err != nil {
		return nil, err
	}
	op := core.CloseOp{Header: h}
	var err error
	if op.Accounts.Exhibitor, err = parseIdentity(p.Exhibitor); err != nil {
		return nil, fmt.Errorf("exhibitor: %w", err)
	}
	if op.Accounts.AssetEscrow, err = parseAccount(p.AssetEscrow); err != nil {
		return nil, fmt.Errorf("assetEscrow: %w", err)
	}
	if op.Accounts.ExhibitorPayout, err = parseAccount(p.ExhibitorPayout); err != nil {
		return nil, fmt.Errorf("exhibitorPayout: %w", err)
	}
	if op.Accounts.WinningBidder, err = parseIdentity(p.WinningBidder); err != nil {
		return nil, fmt.Errorf("winningBidder: %w", err)
	}
	if op.Accounts.WinningBidEscrow, err = parseAccount(p.WinningBidEscrow); err != nil {
		return nil, fmt.Errorf("winningBidEscrow: %w", err)
	}
	if op.Accounts.WinnerAssetReceiver, err = parseAccount(p.WinnerAssetReceiver); err != nil {
		return nil, fmt.Errorf("winnerAssetReceiver: %w", err)
	}
	if op.Accounts.Auction, err = parseAuctionID(p.Auction); err != nil {
		return nil, err
	}
	return op, nil
}

func buildCreateMint(h core.Header, payload json.RawMessage) (core.Operation, error) {
	var p CreateMintParams
	if err := decodeStrict(payload, &p); err != nil {
		return nil, err
	}
	mint, err := parseAccount(p.Mint)
	if err != nil {
		return nil, fmt.Errorf("mint: %w", err)
	}
	return core.CreateMintOp{Header: h, Mint: mint, Decimals: p.Decimals, MaxSupply: p.MaxSupply}, nil
}

func buildOpenAccount(h core.Header, payload json.RawMessage) (core.Operation, error) {
	var p OpenAccountParams
	if err := decodeStrict(payload, &p); err != nil {
		return nil, err
	}
	op := core.OpenAccountOp{Header: h}
	var err error
	if op.Address, err = parseAccount(p.Address); err != nil {
		return nil, fmt.Errorf("address: %w", err)
	}
	if op.Mint, err = parseAccount(p.Mint); err != nil {
		return nil, fmt.Errorf("mint: %w", err)
	}
	if op.Authority, err = parseOptionalIdentity(p.Authority); err != nil {
		return nil, fmt.Errorf("authority: %w", err)
	}
	return op, nil
}

func buildMintTo(h core.Header, payload json.RawMessage) (core.Operation, error) {
	var p MintToParams
	if err := decodeStrict(payload, &p); err != nil {
		return nil, err
	}
	op := core.MintToOp{Header: h, Amount: p.Amount}
	var err error
	if op.Mint, err = parseAccount(p.Mint); err != nil {
		return nil, fmt.Errorf("mint: %w", err)
	}
	if op.Account, err = parseAccount(p.Account); err != nil {
		return nil, fmt.Errorf("account: %w", err)
	}
	return op, nil
}

func buildTransfer(h core.Header, payload json.RawMessage) (core.Operation, error) {
	var p TransferParams
	if err := decodeStrict(payload, &p); err != nil {
		return nil, err
	}
	op := core.TransferOp{Header: h, Amount: p.Amount}
	var err error
	if op.From, err = parseAccount(p.From); err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	if op.To, err = parseAccount(p.To); err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	return op, nil
}

func buildCloseAccount(h core.Header, payload json.RawMessage) (core.Operation, error) {
	var p CloseAccountParams
	if err := decodeStrict(payload, &p); err != nil {
		return nil, err
	}
	op := core.CloseAccountOp{Header: h}
	var err error
	if op.Account, err = parseAccount(p.Account); err != nil {
		return nil, fmt.Errorf("account: %w", err)
	}
	if op.Destination, err = parseOptionalIdentity(p.Destination); err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}
	return op, nil
}

func (s *Server) auctionIDParam(w http.ResponseWriter, r *http.Request, req *RPCRequest) ([32]byte, bool) {
	raw, err := singleParam(req)
	if err != nil {
		s.fail(w, r, req, http.StatusBadRequest, codeInvalidParams, "invalid_params", err.Error())
		return [32]byte{}, false
	}
	var params AuctionIDParams
	if err := decodeStrict(raw, &params); err != nil {
		s.fail(w, r, req, http.StatusBadRequest, codeInvalidParams, "invalid_params", err.Error())
		return [32]byte{}, false
	}
	id, err := parseAuctionID(params.Auction)
	if err != nil {
		s.fail(w, r, req, http.StatusBadRequest, codeInvalidParams, "invalid_params", err.Error())
		return [32]byte{}, false
	}
	return id, true
}

func (s *Server) handleAuctionGet(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	id, ok := s.auctionIDParam(w, r, req)
	if !ok {
		return
	}
	rec, err := s.exec.Auction(id)
	if err != nil {
		s.failWith(w, r, req, err)
		return
	}
	s.succeed(w, r, req, formatAuction(rec))
}

func (s *Server) handleAuctionStatus(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	id, ok := s.auctionIDParam(w, r, req)
	if !ok {
		return
	}
	status, err := s.exec.Status(id)
	if err != nil {
		s.failWith(w, r, req, err)
		return
	}
	s.succeed(w, r, req, StatusJSON{Auction: FormatAuctionID(id), Status: status.String()})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params EventsParams
	if len(req.Params) > 1 {
		s.fail(w, r, req, http.StatusBadRequest, codeInvalidParams, "invalid_params", "at most one parameter object expected")
		return
	}
	if len(req.Params) == 1 {
		if err := decodeStrict(req.Params[0], &params); err != nil {
			s.fail(w, r, req, http.StatusBadRequest, codeInvalidParams, "invalid_params", err.Error())
			return
		}
	}
	if params.Limit < 0 {
		s.fail(w, r, req, http.StatusBadRequest, codeInvalidParams, "invalid_params", "limit must not be negative")
		return
	}
	if s.events == nil {
		s.succeed(w, r, req, []EventJSON{})
		return
	}
	evts := s.events.Events()
	if params.Limit > 0 && len(evts) > params.Limit {
		evts = evts[len(evts)-params.Limit:]
	}
	s.succeed(w, r, req, formatEvents(evts))
}

func (s *Server) addressParam(w http.ResponseWriter, r *http.Request, req *RPCRequest, parse func(string) ([20]byte, error)) ([20]byte, bool) {
	raw, err := singleParam(req)
	if err != nil {
		s.fail(w, r, req, http.StatusBadRequest, codeInvalidParams, "invalid_params", err.Error())
		return [20]byte{}, false
	}
	var params AddressParams
	if err := decodeStrict(raw, &params); err != nil {
		s.fail(w, r, req, http.StatusBadRequest, codeInvalidParams, "invalid_params", err.Error())
		return [20]byte{}, false
	}
	addr, err := parse(params.Address)
	if err != nil {
		s.fail(w, r, req, http.StatusBadRequest, codeInvalidParams, "invalid_params", err.Error())
		return [20]byte{}, false
	}
	return addr, true
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	addr, ok := s.addressParam(w, r, req, parseAccount)
	if !ok {
		return
	}
	acc, err := s.exec.Account(addr)
	if err != nil {
		s.failWith(w, r, req, err)
		return
	}
	s.succeed(w, r, req, formatCustodyAccount(acc))
}

func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	id, ok := s.addressParam(w, r, req, parseIdentity)
	if !ok {
		return
	}
	reserve, err := s.exec.Reserve(id)
	if err != nil {
		s.failWith(w, r, req, err)
		return
	}
	nonce, err := s.exec.Nonce(id)
	if err != nil {
		s.failWith(w, r, req, err)
		return
	}
	s.succeed(w, r, req, ReserveJSON{Identity: formatIdentity(id), Reserve: reserve, Nonce: nonce})
}
