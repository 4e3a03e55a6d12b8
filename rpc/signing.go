package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"auctionhouse/crypto"
)

// SignedParams is the single parameter object of every mutating method.
// Signature covers SigningDigest(method, Nonce, Payload) and must recover to
// Caller.
type SignedParams struct {
	Caller    string          `json:"caller"`
	Nonce     uint64          `json:"nonce"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

var errMissingPayload = errors.New("payload required")

// SigningDigest returns keccak256 over the method name, the nonce and the
// compacted JSON payload, separated by newlines. Whitespace in the payload
// does not change the digest.
func SigningDigest(method string, nonce uint64, payload json.RawMessage) ([]byte, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, errMissingPayload
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, payload); err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	return crypto.Keccak256(
		[]byte(method), []byte{'\n'},
		[]byte(strconv.FormatUint(nonce, 10)), []byte{'\n'},
		compact.Bytes(),
	), nil
}

// Sign builds signed parameters for method on behalf of key.
func Sign(key *crypto.PrivateKey, method string, nonce uint64, payload interface{}) (*SignedParams, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	digest, err := SigningDigest(method, nonce, raw)
	if err != nil {
		return nil, err
	}
	sig, err := key.Sign(digest)
	if err != nil {
		return nil, err
	}
	return &SignedParams{
		Caller:    key.PubKey().Address().String(),
		Nonce:     nonce,
		Payload:   raw,
		Signature: "0x" + hex.EncodeToString(sig),
	}, nil
}

// Verify recovers the signer of p and checks it matches the declared caller.
func (p *SignedParams) Verify(method string) ([20]byte, error) {
	declared, err := parseIdentity(p.Caller)
	if err != nil {
		return [20]byte{}, fmt.Errorf("caller: %w", err)
	}
	sig, err := decodeHex(p.Signature)
	if err != nil {
		return [20]byte{}, fmt.Errorf("signature: %w", err)
	}
	digest, err := SigningDigest(method, p.Nonce, p.Payload)
	if err != nil {
		return [20]byte{}, err
	}
	signer, err := crypto.RecoverAddress(digest, sig)
	if err != nil {
		return [20]byte{}, fmt.Errorf("signature: %w", err)
	}
	if signer.Raw() != declared {
		return [20]byte{}, fmt.Errorf("signature does not match caller %s", p.Caller)
	}
	return declared, nil
}

func decodeHex(value string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if trimmed == "" {
		return nil, errors.New("empty hex string")
	}
	return hex.DecodeString(trimmed)
}

func parseAddress(value string, prefix crypto.AddressPrefix) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, err
	}
	if addr.Prefix() != prefix {
		return [20]byte{}, fmt.Errorf("expected %s address, got %s", prefix, addr.Prefix())
	}
	return addr.Raw(), nil
}

func parseIdentity(value string) ([20]byte, error) {
	return parseAddress(value, crypto.IdentityPrefix)
}

func parseAccount(value string) ([20]byte, error) {
	return parseAddress(value, crypto.AccountPrefix)
}

// parseOptionalIdentity returns the zero identity for an empty value.
func parseOptionalIdentity(value string) ([20]byte, error) {
	if strings.TrimSpace(value) == "" {
		return [20]byte{}, nil
	}
	return parseIdentity(value)
}

func parseAuctionID(value string) ([32]byte, error) {
	var id [32]byte
	raw, err := decodeHex(value)
	if err != nil {
		return id, fmt.Errorf("auction id: %w", err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("auction id must be %d bytes, got %d", len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// FormatAuctionID renders a slot identifier the way the server expects it.
func FormatAuctionID(id [32]byte) string {
	return "0x" + hex.EncodeToString(id[:])
}

func formatIdentity(addr [20]byte) string {
	return crypto.AddressFromRaw(crypto.IdentityPrefix, addr).String()
}

func formatAccount(addr [20]byte) string {
	return crypto.AddressFromRaw(crypto.AccountPrefix, addr).String()
}
