package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"auctionhouse/crypto"
)

const defaultClientTimeout = 10 * time.Second

// Client issues JSON-RPC calls against an auction daemon.
type Client struct {
	endpoint string
	http     *http.Client
	nextID   atomic.Int64
}

// NewClient returns a client for endpoint. A nil httpClient selects one with
// a ten second timeout.
func NewClient(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultClientTimeout}
	}
	return &Client{endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"), http: httpClient}
}

type clientRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int64         `json:"id"`
}

type clientResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Call invokes method with params and decodes the result into out. Server
// side failures are returned as *RPCError.
func (c *Client) Call(ctx context.Context, method string, params interface{}, out interface{}) error {
	body := clientRequest{JSONRPC: jsonRPCVersion, Method: method, Params: []interface{}{}, ID: c.nextID.Add(1)}
	if params != nil {
		body.Params = []interface{}{params}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/rpc", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var decoded clientResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("rpc status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if out == nil || len(decoded.Result) == 0 {
		return nil
	}
	return json.Unmarshal(decoded.Result, out)
}

// Submit signs payload with key under nonce and sends it as method.
func (c *Client) Submit(ctx context.Context, key *crypto.PrivateKey, method string, nonce uint64, payload interface{}) (*ReceiptJSON, error) {
	params, err := Sign(key, method, nonce, payload)
	if err != nil {
		return nil, err
	}
	var receipt ReceiptJSON
	if err := c.Call(ctx, method, params, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// Nonce returns the next nonce expected from identity.
func (c *Client) Nonce(ctx context.Context, identity string) (uint64, error) {
	var reserve ReserveJSON
	if err := c.Call(ctx, MethodReserve, AddressParams{Address: identity}, &reserve); err != nil {
		return 0, err
	}
	return reserve.Nonce, nil
}

// SubmitNext fetches the caller's nonce and submits payload under it.
func (c *Client) SubmitNext(ctx context.Context, key *crypto.PrivateKey, method string, payload interface{}) (*ReceiptJSON, error) {
	nonce, err := c.Nonce(ctx, key.PubKey().Address().String())
	if err != nil {
		return nil, err
	}
	return c.Submit(ctx, key, method, nonce, payload)
}
