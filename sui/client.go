package sui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/mr-tron/base58"

	"github.com/jmcleod/suilink/internal/remote"
	"github.com/jmcleod/suilink/internal/util"
)

// RPCError is a JSON-RPC error object returned by a full node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("sui rpc error %d: %s", e.Code, e.Message)
}

// ExecutionError reports a transaction that was accepted but aborted.
type ExecutionError struct {
	Digest string
	Reason string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("transaction %s failed: %s", e.Digest, e.Reason)
}

// Client talks JSON-RPC 2.0 to a Sui full node.
type Client struct {
	endpoint string
	http     *http.Client
	nextID   atomic.Uint64
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.http = c
	}
}

// NewClient returns a client for the full node at endpoint.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{endpoint: endpoint, http: remote.NewHTTPClient()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	if params == nil {
		params = []any{}
	}
	var resp rpcResponse
	err := remote.Do(ctx, c.http, remote.Request{
		Service: "sui rpc " + method,
		Method:  http.MethodPost,
		URL:     c.endpoint,
		Body:    rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params},
	}, &resp)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("sui rpc %s: decoding result: %w", method, err)
	}
	return nil
}

// LatestEpoch returns the network's current epoch.
func (c *Client) LatestEpoch(ctx context.Context) (uint64, error) {
	var state struct {
		Epoch string `json:"epoch"`
	}
	if err := c.call(ctx, "suix_getLatestSuiSystemState", nil, &state); err != nil {
		return 0, err
	}
	epoch, err := strconv.ParseUint(state.Epoch, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing epoch %q: %w", state.Epoch, err)
	}
	return epoch, nil
}

// ReferenceGasPrice returns the current reference gas price in MIST.
func (c *Client) ReferenceGasPrice(ctx context.Context) (uint64, error) {
	var raw json.RawMessage
	if err := c.call(ctx, "suix_getReferenceGasPrice", nil, &raw); err != nil {
		return 0, err
	}
	return parseU64JSON(raw)
}

// Coin is an owned coin object as listed by the node.
type Coin struct {
	CoinType     string `json:"coinType"`
	CoinObjectID string `json:"coinObjectId"`
	Version      string `json:"version"`
	Digest       string `json:"digest"`
	Balance      string `json:"balance"`
}

// Amount parses the coin balance.
func (c Coin) Amount() (uint64, error) {
	return strconv.ParseUint(c.Balance, 10, 64)
}

// Ref converts the listing into an object reference usable as gas.
func (c Coin) Ref() (ObjectRef, error) {
	id, err := ParseAddress(c.CoinObjectID)
	if err != nil {
		return ObjectRef{}, err
	}
	version, err := strconv.ParseUint(c.Version, 10, 64)
	if err != nil {
		return ObjectRef{}, fmt.Errorf("coin %s version %q: %w", c.CoinObjectID, c.Version, err)
	}
	digest, err := base58.Decode(c.Digest)
	if err != nil {
		return ObjectRef{}, fmt.Errorf("coin %s digest: %w", c.CoinObjectID, err)
	}
	if len(digest) != 32 {
		return ObjectRef{}, fmt.Errorf("coin %s digest has %d bytes", c.CoinObjectID, len(digest))
	}
	return ObjectRef{ObjectID: id, Version: version, Digest: digest}, nil
}

// CoinPage is one page of suix_getCoins.
type CoinPage struct {
	Data        []Coin  `json:"data"`
	NextCursor  *string `json:"nextCursor"`
	HasNextPage bool    `json:"hasNextPage"`
}

// Coins returns one page of coins of coinType owned by owner.
func (c *Client) Coins(ctx context.Context, owner Address, coinType string, cursor *string, limit int) (*CoinPage, error) {
	var page CoinPage
	if err := c.call(ctx, "suix_getCoins", []any{owner.String(), coinType, cursor, limit}, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// maxCoinPages bounds pagination against a misbehaving node.
const maxCoinPages = 50

// AllCoins walks every page of coins of coinType owned by owner.
func (c *Client) AllCoins(ctx context.Context, owner Address, coinType string) ([]Coin, error) {
	var coins []Coin
	var cursor *string
	for range maxCoinPages {
		page, err := c.Coins(ctx, owner, coinType, cursor, 50)
		if err != nil {
			return nil, err
		}
		coins = append(coins, page.Data...)
		if !page.HasNextPage || page.NextCursor == nil {
			return coins, nil
		}
		cursor = page.NextCursor
	}
	return coins, nil
}

// Balance returns the total balance of coinType owned by owner.
func (c *Client) Balance(ctx context.Context, owner Address, coinType string) (uint64, error) {
	var bal struct {
		TotalBalance string `json:"totalBalance"`
	}
	if err := c.call(ctx, "suix_getBalance", []any{owner.String(), coinType}, &bal); err != nil {
		return 0, err
	}
	return strconv.ParseUint(bal.TotalBalance, 10, 64)
}

// ExecuteTransaction submits signed transaction bytes and waits for local
// execution. A transaction that executes but aborts returns an
// *ExecutionError carrying its digest.
func (c *Client) ExecuteTransaction(ctx context.Context, txBytes []byte, signatures []string) (string, error) {
	var res struct {
		Digest  string `json:"digest"`
		Effects *struct {
			Status struct {
				Status string `json:"status"`
				Error  string `json:"error"`
			} `json:"status"`
		} `json:"effects"`
	}
	params := []any{
		util.Base64Encode(txBytes),
		signatures,
		map[string]bool{"showEffects": true},
		"WaitForLocalExecution",
	}
	if err := c.call(ctx, "sui_executeTransactionBlock", params, &res); err != nil {
		return "", err
	}
	if res.Digest == "" {
		return "", errors.New("sui rpc sui_executeTransactionBlock: response has no digest")
	}
	if res.Effects != nil && res.Effects.Status.Status != "" && res.Effects.Status.Status != "success" {
		return res.Digest, &ExecutionError{Digest: res.Digest, Reason: res.Effects.Status.Error}
	}
	return res.Digest, nil
}

// parseU64JSON accepts either a JSON number or a decimal string.
func parseU64JSON(raw json.RawMessage) (uint64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.ParseUint(s, 10, 64)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("expected integer, got %s", raw)
	}
	return strconv.ParseUint(n.String(), 10, 64)
}
