// Package suitest provides an in-process fake Sui full node and faucet for
// tests.
package suitest

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/mr-tron/base58"

	"github.com/jmcleod/suilink/internal/util"
	"github.com/jmcleod/suilink/sui"
)

// GasFee is the flat fee the fake node charges per executed transaction.
const GasFee = 1_000_000

// Executed records one submitted transaction.
type Executed struct {
	TxBytes    []byte
	Signatures []string
	Digest     string
}

type coin struct {
	id      sui.Address
	version uint64
	digest  []byte
	balance uint64
}

// Node is a fake full node plus faucet backed by httptest.
type Node struct {
	mu sync.Mutex

	epoch        uint64
	gasPrice     uint64
	faucetAmount uint64
	faucetDelay  int
	faucetStatus int
	faucetCoins  int

	faucetCalls   int
	balancePolls  int
	pendingFaucet map[sui.Address]uint64
	pendingParts  map[sui.Address]int
	coins         map[sui.Address][]*coin
	executed      []Executed

	server *httptest.Server
}

// NewNode starts a fake node that is shut down when the test ends.
func NewNode(t testing.TB) *Node {
	t.Helper()
	n := &Node{
		epoch:         100,
		gasPrice:      1000,
		faucetAmount:  10 * sui.MistPerSui,
		pendingFaucet: make(map[sui.Address]uint64),
		pendingParts:  make(map[sui.Address]int),
		coins:         make(map[sui.Address][]*coin),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /rpc", n.serveRPC)
	mux.HandleFunc("POST /v2/gas", n.serveFaucet)
	n.server = httptest.NewServer(mux)
	t.Cleanup(n.server.Close)
	return n
}

func (n *Node) RPCURL() string    { return n.server.URL + "/rpc" }
func (n *Node) FaucetURL() string { return n.server.URL + "/v2/gas" }

// Client returns a sui.Client pointed at the fake node.
func (n *Node) Client() *sui.Client {
	return sui.NewClient(n.RPCURL(), sui.WithHTTPClient(n.server.Client()))
}

// Faucet returns a sui.Faucet pointed at the fake faucet.
func (n *Node) Faucet() *sui.Faucet {
	return sui.NewFaucet(n.FaucetURL(), n.server.Client())
}

// SetEpoch changes the epoch reported by the node.
func (n *Node) SetEpoch(epoch uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.epoch = epoch
}

// SetGasPrice changes the reference gas price.
func (n *Node) SetGasPrice(price uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gasPrice = price
}

// SetFaucet configures faucet behaviour. amount is credited per request
// after delayPolls balance queries; a non-zero status fails every request
// with that HTTP status.
func (n *Node) SetFaucet(amount uint64, delayPolls, status int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.faucetAmount = amount
	n.faucetDelay = delayPolls
	n.faucetStatus = status
}

// SetFaucetCoins makes the faucet credit each request as parts coins, one
// per balance query.
func (n *Node) SetFaucetCoins(parts int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.faucetCoins = parts
}

// FaucetAmount is the amount credited per faucet request.
func (n *Node) FaucetAmount() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.faucetAmount
}

// Fund gives owner one coin per amount.
func (n *Node) Fund(owner sui.Address, amounts ...uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, a := range amounts {
		n.addCoinLocked(owner, a)
	}
}

// BalanceOf sums owner's coins.
func (n *Node) BalanceOf(owner sui.Address) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.balanceLocked(owner)
}

// FaucetCalls reports how many faucet requests were served.
func (n *Node) FaucetCalls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.faucetCalls
}

// BalancePolls reports how many suix_getBalance calls were served.
func (n *Node) BalancePolls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.balancePolls
}

// Executed returns every submitted transaction.
func (n *Node) Executed() []Executed {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Executed(nil), n.executed...)
}

func randomDigest() []byte {
	b := make([]byte, 32)
	rand.Read(b)
	return b
}

func (n *Node) addCoinLocked(owner sui.Address, amount uint64) {
	var id sui.Address
	rand.Read(id[:])
	n.coins[owner] = append(n.coins[owner], &coin{id: id, version: 1, digest: randomDigest(), balance: amount})
}

func (n *Node) balanceLocked(owner sui.Address) uint64 {
	var total uint64
	for _, c := range n.coins[owner] {
		total += c.balance
	}
	return total
}

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func (n *Node) serveRPC(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, rpcErr := n.dispatch(req)
	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = map[string]any{"code": -32000, "message": rpcErr.Error()}
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func param[T any](req rpcRequest, i int) (T, error) {
	var v T
	if i >= len(req.Params) {
		return v, fmt.Errorf("missing param %d", i)
	}
	err := json.Unmarshal(req.Params[i], &v)
	return v, err
}

func (n *Node) dispatch(req rpcRequest) (any, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch req.Method {
	case "suix_getLatestSuiSystemState":
		return map[string]string{"epoch": strconv.FormatUint(n.epoch, 10)}, nil
	case "suix_getReferenceGasPrice":
		return strconv.FormatUint(n.gasPrice, 10), nil
	case "suix_getBalance":
		owner, err := ownerParam(req)
		if err != nil {
			return nil, err
		}
		n.balancePolls++
		n.settleFaucetLocked(owner)
		return map[string]string{"totalBalance": strconv.FormatUint(n.balanceLocked(owner), 10)}, nil
	case "suix_getCoins":
		owner, err := ownerParam(req)
		if err != nil {
			return nil, err
		}
		data := []sui.Coin{}
		for _, c := range n.coins[owner] {
			data = append(data, sui.Coin{
				CoinType:     sui.CoinTypeSUI,
				CoinObjectID: c.id.String(),
				Version:      strconv.FormatUint(c.version, 10),
				Digest:       base58.Encode(c.digest),
				Balance:      strconv.FormatUint(c.balance, 10),
			})
		}
		return map[string]any{"data": data, "nextCursor": nil, "hasNextPage": false}, nil
	case "sui_executeTransactionBlock":
		return n.executeLocked(req)
	default:
		return nil, fmt.Errorf("method %s not supported", req.Method)
	}
}

func ownerParam(req rpcRequest) (sui.Address, error) {
	s, err := param[string](req, 0)
	if err != nil {
		return sui.Address{}, err
	}
	return sui.ParseAddress(s)
}

func (n *Node) settleFaucetLocked(owner sui.Address) {
	amount, ok := n.pendingFaucet[owner]
	if !ok {
		return
	}
	if n.faucetDelay > 0 {
		n.faucetDelay--
		return
	}
	parts := max(n.pendingParts[owner], 1)
	if parts == 1 {
		delete(n.pendingFaucet, owner)
		delete(n.pendingParts, owner)
		n.addCoinLocked(owner, amount)
		return
	}
	credit := amount / uint64(parts)
	n.addCoinLocked(owner, credit)
	n.pendingFaucet[owner] = amount - credit
	n.pendingParts[owner] = parts - 1
}

func (n *Node) executeLocked(req rpcRequest) (any, error) {
	txB64, err := param[string](req, 0)
	if err != nil {
		return nil, err
	}
	sigs, err := param[[]string](req, 1)
	if err != nil {
		return nil, err
	}
	txBytes, err := util.Base64Decode(txB64)
	if err != nil {
		return nil, err
	}
	td, err := sui.DecodeTransactionData(txBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction: %w", err)
	}
	if len(sigs) != 1 {
		return nil, fmt.Errorf("expected one signature, got %d", len(sigs))
	}
	sig, err := util.Base64Decode(sigs[0])
	if err != nil || len(sig) == 0 || sig[0] != sui.FlagZkLogin {
		return nil, fmt.Errorf("expected a zklogin signature")
	}
	if len(td.Gas.Payment) == 0 {
		return nil, fmt.Errorf("no gas payment")
	}

	gas, err := n.mergePaymentLocked(td)
	if err != nil {
		return nil, err
	}
	amount, recipient, isTransfer := transferOf(td.Kind)
	if gas.balance < GasFee+amount {
		return nil, fmt.Errorf("insufficient gas coin balance")
	}
	gas.balance -= GasFee + amount
	gas.version++
	gas.digest = randomDigest()
	if isTransfer {
		n.addCoinLocked(recipient, amount)
	}

	digest := sui.TransactionDigest(txBytes)
	n.executed = append(n.executed, Executed{TxBytes: txBytes, Signatures: sigs, Digest: digest})
	return map[string]any{
		"digest":  digest,
		"effects": map[string]any{"status": map[string]string{"status": "success"}},
	}, nil
}

// mergePaymentLocked folds every payment coin into the first one, the way
// the network smashes gas coins.
func (n *Node) mergePaymentLocked(td *sui.TransactionData) (*coin, error) {
	owned := n.coins[td.Sender]
	find := func(ref sui.ObjectRef) *coin {
		for _, c := range owned {
			if c.id == ref.ObjectID && c.version == ref.Version {
				return c
			}
		}
		return nil
	}
	primary := find(td.Gas.Payment[0])
	if primary == nil {
		return nil, fmt.Errorf("gas coin %s not owned by sender", td.Gas.Payment[0].ObjectID)
	}
	for _, ref := range td.Gas.Payment[1:] {
		c := find(ref)
		if c == nil {
			return nil, fmt.Errorf("gas coin %s not owned by sender", ref.ObjectID)
		}
		primary.balance += c.balance
		c.balance = 0
	}
	kept := owned[:0]
	for _, c := range owned {
		if c == primary || c.balance > 0 {
			kept = append(kept, c)
		}
	}
	n.coins[td.Sender] = kept
	return primary, nil
}

// transferOf recognises the split-and-transfer pattern built by
// sui.TransferSui.
func transferOf(pt *sui.ProgrammableTransaction) (uint64, sui.Address, bool) {
	if len(pt.Commands) != 2 || len(pt.Inputs) != 2 {
		return 0, sui.Address{}, false
	}
	if _, ok := pt.Commands[0].(sui.SplitCoins); !ok {
		return 0, sui.Address{}, false
	}
	if _, ok := pt.Commands[1].(sui.TransferObjects); !ok {
		return 0, sui.Address{}, false
	}
	d := sui.NewDecoder(pt.Inputs[0].Pure)
	amount := d.U64()
	if d.Done() != nil || len(pt.Inputs[1].Pure) != sui.AddressLength {
		return 0, sui.Address{}, false
	}
	var recipient sui.Address
	copy(recipient[:], pt.Inputs[1].Pure)
	return amount, recipient, true
}

func (n *Node) serveFaucet(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req struct {
		FixedAmountRequest struct {
			Recipient string `json:"recipient"`
		} `json:"FixedAmountRequest"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	owner, err := sui.ParseAddress(req.FixedAmountRequest.Recipient)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.faucetCalls++
	status := n.faucetStatus
	if status == 0 {
		n.pendingFaucet[owner] += n.faucetAmount
		n.pendingParts[owner] = max(n.faucetCoins, 1)
	}
	n.mu.Unlock()

	if status != 0 {
		http.Error(w, "faucet unavailable", status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"Success"}`))
}
