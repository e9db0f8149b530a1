package sui

import "fmt"

// Network describes a Sui deployment.
type Network struct {
	Name   string
	RPCURL string
	// FaucetURL is empty on networks without a faucet.
	FaucetURL string
}

// FaucetEnabled reports whether the network hands out test funds.
func (n Network) FaucetEnabled() bool {
	return n.FaucetURL != ""
}

var networks = map[string]Network{
	"mainnet":  {Name: "mainnet", RPCURL: "https://fullnode.mainnet.sui.io:443"},
	"testnet":  {Name: "testnet", RPCURL: "https://fullnode.testnet.sui.io:443", FaucetURL: "https://faucet.testnet.sui.io/v2/gas"},
	"devnet":   {Name: "devnet", RPCURL: "https://fullnode.devnet.sui.io:443", FaucetURL: "https://faucet.devnet.sui.io/v2/gas"},
	"localnet": {Name: "localnet", RPCURL: "http://127.0.0.1:9000", FaucetURL: "http://127.0.0.1:9123/v2/gas"},
}

// LookupNetwork returns the well-known network with the given name.
func LookupNetwork(name string) (Network, error) {
	n, ok := networks[name]
	if !ok {
		return Network{}, fmt.Errorf("unknown network %q", name)
	}
	return n, nil
}
