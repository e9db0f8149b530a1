package sui_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/suilink/internal/util"
	"github.com/jmcleod/suilink/sui"
	"github.com/jmcleod/suilink/sui/suitest"
)

func TestClientQueries(t *testing.T) {
	node := suitest.NewNode(t)
	node.SetEpoch(321)
	node.SetGasPrice(750)
	owner := sui.MustParseAddress("0xabc")
	node.Fund(owner, 5, 7)

	c := node.Client()
	ctx := context.Background()

	epoch, err := c.LatestEpoch(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(321), epoch)

	price, err := c.ReferenceGasPrice(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(750), price)

	bal, err := c.Balance(ctx, owner, sui.CoinTypeSUI)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), bal)

	coins, err := c.AllCoins(ctx, owner, sui.CoinTypeSUI)
	require.NoError(t, err)
	require.Len(t, coins, 2)
	ref, err := coins[0].Ref()
	require.NoError(t, err)
	assert.Len(t, ref.Digest, 32)
	assert.Equal(t, uint64(1), ref.Version)
}

func TestClientSurfacesRPCErrors(t *testing.T) {
	node := suitest.NewNode(t)
	_, err := node.Client().ExecuteTransaction(context.Background(), []byte{0xff}, []string{"x"})
	var rpcErr *sui.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Contains(t, rpcErr.Message, "invalid transaction")
}

func TestExecuteTransfer(t *testing.T) {
	node := suitest.NewNode(t)
	sender := sui.MustParseAddress("0xa11ce")
	recipient := sui.MustParseAddress("0xb0b")
	node.Fund(sender, 3*sui.MistPerSui)
	ctx := context.Background()
	c := node.Client()

	coins, err := c.AllCoins(ctx, sender, sui.CoinTypeSUI)
	require.NoError(t, err)
	ref, err := coins[0].Ref()
	require.NoError(t, err)

	td := &sui.TransactionData{
		Kind:   sui.TransferSui(recipient, sui.MistPerSui),
		Sender: sender,
		Gas:    sui.GasData{Payment: []sui.ObjectRef{ref}, Owner: sender, Price: 1000, Budget: 10_000_000},
	}
	raw := td.Bytes()
	sig := util.Base64Encode([]byte{sui.FlagZkLogin, 1, 2, 3})

	digest, err := c.ExecuteTransaction(ctx, raw, []string{sig})
	require.NoError(t, err)
	assert.Equal(t, sui.TransactionDigest(raw), digest)
	assert.Equal(t, uint64(sui.MistPerSui), node.BalanceOf(recipient))
	assert.Equal(t, uint64(2*sui.MistPerSui-suitest.GasFee), node.BalanceOf(sender))
}

func TestFaucetRequest(t *testing.T) {
	node := suitest.NewNode(t)
	owner := sui.MustParseAddress("0xf00d")

	require.NoError(t, node.Faucet().Request(context.Background(), owner))
	assert.Equal(t, 1, node.FaucetCalls())

	bal, err := node.Client().Balance(context.Background(), owner, sui.CoinTypeSUI)
	require.NoError(t, err)
	assert.Equal(t, node.FaucetAmount(), bal)

	node.SetFaucet(sui.MistPerSui, 0, 429)
	assert.Error(t, node.Faucet().Request(context.Background(), owner))
}
