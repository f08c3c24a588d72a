// Package oracle resolves miner collateral values from a Lotus full node.
package oracle

import (
	"context"
	"fmt"
	"net/http"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-jsonrpc"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
)

// LotusClient reads miner available balances over the Filecoin JSON-RPC
// API. The available balance is the collateral figure backing lend
// admission.
type LotusClient struct {
	Internal struct {
		StateMinerAvailableBalance func(ctx context.Context, addr address.Address, tsk []cid.Cid) (big.Int, error) `perm:"read"`
	}
	closer jsonrpc.ClientCloser
}

// DialLotus connects to a Lotus node endpoint. token may be empty for
// unauthenticated endpoints.
func DialLotus(ctx context.Context, endpoint, token string) (*LotusClient, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	client := &LotusClient{}
	closer, err := jsonrpc.NewMergeClient(ctx, endpoint, "Filecoin", []interface{}{&client.Internal}, header)
	if err != nil {
		return nil, fmt.Errorf("dial lotus %s: %w", endpoint, err)
	}
	client.closer = closer
	return client, nil
}

// Close tears down the RPC connection.
func (c *LotusClient) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// CollateralValue returns the miner actor's available balance at the
// current head.
func (c *LotusClient) CollateralValue(ctx context.Context, id abi.ActorID) (abi.TokenAmount, error) {
	addr, err := address.NewIDAddress(uint64(id))
	if err != nil {
		return abi.TokenAmount{}, fmt.Errorf("miner id %d: %w", id, err)
	}
	value, err := c.Internal.StateMinerAvailableBalance(ctx, addr, nil)
	if err != nil {
		return abi.TokenAmount{}, fmt.Errorf("state miner available balance %s: %w", addr, err)
	}
	return value, nil
}
