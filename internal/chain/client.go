package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"
)

const callTimeout = 10 * time.Second

// Client wraps a JSON-RPC connection with the contract reads the bot needs.
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int
}

// Dial connects to the node and pins the chain ID used for signing.
func Dial(ctx context.Context, nodeURL string, chainID int64) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, nodeURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial node: %w", err)
	}

	log.Info().Str("node", nodeURL).Int64("chain_id", chainID).Msg("🔌 Connected to EVM node")

	return &Client{
		eth:     eth,
		chainID: big.NewInt(chainID),
	}, nil
}

func (c *Client) Close() {
	c.eth.Close()
}

// ChainID returns the configured chain ID.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// call packs a method, executes an eth_call against the contract and
// unpacks the raw outputs.
func (c *Client) call(ctx context.Context, contract common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s failed: %w", method, contract.Hex(), err)
	}

	vals, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return vals, nil
}

// EthBalance returns the native balance of an account in wei.
func (c *Client) EthBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	bal, err := c.eth.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ETH balance: %w", err)
	}
	return bal, nil
}

// TokenBalance returns the ERC-20 balance of an account in base units.
func (c *Client) TokenBalance(ctx context.Context, token, account common.Address) (*big.Int, error) {
	out, err := c.call(ctx, token, erc20ABI, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// Allowance returns how many base units spender may move on owner's behalf.
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := c.call(ctx, token, erc20ABI, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// TokenDetails holds the ERC-20 metadata read once per position.
type TokenDetails struct {
	Name        string
	Symbol      string
	Decimals    uint8
	TotalSupply *big.Int
}

// TokenDetails reads name, symbol, decimals and total supply for a token.
func (c *Client) TokenDetails(ctx context.Context, token common.Address) (TokenDetails, error) {
	var details TokenDetails

	out, err := c.call(ctx, token, erc20ABI, "name")
	if err != nil {
		return details, err
	}
	details.Name = out[0].(string)

	out, err = c.call(ctx, token, erc20ABI, "symbol")
	if err != nil {
		return details, err
	}
	details.Symbol = out[0].(string)

	out, err = c.call(ctx, token, erc20ABI, "decimals")
	if err != nil {
		return details, err
	}
	details.Decimals = out[0].(uint8)

	out, err = c.call(ctx, token, erc20ABI, "totalSupply")
	if err != nil {
		return details, err
	}
	details.TotalSupply = out[0].(*big.Int)

	return details, nil
}

// V2Pair resolves the Uniswap V2 pair for two tokens. The zero address
// means no pair exists.
func (c *Client) V2Pair(ctx context.Context, factory, tokenA, tokenB common.Address) (common.Address, error) {
	out, err := c.call(ctx, factory, v2FactoryABI, "getPair", tokenA, tokenB)
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

// V2Reserves returns the raw reserve slots of a V2 pair.
func (c *Client) V2Reserves(ctx context.Context, pair common.Address) (reserve0, reserve1 *big.Int, err error) {
	out, err := c.call(ctx, pair, v2PairABI, "getReserves")
	if err != nil {
		return nil, nil, err
	}
	return out[0].(*big.Int), out[1].(*big.Int), nil
}

// V3Pool resolves the Uniswap V3 pool for a token pair at a fee tier.
// The zero address means no pool exists for that tier.
func (c *Client) V3Pool(ctx context.Context, factory, tokenA, tokenB common.Address, fee *big.Int) (common.Address, error) {
	out, err := c.call(ctx, factory, v3FactoryABI, "getPool", tokenA, tokenB, fee)
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

// V3Slot0 returns the current sqrtPriceX96 of a V3 pool.
func (c *Client) V3Slot0(ctx context.Context, pool common.Address) (*big.Int, error) {
	out, err := c.call(ctx, pool, v3PoolABI, "slot0")
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// V3Liquidity returns the in-range liquidity of a V3 pool.
func (c *Client) V3Liquidity(ctx context.Context, pool common.Address) (*big.Int, error) {
	out, err := c.call(ctx, pool, v3PoolABI, "liquidity")
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// ChainlinkLatestAnswer reads the latest price from a Chainlink aggregator.
// Feeds answer with 8 decimals for USD pairs.
func (c *Client) ChainlinkLatestAnswer(ctx context.Context, feed common.Address) (*big.Int, error) {
	out, err := c.call(ctx, feed, chainlinkFeedABI, "latestRoundData")
	if err != nil {
		return nil, err
	}
	answer := out[1].(*big.Int)
	if answer.Sign() <= 0 {
		return nil, fmt.Errorf("feed %s returned non-positive answer", feed.Hex())
	}
	return answer, nil
}
