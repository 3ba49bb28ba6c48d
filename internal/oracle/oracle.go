package oracle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ErrUnavailable means no pool currently yields a usable price for the
// token. Callers retry rather than treat it as fatal.
var ErrUnavailable = errors.New("price unavailable")

// v3FeeTiers are the Uniswap V3 fee tiers probed in order.
var v3FeeTiers = []int64{500, 3000, 10000}

// divPrecision keeps enough digits for sub-gwei meme token prices.
const divPrecision = 40

// ChainReader is the subset of chain reads the oracle performs.
type ChainReader interface {
	V2Pair(ctx context.Context, factory, tokenA, tokenB common.Address) (common.Address, error)
	V2Reserves(ctx context.Context, pair common.Address) (*big.Int, *big.Int, error)
	V3Pool(ctx context.Context, factory, tokenA, tokenB common.Address, fee *big.Int) (common.Address, error)
	V3Slot0(ctx context.Context, pool common.Address) (*big.Int, error)
	V3Liquidity(ctx context.Context, pool common.Address) (*big.Int, error)
	ChainlinkLatestAnswer(ctx context.Context, feed common.Address) (*big.Int, error)
}

// Oracle resolves token prices in ETH from Uniswap V2 and V3 pools.
type Oracle struct {
	reader    ChainReader
	weth      common.Address
	v2Factory common.Address
	v3Factory common.Address
	ethUSD    common.Address

	minPoolLiquidity *big.Int
	sanityMin        decimal.Decimal
	sanityMax        decimal.Decimal
}

// New builds an Oracle over the given reader and factory addresses.
func New(reader ChainReader, weth, v2Factory, v3Factory, ethUSDFeed common.Address, minPoolLiquidity *big.Int, sanityMin, sanityMax decimal.Decimal) *Oracle {
	return &Oracle{
		reader:           reader,
		weth:             weth,
		v2Factory:        v2Factory,
		v3Factory:        v3Factory,
		ethUSD:           ethUSDFeed,
		minPoolLiquidity: minPoolLiquidity,
		sanityMin:        sanityMin,
		sanityMax:        sanityMax,
	}
}

// TokenPrice returns the token's price in ETH. V2 is preferred; V3 fee
// tiers are walked when no V2 pair exists. Returns ErrUnavailable when
// no pool passes the liquidity floor and sanity band.
func (o *Oracle) TokenPrice(ctx context.Context, token common.Address, tokenDecimals uint8) (decimal.Decimal, error) {
	price, err := o.v2Price(ctx, token, tokenDecimals)
	if err == nil {
		return price, nil
	}
	if !errors.Is(err, ErrUnavailable) {
		return decimal.Zero, err
	}

	return o.v3Price(ctx, token, tokenDecimals)
}

// v2Price reads the V2 pair reserves and quotes wethReserve/tokenReserve,
// both adjusted to whole units.
func (o *Oracle) v2Price(ctx context.Context, token common.Address, tokenDecimals uint8) (decimal.Decimal, error) {
	pair, err := o.reader.V2Pair(ctx, o.v2Factory, token, o.weth)
	if err != nil {
		return decimal.Zero, err
	}
	if pair == (common.Address{}) {
		return decimal.Zero, ErrUnavailable
	}

	reserve0, reserve1, err := o.reader.V2Reserves(ctx, pair)
	if err != nil {
		return decimal.Zero, err
	}

	// The token with the lower address occupies reserve slot 0.
	tokenReserve, wethReserve := reserve0, reserve1
	if bytes.Compare(o.weth.Bytes(), token.Bytes()) < 0 {
		tokenReserve, wethReserve = reserve1, reserve0
	}

	if tokenReserve.Sign() == 0 || wethReserve.Sign() == 0 {
		return decimal.Zero, ErrUnavailable
	}
	if wethReserve.Cmp(o.minPoolLiquidity) < 0 {
		log.Debug().Str("pair", pair.Hex()).Msg("V2 pair below liquidity floor")
		return decimal.Zero, ErrUnavailable
	}

	weth := decimal.NewFromBigInt(wethReserve, 0).Shift(-18)
	tok := decimal.NewFromBigInt(tokenReserve, 0).Shift(-int32(tokenDecimals))

	price := weth.DivRound(tok, divPrecision)
	if !o.sane(price) {
		log.Warn().Str("pair", pair.Hex()).Str("price", price.String()).Msg("⚠️ V2 price outside sanity band")
		return decimal.Zero, ErrUnavailable
	}
	return price, nil
}

// v3Price walks the fee tiers and quotes from the first pool passing the
// liquidity floor whose price lands inside the sanity band.
func (o *Oracle) v3Price(ctx context.Context, token common.Address, tokenDecimals uint8) (decimal.Decimal, error) {
	for _, fee := range v3FeeTiers {
		pool, err := o.reader.V3Pool(ctx, o.v3Factory, token, o.weth, big.NewInt(fee))
		if err != nil {
			return decimal.Zero, err
		}
		if pool == (common.Address{}) {
			continue
		}

		liquidity, err := o.reader.V3Liquidity(ctx, pool)
		if err != nil {
			return decimal.Zero, err
		}
		if liquidity.Cmp(o.minPoolLiquidity) < 0 {
			continue
		}

		sqrtPriceX96, err := o.reader.V3Slot0(ctx, pool)
		if err != nil {
			return decimal.Zero, err
		}
		if sqrtPriceX96.Sign() == 0 {
			continue
		}

		price := v3QuoteETH(sqrtPriceX96, token, o.weth, tokenDecimals)
		if !o.sane(price) {
			log.Warn().Str("pool", pool.Hex()).Int64("fee", fee).Str("price", price.String()).Msg("⚠️ V3 price outside sanity band")
			continue
		}
		return price, nil
	}

	return decimal.Zero, ErrUnavailable
}

var two192 = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 192), 0)

// v3QuoteETH converts a pool's sqrtPriceX96 into the token's ETH price.
// sqrtPriceX96^2 / 2^192 is token1 per token0 in raw base units; the
// ratio is inverted when the token sits in slot 1, then rescaled by the
// decimals gap between the token and WETH.
func v3QuoteETH(sqrtPriceX96 *big.Int, token, weth common.Address, tokenDecimals uint8) decimal.Decimal {
	sq := decimal.NewFromBigInt(sqrtPriceX96, 0)
	ratio := sq.Mul(sq).DivRound(two192, divPrecision)
	if ratio.IsZero() {
		return decimal.Zero
	}

	if bytes.Compare(weth.Bytes(), token.Bytes()) < 0 {
		// WETH is token0, so the raw ratio is token per WETH. Invert.
		ratio = decimal.NewFromInt(1).DivRound(ratio, divPrecision)
	}

	return ratio.Shift(int32(tokenDecimals) - 18)
}

func (o *Oracle) sane(price decimal.Decimal) bool {
	return price.IsPositive() &&
		price.GreaterThanOrEqual(o.sanityMin) &&
		price.LessThanOrEqual(o.sanityMax)
}

// EthUSD reads the Chainlink ETH/USD feed. Answers carry 8 decimals.
func (o *Oracle) EthUSD(ctx context.Context) (decimal.Decimal, error) {
	answer, err := o.reader.ChainlinkLatestAnswer(ctx, o.ethUSD)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read ETH/USD feed: %w", err)
	}
	return decimal.NewFromBigInt(answer, 0).Shift(-8), nil
}

// MarketCapUSD estimates the token's fully diluted market cap in USD from
// its ETH price and total supply.
func (o *Oracle) MarketCapUSD(ctx context.Context, priceETH decimal.Decimal, totalSupply *big.Int, tokenDecimals uint8) (decimal.Decimal, error) {
	ethUSD, err := o.EthUSD(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	supply := decimal.NewFromBigInt(totalSupply, 0).Shift(-int32(tokenDecimals))
	return priceETH.Mul(supply).Mul(ethUSD), nil
}
