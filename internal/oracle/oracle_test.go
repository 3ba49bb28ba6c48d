package oracle

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	wethAddr  = common.HexToAddress("0xC02aaA39b223FE8D0A0E5C4F27eAD9083C756Cc2")
	lowToken  = common.HexToAddress("0x0000000000000000000000000000000000000001")
	highToken = common.HexToAddress("0xFFfFfFffFFfffFFfFFfFFFFFffFFFffffFfFFFfF")
)

type fakeReader struct {
	pair      common.Address
	reserve0  *big.Int
	reserve1  *big.Int
	pools     map[int64]common.Address
	liquidity *big.Int
	sqrtPrice *big.Int
	answer    *big.Int
}

func (f *fakeReader) V2Pair(context.Context, common.Address, common.Address, common.Address) (common.Address, error) {
	return f.pair, nil
}

func (f *fakeReader) V2Reserves(context.Context, common.Address) (*big.Int, *big.Int, error) {
	return f.reserve0, f.reserve1, nil
}

func (f *fakeReader) V3Pool(_ context.Context, _, _, _ common.Address, fee *big.Int) (common.Address, error) {
	return f.pools[fee.Int64()], nil
}

func (f *fakeReader) V3Slot0(context.Context, common.Address) (*big.Int, error) {
	return f.sqrtPrice, nil
}

func (f *fakeReader) V3Liquidity(context.Context, common.Address) (*big.Int, error) {
	return f.liquidity, nil
}

func (f *fakeReader) ChainlinkLatestAnswer(context.Context, common.Address) (*big.Int, error) {
	return f.answer, nil
}

func newTestOracle(reader ChainReader) *Oracle {
	return New(reader, wethAddr,
		common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"),
		common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984"),
		common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"),
		big.NewInt(1),
		decimal.NewFromFloat(1e-7),
		decimal.NewFromInt(1000),
	)
}

func eth(whole int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func TestV2PriceFromReserves(t *testing.T) {
	// 1,000,000 tokens against 10 WETH -> 0.00001 ETH each. The token
	// address sorts below WETH so it occupies reserve slot 0.
	reader := &fakeReader{
		pair:     common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		reserve0: eth(1_000_000),
		reserve1: eth(10),
	}
	o := newTestOracle(reader)

	price, err := o.TokenPrice(context.Background(), lowToken, 18)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromFloat(0.00001)), "got %s", price)
}

func TestV2PriceReserveOrdering(t *testing.T) {
	// Same pool but the token address sorts above WETH, so the reserve
	// slots are swapped. The quote must come out identical.
	reader := &fakeReader{
		pair:     common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		reserve0: eth(10),
		reserve1: eth(1_000_000),
	}
	o := newTestOracle(reader)

	price, err := o.TokenPrice(context.Background(), highToken, 18)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromFloat(0.00001)), "got %s", price)
}

func TestV2PriceSixDecimalToken(t *testing.T) {
	// 1,000 six-decimal tokens against 1 WETH -> 0.001 ETH each.
	reader := &fakeReader{
		pair:     common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		reserve0: big.NewInt(1_000_000_000), // 1,000 tokens at 6 decimals
		reserve1: eth(1),
	}
	o := newTestOracle(reader)

	price, err := o.TokenPrice(context.Background(), lowToken, 6)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromFloat(0.001)), "got %s", price)
}

func TestEmptyPoolIsUnavailable(t *testing.T) {
	reader := &fakeReader{
		pair:     common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		reserve0: big.NewInt(0),
		reserve1: big.NewInt(0),
	}
	o := newTestOracle(reader)

	_, err := o.TokenPrice(context.Background(), lowToken, 18)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNoPoolAnywhereIsUnavailable(t *testing.T) {
	o := newTestOracle(&fakeReader{})

	_, err := o.TokenPrice(context.Background(), lowToken, 18)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestV3FallbackWhenNoV2Pair(t *testing.T) {
	// sqrtPriceX96 = 2^96/100 encodes a raw ratio of 1e-4 with the
	// token in slot 0.
	sqrt := new(big.Int).Div(new(big.Int).Lsh(big.NewInt(1), 96), big.NewInt(100))
	reader := &fakeReader{
		pools:     map[int64]common.Address{3000: common.HexToAddress("0x00000000000000000000000000000000000000bb")},
		liquidity: eth(100),
		sqrtPrice: sqrt,
	}
	o := newTestOracle(reader)

	price, err := o.TokenPrice(context.Background(), lowToken, 18)
	require.NoError(t, err)
	diff := price.Sub(decimal.NewFromFloat(1e-4)).Abs()
	assert.True(t, diff.LessThan(decimal.NewFromFloat(1e-10)), "got %s", price)
}

func TestV3InvertsWhenTokenIsSlotOne(t *testing.T) {
	// With WETH in slot 0 the raw ratio is tokens per WETH, here 1e4,
	// which must invert to the same 1e-4 ETH quote.
	sqrt := new(big.Int).Mul(new(big.Int).Lsh(big.NewInt(1), 96), big.NewInt(100))
	reader := &fakeReader{
		pools:     map[int64]common.Address{500: common.HexToAddress("0x00000000000000000000000000000000000000bb")},
		liquidity: eth(100),
		sqrtPrice: sqrt,
	}
	o := newTestOracle(reader)

	price, err := o.TokenPrice(context.Background(), highToken, 18)
	require.NoError(t, err)
	diff := price.Sub(decimal.NewFromFloat(1e-4)).Abs()
	assert.True(t, diff.LessThan(decimal.NewFromFloat(1e-10)), "got %s", price)
}

func TestV3SkipsPoolsBelowLiquidityFloor(t *testing.T) {
	sqrt := new(big.Int).Div(new(big.Int).Lsh(big.NewInt(1), 96), big.NewInt(100))
	reader := &fakeReader{
		pools:     map[int64]common.Address{3000: common.HexToAddress("0x00000000000000000000000000000000000000bb")},
		liquidity: big.NewInt(0),
		sqrtPrice: sqrt,
	}
	o := newTestOracle(reader)

	_, err := o.TokenPrice(context.Background(), lowToken, 18)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestSanityBandRejectsAbsurdQuotes(t *testing.T) {
	// One token base unit against a million WETH quotes far above any
	// plausible price and must not be trusted.
	reader := &fakeReader{
		pair:     common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		reserve0: big.NewInt(1),
		reserve1: eth(1_000_000),
	}
	o := newTestOracle(reader)

	_, err := o.TokenPrice(context.Background(), lowToken, 18)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestEthUSD(t *testing.T) {
	reader := &fakeReader{answer: big.NewInt(250_000_000_000)} // $2500 at 8 decimals
	o := newTestOracle(reader)

	price, err := o.EthUSD(context.Background())
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(2500)), "got %s", price)
}

func TestMarketCapUSD(t *testing.T) {
	reader := &fakeReader{answer: big.NewInt(200_000_000_000)} // $2000
	o := newTestOracle(reader)

	// 1e9 tokens at 0.00001 ETH = 10,000 ETH = $20,000,000.
	supply := new(big.Int).Mul(big.NewInt(1_000_000_000), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	mcap, err := o.MarketCapUSD(context.Background(), decimal.NewFromFloat(0.00001), supply, 18)
	require.NoError(t, err)
	assert.True(t, mcap.Equal(decimal.NewFromInt(20_000_000)), "got %s", mcap)
}
