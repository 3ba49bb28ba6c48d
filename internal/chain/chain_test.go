package chain

import (
	"encoding/hex"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000))
}

func TestComputeFeesManual(t *testing.T) {
	cfg := FeeConfig{
		BaseMultiplier:     decimal.NewFromInt(2),
		PriorityMultiplier: decimal.NewFromFloat(1.5),
		TotalMultiplier:    decimal.NewFromFloat(1.1),
	}

	// base 100 gwei * 2 = 200, tip 2 gwei * 1.5 = 3,
	// feeCap = (200 + 3) * 1.1 = 223.3 gwei.
	feeCap, tipCap := ComputeFees(gwei(100), gwei(2), cfg)
	assert.Equal(t, big.NewInt(223_300_000_000), feeCap)
	assert.Equal(t, gwei(3), tipCap)
}

func TestComputeFeesAutomatic(t *testing.T) {
	cfg := FeeConfig{Automatic: true}

	feeCap, tipCap := ComputeFees(gwei(100), gwei(2), cfg)
	assert.Equal(t, gwei(202), feeCap)
	assert.Equal(t, gwei(2), tipCap)
}

func TestComputeFeesTruncatesFractionalWei(t *testing.T) {
	cfg := FeeConfig{
		BaseMultiplier:     decimal.NewFromFloat(1.5),
		PriorityMultiplier: decimal.NewFromInt(1),
		TotalMultiplier:    decimal.NewFromInt(1),
	}

	feeCap, _ := ComputeFees(big.NewInt(3), big.NewInt(0), cfg)
	assert.Equal(t, big.NewInt(4), feeCap) // 4.5 truncated
}

func TestSwapDeadline(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, big.NewInt(now.Add(10*time.Minute).Unix()), SwapDeadline(now))
}

func selector(data []byte) string {
	return hex.EncodeToString(data[:4])
}

func TestCalldataSelectors(t *testing.T) {
	to := common.HexToAddress("0x00000000000000000000000000000000000000ee")
	token := common.HexToAddress("0x0000000000000000000000000000000000000001")
	weth := common.HexToAddress("0xC02aaA39b223FE8D0A0E5C4F27eAD9083C756Cc2")
	deadline := big.NewInt(1_750_000_000)

	buy, err := SwapExactETHForTokensData(big.NewInt(1), []common.Address{weth, token}, to, deadline)
	require.NoError(t, err)
	assert.Equal(t, "7ff36ab5", selector(buy))

	sell, err := SwapExactTokensForETHData(big.NewInt(100), big.NewInt(1), []common.Address{token, weth}, to, deadline)
	require.NoError(t, err)
	assert.Equal(t, "18cbafe5", selector(sell))
	// amountIn sits in the first word after the selector.
	assert.Equal(t, big.NewInt(100), new(big.Int).SetBytes(sell[4:36]))

	fallback, err := SwapSupportingFeeData(big.NewInt(100), big.NewInt(1), []common.Address{token, weth}, to, deadline)
	require.NoError(t, err)
	assert.Equal(t, "791ac947", selector(fallback))

	approve, err := ApproveData(to, big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, "095ea7b3", selector(approve))
}

func TestABIsParse(t *testing.T) {
	assert.Equal(t, "balanceOf", erc20ABI.Methods["balanceOf"].Name)
	assert.Equal(t, "getReserves", v2PairABI.Methods["getReserves"].Name)
	assert.Equal(t, "slot0", v3PoolABI.Methods["slot0"].Name)
	assert.Equal(t, "latestRoundData", chainlinkFeedABI.Methods["latestRoundData"].Name)
}
