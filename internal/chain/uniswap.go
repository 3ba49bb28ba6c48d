package chain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// swapDeadlineWindow is how long a broadcast swap stays valid on-chain.
const swapDeadlineWindow = 10 * time.Minute

// SwapDeadline returns the unix deadline used for router calls.
func SwapDeadline(now time.Time) *big.Int {
	return big.NewInt(now.Add(swapDeadlineWindow).Unix())
}

// SwapExactETHForTokensData builds router calldata for an ETH -> token swap.
func SwapExactETHForTokensData(amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	data, err := v2RouterABI.Pack("swapExactETHForTokens", amountOutMin, path, to, deadline)
	if err != nil {
		return nil, fmt.Errorf("failed to pack swapExactETHForTokens: %w", err)
	}
	return data, nil
}

// SwapExactTokensForETHData builds router calldata for a token -> ETH swap.
func SwapExactTokensForETHData(amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	data, err := v2RouterABI.Pack("swapExactTokensForETH", amountIn, amountOutMin, path, to, deadline)
	if err != nil {
		return nil, fmt.Errorf("failed to pack swapExactTokensForETH: %w", err)
	}
	return data, nil
}

// SwapSupportingFeeData builds router calldata for the fee-on-transfer
// variant used when the plain swap reverts on tokens that tax transfers.
func SwapSupportingFeeData(amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	data, err := v2RouterABI.Pack("swapExactTokensForETHSupportingFeeOnTransferTokens", amountIn, amountOutMin, path, to, deadline)
	if err != nil {
		return nil, fmt.Errorf("failed to pack fee-on-transfer swap: %w", err)
	}
	return data, nil
}

// ApproveData builds ERC-20 calldata granting spender an allowance.
func ApproveData(spender common.Address, amount *big.Int) ([]byte, error) {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack approve: %w", err)
	}
	return data, nil
}
