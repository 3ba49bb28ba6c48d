package trader

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/copybot/internal/chain"
	"github.com/web3guy0/copybot/internal/ledger"
)

// PriceSource quotes token prices. Satisfied by oracle.Oracle.
type PriceSource interface {
	TokenPrice(ctx context.Context, token common.Address, tokenDecimals uint8) (decimal.Decimal, error)
	MarketCapUSD(ctx context.Context, priceETH decimal.Decimal, totalSupply *big.Int, tokenDecimals uint8) (decimal.Decimal, error)
}

// Chain is the subset of node reads the trader performs. Satisfied by
// chain.Client.
type Chain interface {
	EthBalance(ctx context.Context, account common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, token, account common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	TokenDetails(ctx context.Context, token common.Address) (chain.TokenDetails, error)
}

// TxSubmitter signs and broadcasts transactions. Satisfied by chain.Signer.
type TxSubmitter interface {
	Address() common.Address
	SubmitTx(ctx context.Context, to common.Address, value *big.Int, calldata []byte) (common.Hash, error)
}

// ScamGate vets a token before funds move. Satisfied by scamgate.Gate.
type ScamGate interface {
	Check(ctx context.Context, token common.Address) error
}

// Ledger persists position milestones. Satisfied by ledger.Ledger.
type Ledger interface {
	Upsert(postHash string, u ledger.Update) error
}

// Notifier pushes trade alerts. Nil-safe usage is the caller's concern.
type Notifier interface {
	NotifyBuy(wallet, symbol string, token common.Address, txHash string, amountETH decimal.Decimal)
	NotifySell(symbol string, token common.Address, txHash string, reason string, profitLoss decimal.Decimal)
}

// History mirrors closed positions into the database for reporting.
type History interface {
	RecordOpen(postHash, wallet, symbol string, token common.Address, amountETH, entryPrice decimal.Decimal) error
	RecordClose(postHash, reason string, exitPrice, profitLoss decimal.Decimal) error
}
