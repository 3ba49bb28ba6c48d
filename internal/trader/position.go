package trader

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds means the wallet cannot cover the buy amount
	// plus the gas reserve.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrBalanceTimeout means a broadcast swap never showed up as a
	// balance change within the poll budget. The outcome is ambiguous.
	ErrBalanceTimeout = errors.New("balance change not observed")

	// ErrApprovalTimeout means the router allowance never confirmed.
	ErrApprovalTimeout = errors.New("approval not observed")

	// ErrTradingDisabled is returned on the dry-run path where the full
	// decision pipeline runs but no transaction is broadcast.
	ErrTradingDisabled = errors.New("trading disabled")

	// ErrMarketCapTooLow rejects tokens under the configured floor.
	ErrMarketCapTooLow = errors.New("market cap below floor")
)

// State tracks where a position sits in its lifecycle.
type State string

const (
	StateRejected   State = "REJECTED"
	StateBuying     State = "BUYING"
	StateMonitoring State = "MONITORING"
	StateSelling    State = "SELLING"
	StateClosed     State = "CLOSED"
	StateFailed     State = "FAILED"
)

// ExitReason names the rule that closed a position.
type ExitReason string

const (
	ExitTakeProfit ExitReason = "take-profit"
	ExitStopLoss   ExitReason = "stop-loss"
	ExitNoChange   ExitReason = "no-change"

	// ExitAborted closes a position whose monitoring loop was cut off,
	// typically by shutdown. The sell still runs.
	ExitAborted ExitReason = "aborted"
)

// Position is one copied trade from signal to close.
type Position struct {
	// PostHash is the watched wallet's transaction hash. It keys the
	// ledger row for the position's whole lifetime.
	PostHash   string
	WalletName string

	Token         common.Address
	TokenName     string
	TokenSymbol   string
	TokenDecimals uint8

	AmountETH  decimal.Decimal
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal

	// EthBaseline is the wallet's wei balance before the buy. P/L is
	// measured against it after the sell confirms.
	EthBaseline  *big.Int
	TokensBought *big.Int

	BuyTx  string
	SellTx string
	State  State
}
