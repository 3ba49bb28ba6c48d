package trader

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/copybot/internal/chain"
	"github.com/web3guy0/copybot/internal/config"
	"github.com/web3guy0/copybot/internal/ledger"
)

// maxApproval is the unlimited allowance granted to the router once per
// token so repeat sells skip the approve round-trip.
var maxApproval = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Seller closes a position: swaps the tokens back to ETH and settles the
// realized P/L against the pre-buy baseline.
type Seller struct {
	cfg       *config.Config
	chain     Chain
	submitter TxSubmitter
	ledger    Ledger

	weth   common.Address
	router common.Address
}

func NewSeller(cfg *config.Config, ch Chain, submitter TxSubmitter, led Ledger) *Seller {
	return &Seller{
		cfg:       cfg,
		chain:     ch,
		submitter: submitter,
		ledger:    led,
		weth:      common.HexToAddress(cfg.WETHAddress),
		router:    common.HexToAddress(cfg.UniswapV2RouterAddress),
	}
}

// Execute sells the position and returns the realized P/L in ETH. Tokens
// that tax transfers revert the plain swap with a constant-product check
// failure; those fall back to the fee-on-transfer router method within
// the same retry budget.
func (s *Seller) Execute(ctx context.Context, pos *Position, reason ExitReason) (decimal.Decimal, error) {
	pos.State = StateSelling
	wallet := s.submitter.Address()

	sellAmount := new(big.Int).Set(pos.TokensBought)
	if reason == ExitTakeProfit && s.cfg.Moonbag.IsPositive() {
		keep := decimal.NewFromBigInt(pos.TokensBought, 0).Mul(s.cfg.Moonbag).BigInt()
		sellAmount.Sub(sellAmount, keep)
		log.Info().
			Str("token", pos.TokenSymbol).
			Str("moonbag", keep.String()).
			Msg("🌙 Keeping moonbag")
	}

	balance, err := s.chain.TokenBalance(ctx, pos.Token, wallet)
	if err != nil {
		return decimal.Zero, s.fail(pos, "Reading token balance failed", fmt.Errorf("failed to read token balance: %w", err))
	}
	// A balance below the confirmed buy amount means tokens moved out
	// from under the bot. Selling whatever is left would hide that, so
	// the position aborts for manual reconciliation instead.
	if balance.Cmp(sellAmount) < 0 {
		return decimal.Zero, s.fail(pos, "Insufficient token balance",
			fmt.Errorf("%s balance %s below sell amount %s", pos.TokenSymbol, balance, sellAmount))
	}

	if err := s.ensureAllowance(ctx, pos, sellAmount); err != nil {
		return decimal.Zero, s.fail(pos, "approval failed", err)
	}

	ethBefore, err := s.chain.EthBalance(ctx, wallet)
	if err != nil {
		return decimal.Zero, s.fail(pos, "Reading ETH balance failed", fmt.Errorf("failed to read ETH balance: %w", err))
	}

	hash, err := s.swap(ctx, pos, sellAmount)
	if err != nil {
		return decimal.Zero, s.fail(pos, "Selling token failed", err)
	}
	pos.SellTx = hash.Hex()

	log.Info().
		Str("token", pos.TokenSymbol).
		Str("tx", pos.SellTx).
		Str("reason", string(reason)).
		Msg("🔴 Sell broadcast")

	if err := s.ledger.Upsert(pos.PostHash, ledger.Update{
		Sell:   ledger.String(ledger.MarkYes),
		SellTx: ledger.String(pos.SellTx),
	}); err != nil {
		return decimal.Zero, err
	}

	final, err := s.awaitETH(ctx, ethBefore)
	if err != nil {
		if errors.Is(err, ErrBalanceTimeout) {
			_ = s.ledger.Upsert(pos.PostHash, ledger.Update{
				Sell: ledger.String(ledger.MarkAmbiguous),
			})
			return decimal.Zero, fmt.Errorf("sell %s: %w", pos.SellTx, ErrBalanceTimeout)
		}
		return decimal.Zero, err
	}

	pnl := decimal.NewFromBigInt(new(big.Int).Sub(final, pos.EthBaseline), 0).Shift(-18)
	if err := s.ledger.Upsert(pos.PostHash, ledger.Update{
		ProfitLoss: ledger.String(pnl.String()),
	}); err != nil {
		return decimal.Zero, err
	}

	pos.State = StateClosed
	log.Info().
		Str("token", pos.TokenSymbol).
		Str("profit_loss_eth", pnl.String()).
		Msg("💰 Position closed")
	return pnl, nil
}

// ensureAllowance grants the router an unlimited allowance when the
// current one cannot cover the sell, then waits for it to confirm.
func (s *Seller) ensureAllowance(ctx context.Context, pos *Position, sellAmount *big.Int) error {
	wallet := s.submitter.Address()

	allowance, err := s.chain.Allowance(ctx, pos.Token, wallet, s.router)
	if err != nil {
		return fmt.Errorf("failed to read allowance: %w", err)
	}
	if allowance.Cmp(sellAmount) >= 0 {
		return nil
	}

	calldata, err := chain.ApproveData(s.router, maxApproval)
	if err != nil {
		return err
	}
	hash, err := s.submitter.SubmitTx(ctx, pos.Token, nil, calldata)
	if err != nil {
		return fmt.Errorf("approve failed: %w", err)
	}
	log.Info().Str("token", pos.TokenSymbol).Str("tx", hash.Hex()).Msg("🔓 Approval broadcast")

	confirmed := false
	for attempt := 0; attempt < s.cfg.ApprovalMaxAttempts; attempt++ {
		allowance, err = s.chain.Allowance(ctx, pos.Token, wallet, s.router)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Allowance poll failed")
		} else if allowance.Cmp(sellAmount) >= 0 {
			confirmed = true
			break
		}
		if err := ctxSleep(ctx, s.cfg.ApprovalPollDelay); err != nil {
			return err
		}
	}
	if !confirmed {
		return fmt.Errorf("approve %s: %w", hash.Hex(), ErrApprovalTimeout)
	}

	// Some nodes report the allowance before the router can spend it.
	return ctxSleep(ctx, s.cfg.ApprovalSettleDelay)
}

// swap broadcasts the sell, falling back to the fee-on-transfer variant
// when the plain swap reverts on the constant-product check. Both paths
// draw from the same retry budget.
func (s *Seller) swap(ctx context.Context, pos *Position, sellAmount *big.Int) (common.Hash, error) {
	minOut := big.NewInt(0)
	if pos.ExitPrice.IsPositive() {
		tokens := decimal.NewFromBigInt(sellAmount, 0).Shift(-int32(pos.TokenDecimals))
		minOut = pos.ExitPrice.Mul(tokens).Mul(one.Sub(s.cfg.SlippageTolerance)).Shift(18).BigInt()
	}

	path := []common.Address{pos.Token, s.weth}
	var lastErr error

	for attempt := 1; attempt <= s.cfg.SellMaxRetries; attempt++ {
		deadline := chain.SwapDeadline(time.Now())

		calldata, err := chain.SwapExactTokensForETHData(sellAmount, minOut, path, s.submitter.Address(), deadline)
		if err != nil {
			return common.Hash{}, err
		}
		hash, err := s.submitter.SubmitTx(ctx, s.router, nil, calldata)
		if err == nil {
			return hash, nil
		}
		lastErr = err

		if isFeeOnTransferRevert(err) {
			log.Warn().Str("token", pos.TokenSymbol).Msg("⚠️ Swap hit K check, trying fee-on-transfer variant")
			calldata, err = chain.SwapSupportingFeeData(sellAmount, minOut, path, s.submitter.Address(), deadline)
			if err != nil {
				return common.Hash{}, err
			}
			hash, err = s.submitter.SubmitTx(ctx, s.router, nil, calldata)
			if err == nil {
				return hash, nil
			}
			lastErr = err
		}

		if ctx.Err() != nil {
			return common.Hash{}, ctx.Err()
		}
		log.Warn().
			Err(lastErr).
			Int("attempt", attempt).
			Str("token", pos.TokenSymbol).
			Msg("⚠️ Sell attempt failed")
		if err := ctxSleep(ctx, s.cfg.RetryDelay); err != nil {
			return common.Hash{}, err
		}
	}

	return common.Hash{}, fmt.Errorf("sell failed after %d attempts: %w", s.cfg.SellMaxRetries, lastErr)
}

// isFeeOnTransferRevert recognizes the constant-product revert thrown
// when a token takes a transfer tax the plain swap cannot account for.
func isFeeOnTransferRevert(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UniswapV2: K")
}

// awaitETH polls until the wallet's ETH balance rises above the pre-sell
// snapshot and returns the final balance.
func (s *Seller) awaitETH(ctx context.Context, before *big.Int) (*big.Int, error) {
	for attempt := 0; attempt < s.cfg.BalanceMaxAttempts; attempt++ {
		current, err := s.chain.EthBalance(ctx, s.submitter.Address())
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ ETH balance poll failed")
		} else if current.Cmp(before) > 0 {
			return current, nil
		}
		if err := ctxSleep(ctx, s.cfg.BalancePollDelay); err != nil {
			return nil, err
		}
	}
	return nil, ErrBalanceTimeout
}

// fail marks the ledger row failed, recording why, and sets the
// terminal state.
func (s *Seller) fail(pos *Position, reason string, cause error) error {
	pos.State = StateFailed
	_ = s.ledger.Upsert(pos.PostHash, ledger.Update{
		Sell: ledger.String(ledger.MarkNo),
		Fail: ledger.String(reason),
	})
	return cause
}
