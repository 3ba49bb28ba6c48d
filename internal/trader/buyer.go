package trader

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/copybot/internal/chain"
	"github.com/web3guy0/copybot/internal/config"
	"github.com/web3guy0/copybot/internal/ledger"
	"github.com/web3guy0/copybot/internal/oracle"
)

var one = decimal.NewFromInt(1)

// Buyer opens a position: vets the token, quotes an entry price and
// swaps ETH into it through the V2 router.
type Buyer struct {
	cfg       *config.Config
	chain     Chain
	prices    PriceSource
	gate      ScamGate
	submitter TxSubmitter
	ledger    Ledger

	weth   common.Address
	router common.Address
}

func NewBuyer(cfg *config.Config, ch Chain, prices PriceSource, gate ScamGate, submitter TxSubmitter, led Ledger) *Buyer {
	return &Buyer{
		cfg:       cfg,
		chain:     ch,
		prices:    prices,
		gate:      gate,
		submitter: submitter,
		ledger:    led,
		weth:      common.HexToAddress(cfg.WETHAddress),
		router:    common.HexToAddress(cfg.UniswapV2RouterAddress),
	}
}

// Execute runs the buy pipeline for a fresh position. On success the
// position holds the confirmed token amount and entry price. Milestones
// are written to the ledger as they happen so a crash never loses a
// broadcast transaction.
func (b *Buyer) Execute(ctx context.Context, pos *Position) error {
	pos.State = StateBuying
	pos.AmountETH = b.cfg.AmountOfETH

	if err := b.ledger.Upsert(pos.PostHash, ledger.Update{
		WalletName:  ledger.String(pos.WalletName),
		TokenHash:   ledger.String(strings.ToLower(pos.Token.Hex())),
		AmountOfETH: ledger.String(pos.AmountETH.String()),
	}); err != nil {
		return err
	}

	details, err := b.chain.TokenDetails(ctx, pos.Token)
	if err != nil {
		return b.fail(pos, "Reading token metadata failed", fmt.Errorf("failed to read token metadata: %w", err))
	}
	pos.TokenName = details.Name
	pos.TokenSymbol = details.Symbol
	pos.TokenDecimals = details.Decimals

	if err := b.ledger.Upsert(pos.PostHash, ledger.Update{
		TokenSymbol: ledger.String(pos.TokenSymbol),
	}); err != nil {
		return err
	}

	if err := b.gate.Check(ctx, pos.Token); err != nil {
		pos.State = StateRejected
		log.Warn().Str("token", pos.TokenSymbol).Err(err).Msg("🚫 Token rejected by scam gate")
		return b.fail(pos, err.Error(), err)
	}

	price, err := b.entryPrice(ctx, pos)
	if err != nil {
		return b.fail(pos, "No entry price available", fmt.Errorf("no entry price: %w", err))
	}
	pos.EntryPrice = price

	if b.cfg.EnableMarketCapFilter {
		if err := b.checkMarketCap(ctx, pos, details); err != nil {
			pos.State = StateRejected
			return b.fail(pos, err.Error(), err)
		}
	}

	balance, err := b.chain.EthBalance(ctx, b.submitter.Address())
	if err != nil {
		return b.fail(pos, "Reading ETH balance failed", fmt.Errorf("failed to read ETH balance: %w", err))
	}

	required := b.cfg.AmountOfETH.Add(b.cfg.GasReserveETH).Shift(18).BigInt()
	if balance.Cmp(required) < 0 {
		log.Warn().
			Str("balance", balance.String()).
			Str("required", required.String()).
			Msg("🚫 Not enough ETH for position plus gas reserve")
		return b.fail(pos, "Insufficient funds", ErrInsufficientFunds)
	}

	if !b.cfg.EnableTrading {
		log.Info().
			Str("token", pos.TokenSymbol).
			Str("entry_price", price.String()).
			Msg("🧪 Trading disabled, buy skipped")
		// A skipped buy is not a failure: the fail column stays empty
		// so dry-run rows are distinguishable from real aborts.
		_ = b.ledger.Upsert(pos.PostHash, ledger.Update{
			Buy: ledger.String(ledger.MarkNo),
		})
		return ErrTradingDisabled
	}

	pos.EthBaseline = balance

	tokensBefore, err := b.chain.TokenBalance(ctx, pos.Token, b.submitter.Address())
	if err != nil {
		return b.fail(pos, "Reading token balance failed", fmt.Errorf("failed to read token balance: %w", err))
	}

	estimated := b.cfg.AmountOfETH.Div(price)
	minOut := estimated.Mul(one.Sub(b.cfg.SlippageTolerance)).Shift(int32(pos.TokenDecimals)).BigInt()

	calldata, err := chain.SwapExactETHForTokensData(
		minOut,
		[]common.Address{b.weth, pos.Token},
		b.submitter.Address(),
		chain.SwapDeadline(time.Now()),
	)
	if err != nil {
		return b.fail(pos, "Building buy transaction failed", err)
	}

	value := b.cfg.AmountOfETH.Shift(18).BigInt()
	hash, err := backoff.Retry(ctx, func() (common.Hash, error) {
		return b.submitter.SubmitTx(ctx, b.router, value, calldata)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(b.cfg.RetryDelay)),
		backoff.WithMaxTries(uint(b.cfg.BuyMaxRetries)),
	)
	if err != nil {
		return b.fail(pos, "Buying tokens failed after retries", fmt.Errorf("buy swap failed: %w", err))
	}
	pos.BuyTx = hash.Hex()

	log.Info().
		Str("token", pos.TokenSymbol).
		Str("tx", pos.BuyTx).
		Str("amount_eth", pos.AmountETH.String()).
		Msg("🟢 Buy broadcast")

	// The broadcast is recorded before confirmation. If the balance poll
	// below times out the row is downgraded to ambiguous, never lost.
	if err := b.ledger.Upsert(pos.PostHash, ledger.Update{
		Buy:   ledger.String(ledger.MarkYes),
		BuyTx: ledger.String(pos.BuyTx),
	}); err != nil {
		return err
	}

	bought, err := b.awaitTokens(ctx, pos, tokensBefore)
	if err != nil {
		if errors.Is(err, ErrBalanceTimeout) {
			_ = b.ledger.Upsert(pos.PostHash, ledger.Update{
				Buy: ledger.String(ledger.MarkAmbiguous),
			})
		}
		return err
	}

	pos.TokensBought = bought
	pos.State = StateMonitoring

	log.Info().
		Str("token", pos.TokenSymbol).
		Str("tokens", bought.String()).
		Msg("✅ Buy confirmed")
	return nil
}

// entryPrice quotes the token, retrying briefly while pools settle.
func (b *Buyer) entryPrice(ctx context.Context, pos *Position) (decimal.Decimal, error) {
	op := func() (decimal.Decimal, error) {
		price, err := b.prices.TokenPrice(ctx, pos.Token, pos.TokenDecimals)
		if err != nil && !errors.Is(err, oracle.ErrUnavailable) {
			return decimal.Zero, backoff.Permanent(err)
		}
		return price, err
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(b.cfg.PriceRetryDelay)),
		backoff.WithMaxTries(3),
	)
}

// checkMarketCap enforces the configured USD band. A broken feed does
// not block the trade, only a confirmed out-of-band cap does.
func (b *Buyer) checkMarketCap(ctx context.Context, pos *Position, details chain.TokenDetails) error {
	mcap, err := b.prices.MarketCapUSD(ctx, pos.EntryPrice, details.TotalSupply, details.Decimals)
	if err != nil {
		log.Warn().Err(err).Str("token", pos.TokenSymbol).Msg("⚠️ Market cap unavailable, skipping filter")
		return nil
	}

	log.Info().Str("token", pos.TokenSymbol).Str("market_cap_usd", mcap.Round(0).String()).Msg("Market cap")

	if b.cfg.MinMarketCap.IsPositive() && mcap.LessThan(b.cfg.MinMarketCap) {
		return fmt.Errorf("market cap %s USD: %w", mcap.Round(0).String(), ErrMarketCapTooLow)
	}
	if b.cfg.MaxMarketCap.IsPositive() && mcap.GreaterThan(b.cfg.MaxMarketCap) {
		return fmt.Errorf("market cap %s USD above ceiling", mcap.Round(0).String())
	}
	return nil
}

// awaitTokens polls until the wallet's token balance rises above the
// pre-buy snapshot and returns the delta.
func (b *Buyer) awaitTokens(ctx context.Context, pos *Position, before *big.Int) (*big.Int, error) {
	for attempt := 0; attempt < b.cfg.BalanceMaxAttempts; attempt++ {
		current, err := b.chain.TokenBalance(ctx, pos.Token, b.submitter.Address())
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Token balance poll failed")
		} else if current.Cmp(before) > 0 {
			return new(big.Int).Sub(current, before), nil
		}

		if err := ctxSleep(ctx, b.cfg.BalancePollDelay); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("buy %s: %w", pos.BuyTx, ErrBalanceTimeout)
}

// fail marks the ledger row failed, recording why, and sets the
// terminal state.
func (b *Buyer) fail(pos *Position, reason string, cause error) error {
	if pos.State != StateRejected {
		pos.State = StateFailed
	}
	_ = b.ledger.Upsert(pos.PostHash, ledger.Update{
		Buy:  ledger.String(ledger.MarkNo),
		Fail: ledger.String(reason),
	})
	return cause
}
