package trader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/copybot/internal/config"
	"github.com/web3guy0/copybot/internal/ledger"
	"github.com/web3guy0/copybot/internal/scamgate"
	"github.com/web3guy0/copybot/internal/signal"
)

// Pool runs position lifecycles on a fixed set of workers fed from a
// bounded queue. Enqueue never blocks: a full queue drops the signal and
// the caller reports backpressure to the feed.
type Pool struct {
	cfg      *config.Config
	buyer    *Buyer
	monitor  *Monitor
	seller   *Seller
	ledger   Ledger
	notifier Notifier
	history  History

	queue chan signal.Signal
	wg    sync.WaitGroup
}

func NewPool(cfg *config.Config, buyer *Buyer, monitor *Monitor, seller *Seller, led Ledger, notifier Notifier, history History) *Pool {
	return &Pool{
		cfg:      cfg,
		buyer:    buyer,
		monitor:  monitor,
		seller:   seller,
		ledger:   led,
		notifier: notifier,
		history:  history,
		queue:    make(chan signal.Signal, cfg.QueueSize),
	}
}

// Start spins up the workers. They exit when Stop closes the queue;
// in-flight positions run to completion first, so shutdown must stop
// the pool before canceling the shared context.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i+1)
	}
	log.Info().Int("workers", p.cfg.WorkerCount).Int("queue", p.cfg.QueueSize).Msg("👷 Worker pool started")
}

// Enqueue offers a signal to the pool. False means the queue is full.
func (p *Pool) Enqueue(sig signal.Signal) bool {
	select {
	case p.queue <- sig:
		return true
	default:
		return false
	}
}

// Stop closes the queue and waits for in-flight positions to finish.
func (p *Pool) Stop() {
	close(p.queue)
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for sig := range p.queue {
		p.process(ctx, id, sig)
	}
}

// process drives one signal through its whole lifecycle. A panic in any
// stage fails the position's ledger row instead of killing the worker.
func (p *Pool) process(ctx context.Context, workerID int, sig signal.Signal) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("post_hash", sig.TxHash).
				Int("worker", workerID).
				Msg("💥 Position crashed")
			_ = p.ledger.Upsert(sig.TxHash, ledger.Update{
				Fail: ledger.String(fmt.Sprintf("Unexpected error: %v", r)),
			})
		}
	}()

	token, ok := sig.TokenAddress()
	if !ok {
		log.Debug().Str("tx", sig.TxHash).Msg("Signal is not a buy, skipping")
		return
	}

	if len(p.cfg.WatchedWallets) > 0 {
		if _, watched := p.cfg.WatchedWallets[sig.FromName]; !watched {
			log.Debug().Str("wallet", sig.FromName).Msg("Wallet not watched, skipping")
			return
		}
	}

	pos := &Position{
		PostHash:   sig.TxHash,
		WalletName: sig.FromName,
		Token:      token,
	}

	log.Info().
		Str("wallet", pos.WalletName).
		Str("token", token.Hex()).
		Str("post_hash", pos.PostHash).
		Int("worker", workerID).
		Msg("📥 Copying trade")

	if err := p.buyer.Execute(ctx, pos); err != nil {
		switch {
		case errors.Is(err, ErrTradingDisabled):
			log.Info().Str("token", token.Hex()).Msg("🧪 Dry run complete")
		case errors.Is(err, scamgate.ErrScamDetected),
			errors.Is(err, ErrMarketCapTooLow),
			errors.Is(err, ErrInsufficientFunds):
			log.Warn().Err(err).Str("token", token.Hex()).Msg("🚫 Position rejected")
		default:
			log.Error().Err(err).Str("token", token.Hex()).Msg("❌ Buy failed")
		}
		return
	}

	if p.notifier != nil {
		p.notifier.NotifyBuy(pos.WalletName, pos.TokenSymbol, pos.Token, pos.BuyTx, pos.AmountETH)
	}
	if p.history != nil {
		if err := p.history.RecordOpen(pos.PostHash, pos.WalletName, pos.TokenSymbol, pos.Token, pos.AmountETH, pos.EntryPrice); err != nil {
			log.Warn().Err(err).Msg("⚠️ Failed to record open position")
		}
	}

	reason, err := p.monitor.Run(ctx, pos)
	if err != nil {
		// The monitor only errors when its context ends. The position
		// still gets a sell attempt so it is never silently abandoned,
		// and the row records why monitoring stopped in case the sell
		// cannot go through either.
		log.Error().Err(err).Str("token", pos.TokenSymbol).Msg("❌ Monitoring aborted, selling position")
		_ = p.ledger.Upsert(pos.PostHash, ledger.Update{
			Fail: ledger.String("Monitoring aborted: " + err.Error()),
		})
		reason = ExitAborted
	} else {
		log.Info().Str("token", pos.TokenSymbol).Str("reason", string(reason)).Msg("🏁 Exit rule fired")
	}

	pnl, err := p.seller.Execute(ctx, pos, reason)
	if err != nil {
		log.Error().Err(err).Str("token", pos.TokenSymbol).Msg("❌ Sell failed")
		return
	}

	if p.notifier != nil {
		p.notifier.NotifySell(pos.TokenSymbol, pos.Token, pos.SellTx, string(reason), pnl)
	}
	if p.history != nil {
		if err := p.history.RecordClose(pos.PostHash, string(reason), pos.ExitPrice, pnl); err != nil {
			log.Warn().Err(err).Msg("⚠️ Failed to record closed position")
		}
	}
}
