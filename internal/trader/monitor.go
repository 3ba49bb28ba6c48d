package trader

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// MonitorConfig are the exit rules applied to an open position.
type MonitorConfig struct {
	Interval        time.Duration
	PriceRetryDelay time.Duration

	// IncreaseThreshold and DecreaseThreshold are fractions of the entry
	// price: 0.5 takes profit at +50%, 0.2 stops loss at -20%.
	IncreaseThreshold decimal.Decimal
	DecreaseThreshold decimal.Decimal

	// NoChange exits flat positions: when every price seen inside a
	// window stays within NoChangeThreshold of the window's first
	// sample in both directions, the position is closed. Anchoring on
	// the window rather than the entry price catches a token that
	// jumped early and then went dead at the new level.
	NoChangeEnabled   bool
	NoChangeThreshold decimal.Decimal
	NoChangeWindow    time.Duration
}

// Monitor watches an open position's price until an exit rule fires.
type Monitor struct {
	prices PriceSource
	cfg    MonitorConfig

	// Seams for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewMonitor(prices PriceSource, cfg MonitorConfig) *Monitor {
	return &Monitor{
		prices: prices,
		cfg:    cfg,
		now:    time.Now,
		sleep:  ctxSleep,
	}
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type priceSample struct {
	at    time.Time
	price decimal.Decimal
}

// Run blocks until an exit rule fires and returns the reason. The exit
// price is written back into the position. Any price error retries the
// same tick after a short delay rather than counting as a sample: an
// open position must never be abandoned over a flaky node, so the only
// way out of the loop is an exit rule or the context ending.
func (m *Monitor) Run(ctx context.Context, pos *Position) (ExitReason, error) {
	entry := pos.EntryPrice
	windowStart := m.now()
	var samples []priceSample

	log.Info().
		Str("token", pos.TokenSymbol).
		Str("entry_price", entry.String()).
		Msg("👀 Monitoring position")

	for {
		if err := m.sleep(ctx, m.cfg.Interval); err != nil {
			return "", err
		}

		price, err := m.prices.TokenPrice(ctx, pos.Token, pos.TokenDecimals)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			log.Warn().Err(err).Str("token", pos.TokenSymbol).Msg("⚠️ Price check failed, retrying")
			if err := m.sleep(ctx, m.cfg.PriceRetryDelay); err != nil {
				return "", err
			}
			continue
		}

		change := price.Sub(entry).Div(entry)
		log.Debug().
			Str("token", pos.TokenSymbol).
			Str("price", price.String()).
			Str("change", change.String()).
			Msg("Price tick")

		if change.GreaterThanOrEqual(m.cfg.IncreaseThreshold) {
			pos.ExitPrice = price
			return ExitTakeProfit, nil
		}
		if change.Neg().GreaterThanOrEqual(m.cfg.DecreaseThreshold) {
			pos.ExitPrice = price
			return ExitStopLoss, nil
		}

		if !m.cfg.NoChangeEnabled {
			continue
		}

		samples = append(samples, priceSample{at: m.now(), price: price})
		flat, remaining, nextStart := evalFlatWindows(m.cfg.NoChangeThreshold, m.cfg.NoChangeWindow, windowStart, m.now(), samples)
		windowStart, samples = nextStart, remaining
		if flat {
			pos.ExitPrice = price
			return ExitNoChange, nil
		}
	}
}

// evalFlatWindows partitions elapsed time into fixed windows starting at
// windowStart and evaluates every completed window in order. A completed
// window reports flat when both the rise above and the drop below its
// first sample stay inside the threshold band. Empty windows are
// skipped. Returns the remaining samples and the boundary of the first
// incomplete window.
func evalFlatWindows(threshold decimal.Decimal, window time.Duration, windowStart, now time.Time, samples []priceSample) (flat bool, remaining []priceSample, nextStart time.Time) {
	for now.Sub(windowStart) >= window {
		end := windowStart.Add(window)

		var inWindow []priceSample
		rest := samples[:0:0]
		for _, s := range samples {
			if s.at.Before(end) {
				inWindow = append(inWindow, s)
			} else {
				rest = append(rest, s)
			}
		}
		samples = rest
		windowStart = end

		if len(inWindow) == 0 {
			continue
		}

		first := inWindow[0].price
		max, min := first, first
		for _, s := range inWindow[1:] {
			if s.price.GreaterThan(max) {
				max = s.price
			}
			if s.price.LessThan(min) {
				min = s.price
			}
		}

		up := max.Sub(first).Div(first)
		down := first.Sub(min).Div(first)
		if up.LessThan(threshold) && down.LessThan(threshold) {
			return true, samples, windowStart
		}
	}
	return false, samples, windowStart
}
