package trader

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/copybot/internal/ledger"
	"github.com/web3guy0/copybot/internal/signal"
)

func TestPoolEnqueueBackpressure(t *testing.T) {
	cfg := testConfig()
	cfg.QueueSize = 2

	// No workers started, so the queue fills and the third offer drops.
	p := NewPool(cfg, nil, nil, nil, newFakeLedger(), nil, nil)

	assert.True(t, p.Enqueue(signal.Signal{TxHash: "0x1"}))
	assert.True(t, p.Enqueue(signal.Signal{TxHash: "0x2"}))
	assert.False(t, p.Enqueue(signal.Signal{TxHash: "0x3"}))
}

func TestPoolSellsPositionWhenMonitoringCutOff(t *testing.T) {
	// A bought position is never abandoned: if monitoring is cut off by
	// the context ending, the sell still runs and the row records why
	// the loop stopped.
	cfg := testConfig()
	ch := &fakeChain{
		ethSeq:   []*big.Int{wei(1), wei(1), wei(2)},
		tokenSeq: []*big.Int{big.NewInt(0), wei(500)},
		allowSeq: []*big.Int{maxApproval},
		details:  testDetails(),
	}
	sub := &fakeSubmitter{}
	led := newFakeLedger()
	prices := &priceScript{prices: dec(0.0001)}

	buyer := NewBuyer(cfg, ch, prices, &fakeGate{}, sub, led)
	monitor := NewMonitor(prices, defaultMonitorConfig())
	seller := NewSeller(cfg, ch, sub, led)
	p := NewPool(cfg, buyer, monitor, seller, led, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sig := signal.Signal{
		FromName: "whale",
		TxHash:   "0xpost",
		ActionText: "Swapped 0.5 ETH for 1,000 TST " +
			"(https://etherscan.io/token/0x0000000000000000000000000000000000000001)",
	}
	p.process(ctx, 1, sig)

	require.Len(t, sub.calls, 2)
	assert.Equal(t, selSwapETHForTokens, sub.calls[0].selector())
	assert.Equal(t, selSwapTokensForETH, sub.calls[1].selector())
	assert.Equal(t, ledger.MarkYes, led.field("0xpost", "buy"))
	assert.Equal(t, ledger.MarkYes, led.field("0xpost", "sell"))
	assert.Contains(t, led.field("0xpost", "fail"), "Monitoring aborted")
}
