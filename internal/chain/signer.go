package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// FeeConfig controls how EIP-1559 fee caps are derived from the
// current base fee and suggested tip.
type FeeConfig struct {
	// Automatic uses feeCap = 2*baseFee + tip with the node's tip
	// suggestion untouched.
	Automatic bool

	// Manual mode multipliers. feeCap = (baseFee*Base + tip*Priority) * Total
	// and tipCap = tip*Priority.
	BaseMultiplier     decimal.Decimal
	PriorityMultiplier decimal.Decimal
	TotalMultiplier    decimal.Decimal
}

// ComputeFees turns the head base fee and suggested tip into the fee cap
// and tip cap for a dynamic-fee transaction.
func ComputeFees(baseFee, suggestedTip *big.Int, cfg FeeConfig) (feeCap, tipCap *big.Int) {
	if cfg.Automatic {
		feeCap = new(big.Int).Mul(baseFee, big.NewInt(2))
		feeCap.Add(feeCap, suggestedTip)
		return feeCap, new(big.Int).Set(suggestedTip)
	}

	base := mulWei(baseFee, cfg.BaseMultiplier)
	tipCap = mulWei(suggestedTip, cfg.PriorityMultiplier)
	feeCap = mulWei(new(big.Int).Add(base, tipCap), cfg.TotalMultiplier)
	return feeCap, tipCap
}

// mulWei scales a wei amount by a decimal multiplier, truncating the
// fractional part.
func mulWei(wei *big.Int, mult decimal.Decimal) *big.Int {
	return decimal.NewFromBigInt(wei, 0).Mul(mult).BigInt()
}

// Signer holds the hot wallet key and submits dynamic-fee transactions.
// Submission is serialized so concurrent positions never race on the nonce.
type Signer struct {
	mu      sync.Mutex
	client  *Client
	key     *ecdsa.PrivateKey
	address common.Address
	fees    FeeConfig
}

// NewSigner loads the hex-encoded private key and derives the wallet address.
func NewSigner(client *Client, hexKey string, fees FeeConfig) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	s := &Signer{
		client:  client,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		fees:    fees,
	}

	log.Info().Str("wallet", s.address.Hex()).Msg("🔑 Hot wallet loaded")
	return s, nil
}

// Address returns the hot wallet address.
func (s *Signer) Address() common.Address {
	return s.address
}

// SubmitTx signs and broadcasts a transaction to the given contract and
// returns its hash. Nonce, gas limit and fees are resolved at send time
// under the lock.
func (s *Signer) SubmitTx(ctx context.Context, to common.Address, value *big.Int, calldata []byte) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if value == nil {
		value = big.NewInt(0)
	}

	nonce, err := s.client.eth.PendingNonceAt(ctx, s.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch nonce: %w", err)
	}

	gas, err := s.client.eth.EstimateGas(ctx, ethereum.CallMsg{
		From:  s.address,
		To:    &to,
		Value: value,
		Data:  calldata,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas estimation failed: %w", err)
	}

	tip, err := s.client.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch tip suggestion: %w", err)
	}

	head, err := s.client.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch head: %w", err)
	}
	if head.BaseFee == nil {
		return common.Hash{}, fmt.Errorf("node did not report a base fee")
	}

	feeCap, tipCap := ComputeFees(head.BaseFee, tip, s.fees)

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.client.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      calldata,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.client.chainID), s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := s.client.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("failed to broadcast transaction: %w", err)
	}

	log.Debug().
		Str("tx", signed.Hash().Hex()).
		Uint64("nonce", nonce).
		Uint64("gas", gas).
		Str("fee_cap", feeCap.String()).
		Str("tip_cap", tipCap.String()).
		Msg("📤 Transaction broadcast")

	return signed.Hash(), nil
}
