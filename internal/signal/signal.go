package signal

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	txHashRe = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

	// buyRe matches the "Swapped 1.5 ETH For ..." phrasing of a
	// wallet-tracker buy alert. Sell alerts read "... For 1.5 ETH" and
	// must not match.
	buyRe = regexp.MustCompile(`(?i)\bETH\b[^<>]*\bfor\b`)

	// tokenLinkRe pulls the token contract out of the embedded
	// explorer link.
	tokenLinkRe = regexp.MustCompile(`etherscan\.io/token/(0x[0-9a-fA-F]{40})`)
)

// Signal is one wallet activity notification from the tracker feed.
type Signal struct {
	FromName   string `json:"from_name"`
	TxHash     string `json:"tx_hash"`
	ActionText string `json:"action_text"`
}

// Validate rejects malformed signals at the ingestion boundary so
// nothing downstream has to re-check shapes.
func (s Signal) Validate() error {
	if strings.TrimSpace(s.FromName) == "" {
		return fmt.Errorf("missing from_name")
	}
	if !txHashRe.MatchString(s.TxHash) {
		return fmt.Errorf("malformed tx_hash %q", s.TxHash)
	}
	if strings.TrimSpace(s.ActionText) == "" {
		return fmt.Errorf("missing action_text")
	}
	return nil
}

// TokenAddress extracts the bought token's contract address from a buy
// alert. Returns false for sells and anything else without an ETH-for-token
// phrasing or token link.
func (s Signal) TokenAddress() (common.Address, bool) {
	if !buyRe.MatchString(s.ActionText) {
		return common.Address{}, false
	}
	m := tokenLinkRe.FindStringSubmatch(s.ActionText)
	if m == nil {
		return common.Address{}, false
	}
	return common.HexToAddress(m[1]), true
}
