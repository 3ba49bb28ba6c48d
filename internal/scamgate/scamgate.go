package scamgate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

// ErrScamDetected rejects a token before any funds move.
var ErrScamDetected = errors.New("token flagged as scam")

// Verdict is the classifier's opinion of a token.
type Verdict int

const (
	// VerdictUnknown means the analyzer has not finished processing the
	// token yet. The gate re-asks after a delay.
	VerdictUnknown Verdict = iota
	VerdictClean
	VerdictScam
)

// Checker classifies a token address.
type Checker interface {
	Check(ctx context.Context, token common.Address) (Verdict, error)
}

// HTTPChecker scrapes an external analyzer page for the token.
type HTTPChecker struct {
	baseURL string
	client  *http.Client
}

func NewHTTPChecker(baseURL string) *HTTPChecker {
	return &HTTPChecker{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Check fetches the analyzer page for the token and scans the body.
func (c *HTTPChecker) Check(ctx context.Context, token common.Address) (Verdict, error) {
	url := c.baseURL + "/" + strings.ToLower(token.Hex())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return VerdictUnknown, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return VerdictUnknown, fmt.Errorf("analyzer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return VerdictUnknown, fmt.Errorf("analyzer returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return VerdictUnknown, fmt.Errorf("failed to read analyzer response: %w", err)
	}

	page := strings.ToLower(string(body))
	switch {
	case strings.Contains(page, "not analyzed") || strings.Contains(page, "analyzing"):
		return VerdictUnknown, nil
	case strings.Contains(page, "scam"):
		return VerdictScam, nil
	default:
		return VerdictClean, nil
	}
}

// Gate wraps a Checker with the retry policy applied before every buy.
// Transport errors get short constant-interval retries; an unknown
// verdict gets a slower outer re-ask loop.
type Gate struct {
	checker Checker
	enabled bool

	retries    int
	retryDelay time.Duration

	transientTries uint
	transientDelay time.Duration
}

func NewGate(checker Checker, enabled bool, retries int, retryDelay time.Duration, transientTries uint, transientDelay time.Duration) *Gate {
	return &Gate{
		checker:        checker,
		enabled:        enabled,
		retries:        retries,
		retryDelay:     retryDelay,
		transientTries: transientTries,
		transientDelay: transientDelay,
	}
}

// Check blocks until the token resolves to clean, or the retry budget
// runs out. Scam and not-yet-analyzed verdicts both get re-asked: early
// analyzer results flip as the analysis completes, so a single scam
// reading is not trusted until it survives the whole budget. A
// classifier that stays unreachable fails open: the analyzer being down
// should not halt trading.
func (g *Gate) Check(ctx context.Context, token common.Address) error {
	if !g.enabled {
		return nil
	}

	verdict := VerdictUnknown
	for attempt := 1; attempt <= g.retries; attempt++ {
		var err error
		verdict, err = g.resolve(ctx, token)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Str("token", token.Hex()).Msg("⚠️ Scam check unreachable, allowing token")
			return nil
		}

		if verdict == VerdictClean {
			log.Info().Str("token", token.Hex()).Msg("✅ Scam check passed")
			return nil
		}

		if attempt < g.retries {
			log.Info().
				Str("token", token.Hex()).
				Int("attempt", attempt).
				Bool("scam", verdict == VerdictScam).
				Msg("⏳ Token not cleared yet, re-checking")
			select {
			case <-time.After(g.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	if verdict == VerdictScam {
		return ErrScamDetected
	}
	return fmt.Errorf("unresolved after %d attempts: %w", g.retries, ErrScamDetected)
}

// resolve asks the checker once, retrying transport errors on a constant
// interval.
func (g *Gate) resolve(ctx context.Context, token common.Address) (Verdict, error) {
	op := func() (Verdict, error) {
		return g.checker.Check(ctx, token)
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(g.transientDelay)),
		backoff.WithMaxTries(g.transientTries),
	)
}
