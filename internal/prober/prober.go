// Package prober confirms that a blob is retrievable from at least one of
// a ranked list of read mirrors ("aggregators"). The blob store has
// eventual read-after-write consistency: a fresh write may be visible on
// one mirror and take tens of seconds to reach others, and some mirrors
// can be permanently unreachable for a given client. The prober tries all
// mirrors per attempt and grows the delay between attempt rounds.
package prober

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dverbin/mediavault/internal/common"
	"github.com/dverbin/mediavault/internal/logging"
)

// HTTPDoer is the subset of *http.Client used by the prober.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SleepFunc pauses between attempt rounds. The default honors context
// cancellation; tests inject a recording fake.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Result reports the outcome of an availability check.
type Result struct {
	Exists bool
	// Aggregator is the mirror that answered affirmatively, when Exists.
	Aggregator string
}

type Prober struct {
	aggregators []string
	client      HTTPDoer
	sleep       SleepFunc
	log         logging.Logger
}

// New builds a Prober over the given ranked mirror list. The operator's
// primary endpoint is expected to be first.
func New(aggregators []string, log logging.Logger) *Prober {
	return &Prober{
		aggregators: aggregators,
		client:      &http.Client{Timeout: 30 * time.Second},
		sleep:       sleepWithContext,
		log:         log,
	}
}

// NewWithClient is New with an injected HTTP client and sleep function.
func NewWithClient(aggregators []string, client HTTPDoer, sleep SleepFunc, log logging.Logger) *Prober {
	return &Prober{aggregators: aggregators, client: client, sleep: sleep, log: log}
}

// VerifyBlobExists checks blobID against every aggregator in rank order,
// up to maxAttempts rounds. A network failure against one aggregator falls
// through to the next within the same round; the first affirmative answer
// wins. Between rounds it sleeps baseDelay * 2^(attempt-1), so the first
// retry delay equals baseDelay.
//
// On exhaustion the returned error wraps common.ErrBlobNotFound and names
// the literal attempt count.
func (p *Prober) VerifyBlobExists(ctx context.Context, blobID string, maxAttempts int, baseDelay time.Duration) (Result, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		for _, aggregator := range p.aggregators {
			ok, err := p.checkOne(ctx, aggregator, blobID)
			if err != nil {
				// One mirror being down is absorbed silently; the next
				// mirror in the list gets its turn in the same round.
				p.log.Debug(ctx, "aggregator check failed", "aggregator", aggregator, "blobId", blobID, "error", err)
				continue
			}
			if ok {
				return Result{Exists: true, Aggregator: aggregator}, nil
			}
		}

		if attempt < maxAttempts {
			delay := backoffDelay(baseDelay, attempt)
			p.log.Debug(ctx, "blob not yet available, backing off",
				"blobId", blobID, "attempt", attempt, "delay", delay)
			if err := p.sleep(ctx, delay); err != nil {
				return Result{}, err
			}
		}
	}

	return Result{}, fmt.Errorf("%w after %d attempts", common.ErrBlobNotFound, maxAttempts)
}

// checkOne issues a lightweight existence check against a single mirror.
// A malformed response is treated the same as not-found, not as fatal.
func (p *Prober) checkOne(ctx context.Context, aggregator, blobID string) (bool, error) {
	url := fmt.Sprintf("%s/v1/blobs/%s", strings.TrimRight(aggregator, "/"), blobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// backoffDelay returns baseDelay * 2^(attempt-1). Attempts are 1-indexed.
func backoffDelay(baseDelay time.Duration, attempt int) time.Duration {
	return baseDelay << (attempt - 1)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
