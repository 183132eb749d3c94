// Package verify polls the external content verification service for a
// blob's quality/safety status. The service is asynchronous: a check is
// requested once and its status polled until it leaves "pending".
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dverbin/mediavault/internal/common"
	"github.com/dverbin/mediavault/internal/logging"
)

// Status of an asynchronous verification check.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// HTTPDoer is the subset of *http.Client used by the verify client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SleepFunc pauses between polls; tests inject a recording fake.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Client struct {
	baseURL string
	tokens  *TokenSource
	client  HTTPDoer
	sleep   SleepFunc
	log     logging.Logger
}

func New(baseURL string, tokens *TokenSource, log logging.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		client:  &http.Client{Timeout: 30 * time.Second},
		sleep:   sleepWithContext,
		log:     log,
	}
}

// NewWithClient is New with an injected HTTP client and sleep function.
func NewWithClient(baseURL string, tokens *TokenSource, client HTTPDoer, sleep SleepFunc, log logging.Logger) *Client {
	c := New(baseURL, tokens, log)
	c.client = client
	c.sleep = sleep
	return c
}

// RequestCheck asks the service to verify the blob and returns the check
// id to poll.
func (c *Client) RequestCheck(ctx context.Context, blobID string) (string, error) {
	var out struct {
		CheckID string `json:"checkId"`
	}
	body := fmt.Sprintf(`{"blobId":%q}`, blobID)
	if err := c.do(ctx, http.MethodPost, "/v1/checks", strings.NewReader(body), &out); err != nil {
		return "", fmt.Errorf("requesting verification: %w", err)
	}
	return out.CheckID, nil
}

// PollStatus polls the check until it leaves pending, with the same
// bounded exponential backoff the availability prober uses.
func (c *Client) PollStatus(ctx context.Context, checkID string, maxAttempts int, baseDelay time.Duration) (Status, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, err := c.getStatus(ctx, checkID)
		if err != nil {
			c.log.Debug(ctx, "verification status poll failed", "checkId", checkID, "error", err)
		} else if status != StatusPending {
			return status, nil
		}

		if attempt < maxAttempts {
			if err := c.sleep(ctx, baseDelay<<(attempt-1)); err != nil {
				return "", err
			}
		}
	}
	return "", fmt.Errorf("verification still pending after %d attempts", maxAttempts)
}

func (c *Client) getStatus(ctx context.Context, checkID string) (Status, error) {
	var out struct {
		Status Status `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/checks/"+checkID, nil, &out); err != nil {
		return "", err
	}
	switch out.Status {
	case StatusPending, StatusApproved, StatusRejected:
		return out.Status, nil
	}
	return "", fmt.Errorf("unknown verification status %q: %w", out.Status, common.ErrorInternal)
}

func (c *Client) do(ctx context.Context, method, path string, body *strings.Reader, out any) error {
	var req *http.Request
	var err error
	if body == nil {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	}
	if err != nil {
		return err
	}

	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("signing verification token: %w", err)
	}
	req.Header.Set(common.VerifyTokenHeaderName, "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("verification service returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
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
