// Package uploader submits sealed blobs to the blob store's write endpoint
// ("publisher") with client-side retries. Each file results in two
// sequential sub-uploads: the main ciphertext blob and the small preview
// blob, each wrapped in its own retry loop.
package uploader

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/dverbin/mediavault/internal/logging"
	"github.com/dverbin/mediavault/internal/models"
)

// HTTPDoer is the subset of *http.Client used by the submitter.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SleepFunc pauses between retries; tests inject a recording fake.
type SleepFunc func(ctx context.Context, d time.Duration) error

// NotifyFunc reports live retry progress so the caller can render
// "(Retry 3/10)" while a blob is being retried.
type NotifyFunc func(currentRetry, maxRetries int)

// Options carries the per-file parameters of an upload.
type Options struct {
	SealPolicyID string
	// Epochs is the storage duration in the blob store's epoch units.
	Epochs int
	// Metadata is the opaque seal metadata document stored alongside.
	Metadata []byte
}

// Result pairs the two blob upload outcomes of one file. Both must exist
// before registration is attempted.
type Result struct {
	Main         models.BlobUploadResult
	Preview      models.BlobUploadResult
	SealPolicyID string
}

type Submitter struct {
	publisherURL string
	client       HTTPDoer
	sleep        SleepFunc
	log          logging.Logger
	maxAttempts  int
	retryUnit    time.Duration
	notify       NotifyFunc
}

// New builds a Submitter against the given publisher endpoint.
// maxAttempts bounds the retry loop per blob; retryUnit scales the linear
// backoff (delay before retry n+1 is n * retryUnit).
func New(publisherURL string, maxAttempts int, retryUnit time.Duration, log logging.Logger) *Submitter {
	return &Submitter{
		publisherURL: strings.TrimRight(publisherURL, "/"),
		client:       &http.Client{Timeout: 5 * time.Minute},
		sleep:        sleepWithContext,
		log:          log,
		maxAttempts:  maxAttempts,
		retryUnit:    retryUnit,
	}
}

// NewWithClient is New with an injected HTTP client and sleep function.
func NewWithClient(publisherURL string, maxAttempts int, retryUnit time.Duration, client HTTPDoer, sleep SleepFunc, log logging.Logger) *Submitter {
	s := New(publisherURL, maxAttempts, retryUnit, log)
	s.client = client
	s.sleep = sleep
	return s
}

// SetNotify installs the retry-progress hook.
func (s *Submitter) SetNotify(fn NotifyFunc) { s.notify = fn }

// UploadMedia uploads the main ciphertext blob, then the preview blob.
//
// If the main upload exhausts its retries the whole upload fails and the
// preview is never attempted. If the preview fails after the main blob
// succeeded, the error is a *PreviewUploadError: the pipeline must not
// proceed with a main blob but no preview, and the caller needs to message
// the user about the preview specifically rather than a generic failure.
func (s *Submitter) UploadMedia(ctx context.Context, media, preview []byte, opts Options) (*Result, error) {
	main, err := s.uploadBlob(ctx, media, opts)
	if err != nil {
		return nil, fmt.Errorf("main blob upload: %w", err)
	}

	prev, err := s.uploadBlob(ctx, preview, opts)
	if err != nil {
		return nil, &PreviewUploadError{Main: main, Err: err}
	}

	return &Result{Main: main, Preview: prev, SealPolicyID: opts.SealPolicyID}, nil
}

// uploadBlob runs the retry loop for a single blob. The multipart body is
// rebuilt fresh on every attempt: a request body stream can only be
// consumed once, so replaying a consumed body would send an empty payload.
func (s *Submitter) uploadBlob(ctx context.Context, blob []byte, opts Options) (models.BlobUploadResult, error) {
	var lastErr error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if s.notify != nil {
			s.notify(attempt, s.maxAttempts)
		}

		result, err := s.attemptUpload(ctx, blob, opts)
		if err == nil {
			sum := blake3.Sum256(blob)
			result.Checksum = hex.EncodeToString(sum[:])
			return result, nil
		}
		lastErr = err
		s.log.Warn(ctx, "blob upload attempt failed",
			"attempt", attempt, "maxAttempts", s.maxAttempts, "error", err)

		if attempt < s.maxAttempts {
			if serr := s.sleep(ctx, time.Duration(attempt)*s.retryUnit); serr != nil {
				return models.BlobUploadResult{}, serr
			}
		}
	}

	return models.BlobUploadResult{}, fmt.Errorf("upload failed after %d attempts: %w", s.maxAttempts, lastErr)
}

func (s *Submitter) attemptUpload(ctx context.Context, blob []byte, opts Options) (models.BlobUploadResult, error) {
	var none models.BlobUploadResult

	body, contentType, err := buildBody(blob, opts)
	if err != nil {
		return none, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.publisherURL+"/v1/blobs", body)
	if err != nil {
		return none, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return none, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return none, fmt.Errorf("publisher returned %d: %s", resp.StatusCode, errorDetail(resp.Body))
	}

	var result models.BlobUploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return none, fmt.Errorf("decoding publisher response: %w", err)
	}
	if result.BlobID == "" {
		return none, fmt.Errorf("publisher response missing blobId")
	}
	return result, nil
}

// buildBody constructs a fresh multipart payload for one attempt.
func buildBody(blob []byte, opts Options) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	part, err := w.CreateFormFile("file", "blob")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(blob); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("seal_policy_id", opts.SealPolicyID); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("epochs", strconv.Itoa(opts.Epochs)); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("metadata", string(opts.Metadata)); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return buf, w.FormDataContentType(), nil
}

// errorDetail extracts a human-readable message from an error response
// body, preferring a JSON {"error": "..."} shape over the raw text.
func errorDetail(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return "no detail"
	}

	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return string(data)
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
