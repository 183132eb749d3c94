package uploader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dverbin/mediavault/internal/logging"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

// respondWith returns a handler that fails the first failures requests
// with status, then succeeds with the given blob id. Every request's
// multipart body is checked for completeness, which proves the body is
// rebuilt fresh per attempt rather than replayed after consumption.
func respondWith(t *testing.T, failures int, status int, blobID string, seen *[]string) http.HandlerFunc {
	t.Helper()
	var mu sync.Mutex
	count := 0
	return func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		require.NoError(t, r.ParseMultipartForm(32<<20))
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		data, err := io.ReadAll(f)
		require.NoError(t, err)
		require.NotEmpty(t, data, "attempt %d sent an empty body", count+1)
		*seen = append(*seen, r.FormValue("seal_policy_id"))

		count++
		if count <= failures {
			w.WriteHeader(status)
			fmt.Fprintf(w, `{"error":"store busy"}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"blobId": blobID, "size": len(data), "deletable": false,
		})
	}
}

func TestUploadMedia_SuccessFirstAttempt(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(respondWith(t, 0, 0, "mainblob", &seen))
	defer srv.Close()

	sl := &recordingSleep{}
	s := NewWithClient(srv.URL, 10, 2*time.Second, srv.Client(), sl.sleep, testLogger())

	res, err := s.UploadMedia(context.Background(), []byte("cipher"), []byte("preview"), Options{
		SealPolicyID: "seal_abc", Epochs: 5, Metadata: []byte(`{"v":1}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "mainblob", res.Main.BlobID)
	assert.Equal(t, "mainblob", res.Preview.BlobID)
	assert.NotEmpty(t, res.Main.Checksum)
	assert.NotEqual(t, res.Main.Checksum, res.Preview.Checksum)
	assert.Empty(t, sl.delays)
	assert.Equal(t, []string{"seal_abc", "seal_abc"}, seen)
}

func TestUploadBlob_LinearBackoffAndFreshBodies(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(respondWith(t, 3, http.StatusServiceUnavailable, "blob", &seen))
	defer srv.Close()

	sl := &recordingSleep{}
	unit := 2 * time.Second
	s := NewWithClient(srv.URL, 10, unit, srv.Client(), sl.sleep, testLogger())

	res, err := s.uploadBlob(context.Background(), []byte("payload"), Options{SealPolicyID: "seal_x", Epochs: 1})
	require.NoError(t, err)
	assert.Equal(t, "blob", res.BlobID)

	// Linear backoff: delay before retry n+1 is n * unit.
	assert.Equal(t, []time.Duration{1 * unit, 2 * unit, 3 * unit}, sl.delays)
	// Four well-formed bodies reached the server.
	assert.Len(t, seen, 4)
}

func TestUploadBlob_ExhaustionPropagatesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"blob too large"}`)
	}))
	defer srv.Close()

	sl := &recordingSleep{}
	s := NewWithClient(srv.URL, 3, time.Second, srv.Client(), sl.sleep, testLogger())

	_, err := s.uploadBlob(context.Background(), []byte("x"), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 attempts")
	assert.Contains(t, err.Error(), "blob too large")
	assert.Len(t, sl.delays, 2)
}

func TestUploadMedia_MainFailureSkipsPreview(t *testing.T) {
	var requests int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sl := &recordingSleep{}
	s := NewWithClient(srv.URL, 2, time.Second, srv.Client(), sl.sleep, testLogger())

	_, err := s.UploadMedia(context.Background(), []byte("main"), []byte("preview"), Options{})
	require.Error(t, err)

	var pe *PreviewUploadError
	assert.False(t, errors.As(err, &pe), "main failure must not be a preview error")
	// Only the main blob's attempts hit the server.
	assert.Equal(t, 2, requests)
}

func TestUploadMedia_PreviewFailureIsCritical(t *testing.T) {
	var mu sync.Mutex
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		n := requests
		mu.Unlock()
		if n == 1 {
			json.NewEncoder(w).Encode(map[string]any{"blobId": "mainblob", "size": 4})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sl := &recordingSleep{}
	s := NewWithClient(srv.URL, 2, time.Second, srv.Client(), sl.sleep, testLogger())

	_, err := s.UploadMedia(context.Background(), []byte("main"), []byte("preview"), Options{})
	require.Error(t, err)

	var pe *PreviewUploadError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "mainblob", pe.Main.BlobID)
	assert.Contains(t, pe.Error(), "critical")
}

func TestUploadBlob_NotifyReportsRetryProgress(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(respondWith(t, 2, http.StatusBadGateway, "blob", &seen))
	defer srv.Close()

	sl := &recordingSleep{}
	s := NewWithClient(srv.URL, 10, time.Second, srv.Client(), sl.sleep, testLogger())

	var progress []string
	s.SetNotify(func(cur, max int) {
		progress = append(progress, fmt.Sprintf("%d/%d", cur, max))
	})

	_, err := s.uploadBlob(context.Background(), []byte("x"), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1/10", "2/10", "3/10"}, progress)
}

func TestUploadBlob_NetworkErrorRetries(t *testing.T) {
	// A client whose first call fails at the transport level.
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"blobId": "blob", "size": 1})
	}))
	defer srv.Close()

	inner := srv.Client()
	client := clientFunc(func(req *http.Request) (*http.Response, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			return nil, errors.New("connection reset by peer")
		}
		return inner.Do(req)
	})

	sl := &recordingSleep{}
	s := NewWithClient(srv.URL, 5, time.Second, client, sl.sleep, testLogger())

	res, err := s.uploadBlob(context.Background(), []byte("x"), Options{})
	require.NoError(t, err)
	assert.Equal(t, "blob", res.BlobID)
	assert.Equal(t, []time.Duration{time.Second}, sl.delays)
}

type clientFunc func(req *http.Request) (*http.Response, error)

func (f clientFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }
