package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dverbin/mediavault/internal/config"
	"github.com/dverbin/mediavault/internal/logging"
	"github.com/dverbin/mediavault/internal/models"
	"github.com/dverbin/mediavault/internal/recovery"
	"github.com/dverbin/mediavault/internal/statestore"
)

// testApp builds an App over an in-memory ledger, without a database or
// terminal.
func testApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	cfg := &config.Config{}
	cfg.LoadDefaults()

	var out bytes.Buffer
	return &App{
		config: cfg,
		log:    log,
		ledger: recovery.NewLedger(statestore.NewMemoryStore(), log),
		out:    &out,
	}, &out
}

func TestRun_UnknownCommand(t *testing.T) {
	a, out := testApp(t)
	err := a.Run(context.Background(), []string{"frobnicate"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown command "frobnicate"`)
	assert.Contains(t, out.String(), "Usage:")
}

func TestRun_NoArgsShowsUsage(t *testing.T) {
	a, out := testApp(t)
	require.NoError(t, a.Run(context.Background(), nil))
	assert.Contains(t, out.String(), "publish <file>")
}

func TestStatus_Empty(t *testing.T) {
	a, out := testApp(t)
	require.NoError(t, a.Run(context.Background(), []string{"status"}))
	assert.Contains(t, out.String(), "No pending uploads.")
}

func TestStatus_ListsRecordsSorted(t *testing.T) {
	a, out := testApp(t)
	ctx := context.Background()

	for _, id := range []string{"file-b", "file-a"} {
		require.NoError(t, a.ledger.Put(ctx, models.PendingUploadRecord{
			FileID:       id,
			FileName:     id + ".jpg",
			Status:       models.StatusUploaded,
			BlobID:       "blob-0123456789012345678901234567890123456789012",
			SealPolicyID: "seal_abc",
			Timestamp:    time.Now().UTC(),
		}))
	}

	require.NoError(t, a.Run(ctx, []string{"status"}))
	s := out.String()
	assert.Less(t, bytes.Index([]byte(s), []byte("file-a")), bytes.Index([]byte(s), []byte("file-b")))
	assert.Contains(t, s, "uploaded")
	assert.Contains(t, s, "file-a.jpg")
}

func TestDiscard_RemovesRecord(t *testing.T) {
	a, out := testApp(t)
	ctx := context.Background()
	require.NoError(t, a.ledger.Put(ctx, models.PendingUploadRecord{
		FileID: "file-1", Status: models.StatusEncrypting, Timestamp: time.Now().UTC(),
	}))

	require.NoError(t, a.Run(ctx, []string{"discard", "file-1"}))
	assert.Contains(t, out.String(), "Discarded file-1")
	_, found := a.ledger.Get("file-1")
	assert.False(t, found)
}

func TestDiscard_UnknownFileID(t *testing.T) {
	a, _ := testApp(t)
	err := a.Run(context.Background(), []string{"discard", "missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no pending upload "missing"`)
}

func TestDiscard_WrongArgCount(t *testing.T) {
	a, _ := testApp(t)
	err := a.Run(context.Background(), []string{"discard"})
	require.Error(t, err)
}

func TestPublish_NoFiles(t *testing.T) {
	a, _ := testApp(t)
	err := a.Run(context.Background(), []string{"publish"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no files given")
}
