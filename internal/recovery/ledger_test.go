package recovery

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dverbin/mediavault/internal/common"
	"github.com/dverbin/mediavault/internal/logging"
	"github.com/dverbin/mediavault/internal/models"
	"github.com/dverbin/mediavault/internal/statestore"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func uploadedRecord(fileID string) models.PendingUploadRecord {
	return models.PendingUploadRecord{
		FileID:        fileID,
		FileName:      "clip.mp4",
		FileSizeBytes: 1024,
		Status:        models.StatusUploaded,
		BlobID:        "blob-" + fileID,
		PreviewBlobID: "preview-" + fileID,
		SealPolicyID:  "seal_abc",
		Timestamp:     time.Now().UTC(),
	}
}

func TestLedger_PutPersistsWholeState(t *testing.T) {
	ctx := context.Background()
	store := statestore.NewMemoryStore()
	l := NewLedger(store, testLogger())

	require.NoError(t, l.Put(ctx, uploadedRecord("f1")))
	require.NoError(t, l.Put(ctx, uploadedRecord("f2")))

	data, err := store.Get(ctx, StateKey)
	require.NoError(t, err)

	var persisted map[string]models.PendingUploadRecord
	require.NoError(t, json.Unmarshal(data, &persisted))
	assert.Len(t, persisted, 2)
	assert.Equal(t, "blob-f1", persisted["f1"].BlobID)
}

func TestLedger_StatusNeverRegresses(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(statestore.NewMemoryStore(), testLogger())

	require.NoError(t, l.Put(ctx, uploadedRecord("f1")))

	back := uploadedRecord("f1")
	back.Status = models.StatusEncrypting
	back.BlobID = ""
	back.SealPolicyID = ""

	err := l.Put(ctx, back)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrStatusRegression)
}

func TestLedger_RegisteredRecordsAreRemovedNotStored(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(statestore.NewMemoryStore(), testLogger())

	rec := uploadedRecord("f1")
	rec.Status = models.StatusRegistered
	require.Error(t, l.Put(ctx, rec))

	require.NoError(t, l.Put(ctx, uploadedRecord("f1")))
	l.Complete(ctx, "f1")
	_, ok := l.Get("f1")
	assert.False(t, ok)
}

func TestLedger_RecordMissingBlobIDRequiresEncrypting(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(statestore.NewMemoryStore(), testLogger())

	rec := uploadedRecord("f1")
	rec.BlobID = ""
	err := l.Put(ctx, rec)
	require.Error(t, err)

	rec.Status = models.StatusEncrypting
	rec.SealPolicyID = ""
	require.NoError(t, l.Put(ctx, rec))
}

func TestLedger_LoadValidatesAndDiscardsCorruptEntries(t *testing.T) {
	ctx := context.Background()
	store := statestore.NewMemoryStore()

	valid := uploadedRecord("good")
	invalid := uploadedRecord("bad")
	invalid.BlobID = "" // uploaded without blob id violates the invariant

	raw, err := json.Marshal(map[string]models.PendingUploadRecord{
		"good": valid,
		"bad":  invalid,
	})
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, StateKey, raw))

	l := NewLedger(store, testLogger())
	report, err := l.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Restored)
	assert.Equal(t, 1, report.Discarded)

	_, ok := l.Get("good")
	assert.True(t, ok)
	_, ok = l.Get("bad")
	assert.False(t, ok)
}

func TestLedger_LoadCorruptPayloadStartsEmpty(t *testing.T) {
	ctx := context.Background()
	store := statestore.NewMemoryStore()
	require.NoError(t, store.Set(ctx, StateKey, []byte("{not json")))

	l := NewLedger(store, testLogger())
	report, err := l.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Restored)
	assert.Empty(t, l.Snapshot())
}

func TestLedger_QuotaExceededDisablesPersistenceOnly(t *testing.T) {
	ctx := context.Background()
	store := statestore.NewMemoryStore()
	l := NewLedger(store, testLogger())

	require.NoError(t, l.Put(ctx, uploadedRecord("f1")))
	persisted, err := store.Get(ctx, StateKey)
	require.NoError(t, err)

	// Any further write would exceed the quota now.
	store.Quota = 1

	// Must not throw out of the save path.
	require.NoError(t, l.Put(ctx, uploadedRecord("f2")))
	assert.True(t, l.PersistDisabled())

	// Previously persisted content is preserved.
	after, err := store.Get(ctx, StateKey)
	require.NoError(t, err)
	assert.Equal(t, persisted, after)

	// In-memory state keeps functioning.
	_, ok := l.Get("f2")
	assert.True(t, ok)

	// Subsequent saves are no-ops until explicitly reset.
	require.NoError(t, l.Put(ctx, uploadedRecord("f3")))
	after, err = store.Get(ctx, StateKey)
	require.NoError(t, err)
	assert.Equal(t, persisted, after)

	store.Quota = 0
	l.ResetPersistence(ctx)
	assert.False(t, l.PersistDisabled())
	after, err = store.Get(ctx, StateKey)
	require.NoError(t, err)
	assert.NotEqual(t, persisted, after)
}

func TestLedger_SetRegistrationID(t *testing.T) {
	ctx := context.Background()
	store := statestore.NewMemoryStore()
	l := NewLedger(store, testLogger())

	require.NoError(t, l.Put(ctx, uploadedRecord("f1")))
	require.NoError(t, l.SetRegistrationID(ctx, "f1", "0xintent"))

	rec, ok := l.Get("f1")
	require.True(t, ok)
	assert.Equal(t, "0xintent", rec.RegistrationID)

	// Persisted before phase 2 can run: a fresh ledger over the same store
	// sees the registration id.
	l2 := NewLedger(store, testLogger())
	_, err := l2.Load(ctx)
	require.NoError(t, err)
	rec2, ok := l2.Get("f1")
	require.True(t, ok)
	assert.Equal(t, "0xintent", rec2.RegistrationID)

	err = l.SetRegistrationID(ctx, "missing", "0x1")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestLedger_SizeCeilingDisablesPersistence(t *testing.T) {
	ctx := context.Background()
	store := statestore.NewMemoryStore()
	l := NewLedger(store, testLogger())

	rec := uploadedRecord("f1")
	rec.FileName = string(make([]byte, MaxSerializedBytes))
	require.NoError(t, l.Put(ctx, rec))

	assert.True(t, l.PersistDisabled())
	data, err := store.Get(ctx, StateKey)
	require.NoError(t, err)
	assert.Nil(t, data)
}
