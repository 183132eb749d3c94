// Package recovery implements the client-persisted recovery ledger: a
// durable mapping from file id to last-known pipeline stage that makes the
// publish pipeline resumable after a crash or interruption.
package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/dverbin/mediavault/internal/common"
	"github.com/dverbin/mediavault/internal/logging"
	"github.com/dverbin/mediavault/internal/models"
	"github.com/dverbin/mediavault/internal/statestore"
)

// StateKey is the single store key holding the serialized ledger.
const StateKey = "mediavault.pending_uploads"

// MaxSerializedBytes is the hard ceiling on the serialized ledger size.
// Exceeding it disables persistence for the session instead of truncating.
const MaxSerializedBytes = 256 * 1024

// LoadReport describes the outcome of restoring the ledger from the store.
type LoadReport struct {
	Restored  int
	Discarded int
}

// Ledger is the in-memory ledger plus its persistence policy. All mutations
// take the lock, apply the change, and write the entire serialized state in
// one step, so a concurrent sibling-file transition can never be clobbered
// by a partial write.
type Ledger struct {
	mu              sync.Mutex
	store           statestore.Store
	log             logging.Logger
	validate        *validator.Validate
	records         map[string]models.PendingUploadRecord
	persistDisabled bool
}

func NewLedger(store statestore.Store, log logging.Logger) *Ledger {
	return &Ledger{
		store:    store,
		log:      log,
		validate: validator.New(),
		records:  make(map[string]models.PendingUploadRecord),
	}
}

// Load restores the ledger from the store. Deserialization is
// schema-validated at this single boundary: records that fail validation
// are discarded and counted, never partially trusted downstream. A corrupt
// payload as a whole resets to an empty ledger.
func (l *Ledger) Load(ctx context.Context) (LoadReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var report LoadReport

	data, err := l.store.Get(ctx, StateKey)
	if err != nil {
		return report, fmt.Errorf("loading recovery state: %w", err)
	}
	if data == nil {
		return report, nil
	}

	var raw map[string]models.PendingUploadRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		l.log.Warn(ctx, "recovery state corrupt, starting empty", "error", err)
		l.records = make(map[string]models.PendingUploadRecord)
		return report, nil
	}

	l.records = make(map[string]models.PendingUploadRecord, len(raw))
	for fileID, rec := range raw {
		if err := l.validateRecord(fileID, rec); err != nil {
			l.log.Warn(ctx, "discarding invalid recovery record", "fileId", fileID, "error", err)
			report.Discarded++
			continue
		}
		l.records[fileID] = rec
		report.Restored++
	}

	return report, nil
}

// Get returns the record for fileID, if present.
func (l *Ledger) Get(fileID string) (models.PendingUploadRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[fileID]
	return rec, ok
}

// Snapshot returns a copy of all records.
func (l *Ledger) Snapshot() map[string]models.PendingUploadRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]models.PendingUploadRecord, len(l.records))
	for k, v := range l.records {
		out[k] = v
	}
	return out
}

// Put inserts or updates a record and persists the whole ledger. The status
// may only move forward; use Complete for registered records, which are
// removed rather than stored.
func (l *Ledger) Put(ctx context.Context, rec models.PendingUploadRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.Status == models.StatusRegistered {
		return fmt.Errorf("record %s: registered records are removed, not stored", rec.FileID)
	}
	if err := l.validateRecord(rec.FileID, rec); err != nil {
		return err
	}
	if prev, ok := l.records[rec.FileID]; ok && !prev.Status.CanAdvanceTo(rec.Status) {
		return fmt.Errorf("record %s: %s -> %s: %w", rec.FileID, prev.Status, rec.Status, common.ErrStatusRegression)
	}

	l.records[rec.FileID] = rec
	l.save(ctx)
	return nil
}

// SetRegistrationID persists the phase-1 intent object id for the file.
// This is the critical durability point of the two-phase registration: it
// must hit the store before phase 2 is attempted.
func (l *Ledger) SetRegistrationID(ctx context.Context, fileID, registrationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[fileID]
	if !ok {
		return fmt.Errorf("record %s: %w", fileID, common.ErrorNotFound)
	}
	rec.RegistrationID = registrationID
	l.records[fileID] = rec
	l.save(ctx)
	return nil
}

// Complete removes the record after successful registration and persists
// the reduced ledger.
func (l *Ledger) Complete(ctx context.Context, fileID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, fileID)
	l.save(ctx)
}

// Discard removes the record at the user's request. In-flight network work
// for the file is left to finish naturally; its results are ignored.
func (l *Ledger) Discard(ctx context.Context, fileID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, fileID)
	l.save(ctx)
}

// PersistDisabled reports whether persistence has been disabled for this
// session after a quota failure.
func (l *Ledger) PersistDisabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.persistDisabled
}

// ResetPersistence re-enables persistence after an explicit user action
// (e.g. freeing local space) and immediately writes the current state.
func (l *Ledger) ResetPersistence(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.persistDisabled = false
	l.save(ctx)
}

// save serializes the entire ledger and writes it under the single state
// key. Must be called with the lock held. Persistence failures never
// propagate: a quota error disables further saves for the session while
// leaving previously persisted content intact; the in-memory pipeline
// keeps functioning either way.
func (l *Ledger) save(ctx context.Context) {
	if l.persistDisabled {
		return
	}

	data, err := json.Marshal(l.records)
	if err != nil {
		l.log.Error(ctx, "failed to serialize recovery state", "error", err)
		return
	}
	if len(data) > MaxSerializedBytes {
		l.persistDisabled = true
		l.log.Warn(ctx, "recovery state exceeds size ceiling, persistence disabled",
			"size", len(data), "ceiling", MaxSerializedBytes)
		return
	}

	if err := l.store.Set(ctx, StateKey, data); err != nil {
		if errors.Is(err, common.ErrQuotaExceeded) {
			l.persistDisabled = true
			l.log.Warn(ctx, "local storage quota exceeded, persistence disabled")
			return
		}
		l.log.Error(ctx, "failed to persist recovery state", "error", err)
	}
}

func (l *Ledger) validateRecord(fileID string, rec models.PendingUploadRecord) error {
	if rec.FileID != fileID {
		return fmt.Errorf("record key %q does not match fileId %q", fileID, rec.FileID)
	}
	if err := l.validate.Struct(rec); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}
	return nil
}
