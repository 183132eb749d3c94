// Package registrar turns uploaded blobs into on-ledger submissions.
//
// Registration is not atomic with the upload, so single-file registration
// runs as a two-phase commit against the ledger itself: phase 1 creates an
// on-ledger intent object referencing the blob, phase 2 atomically creates
// the final submission record and consumes the intent. The intent id is
// persisted into the recovery ledger between the phases, so an
// interruption never forces re-payment.
package registrar

import (
	"context"
	"fmt"
	"strings"

	"github.com/dverbin/mediavault/internal/common"
	"github.com/dverbin/mediavault/internal/logging"
)

// Ledger is the transaction transport. The production implementation
// submits wallet-signed JSON-RPC calls; tests use a fake.
type Ledger interface {
	// ExecuteCall submits a signed contract call and returns the
	// transaction result with its effects.
	ExecuteCall(ctx context.Context, call Call) (*TxResult, error)

	// FindIntent looks up an existing registration intent for a blob id.
	// Returns common.ErrorNotFound when none exists.
	FindIntent(ctx context.Context, blobID string) (string, error)

	// ObjectType fetches the on-ledger type of an object id. Used by the
	// fallback submission-id extractors.
	ObjectType(ctx context.Context, objectID string) (string, error)
}

// Call is one contract invocation.
type Call struct {
	Function string
	Args     []any
	// Payment is the fee attached to the call, in the chain's smallest unit.
	Payment uint64
}

// TxResult mirrors the ledger's transaction response shape.
type TxResult struct {
	Digest        string
	ObjectChanges []ObjectChange
	Events        []Event
	Created       []string
	Mutated       []string
}

// ObjectChange is one entry of a transaction's object-change list.
type ObjectChange struct {
	// Kind is "created", "mutated", or "deleted".
	Kind string
	// ObjectType is the full on-ledger type tag.
	ObjectType string
	ObjectID   string
}

// Event is one emitted contract event.
type Event struct {
	Type       string
	ParsedJSON map[string]any
}

// IntentParams are the inputs of phase 1.
type IntentParams struct {
	MainBlobID      string
	PreviewBlobID   string
	PolicyID        string
	DurationSeconds int64
	// PreviewBlobHash is the client-computed blake3 digest of the preview
	// bytes, hex-encoded. Optional.
	PreviewBlobHash string
}

// FinalizeResult is the outcome of phase 2.
type FinalizeResult struct {
	Digest       string
	SubmissionID string
}

// BatchParams are the parallel vectors of a batch registration. All slices
// must have equal length.
type BatchParams struct {
	BlobIDs           []string
	PreviewBlobIDs    []string
	PolicyIDs         []string
	DurationsSeconds  []int64
	BundleDiscountBps int
}

// BatchResult is the outcome of a batch registration.
type BatchResult struct {
	Digest       string
	SubmissionID string
}

type Registrar struct {
	ledger     Ledger
	log        logging.Logger
	feePerFile uint64
	extractors []SubmissionExtractor
}

func New(ledger Ledger, feePerFile uint64, log logging.Logger) *Registrar {
	return &Registrar{
		ledger:     ledger,
		log:        log,
		feePerFile: feePerFile,
		extractors: DefaultExtractors(),
	}
}

// ValidateIDs applies the pre-flight gates shared by both phases: blob ids
// must meet the minimum content-id length and the policy id must carry the
// seal prefix. Violations fail fast with a user-actionable error and no
// network attempt is made.
func ValidateIDs(blobID, policyID string) error {
	if len(blobID) < common.MinBlobIDLength {
		return fmt.Errorf("blob id %q too short: %w", blobID, common.ErrInvalidBlobID)
	}
	if !strings.HasPrefix(policyID, common.SealPolicyPrefix) {
		return fmt.Errorf("policy id %q: %w", policyID, common.ErrInvalidPolicyID)
	}
	return nil
}

// RegisterBlobIntent runs phase 1: it creates the on-ledger intent object
// and returns its id. The call is idempotent in effect: if the ledger
// aborts with its blob-uniqueness constraint, the existing intent is
// looked up and returned as success.
func (r *Registrar) RegisterBlobIntent(ctx context.Context, p IntentParams) (string, error) {
	if err := ValidateIDs(p.MainBlobID, p.PolicyID); err != nil {
		return "", err
	}
	if err := ValidateIDs(p.PreviewBlobID, p.PolicyID); err != nil {
		return "", err
	}

	res, err := r.ledger.ExecuteCall(ctx, Call{
		Function: "register_blob_intent",
		Args: []any{p.MainBlobID, p.PreviewBlobID, p.PolicyID,
			p.DurationSeconds, p.PreviewBlobHash},
		Payment: r.feePerFile,
	})
	if err != nil {
		if isAlreadyRegistered(err) {
			r.log.Info(ctx, "blob already registered, reusing existing intent", "blobId", p.MainBlobID)
			return r.ledger.FindIntent(ctx, p.MainBlobID)
		}
		return "", err
	}

	id, ok := extractIntentID(res)
	if !ok {
		return "", fmt.Errorf("transaction %s created no intent object", res.Digest)
	}
	return id, nil
}

// FinalizeSubmission runs phase 2: given the intent object id it creates
// the submission record and consumes the intent in one transaction.
func (r *Registrar) FinalizeSubmission(ctx context.Context, registrationID string) (FinalizeResult, error) {
	if registrationID == "" {
		return FinalizeResult{}, fmt.Errorf("empty registration id: %w", common.ErrorInternal)
	}

	res, err := r.ledger.ExecuteCall(ctx, Call{
		Function: "finalize_submission_with_blob",
		Args:     []any{registrationID},
	})
	if err != nil {
		return FinalizeResult{}, err
	}

	id, err := r.extractSubmissionID(ctx, res)
	if err != nil {
		return FinalizeResult{}, err
	}
	return FinalizeResult{Digest: res.Digest, SubmissionID: id}, nil
}

// Register runs the full two-phase flow for one file. If the caller
// already holds a registration id from a previous run (restored from the
// recovery ledger), phase 1 is skipped entirely. On phase 1 success the
// persist callback must durably record the intent id before phase 2 is
// attempted; a persist failure aborts rather than risking a paid intent
// with no recovery trail.
func (r *Registrar) Register(ctx context.Context, p IntentParams, existingRegistrationID string, persist func(registrationID string) error) (FinalizeResult, error) {
	registrationID := existingRegistrationID

	if registrationID == "" {
		var err error
		registrationID, err = r.RegisterBlobIntent(ctx, p)
		if err != nil {
			return FinalizeResult{}, fmt.Errorf("registration phase 1: %w", err)
		}
		if err := persist(registrationID); err != nil {
			return FinalizeResult{}, fmt.Errorf("persisting registration id: %w", err)
		}
	} else {
		r.log.Info(ctx, "resuming registration at phase 2", "registrationId", registrationID)
	}

	res, err := r.FinalizeSubmission(ctx, registrationID)
	if err != nil {
		return FinalizeResult{}, fmt.Errorf("registration phase 2: %w", err)
	}
	return res, nil
}

// RegisterBatch registers several files as one submission in a single
// atomic transaction, so no intermediate recovery state is needed. The
// fee is the fixed per-file fee times the file count, minus the bundle
// discount.
func (r *Registrar) RegisterBatch(ctx context.Context, p BatchParams) (BatchResult, error) {
	n := len(p.BlobIDs)
	if n == 0 {
		return BatchResult{}, fmt.Errorf("empty batch: %w", common.ErrorInternal)
	}
	if len(p.PreviewBlobIDs) != n || len(p.PolicyIDs) != n || len(p.DurationsSeconds) != n {
		return BatchResult{}, fmt.Errorf("batch vectors must have equal length: %w", common.ErrorInternal)
	}
	for i := range p.BlobIDs {
		if err := ValidateIDs(p.BlobIDs[i], p.PolicyIDs[i]); err != nil {
			return BatchResult{}, err
		}
	}

	fee := r.feePerFile * uint64(n)
	fee -= fee * uint64(p.BundleDiscountBps) / 10_000

	res, err := r.ledger.ExecuteCall(ctx, Call{
		Function: "register_batch",
		Args: []any{p.BlobIDs, p.PreviewBlobIDs, p.PolicyIDs,
			p.DurationsSeconds, p.BundleDiscountBps},
		Payment: fee,
	})
	if err != nil {
		return BatchResult{}, err
	}

	id, err := r.extractSubmissionID(ctx, res)
	if err != nil {
		return BatchResult{}, err
	}
	return BatchResult{Digest: res.Digest, SubmissionID: id}, nil
}

func (r *Registrar) extractSubmissionID(ctx context.Context, res *TxResult) (string, error) {
	for _, extract := range r.extractors {
		if id, ok := extract(ctx, r.ledger, res); ok {
			return id, nil
		}
	}
	return "", fmt.Errorf("transaction %s: could not locate created submission object", res.Digest)
}

func isAlreadyRegistered(err error) bool {
	return err != nil && strings.Contains(err.Error(), "already registered")
}
