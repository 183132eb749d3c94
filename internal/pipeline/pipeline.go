// Package pipeline orchestrates the publish flow: seal, preview, upload,
// availability probe, then on-ledger registration. It is the single place
// that decides retries, sequencing and user-facing failure text; the
// collaborators it drives are policy-free.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dverbin/mediavault/internal/logging"
	"github.com/dverbin/mediavault/internal/models"
	"github.com/dverbin/mediavault/internal/preview"
	"github.com/dverbin/mediavault/internal/prober"
	"github.com/dverbin/mediavault/internal/recovery"
	"github.com/dverbin/mediavault/internal/registrar"
	"github.com/dverbin/mediavault/internal/sealx"
	"github.com/dverbin/mediavault/internal/uploader"
	"github.com/dverbin/mediavault/internal/verify"
)

// Submitter uploads one file's sealed blob pair to the publisher.
type Submitter interface {
	UploadMedia(ctx context.Context, media, preview []byte, opts uploader.Options) (*uploader.Result, error)
}

// Prober confirms a blob is readable from the aggregator mirrors.
type Prober interface {
	VerifyBlobExists(ctx context.Context, blobID string, maxAttempts int, baseDelay time.Duration) (prober.Result, error)
}

// Registrar performs on-ledger registration.
type Registrar interface {
	Register(ctx context.Context, p registrar.IntentParams, existingRegistrationID string, persist func(registrationID string) error) (registrar.FinalizeResult, error)
	RegisterBatch(ctx context.Context, p registrar.BatchParams) (registrar.BatchResult, error)
}

// Archiver mirrors uploaded blobs into cold storage. Archiving is
// best-effort: its errors are logged and never fail a publish.
type Archiver interface {
	Store(ctx context.Context, blobID string, data []byte) error
}

// Verifier is the optional content verification gate between the
// availability probe and registration.
type Verifier interface {
	RequestCheck(ctx context.Context, blobID string) (string, error)
	PollStatus(ctx context.Context, checkID string, maxAttempts int, baseDelay time.Duration) (verify.Status, error)
}

// Options are the fixed parameters of a pipeline instance.
type Options struct {
	SealPolicy       sealx.Policy
	StorageEpochs    int
	EpochDuration    time.Duration
	ProbeMaxAttempts int
	ProbeBaseDelay   time.Duration
}

// Item is one file queued for publishing.
type Item struct {
	FileID    string
	FileName  string
	Plaintext []byte
}

// FileResult is the per-file outcome of a publish or resume run.
type FileResult struct {
	FileID        string
	FileName      string
	BlobID        string
	PreviewBlobID string
	// PreviewChecksum is the client-computed blake3 digest of the preview
	// blob, passed to the registrar so the ledger can bind the preview to
	// the registration.
	PreviewChecksum string
	SealPolicyID    string
	Err             error
}

// Result is the outcome of a whole run. SubmissionID and Digest are set
// when registration succeeded; per-file errors are in Files.
type Result struct {
	Files             []FileResult
	Digest            string
	SubmissionID      string
	BundleDiscountBps int
}

type Pipeline struct {
	submitter Submitter
	prober    Prober
	registrar Registrar
	ledger    *recovery.Ledger
	log       logging.Logger
	opts      Options

	// seal and makePreview are injection points for tests; production
	// code uses the package functions.
	seal        func(plaintext []byte, policy sealx.Policy) (*sealx.SealedMedia, error)
	makePreview func(media []byte) ([]byte, error)

	archiver Archiver
	verifier Verifier

	// mu guards stages and progress. A file absent from stages has been
	// discarded: in-flight goroutines check before applying any result.
	mu       sync.Mutex
	stages   map[string]models.Stage
	progress models.UploadProgress

	events chan Event
}

func New(submitter Submitter, pr Prober, reg Registrar, ledger *recovery.Ledger, opts Options, log logging.Logger) *Pipeline {
	return &Pipeline{
		submitter:   submitter,
		prober:      pr,
		registrar:   reg,
		ledger:      ledger,
		log:         log,
		opts:        opts,
		seal:        sealx.Seal,
		makePreview: preview.Generate,
		stages:      make(map[string]models.Stage),
		events:      make(chan Event, eventBuffer),
	}
}

// SetArchiver enables cold-archive mirroring of uploaded blobs.
func (p *Pipeline) SetArchiver(a Archiver) { p.archiver = a }

// SetVerifier enables the content verification gate.
func (p *Pipeline) SetVerifier(v Verifier) { p.verifier = v }

// transition advances a file's in-memory stage. It refuses to move a
// discarded (absent) or terminal file, which is how results of in-flight
// work are ignored after a Discard.
func (p *Pipeline) transition(fileID string, next models.Stage) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	cur, ok := p.stages[fileID]
	if !ok || cur.Terminal() {
		return false
	}
	p.stages[fileID] = next
	p.progress.CurrentFile = fileID
	p.progress.Stage = next
	if next == models.StageCompleted {
		p.progress.CompletedFiles++
	}
	return true
}

// Progress returns a snapshot of the transient run progress. It is never
// persisted; after a restart it is rebuilt from the recovery ledger.
func (p *Pipeline) Progress() models.UploadProgress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

// Stage returns a file's current in-memory stage.
func (p *Pipeline) Stage(fileID string) (models.Stage, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.stages[fileID]
	return s, ok
}

// Publish runs the full pipeline over a batch. Sealing, preview
// generation and uploads fan out concurrently; registration of the
// surviving files happens afterwards in a single sequential step. One
// file failing does not roll back the others, and its recovery record is
// left in place for a later resume.
func (p *Pipeline) Publish(ctx context.Context, items []Item) (*Result, error) {
	if len(items) == 0 {
		return nil, errors.New("nothing to publish")
	}

	p.mu.Lock()
	p.progress.TotalFiles += len(items)
	p.mu.Unlock()

	for _, it := range items {
		p.mu.Lock()
		p.stages[it.FileID] = models.StageEncrypting
		p.mu.Unlock()

		err := p.ledger.Put(ctx, models.PendingUploadRecord{
			FileID:        it.FileID,
			FileName:      it.FileName,
			FileSizeBytes: int64(len(it.Plaintext)),
			Status:        models.StatusEncrypting,
			Timestamp:     time.Now().UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("recording pending upload: %w", err)
		}
	}

	outcomes := make([]FileResult, len(items))
	var wg sync.WaitGroup
	for i, it := range items {
		wg.Add(1)
		go func(i int, it Item) {
			defer wg.Done()
			outcomes[i] = p.processFile(ctx, it)
		}(i, it)
	}
	wg.Wait()

	return p.registerOutcomes(ctx, outcomes)
}

// processFile drives one file to the uploaded state. All ledger
// mutations go through the ledger's own lock, so each transition is one
// atomic read-modify-write even with the batch fanned out.
func (p *Pipeline) processFile(ctx context.Context, it Item) FileResult {
	out := FileResult{FileID: it.FileID, FileName: it.FileName}

	fail := func(err error) FileResult {
		out.Err = err
		if p.transition(it.FileID, models.StageFailed) {
			p.emitStage(it.FileID, models.StageFailed, err)
		}
		return out
	}

	p.emitStage(it.FileID, models.StageEncrypting, nil)
	sealed, err := p.seal(it.Plaintext, p.opts.SealPolicy)
	if err != nil {
		return fail(fmt.Errorf("sealing %s: %w", it.FileName, err))
	}
	out.SealPolicyID = sealed.PolicyID

	if !p.transition(it.FileID, models.StageGeneratingPreview) {
		return fail(context.Canceled)
	}
	p.emitStage(it.FileID, models.StageGeneratingPreview, nil)
	pv, err := p.makePreview(it.Plaintext)
	if err != nil {
		return fail(fmt.Errorf("generating preview for %s: %w", it.FileName, err))
	}

	if !p.transition(it.FileID, models.StageUploading) {
		return fail(context.Canceled)
	}
	p.emitStage(it.FileID, models.StageUploading, nil)
	res, err := p.submitter.UploadMedia(ctx, sealed.Ciphertext, pv, uploader.Options{
		SealPolicyID: sealed.PolicyID,
		Epochs:       p.opts.StorageEpochs,
		Metadata:     sealed.Metadata,
	})
	if err != nil {
		return fail(err)
	}
	out.BlobID = res.Main.BlobID
	out.PreviewBlobID = res.Preview.BlobID
	out.PreviewChecksum = res.Preview.Checksum

	// Discard guard: an in-flight upload that finished after the user
	// discarded the file must not resurrect the ledger record.
	if !p.transition(it.FileID, models.StageUploading) {
		return fail(context.Canceled)
	}
	err = p.ledger.Put(ctx, models.PendingUploadRecord{
		FileID:          it.FileID,
		FileName:        it.FileName,
		FileSizeBytes:   int64(len(it.Plaintext)),
		Status:          models.StatusUploaded,
		BlobID:          res.Main.BlobID,
		PreviewBlobID:   res.Preview.BlobID,
		PreviewChecksum: res.Preview.Checksum,
		SealPolicyID:    sealed.PolicyID,
		Timestamp:       time.Now().UTC(),
	})
	if err != nil {
		return fail(fmt.Errorf("recording uploaded state: %w", err))
	}

	if _, err := p.prober.VerifyBlobExists(ctx, res.Main.BlobID, p.opts.ProbeMaxAttempts, p.opts.ProbeBaseDelay); err != nil {
		return fail(err)
	}

	if p.verifier != nil {
		if err := p.runVerification(ctx, res.Main.BlobID); err != nil {
			return fail(err)
		}
	}

	if p.archiver != nil {
		if err := p.archiver.Store(ctx, res.Main.BlobID, sealed.Ciphertext); err != nil {
			p.log.Warn(ctx, "archive mirror failed", "fileId", it.FileID, "error", err)
		}
		if err := p.archiver.Store(ctx, res.Preview.BlobID, pv); err != nil {
			p.log.Warn(ctx, "preview archive mirror failed", "fileId", it.FileID, "error", err)
		}
	}

	return out
}

func (p *Pipeline) runVerification(ctx context.Context, blobID string) error {
	checkID, err := p.verifier.RequestCheck(ctx, blobID)
	if err != nil {
		return fmt.Errorf("requesting content verification: %w", err)
	}
	status, err := p.verifier.PollStatus(ctx, checkID, p.opts.ProbeMaxAttempts, p.opts.ProbeBaseDelay)
	if err != nil {
		return err
	}
	if status == verify.StatusRejected {
		return fmt.Errorf("content verification rejected blob %s", blobID)
	}
	return nil
}

// Resume continues from the recovery ledger after a crash or restart.
// Only records that reached the uploaded state are eligible; the upload
// submitter is never invoked. The result has the same shape as a fresh
// Publish, with the bundle discount recomputed from the ledger data.
func (p *Pipeline) Resume(ctx context.Context) (*Result, error) {
	snapshot := p.ledger.Snapshot()

	var outcomes []FileResult
	for fileID, rec := range snapshot {
		if rec.Status != models.StatusUploaded {
			p.log.Warn(ctx, "record not resumable, re-publish the file", "fileId", fileID, "status", rec.Status)
			continue
		}
		p.mu.Lock()
		p.stages[fileID] = models.StageRegistering
		p.progress.TotalFiles++
		p.mu.Unlock()
		outcomes = append(outcomes, FileResult{
			FileID:          fileID,
			FileName:        rec.FileName,
			BlobID:          rec.BlobID,
			PreviewBlobID:   rec.PreviewBlobID,
			PreviewChecksum: rec.PreviewChecksum,
			SealPolicyID:    rec.SealPolicyID,
		})
	}
	if len(outcomes) == 0 {
		return nil, errors.New("no resumable uploads in the recovery ledger")
	}
	// Ledger snapshots are maps; order deterministically for stable
	// batch vectors.
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].FileID < outcomes[j].FileID })

	return p.registerOutcomes(ctx, outcomes)
}

// registerOutcomes registers every successfully uploaded file. A single
// survivor goes through the two-phase path with its registration id
// persisted between the phases; several survivors go through one atomic
// batch transaction with the bundle discount applied.
func (p *Pipeline) registerOutcomes(ctx context.Context, outcomes []FileResult) (*Result, error) {
	result := &Result{Files: outcomes}

	var ok []int
	for i := range outcomes {
		if outcomes[i].Err == nil {
			ok = append(ok, i)
		}
	}
	if len(ok) == 0 {
		return result, errors.New("no files left to register")
	}
	result.BundleDiscountBps = BundleDiscountBps(len(ok))

	for _, i := range ok {
		if p.transition(outcomes[i].FileID, models.StageRegistering) {
			p.emitStage(outcomes[i].FileID, models.StageRegistering, nil)
		}
	}

	durationSeconds := int64(p.opts.StorageEpochs) * int64(p.opts.EpochDuration/time.Second)

	var digest, submissionID string
	var regErr error
	if len(ok) == 1 {
		i := ok[0]
		existing := ""
		if rec, found := p.ledger.Get(outcomes[i].FileID); found {
			existing = rec.RegistrationID
		}
		fileID := outcomes[i].FileID
		fin, err := p.registrar.Register(ctx, registrar.IntentParams{
			MainBlobID:      outcomes[i].BlobID,
			PreviewBlobID:   outcomes[i].PreviewBlobID,
			PreviewBlobHash: outcomes[i].PreviewChecksum,
			PolicyID:        outcomes[i].SealPolicyID,
			DurationSeconds: durationSeconds,
		}, existing, func(registrationID string) error {
			return p.ledger.SetRegistrationID(ctx, fileID, registrationID)
		})
		if err == nil {
			digest, submissionID = fin.Digest, fin.SubmissionID
		}
		regErr = err
	} else {
		params := registrar.BatchParams{BundleDiscountBps: result.BundleDiscountBps}
		for _, i := range ok {
			params.BlobIDs = append(params.BlobIDs, outcomes[i].BlobID)
			params.PreviewBlobIDs = append(params.PreviewBlobIDs, outcomes[i].PreviewBlobID)
			params.PolicyIDs = append(params.PolicyIDs, outcomes[i].SealPolicyID)
			params.DurationsSeconds = append(params.DurationsSeconds, durationSeconds)
		}
		batch, err := p.registrar.RegisterBatch(ctx, params)
		if err == nil {
			digest, submissionID = batch.Digest, batch.SubmissionID
		}
		regErr = err
	}

	if regErr != nil {
		// Ledger rejections are surfaced verbatim and never retried; the
		// recovery records stay so a corrected run can resume.
		for _, i := range ok {
			outcomes[i].Err = regErr
			if p.transition(outcomes[i].FileID, models.StageFailed) {
				p.emitStage(outcomes[i].FileID, models.StageFailed, regErr)
			}
		}
		return result, fmt.Errorf("registration failed: %w", regErr)
	}

	result.Digest = digest
	result.SubmissionID = submissionID

	for _, i := range ok {
		if p.transition(outcomes[i].FileID, models.StageFinalizing) {
			p.emitStage(outcomes[i].FileID, models.StageFinalizing, nil)
		}
		p.ledger.Complete(ctx, outcomes[i].FileID)
		if p.transition(outcomes[i].FileID, models.StageCompleted) {
			p.emitStage(outcomes[i].FileID, models.StageCompleted, nil)
		}
	}

	return result, nil
}

// Discard drops a file from the run and from the recovery ledger.
// Results of any still-running work on the file are ignored.
func (p *Pipeline) Discard(ctx context.Context, fileID string) {
	p.mu.Lock()
	delete(p.stages, fileID)
	p.mu.Unlock()
	p.ledger.Discard(ctx, fileID)
	p.log.Info(ctx, "pending upload discarded", "fileId", fileID)
}
