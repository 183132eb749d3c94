// Package cli implements the mediavault command-line tool: publish,
// resume, status, discard, watch and keygen.
package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dverbin/mediavault/internal/archive"
	"github.com/dverbin/mediavault/internal/common"
	"github.com/dverbin/mediavault/internal/config"
	"github.com/dverbin/mediavault/internal/logging"
	"github.com/dverbin/mediavault/internal/pipeline"
	"github.com/dverbin/mediavault/internal/prober"
	"github.com/dverbin/mediavault/internal/recovery"
	"github.com/dverbin/mediavault/internal/registrar"
	"github.com/dverbin/mediavault/internal/sealx"
	"github.com/dverbin/mediavault/internal/statestore"
	"github.com/dverbin/mediavault/internal/uploader"
	"github.com/dverbin/mediavault/internal/verify"
	"github.com/dverbin/mediavault/internal/wallet"
)

// epochDuration is the target blob store's epoch length. Storage
// durations are configured in epochs and converted to seconds for the
// registration contract.
const epochDuration = 24 * time.Hour

type App struct {
	config *config.Config
	log    logging.Logger
	db     *sql.DB
	ledger *recovery.Ledger
	reader *bufio.Reader
	out    io.Writer
}

func NewApp(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	db, store, err := statestore.InitDatabase(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("initializing recovery database: %w", err)
	}

	ledger := recovery.NewLedger(store, log)
	report, err := ledger.Load(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("loading recovery ledger: %w", err)
	}
	if report.Discarded > 0 {
		log.Warn(ctx, "discarded invalid recovery records", "count", report.Discarded)
	}

	return &App{
		config: cfg,
		log:    log,
		db:     db,
		ledger: ledger,
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}, nil
}

func (a *App) Close() error {
	return a.db.Close()
}

// Run dispatches one subcommand and returns its error.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.usage()
		return nil
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "publish":
		return a.publish(ctx, rest)
	case "resume":
		return a.resume(ctx)
	case "status":
		return a.status(ctx)
	case "discard":
		return a.discard(ctx, rest)
	case "watch":
		return a.watch(ctx, rest)
	case "keygen":
		return a.keygen(ctx)
	case "help":
		a.usage()
		return nil
	default:
		a.usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *App) usage() {
	fmt.Fprintln(a.out, `Usage: mediavault <command> [arguments]

Commands:
  publish <file>...   seal, upload and register the given files
  resume              continue uploads recorded in the recovery ledger
  status              list pending uploads
  discard <fileId>    drop a pending upload from the local ledger
  watch <dir>         publish files dropped into a directory
  keygen              create a new sealed wallet key file
  help                show this message`)
}

// openWallet prompts for the keystore passphrase and unseals the signer.
func (a *App) openWallet() (*wallet.Signer, error) {
	pw, err := GetPassphrase("Wallet passphrase", a.out)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(pw)

	signer, err := wallet.Open(a.config.KeystorePath, pw)
	if err != nil {
		return nil, fmt.Errorf("opening wallet %s: %w", a.config.KeystorePath, err)
	}
	return signer, nil
}

// buildPipeline wires the publish collaborators around an unsealed wallet.
func (a *App) buildPipeline(signer *wallet.Signer) *pipeline.Pipeline {
	cfg := a.config

	submitter := uploader.New(cfg.PublisherURL, cfg.UploadMaxAttempts, cfg.UploadRetryUnit, a.log)
	pr := prober.New(cfg.RankedAggregators(), a.log)
	ledgerRPC := registrar.NewRPCLedger(cfg.LedgerRPCURL, cfg.ContractPackage, signer)
	reg := registrar.New(ledgerRPC, cfg.RegistrationFee, a.log)

	p := pipeline.New(submitter, pr, reg, a.ledger, pipeline.Options{
		SealPolicy:       sealx.Policy{Threshold: 2},
		StorageEpochs:    cfg.StorageEpochs,
		EpochDuration:    epochDuration,
		ProbeMaxAttempts: cfg.ProbeMaxAttempts,
		ProbeBaseDelay:   cfg.ProbeBaseDelay,
	}, a.log)

	submitter.SetNotify(p.NotifyRetry)

	if cfg.VerifyServiceURL != "" {
		tokens := verify.NewTokenSource([]byte(cfg.VerifySigningKey))
		p.SetVerifier(verify.New(cfg.VerifyServiceURL, tokens, a.log))
	}
	if cfg.ArchiveEnabled {
		p.SetArchiver(archive.NewMirror(archive.Options{
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
			Bucket:       cfg.S3Bucket,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
		}, a.log))
	}

	return p
}

// watchEvents prints pipeline progress until the event channel drains.
func (a *App) watchEvents(ctx context.Context, p *pipeline.Pipeline, done <-chan struct{}) {
	for {
		select {
		case e := <-p.Events():
			switch e.Type {
			case pipeline.EventStage:
				if e.Err != nil {
					fmt.Fprintf(a.out, "%s: %s (%v)\n", e.FileID, e.Stage, e.Err)
				} else {
					fmt.Fprintf(a.out, "%s: %s\n", e.FileID, e.Stage)
				}
			case pipeline.EventRetry:
				fmt.Fprintf(a.out, "upload retry %d/%d\n", e.Retry, e.MaxRetries)
			}
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}
