package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/dverbin/mediavault/internal/pipeline"
)

func (a *App) publish(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("publish: no files given")
	}

	items, err := loadItems(paths)
	if err != nil {
		return err
	}

	signer, err := a.openWallet()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Publishing %d file(s) as %s\n", len(items), signer.Address())

	p := a.buildPipeline(signer)

	done := make(chan struct{})
	go a.watchEvents(ctx, p, done)

	res, err := p.Publish(ctx, items)
	close(done)
	if res != nil {
		a.printResult(res)
	}
	return err
}

func (a *App) printResult(res *pipeline.Result) {
	for _, f := range res.Files {
		if f.Err != nil {
			fmt.Fprintf(a.out, "FAILED   %s (%s): %v\n", f.FileName, f.FileID, f.Err)
			continue
		}
		fmt.Fprintf(a.out, "PUBLISHED %s (%s)\n  blob:    %s\n  preview: %s\n  policy:  %s\n",
			f.FileName, f.FileID, f.BlobID, f.PreviewBlobID, f.SealPolicyID)
	}
	if res.SubmissionID != "" {
		fmt.Fprintf(a.out, "Submission %s (tx %s)", res.SubmissionID, res.Digest)
		if res.BundleDiscountBps > 0 {
			fmt.Fprintf(a.out, ", bundle discount %d bps", res.BundleDiscountBps)
		}
		fmt.Fprintln(a.out)
	}
}

func loadItems(paths []string) ([]pipeline.Item, error) {
	items := make([]pipeline.Item, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		items = append(items, pipeline.Item{
			FileID:    uuid.NewString(),
			FileName:  filepath.Base(path),
			Plaintext: data,
		})
	}
	return items, nil
}
