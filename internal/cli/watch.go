package cli

import (
	"context"
	"fmt"

	"github.com/dverbin/mediavault/internal/watcher"
)

func (a *App) watch(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("watch: expected exactly one directory")
	}
	dir := args[0]

	signer, err := a.openWallet()
	if err != nil {
		return err
	}
	p := a.buildPipeline(signer)

	go a.watchEvents(ctx, p, ctx.Done())

	handler := func(ctx context.Context, path string) {
		items, err := loadItems([]string{path})
		if err != nil {
			a.log.Error(ctx, "cannot read dropped file", "path", path, "error", err)
			return
		}
		res, err := p.Publish(ctx, items)
		if res != nil {
			a.printResult(res)
		}
		if err != nil {
			a.log.Error(ctx, "publish failed", "path", path, "error", err)
		}
	}

	w := watcher.New(dir, watcher.DefaultDebounce, handler, a.log)
	fmt.Fprintf(a.out, "Watching %s (Ctrl-C to stop)\n", dir)
	return w.Run(ctx)
}
