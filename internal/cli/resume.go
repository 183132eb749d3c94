package cli

import "context"

func (a *App) resume(ctx context.Context) error {
	signer, err := a.openWallet()
	if err != nil {
		return err
	}

	p := a.buildPipeline(signer)

	done := make(chan struct{})
	go a.watchEvents(ctx, p, done)

	res, err := p.Resume(ctx)
	close(done)
	if res != nil {
		a.printResult(res)
	}
	return err
}
