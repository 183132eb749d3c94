package cli

import (
	"context"
	"fmt"
)

func (a *App) discard(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("discard: expected exactly one fileId")
	}
	fileID := args[0]

	if _, found := a.ledger.Get(fileID); !found {
		return fmt.Errorf("discard: no pending upload %q", fileID)
	}

	a.ledger.Discard(ctx, fileID)
	fmt.Fprintf(a.out, "Discarded %s\n", fileID)
	return nil
}
