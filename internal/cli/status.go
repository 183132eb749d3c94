package cli

import (
	"context"
	"fmt"
	"sort"
)

func (a *App) status(ctx context.Context) error {
	snapshot := a.ledger.Snapshot()
	if len(snapshot) == 0 {
		fmt.Fprintln(a.out, "No pending uploads.")
		return nil
	}

	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		rec := snapshot[id]
		fmt.Fprintf(a.out, "%s  %-10s %s", id, rec.Status, rec.FileName)
		if rec.BlobID != "" {
			fmt.Fprintf(a.out, "  blob=%s", rec.BlobID)
		}
		if rec.RegistrationID != "" {
			fmt.Fprintf(a.out, "  intent=%s", rec.RegistrationID)
		}
		fmt.Fprintln(a.out)
	}

	if a.ledger.PersistDisabled() {
		fmt.Fprintln(a.out, "WARNING: local persistence is disabled (storage quota); pending uploads will not survive a restart")
	}
	return nil
}
