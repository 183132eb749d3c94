package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/dverbin/mediavault/internal/common"
	"github.com/dverbin/mediavault/internal/wallet"
)

func (a *App) keygen(ctx context.Context) error {
	if _, err := os.Stat(a.config.KeystorePath); err == nil {
		return fmt.Errorf("keygen: %s already exists, refusing to overwrite", a.config.KeystorePath)
	}

	pw, err := GetPassphrase("New wallet passphrase", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	confirm, err := GetPassphrase("Repeat passphrase", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)

	if !bytes.Equal(pw, confirm) {
		return fmt.Errorf("keygen: passphrases do not match")
	}

	signer, err := wallet.Generate(a.config.KeystorePath, pw)
	if err != nil {
		return fmt.Errorf("generating wallet: %w", err)
	}

	a.log.Info(ctx, "wallet created", "path", a.config.KeystorePath)
	fmt.Fprintf(a.out, "Wallet created at %s\nAddress: %s\n", a.config.KeystorePath, signer.Address())
	return nil
}
