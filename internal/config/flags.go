package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/dverbin/mediavault/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-w string   publisher (write) endpoint URL
//	-m string   primary aggregator (read mirror) URL
//	-g string   extra aggregators, comma-separated, in rank order
//	-l string   ledger JSON-RPC endpoint URL
//	-d string   SQLite DSN for the local recovery database
//	-k string   path to the sealed wallet key file
//	-e int      storage duration in store epochs
//	-i int      prober base delay in seconds
//
// Note: The function filters os.Args to only include the flags it knows
// about, using flagx.FilterArgs, to avoid interference with other
// components.
func parseFlags(cfg *Config) {
	// Filter args to include only those handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-w", "-m", "-g", "-l", "-d", "-k", "-e", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.PublisherURL, "w", cfg.PublisherURL, "publisher (write) endpoint URL")
	fs.StringVar(&cfg.PrimaryAggregator, "m", cfg.PrimaryAggregator, "primary aggregator URL")
	aggregators := fs.String("g", strings.Join(cfg.Aggregators, ","), "extra aggregators, comma-separated")
	fs.StringVar(&cfg.LedgerRPCURL, "l", cfg.LedgerRPCURL, "ledger JSON-RPC endpoint URL")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "recovery database DSN")
	fs.StringVar(&cfg.KeystorePath, "k", cfg.KeystorePath, "wallet keystore path")
	fs.IntVar(&cfg.StorageEpochs, "e", cfg.StorageEpochs, "storage duration (in epochs)")
	probeBaseDelay := fs.Int("i", int(cfg.ProbeBaseDelay.Seconds()), "prober base delay (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	if *aggregators != "" {
		cfg.Aggregators = strings.Split(*aggregators, ",")
	}
	cfg.ProbeBaseDelay = time.Duration(*probeBaseDelay) * time.Second
}
