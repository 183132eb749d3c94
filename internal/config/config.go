// Package config handles configuration for the mediavault client, including
// defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the publish pipeline.
//
// Fields:
//   - PublisherURL: write endpoint of the blob store.
//   - PrimaryAggregator: read mirror always probed first.
//   - Aggregators: additional read mirrors, in rank order.
//   - LedgerRPCURL: JSON-RPC endpoint of the chain fullnode.
//   - ContractPackage: on-chain package id of the registry contract.
//   - RegistrationFee: per-file fee in the chain's smallest unit.
//   - StorageEpochs: blob retention duration in store epochs.
//   - DatabaseDSN: SQLite DSN of the local recovery database.
//   - KeystorePath: path to the sealed wallet key file.
//   - ProbeMaxAttempts / ProbeBaseDelay: availability prober budget.
//   - UploadMaxAttempts / UploadRetryUnit: upload submitter budget.
//   - VerifyServiceURL / VerifySigningKey: content verification service
//     endpoint and the shared HMAC key used to sign bearer tokens.
//   - ArchiveEnabled + S3*: optional S3-compatible cold archive mirror.
type Config struct {
	PublisherURL      string
	PrimaryAggregator string
	Aggregators       []string
	LedgerRPCURL      string
	ContractPackage   string
	RegistrationFee   uint64
	StorageEpochs     int
	DatabaseDSN       string
	KeystorePath      string
	ProbeMaxAttempts  int
	ProbeBaseDelay    time.Duration
	UploadMaxAttempts int
	UploadRetryUnit   time.Duration
	VerifyServiceURL  string
	VerifySigningKey  string
	ArchiveEnabled    bool
	S3AccessKey       string
	S3SecretKey       string
	S3Bucket          string
	S3Region          string
	S3BaseEndpoint    string
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: The endpoints point at a local devnet and should be overridden.
func (c *Config) LoadDefaults() {
	c.PublisherURL = "http://127.0.0.1:31415"
	c.PrimaryAggregator = "http://127.0.0.1:31416"
	c.Aggregators = nil
	c.LedgerRPCURL = "http://127.0.0.1:9000"
	c.ContractPackage = "0x0"
	c.RegistrationFee = 100_000_000
	c.StorageEpochs = 5
	c.DatabaseDSN = "mediavault.db"
	c.KeystorePath = "wallet.key"
	c.ProbeMaxAttempts = 15
	c.ProbeBaseDelay = 1 * time.Second
	c.UploadMaxAttempts = 10
	c.UploadRetryUnit = 2 * time.Second
	c.VerifyServiceURL = ""
	c.VerifySigningKey = ""
	c.ArchiveEnabled = false
	c.S3Bucket = "mediavault-archive"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present). Later sources
// take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}

// RankedAggregators returns the full read-mirror list with the primary
// aggregator first. The primary is never duplicated.
func (c *Config) RankedAggregators() []string {
	ranked := make([]string, 0, len(c.Aggregators)+1)
	if c.PrimaryAggregator != "" {
		ranked = append(ranked, c.PrimaryAggregator)
	}
	for _, a := range c.Aggregators {
		if a != c.PrimaryAggregator {
			ranked = append(ranked, a)
		}
	}
	return ranked
}
