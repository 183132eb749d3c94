package config

import (
	"encoding/json"
	"os"

	"github.com/dverbin/mediavault/internal/flagx"
	"github.com/dverbin/mediavault/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "3s" or as integer nanoseconds. After parsing, values
// are copied into the runtime Config (which uses time.Duration).
type JsonConfig struct {
	PublisherURL      string         `json:"publisher_url"`
	PrimaryAggregator string         `json:"primary_aggregator"`
	Aggregators       []string       `json:"aggregators"`
	LedgerRPCURL      string         `json:"ledger_rpc_url"`
	ContractPackage   string         `json:"contract_package"`
	RegistrationFee   uint64         `json:"registration_fee"`
	StorageEpochs     int            `json:"storage_epochs"`
	DatabaseDSN       string         `json:"database_dsn"`
	KeystorePath      string         `json:"keystore_path"`
	ProbeMaxAttempts  int            `json:"probe_max_attempts"`
	ProbeBaseDelay    timex.Duration `json:"probe_base_delay"`
	UploadMaxAttempts int            `json:"upload_max_attempts"`
	UploadRetryUnit   timex.Duration `json:"upload_retry_unit"`
	VerifyServiceURL  string         `json:"verify_service_url"`
	VerifySigningKey  string         `json:"verify_signing_key"`
	ArchiveEnabled    bool           `json:"archive_enabled"`
	S3AccessKey       string         `json:"s3_access_key"`
	S3SecretKey       string         `json:"s3_secret_key"`
	S3Bucket          string         `json:"s3_bucket"`
	S3Region          string         `json:"s3_region"`
	S3BaseEndpoint    string         `json:"s3_base_endpoint"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// Lookup order for the JSON file path:
//  1. Command-line flags (-c or -config) via flagx.JsonConfigFlags().
//  2. If empty, no JSON is loaded and the function returns.
//
// Only fields present in the JSON override the current Config values.
// Panics on read or unmarshal errors (caller should recover if desired).
//
// Intended usage is: defaults -> parseJson -> parseFlags, where later
// stages override earlier ones.
func parseJson(cfg *Config) {
	// Resolve file path from flags.
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.PublisherURL != "" {
		cfg.PublisherURL = jc.PublisherURL
	}
	if jc.PrimaryAggregator != "" {
		cfg.PrimaryAggregator = jc.PrimaryAggregator
	}
	if len(jc.Aggregators) > 0 {
		cfg.Aggregators = jc.Aggregators
	}
	if jc.LedgerRPCURL != "" {
		cfg.LedgerRPCURL = jc.LedgerRPCURL
	}
	if jc.ContractPackage != "" {
		cfg.ContractPackage = jc.ContractPackage
	}
	if jc.RegistrationFee != 0 {
		cfg.RegistrationFee = jc.RegistrationFee
	}
	if jc.StorageEpochs != 0 {
		cfg.StorageEpochs = jc.StorageEpochs
	}
	if jc.DatabaseDSN != "" {
		cfg.DatabaseDSN = jc.DatabaseDSN
	}
	if jc.KeystorePath != "" {
		cfg.KeystorePath = jc.KeystorePath
	}
	if jc.ProbeMaxAttempts != 0 {
		cfg.ProbeMaxAttempts = jc.ProbeMaxAttempts
	}
	if jc.ProbeBaseDelay.Duration != 0 {
		cfg.ProbeBaseDelay = jc.ProbeBaseDelay.Duration
	}
	if jc.UploadMaxAttempts != 0 {
		cfg.UploadMaxAttempts = jc.UploadMaxAttempts
	}
	if jc.UploadRetryUnit.Duration != 0 {
		cfg.UploadRetryUnit = jc.UploadRetryUnit.Duration
	}
	if jc.VerifyServiceURL != "" {
		cfg.VerifyServiceURL = jc.VerifyServiceURL
	}
	if jc.VerifySigningKey != "" {
		cfg.VerifySigningKey = jc.VerifySigningKey
	}
	if jc.ArchiveEnabled {
		cfg.ArchiveEnabled = true
	}
	if jc.S3AccessKey != "" {
		cfg.S3AccessKey = jc.S3AccessKey
	}
	if jc.S3SecretKey != "" {
		cfg.S3SecretKey = jc.S3SecretKey
	}
	if jc.S3Bucket != "" {
		cfg.S3Bucket = jc.S3Bucket
	}
	if jc.S3Region != "" {
		cfg.S3Region = jc.S3Region
	}
	if jc.S3BaseEndpoint != "" {
		cfg.S3BaseEndpoint = jc.S3BaseEndpoint
	}
}
