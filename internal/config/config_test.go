package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:31415", cfg.PublisherURL)
	assert.Equal(t, "http://127.0.0.1:31416", cfg.PrimaryAggregator)
	assert.Equal(t, 15, cfg.ProbeMaxAttempts)
	assert.Equal(t, 1*time.Second, cfg.ProbeBaseDelay)
	assert.Equal(t, 10, cfg.UploadMaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.UploadRetryUnit)
	assert.Equal(t, "mediavault.db", cfg.DatabaseDSN)
	assert.False(t, cfg.ArchiveEnabled)
}

func TestRankedAggregators(t *testing.T) {
	tests := []struct {
		name    string
		primary string
		extra   []string
		want    []string
	}{
		{
			name:    "primary first",
			primary: "http://a",
			extra:   []string{"http://b", "http://c"},
			want:    []string{"http://a", "http://b", "http://c"},
		},
		{
			name:    "primary never duplicated",
			primary: "http://a",
			extra:   []string{"http://b", "http://a"},
			want:    []string{"http://a", "http://b"},
		},
		{
			name:  "no primary",
			extra: []string{"http://b"},
			want:  []string{"http://b"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{PrimaryAggregator: tc.primary, Aggregators: tc.extra}
			assert.Equal(t, tc.want, cfg.RankedAggregators())
		})
	}
}
