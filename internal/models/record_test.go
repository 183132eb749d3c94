package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordStatus_CanAdvanceTo(t *testing.T) {
	tests := []struct {
		name string
		from RecordStatus
		to   RecordStatus
		want bool
	}{
		{"forward encrypting to uploaded", StatusEncrypting, StatusUploaded, true},
		{"forward uploaded to registered", StatusUploaded, StatusRegistered, true},
		{"skip ahead", StatusEncrypting, StatusRegistered, true},
		{"stay", StatusUploaded, StatusUploaded, true},
		{"regress", StatusRegistered, StatusUploaded, false},
		{"regress to start", StatusUploaded, StatusEncrypting, false},
		{"unknown target", StatusUploaded, RecordStatus("bogus"), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.from.CanAdvanceTo(tc.to))
		})
	}
}

func TestStage_Terminal(t *testing.T) {
	assert.True(t, StageCompleted.Terminal())
	assert.True(t, StageFailed.Terminal())
	assert.False(t, StageUploading.Terminal())
	assert.False(t, StageRegistering.Terminal())
}
