package models

// Stage is the in-memory orchestrator state of one file's pipeline run.
// Unlike RecordStatus it is not persisted; "failed" is terminal and
// reachable from any non-terminal stage.
type Stage string

const (
	StageEncrypting        Stage = "encrypting"
	StageGeneratingPreview Stage = "generating-preview"
	StageUploading         Stage = "uploading"
	StageRegistering       Stage = "registering"
	StageFinalizing        Stage = "finalizing"
	StageCompleted         Stage = "completed"
	StageFailed            Stage = "failed"
)

// Terminal reports whether no further transitions can occur.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}
