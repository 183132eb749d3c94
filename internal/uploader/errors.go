package uploader

import (
	"fmt"

	"github.com/dverbin/mediavault/internal/models"
)

// PreviewUploadError marks the critical partial-failure: the main blob was
// stored but the preview upload exhausted its retries. The file's recovery
// record must stay pre-uploaded so a retry re-attempts the whole file
// rather than assuming partial success.
type PreviewUploadError struct {
	Main models.BlobUploadResult
	Err  error
}

func (e *PreviewUploadError) Error() string {
	return fmt.Sprintf("critical: preview blob upload failed after main blob %s succeeded: %v", e.Main.BlobID, e.Err)
}

func (e *PreviewUploadError) Unwrap() error { return e.Err }
