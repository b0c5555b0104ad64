package files

import (
	"fmt"

	"github.com/filevault/internal/apperr"
	"github.com/filevault/internal/models"
)

// Status classifies a batch outcome.
type Status int

const (
	StatusComplete Status = iota
	StatusPartial
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusComplete:
		return "complete"
	case StatusPartial:
		return "partial"
	default:
		return "failed"
	}
}

// BatchResult holds the stored files in input order and one entry per
// failed item.
type BatchResult struct {
	Files  []*models.File
	Errors []models.UploadError
}

func (r *BatchResult) Status() Status {
	switch {
	case len(r.Errors) == 0:
		return StatusComplete
	case len(r.Files) == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}

// Err is nil for a complete batch, a PARTIAL_BATCH error when some files
// were stored and a validation error when none was.
func (r *BatchResult) Err() error {
	msg := fmt.Sprintf("%d files failed to upload", len(r.Errors))
	switch r.Status() {
	case StatusComplete:
		return nil
	case StatusPartial:
		return apperr.New(apperr.CodePartialBatch, msg)
	default:
		return apperr.Validation(msg)
	}
}

func (r *BatchResult) Response() models.UploadResponse {
	return models.UploadResponse{Files: r.Files, Errors: r.Errors}
}
