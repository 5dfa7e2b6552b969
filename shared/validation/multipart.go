package validation

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// FormOverhead covers multipart boundaries and the small text fields.
	FormOverhead = 1 << 20
	// parts larger than this spill to temporary files
	formMemory = 8 << 20
)

// ParseUploadForm caps the body at maxFileSize plus FormOverhead and parses
// the multipart form. Callers remove r.MultipartForm when done.
func ParseUploadForm(w http.ResponseWriter, r *http.Request, maxFileSize int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxFileSize+FormOverhead)

	if err := r.ParseMultipartForm(min(formMemory, maxFileSize)); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return fmt.Errorf("%w: request exceeds %d bytes", ErrPayloadTooLarge, maxBytesErr.Limit)
		}
		return fmt.Errorf("%w: %v", ErrMalformedForm, err)
	}
	return nil
}

// FormatSizeMB converts bytes to megabytes for error messages.
func FormatSizeMB(bytes int64) float64 {
	return float64(bytes) / (1024 * 1024)
}
