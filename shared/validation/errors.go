package validation

import "errors"

// ErrPayloadTooLarge is returned when the request body exceeds size limits
var ErrPayloadTooLarge = errors.New("payload too large")

// ErrInvalidMimeType is returned when an uploaded file has a disallowed MIME type
var ErrInvalidMimeType = errors.New("invalid MIME type")

// ErrInvalidExtension is returned when the filename extension does not fit the upload kind
var ErrInvalidExtension = errors.New("invalid file extension")

// ErrContentMismatch is returned when sniffed content disagrees with the declared type
var ErrContentMismatch = errors.New("file content does not match its type")

// ErrMalformedForm is returned when a request is not a readable multipart form
var ErrMalformedForm = errors.New("malformed multipart form")
