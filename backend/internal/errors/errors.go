package errors

import (
	"errors"
	"fmt"

	"github.com/blogmedia/blogmedia/shared/domain"
)

var (
	NotFound            = errors.New("Not found")
	ErrSweepInProgress  = errors.New("orphan sweep already in progress")
	ErrQueueFull        = errors.New("media job queue is full")
	ErrDispatcherClosed = errors.New("media dispatcher is closed")
	ErrFileReferenced   = errors.New("file is referenced by a post")
)

// Is reports whether err or anything it wraps is of type T.
func Is[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Validation error: %s", e.Message)
}

// DuplicateAssociationError is returned by the association store when the
// (post, file, kind) triple already exists. Callers treat it as a no-op.
type DuplicateAssociationError struct {
	PostId domain.PostId
	FileId domain.FileId
	Kind   domain.ReferenceKind
}

func (e *DuplicateAssociationError) Error() string {
	return fmt.Sprintf("association already exists: post=%d file=%d kind=%s", e.PostId, e.FileId, e.Kind)
}

// FileNotFoundError means a URL or id does not resolve to a registered file.
type FileNotFoundError struct {
	URL string
	Id  domain.FileId
}

func (e *FileNotFoundError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("file not found: url=%s", e.URL)
	}
	return fmt.Sprintf("file not found: id=%d", e.Id)
}

// PostNotFoundError means the post is missing, tombstoned or not yet visible.
type PostNotFoundError struct {
	PostId domain.PostId
}

func (e *PostNotFoundError) Error() string {
	return fmt.Sprintf("post not found: id=%d", e.PostId)
}

// StorageDeleteError wraps a failure to remove the stored object of a file.
type StorageDeleteError struct {
	FileId     domain.FileId
	StorageKey string
	Err        error
}

func (e *StorageDeleteError) Error() string {
	return fmt.Sprintf("delete object %q of file %d: %v", e.StorageKey, e.FileId, e.Err)
}

func (e *StorageDeleteError) Unwrap() error { return e.Err }

// MetadataDeleteError wraps a failure to remove file metadata. When
// ObjectDeleted is set the stored object is already gone and the record
// needs reconciling.
type MetadataDeleteError struct {
	FileId        domain.FileId
	ObjectDeleted bool
	Err           error
}

func (e *MetadataDeleteError) Error() string {
	return fmt.Sprintf("delete metadata of file %d: %v", e.FileId, e.Err)
}

func (e *MetadataDeleteError) Unwrap() error { return e.Err }
