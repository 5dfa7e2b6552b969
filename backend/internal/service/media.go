package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	internal_errors "github.com/blogmedia/blogmedia/backend/internal/errors"
	"github.com/blogmedia/blogmedia/backend/internal/service/utils"
	"github.com/blogmedia/blogmedia/shared/domain"
	"github.com/blogmedia/blogmedia/shared/logger"
)

// FileRegistry is the file metadata store.
type FileRegistry interface {
	FindByPublicURL(ctx context.Context, url string) (*domain.FileAsset, error)
	FindByID(ctx context.Context, id domain.FileId) (*domain.FileAsset, error)
	// ListCreatedBefore returns unreferenced files created before cutoff.
	ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]domain.FileAsset, error)
	// Delete removes metadata only; the stored object is deleted by the caller.
	Delete(ctx context.Context, id domain.FileId) error
	// DeleteIfUnreferenced locks the file, returns errors.ErrFileReferenced if
	// a post references it, and otherwise runs deleteObject and removes the
	// metadata. A deleteObject error keeps the metadata.
	DeleteIfUnreferenced(ctx context.Context, id domain.FileId, deleteObject func(ctx context.Context) error) error
}

type AssociationStore interface {
	Exists(ctx context.Context, postId domain.PostId, fileId domain.FileId, kind domain.ReferenceKind) (bool, error)
	// Insert fails with *errors.DuplicateAssociationError when the triple exists.
	Insert(ctx context.Context, postId domain.PostId, fileId domain.FileId, kind domain.ReferenceKind) (domain.AssociationId, error)
	ListByPost(ctx context.Context, postId domain.PostId) ([]domain.Association, error)
	ListByFile(ctx context.Context, fileId domain.FileId) ([]domain.Association, error)
	// DeleteAllByPost returns the distinct ids of the files that were referenced.
	DeleteAllByPost(ctx context.Context, postId domain.PostId) ([]domain.FileId, error)
}

// AttachedFileLister is implemented by association stores that can join
// file metadata in a single query.
type AttachedFileLister interface {
	ListAttachedFiles(ctx context.Context, postId domain.PostId) ([]domain.AttachedFile, error)
}

type PostChecker interface {
	PostExists(ctx context.Context, id domain.PostId) (bool, error)
}

// MediaPublisher hands association jobs to asynchronous workers.
type MediaPublisher interface {
	Publish(ctx context.Context, job domain.MediaJob) error
}

// Media keeps the post to file association in sync with post content.
type Media struct {
	files        FileRegistry
	associations AssociationStore
	posts        PostChecker
	publisher    MediaPublisher
}

// NewMedia creates the association service. With a nil publisher extracted
// URLs are processed inline.
func NewMedia(files FileRegistry, associations AssociationStore, posts PostChecker, publisher MediaPublisher) *Media {
	return &Media{
		files:        files,
		associations: associations,
		posts:        posts,
		publisher:    publisher,
	}
}

// AssociateFromHTML associates the post thumbnail right away and queues the
// URLs found in the body. Failures are logged, never returned.
func (m *Media) AssociateFromHTML(ctx context.Context, post *domain.Post) {
	if thumb := strings.TrimSpace(post.Thumbnail()); thumb != "" {
		if _, err := m.Associate(ctx, post.Id, thumb, domain.RefThumbnail); err != nil {
			logger.Log.Error("failed to associate thumbnail",
				"component", "media", "post_id", post.Id, "url", thumb, "error", err)
		}
	}

	urls := utils.ExtractMediaURLs(post.HTMLBody)
	if countURLs(urls) == 0 {
		return
	}

	if m.publisher == nil {
		if _, _, err := m.ProcessMediaURLs(ctx, post.Id, urls); err != nil {
			logger.Log.Error("failed to process media urls", "component", "media", "post_id", post.Id, "error", err)
		}
		return
	}

	job := domain.MediaJob{PostId: post.Id, URLs: urls, EnqueuedAt: time.Now()}
	if err := m.publisher.Publish(ctx, job); err != nil {
		// the next save of the post re-queues the same urls
		mediaJobsTotal.WithLabelValues("rejected").Inc()
		logger.Log.Warn("media job not queued",
			"component", "media", "post_id", post.Id, "urls", countURLs(urls), "error", err)
		return
	}
	mediaJobsTotal.WithLabelValues("queued").Inc()
}

// Associate links the file published at fileURL to the post. It returns
// true only when a new association was created. Unknown URLs, existing
// associations and deleted posts are skipped without error.
func (m *Media) Associate(ctx context.Context, postId domain.PostId, fileURL string, kind domain.ReferenceKind) (bool, error) {
	file, err := m.files.FindByPublicURL(ctx, fileURL)
	if err != nil {
		if internal_errors.Is[*internal_errors.FileNotFoundError](err) {
			associationsTotal.WithLabelValues(kind, "unresolved").Inc()
			logger.Log.Warn("no file registered for url", "component", "media", "post_id", postId, "url", fileURL)
			return false, nil
		}
		associationsTotal.WithLabelValues(kind, "error").Inc()
		return false, fmt.Errorf("find file by url: %w", err)
	}

	exists, err := m.associations.Exists(ctx, postId, file.Id, kind)
	if err != nil {
		associationsTotal.WithLabelValues(kind, "error").Inc()
		return false, fmt.Errorf("check association: %w", err)
	}
	if exists {
		associationsTotal.WithLabelValues(kind, "duplicate").Inc()
		logger.Log.Debug("association already exists",
			"component", "media", "post_id", postId, "file_id", file.Id, "kind", kind)
		return false, nil
	}

	if _, err := m.associations.Insert(ctx, postId, file.Id, kind); err != nil {
		switch {
		case internal_errors.Is[*internal_errors.DuplicateAssociationError](err):
			// lost the race to a concurrent insert
			associationsTotal.WithLabelValues(kind, "duplicate").Inc()
			logger.Log.Debug("association inserted concurrently",
				"component", "media", "post_id", postId, "file_id", file.Id, "kind", kind)
			return false, nil
		case internal_errors.Is[*internal_errors.FileNotFoundError](err):
			associationsTotal.WithLabelValues(kind, "unresolved").Inc()
			logger.Log.Warn("file removed before association",
				"component", "media", "post_id", postId, "file_id", file.Id)
			return false, nil
		case internal_errors.Is[*internal_errors.PostNotFoundError](err):
			// tombstoned after the job was queued
			associationsTotal.WithLabelValues(kind, "post_deleted").Inc()
			logger.Log.Info("post deleted before association",
				"component", "media", "post_id", postId, "file_id", file.Id)
			return false, nil
		}
		associationsTotal.WithLabelValues(kind, "error").Inc()
		return false, fmt.Errorf("insert association: %w", err)
	}

	associationsTotal.WithLabelValues(kind, "created").Inc()
	logger.Log.Info("associated file with post",
		"component", "media", "post_id", postId, "file_id", file.Id, "kind", kind)
	return true, nil
}

// ProcessMediaURLs associates every URL under its category name. It keeps
// going after failures and returns them joined.
func (m *Media) ProcessMediaURLs(ctx context.Context, postId domain.PostId, urls domain.MediaURLs) (created, skipped int, err error) {
	var errs []error
	for _, category := range domain.Categories {
		for _, url := range urls[category] {
			ok, assocErr := m.Associate(ctx, postId, url, domain.ReferenceKind(category))
			switch {
			case assocErr != nil:
				errs = append(errs, assocErr)
				logger.Log.Error("failed to associate media url",
					"component", "media", "post_id", postId, "url", url, "error", assocErr)
			case ok:
				created++
			default:
				skipped++
			}
		}
	}
	return created, skipped, errors.Join(errs...)
}

// HandleMediaJob is the worker entry point. A job for a post that is not
// visible yet fails with *errors.PostNotFoundError so it is retried.
func (m *Media) HandleMediaJob(ctx context.Context, job domain.MediaJob) error {
	exists, err := m.posts.PostExists(ctx, job.PostId)
	if err != nil {
		return fmt.Errorf("check post: %w", err)
	}
	if !exists {
		return &internal_errors.PostNotFoundError{PostId: job.PostId}
	}

	created, skipped, err := m.ProcessMediaURLs(ctx, job.PostId, job.URLs)
	logger.Log.Debug("media job processed",
		"component", "media", "post_id", job.PostId, "created", created, "skipped", skipped)
	return err
}

// Detach removes every association of a post and returns the files that
// are no longer referenced by any post.
func (m *Media) Detach(ctx context.Context, postId domain.PostId) ([]domain.FileId, error) {
	fileIds, err := m.associations.DeleteAllByPost(ctx, postId)
	if err != nil {
		return nil, fmt.Errorf("delete associations: %w", err)
	}

	orphans := []domain.FileId{}
	for _, fileId := range fileIds {
		refs, err := m.associations.ListByFile(ctx, fileId)
		if err != nil {
			// the scheduled sweep finds it if it really is orphaned
			logger.Log.Warn("failed to check file references",
				"component", "media", "file_id", fileId, "error", err)
			continue
		}
		if len(refs) == 0 {
			orphans = append(orphans, fileId)
		}
	}

	logger.Log.Info("detached post media",
		"component", "media", "post_id", postId, "files", len(fileIds), "orphans", len(orphans))
	return orphans, nil
}

// Files returns the associations of a post with their file metadata.
func (m *Media) Files(ctx context.Context, postId domain.PostId) ([]domain.AttachedFile, error) {
	if lister, ok := m.associations.(AttachedFileLister); ok {
		return lister.ListAttachedFiles(ctx, postId)
	}

	associations, err := m.associations.ListByPost(ctx, postId)
	if err != nil {
		return nil, fmt.Errorf("list associations: %w", err)
	}
	attached := make([]domain.AttachedFile, 0, len(associations))
	for _, a := range associations {
		file, err := m.files.FindByID(ctx, a.FileId)
		if err != nil {
			return nil, fmt.Errorf("find file %d: %w", a.FileId, err)
		}
		attached = append(attached, domain.AttachedFile{Association: a, File: *file})
	}
	return attached, nil
}

func countURLs(urls domain.MediaURLs) int {
	n := 0
	for _, list := range urls {
		n += len(list)
	}
	return n
}
