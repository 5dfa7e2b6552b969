package service

import (
	"context"
	"strings"
	"sync"
	"time"

	internal_errors "github.com/blogmedia/blogmedia/backend/internal/errors"
	"github.com/blogmedia/blogmedia/backend/internal/service/utils"
	"github.com/blogmedia/blogmedia/shared/domain"
	"github.com/blogmedia/blogmedia/shared/logger"
)

type PostService interface {
	Create(ctx context.Context, draft domain.PostDraft) (domain.Post, error)
	Update(ctx context.Context, id domain.PostId, draft domain.PostDraft) (domain.Post, error)
	Get(ctx context.Context, id domain.PostId) (domain.PostDetail, error)
	Delete(ctx context.Context, id domain.PostId) error
}

type PostStorage interface {
	CreatePost(ctx context.Context, title domain.PostTitle, htmlBody string, thumbnailURL *string) (domain.Post, error)
	UpdatePost(ctx context.Context, id domain.PostId, title domain.PostTitle, htmlBody string, thumbnailURL *string) (domain.Post, error)
	GetPost(ctx context.Context, id domain.PostId) (domain.Post, error)
	SoftDeletePost(ctx context.Context, id domain.PostId) error
}

// PostMedia is the part of the association service posts depend on.
type PostMedia interface {
	AssociateFromHTML(ctx context.Context, post *domain.Post)
	Detach(ctx context.Context, postId domain.PostId) ([]domain.FileId, error)
	Files(ctx context.Context, postId domain.PostId) ([]domain.AttachedFile, error)
}

type OrphanMarker interface {
	MarkCandidates(ctx context.Context, ids []domain.FileId) SweepReport
}

type Post struct {
	storage     PostStorage
	media       PostMedia
	reaper      OrphanMarker
	renderer    *utils.BodyRenderer
	reapTimeout time.Duration

	background sync.WaitGroup
}

var _ PostService = (*Post)(nil)

func NewPost(storage PostStorage, media PostMedia, reaper OrphanMarker, reapTimeout time.Duration) *Post {
	if reapTimeout <= 0 {
		reapTimeout = 5 * time.Minute
	}
	return &Post{
		storage:     storage,
		media:       media,
		reaper:      reaper,
		renderer:    utils.NewBodyRenderer(),
		reapTimeout: reapTimeout,
	}
}

func (s *Post) Create(ctx context.Context, draft domain.PostDraft) (domain.Post, error) {
	body, err := s.prepare(&draft)
	if err != nil {
		return domain.Post{}, err
	}

	post, err := s.storage.CreatePost(ctx, draft.Title, body, draft.ThumbnailURL)
	if err != nil {
		return domain.Post{}, err
	}

	s.media.AssociateFromHTML(ctx, &post)
	return post, nil
}

// Update replaces the post content. Associations are only added; files the
// post stopped referencing are released when the post is deleted.
func (s *Post) Update(ctx context.Context, id domain.PostId, draft domain.PostDraft) (domain.Post, error) {
	body, err := s.prepare(&draft)
	if err != nil {
		return domain.Post{}, err
	}

	post, err := s.storage.UpdatePost(ctx, id, draft.Title, body, draft.ThumbnailURL)
	if err != nil {
		return domain.Post{}, err
	}

	s.media.AssociateFromHTML(ctx, &post)
	return post, nil
}

func (s *Post) Get(ctx context.Context, id domain.PostId) (domain.PostDetail, error) {
	post, err := s.storage.GetPost(ctx, id)
	if err != nil {
		return domain.PostDetail{}, err
	}
	files, err := s.media.Files(ctx, id)
	if err != nil {
		return domain.PostDetail{}, err
	}
	return domain.PostDetail{Post: post, Files: files}, nil
}

// Delete tombstones the post, releases its files and reaps those nobody
// else references in the background. The tombstone goes first so media jobs
// still in flight can no longer attach files to the post.
func (s *Post) Delete(ctx context.Context, id domain.PostId) error {
	if err := s.storage.SoftDeletePost(ctx, id); err != nil {
		return err
	}

	orphans, err := s.media.Detach(ctx, id)
	if err != nil {
		// the scheduled sweep picks up whatever stays unreferenced
		logger.Log.Error("failed to detach post media", "component", "post", "post_id", id, "error", err)
	}

	if len(orphans) == 0 || s.reaper == nil {
		return nil
	}

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		reapCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.reapTimeout)
		defer cancel()
		report := s.reaper.MarkCandidates(reapCtx, orphans)
		if len(report.Errors) > 0 {
			logger.Log.Warn("some orphaned files were not reaped",
				"component", "post", "post_id", id, "errors", report.Errors)
		}
	}()
	return nil
}

// Wait blocks until background reaping started by Delete has finished.
func (s *Post) Wait() {
	s.background.Wait()
}

func (s *Post) prepare(draft *domain.PostDraft) (string, error) {
	draft.Title = strings.TrimSpace(draft.Title)
	if draft.Title == "" {
		return "", &internal_errors.ValidationError{Message: "title is required"}
	}
	if draft.ThumbnailURL != nil && strings.TrimSpace(*draft.ThumbnailURL) == "" {
		draft.ThumbnailURL = nil
	}

	body, err := s.renderer.Render(draft.Format, draft.Body)
	if err != nil {
		return "", &internal_errors.ValidationError{Message: err.Error()}
	}
	return body, nil
}
