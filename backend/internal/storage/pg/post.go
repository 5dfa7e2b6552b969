package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	internal_errors "github.com/blogmedia/blogmedia/backend/internal/errors"
	"github.com/blogmedia/blogmedia/shared/domain"
)

const postColumns = "id, title, html_body, thumbnail_url, deleted, created_at, updated_at"

func (s *Storage) CreatePost(ctx context.Context, title domain.PostTitle, htmlBody string, thumbnailURL *string) (domain.Post, error) {
	var post domain.Post
	err := s.db.GetContext(ctx, &post, `
		INSERT INTO posts (title, html_body, thumbnail_url)
		VALUES ($1, $2, $3)
		RETURNING `+postColumns,
		title, htmlBody, thumbnailURL,
	)
	if err != nil {
		return domain.Post{}, fmt.Errorf("failed to insert post: %w", err)
	}
	return post, nil
}

func (s *Storage) UpdatePost(ctx context.Context, id domain.PostId, title domain.PostTitle, htmlBody string, thumbnailURL *string) (domain.Post, error) {
	var post domain.Post
	err := s.db.GetContext(ctx, &post, `
		UPDATE posts
		SET title = $2, html_body = $3, thumbnail_url = $4, updated_at = now()
		WHERE id = $1 AND deleted = FALSE
		RETURNING `+postColumns,
		id, title, htmlBody, thumbnailURL,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Post{}, &internal_errors.PostNotFoundError{PostId: id}
	}
	if err != nil {
		return domain.Post{}, fmt.Errorf("failed to update post: %w", err)
	}
	return post, nil
}

func (s *Storage) GetPost(ctx context.Context, id domain.PostId) (domain.Post, error) {
	var post domain.Post
	err := s.db.GetContext(ctx, &post,
		`SELECT `+postColumns+` FROM posts WHERE id = $1 AND deleted = FALSE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Post{}, &internal_errors.PostNotFoundError{PostId: id}
	}
	if err != nil {
		return domain.Post{}, fmt.Errorf("failed to get post: %w", err)
	}
	return post, nil
}

func (s *Storage) PostExists(ctx context.Context, id domain.PostId) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM posts WHERE id = $1 AND deleted = FALSE)`, id)
	if err != nil {
		return false, fmt.Errorf("failed to check post: %w", err)
	}
	return exists, nil
}

// SoftDeletePost tombstones a post. Rows are kept so association foreign keys stay valid.
func (s *Storage) SoftDeletePost(ctx context.Context, id domain.PostId) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE posts SET deleted = TRUE, updated_at = now() WHERE id = $1 AND deleted = FALSE`, id)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &internal_errors.PostNotFoundError{PostId: id}
	}
	return nil
}
