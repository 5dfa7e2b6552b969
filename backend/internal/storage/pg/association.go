package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	internal_errors "github.com/blogmedia/blogmedia/backend/internal/errors"
	"github.com/blogmedia/blogmedia/shared/domain"
	sharedpg "github.com/blogmedia/blogmedia/shared/storage/pg"
)

const associationColumns = "id, post_id, file_id, reference_kind, created_at"

func (s *Storage) Exists(ctx context.Context, postId domain.PostId, fileId domain.FileId, kind domain.ReferenceKind) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM post_file_associations
			WHERE post_id = $1 AND file_id = $2 AND reference_kind = $3
		)`,
		postId, fileId, kind,
	)
	if err != nil {
		return false, fmt.Errorf("failed to check association: %w", err)
	}
	return exists, nil
}

// Insert creates an association for a live post. The post row is share
// locked so a concurrent tombstone either waits for this insert or makes it
// find no live post. The unique constraint decides races between concurrent
// inserts of the same triple.
func (s *Storage) Insert(ctx context.Context, postId domain.PostId, fileId domain.FileId, kind domain.ReferenceKind) (domain.AssociationId, error) {
	var id domain.AssociationId
	err := s.db.GetContext(ctx, &id, `
		WITH live AS (
			SELECT id FROM posts WHERE id = $1 AND NOT deleted FOR SHARE
		)
		INSERT INTO post_file_associations (post_id, file_id, reference_kind)
		SELECT live.id, $2, $3 FROM live
		RETURNING id`,
		postId, fileId, kind,
	)
	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, sql.ErrNoRows):
		return 0, &internal_errors.PostNotFoundError{PostId: postId}
	case sharedpg.IsUniqueViolation(err):
		return 0, &internal_errors.DuplicateAssociationError{PostId: postId, FileId: fileId, Kind: kind}
	case sharedpg.IsForeignKeyViolation(err):
		// the post is live, so the file vanished
		return 0, &internal_errors.FileNotFoundError{Id: fileId}
	default:
		return 0, fmt.Errorf("failed to insert association: %w", err)
	}
}

func (s *Storage) ListByPost(ctx context.Context, postId domain.PostId) ([]domain.Association, error) {
	associations := []domain.Association{}
	err := s.db.SelectContext(ctx, &associations,
		`SELECT `+associationColumns+` FROM post_file_associations WHERE post_id = $1 ORDER BY id`,
		postId,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list associations by post: %w", err)
	}
	return associations, nil
}

func (s *Storage) ListByFile(ctx context.Context, fileId domain.FileId) ([]domain.Association, error) {
	associations := []domain.Association{}
	err := s.db.SelectContext(ctx, &associations,
		`SELECT `+associationColumns+` FROM post_file_associations WHERE file_id = $1 ORDER BY id`,
		fileId,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list associations by file: %w", err)
	}
	return associations, nil
}

// DeleteAllByPost removes every association of a post and returns the
// distinct ids of the files they pointed at.
func (s *Storage) DeleteAllByPost(ctx context.Context, postId domain.PostId) ([]domain.FileId, error) {
	fileIds := []domain.FileId{}
	err := s.db.SelectContext(ctx, &fileIds, `
		WITH deleted AS (
			DELETE FROM post_file_associations WHERE post_id = $1 RETURNING file_id
		)
		SELECT DISTINCT file_id FROM deleted ORDER BY file_id`,
		postId,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to delete associations of post %d: %w", postId, err)
	}
	return fileIds, nil
}

type attachedFileRow struct {
	AssociationId domain.AssociationId `db:"association_id"`
	PostId        domain.PostId        `db:"post_id"`
	ReferenceKind string               `db:"reference_kind"`
	AssociatedAt  time.Time            `db:"associated_at"`
	domain.FileAsset
}

// ListAttachedFiles returns the associations of a post joined with file metadata.
func (s *Storage) ListAttachedFiles(ctx context.Context, postId domain.PostId) ([]domain.AttachedFile, error) {
	var rows []attachedFileRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.id AS association_id, a.post_id, a.reference_kind, a.created_at AS associated_at,
			f.id, f.original_filename, f.storage_key, f.public_url, f.content_type, f.byte_size,
			f.upload_kind, f.version, f.previous_version_id, f.created_at
		FROM post_file_associations a
		JOIN files f ON f.id = a.file_id
		WHERE a.post_id = $1
		ORDER BY a.id`,
		postId,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list attached files: %w", err)
	}

	attached := make([]domain.AttachedFile, 0, len(rows))
	for _, row := range rows {
		attached = append(attached, domain.AttachedFile{
			Association: domain.Association{
				Id:            row.AssociationId,
				PostId:        row.PostId,
				FileId:        row.FileAsset.Id,
				ReferenceKind: row.ReferenceKind,
				CreatedAt:     row.AssociatedAt,
			},
			File: row.FileAsset,
		})
	}
	return attached, nil
}
