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
	"github.com/jmoiron/sqlx"
)

const fileColumns = `id, original_filename, storage_key, public_url, content_type, byte_size,
	upload_kind, version, previous_version_id, created_at`

// CreateFile records metadata of a stored object. If a file with the same
// original filename exists, the new row becomes the next version and links
// back to the latest one.
func (s *Storage) CreateFile(ctx context.Context, file domain.FileAsset) (domain.FileAsset, error) {
	var created domain.FileAsset
	err := sharedpg.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		// serialize version assignment per filename
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", file.OriginalFilename); err != nil {
			return fmt.Errorf("failed to lock filename: %w", err)
		}

		latest, err := latestVersion(ctx, tx, file.OriginalFilename)
		switch {
		case err == nil:
			file.Version = latest.Version + 1
			file.PreviousVersionId = &latest.Id
		case internal_errors.Is[*internal_errors.FileNotFoundError](err):
			file.Version = 1
			file.PreviousVersionId = nil
		default:
			return err
		}

		err = tx.GetContext(ctx, &created, `
			INSERT INTO files (original_filename, storage_key, public_url, content_type, byte_size,
				upload_kind, version, previous_version_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING `+fileColumns,
			file.OriginalFilename, file.StorageKey, file.PublicURL, file.ContentType, file.ByteSize,
			file.UploadKind, file.Version, file.PreviousVersionId,
		)
		if err != nil {
			return fmt.Errorf("failed to insert file: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.FileAsset{}, err
	}
	return created, nil
}

// LatestVersion returns the newest version of a file uploaded under originalFilename.
func (s *Storage) LatestVersion(ctx context.Context, originalFilename string) (*domain.FileAsset, error) {
	return latestVersion(ctx, s.db, originalFilename)
}

func latestVersion(ctx context.Context, q sharedpg.Querier, originalFilename string) (*domain.FileAsset, error) {
	var file domain.FileAsset
	err := q.GetContext(ctx, &file,
		`SELECT `+fileColumns+` FROM files WHERE original_filename = $1 ORDER BY version DESC LIMIT 1`,
		originalFilename,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &internal_errors.FileNotFoundError{URL: originalFilename}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest file version: %w", err)
	}
	return &file, nil
}

func (s *Storage) FindByPublicURL(ctx context.Context, url string) (*domain.FileAsset, error) {
	var file domain.FileAsset
	err := s.db.GetContext(ctx, &file, `SELECT `+fileColumns+` FROM files WHERE public_url = $1`, url)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &internal_errors.FileNotFoundError{URL: url}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find file by url: %w", err)
	}
	return &file, nil
}

func (s *Storage) FindByID(ctx context.Context, id domain.FileId) (*domain.FileAsset, error) {
	var file domain.FileAsset
	err := s.db.GetContext(ctx, &file, `SELECT `+fileColumns+` FROM files WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &internal_errors.FileNotFoundError{Id: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find file by id: %w", err)
	}
	return &file, nil
}

// ListCreatedBefore returns files older than cutoff that no post references.
func (s *Storage) ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]domain.FileAsset, error) {
	files := []domain.FileAsset{}
	err := s.db.SelectContext(ctx, &files, `
		SELECT `+fileColumns+`
		FROM files f
		WHERE f.created_at < $1
		  AND NOT EXISTS (SELECT 1 FROM post_file_associations a WHERE a.file_id = f.id)
		ORDER BY f.created_at, f.id`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphan candidates: %w", err)
	}
	return files, nil
}

// Delete removes file metadata only. It fails with a foreign key violation
// when the file is still referenced.
func (s *Storage) Delete(ctx context.Context, id domain.FileId) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM files WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete file %d: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &internal_errors.FileNotFoundError{Id: id}
	}
	return nil
}

// DeleteIfUnreferenced removes a file whose metadata row is locked and
// rechecked for references. deleteObject runs while the lock is held, so an
// association insert racing the delete waits and then fails on the foreign
// key. A deleteObject error rolls the transaction back and keeps the row.
func (s *Storage) DeleteIfUnreferenced(ctx context.Context, id domain.FileId, deleteObject func(ctx context.Context) error) error {
	return sharedpg.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var locked domain.FileId
		err := tx.GetContext(ctx, &locked, "SELECT id FROM files WHERE id = $1 FOR UPDATE", id)
		if errors.Is(err, sql.ErrNoRows) {
			return &internal_errors.FileNotFoundError{Id: id}
		}
		if err != nil {
			return fmt.Errorf("failed to lock file %d: %w", id, err)
		}

		var referenced bool
		err = tx.GetContext(ctx, &referenced,
			"SELECT EXISTS (SELECT 1 FROM post_file_associations WHERE file_id = $1)", id)
		if err != nil {
			return fmt.Errorf("failed to check references of file %d: %w", id, err)
		}
		if referenced {
			return internal_errors.ErrFileReferenced
		}

		if err := deleteObject(ctx); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM files WHERE id = $1", id); err != nil {
			return fmt.Errorf("failed to delete file %d: %w", id, err)
		}
		return nil
	})
}
