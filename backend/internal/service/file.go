package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	internal_errors "github.com/blogmedia/blogmedia/backend/internal/errors"
	"github.com/blogmedia/blogmedia/shared/domain"
	"github.com/blogmedia/blogmedia/shared/logger"
	"github.com/blogmedia/blogmedia/shared/validation"
	"github.com/google/uuid"
)

type FileService interface {
	Upload(ctx context.Context, upload domain.PendingUpload, content io.Reader) (domain.FileAsset, error)
	Open(ctx context.Context, id domain.FileId) (domain.FileAsset, io.ReadCloser, error)
}

type FileStorage interface {
	CreateFile(ctx context.Context, file domain.FileAsset) (domain.FileAsset, error)
	FindByID(ctx context.Context, id domain.FileId) (*domain.FileAsset, error)
}

// File stores uploaded bytes and records their metadata. Uploaded files are
// unreferenced until a post links to them, so the orphan sweep reclaims
// uploads that never get used once the grace period passes.
type File struct {
	storage       FileStorage
	objects       ObjectStorage
	publicBaseURL string
	rules         map[domain.UploadKind]validation.UploadRule
}

var _ FileService = (*File)(nil)

func NewFile(storage FileStorage, objects ObjectStorage, publicBaseURL string, limits validation.UploadLimits) *File {
	return &File{
		storage:       storage,
		objects:       objects,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		rules:         validation.Rules(limits),
	}
}

func (s *File) Upload(ctx context.Context, upload domain.PendingUpload, content io.Reader) (domain.FileAsset, error) {
	rule, ok := s.rules[upload.Kind]
	if !ok {
		return domain.FileAsset{}, &internal_errors.ValidationError{Message: fmt.Sprintf("unknown upload kind %q", upload.Kind)}
	}

	upload.ContentType = validation.DeclaredMimeType(upload.ContentType, upload.OriginalFilename)
	if err := validation.CheckUpload(upload, rule); err != nil {
		return domain.FileAsset{}, &internal_errors.ValidationError{Message: err.Error()}
	}

	data, err := validation.ReadVerified(content, upload.ContentType, rule)
	if err != nil {
		if errors.Is(err, validation.ErrPayloadTooLarge) || errors.Is(err, validation.ErrContentMismatch) {
			return domain.FileAsset{}, &internal_errors.ValidationError{Message: err.Error()}
		}
		return domain.FileAsset{}, err
	}

	key := rule.KeyPrefix + uuid.NewString() + "." + validation.Extension(upload.OriginalFilename)
	if err := s.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), upload.ContentType); err != nil {
		return domain.FileAsset{}, fmt.Errorf("store object: %w", err)
	}

	file, err := s.storage.CreateFile(ctx, domain.FileAsset{
		OriginalFilename: upload.OriginalFilename,
		StorageKey:       key,
		PublicURL:        s.publicBaseURL + "/" + key,
		ContentType:      upload.ContentType,
		ByteSize:         int64(len(data)),
		UploadKind:       upload.Kind,
	})
	if err != nil {
		// without metadata the sweep can never find the object
		if delErr := s.objects.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			logger.Log.Error("failed to remove object after metadata failure",
				"component", "upload", "storage_key", key, "error", delErr)
		}
		return domain.FileAsset{}, fmt.Errorf("record file: %w", err)
	}

	filesUploadedTotal.WithLabelValues(string(upload.Kind)).Inc()
	logger.Log.Info("file uploaded",
		"component", "upload", "file_id", file.Id, "kind", upload.Kind, "size", file.ByteSize, "version", file.Version)
	return file, nil
}

func (s *File) Open(ctx context.Context, id domain.FileId) (domain.FileAsset, io.ReadCloser, error) {
	file, err := s.storage.FindByID(ctx, id)
	if err != nil {
		return domain.FileAsset{}, nil, err
	}
	body, err := s.objects.Get(ctx, file.StorageKey)
	if err != nil {
		return domain.FileAsset{}, nil, fmt.Errorf("open object: %w", err)
	}
	return *file, body, nil
}
