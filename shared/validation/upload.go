package validation

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/blogmedia/blogmedia/shared/domain"
	"github.com/gabriel-vasile/mimetype"
)

// UploadLimits are the maximum sizes in bytes per upload kind.
type UploadLimits struct {
	Thumbnail int64
	Image     int64
	Video     int64
	Document  int64
}

// UploadRule describes what an upload kind accepts and where it is stored.
type UploadRule struct {
	KeyPrefix  string
	MimeTypes  map[string]bool
	Extensions map[string]bool
	MaxSize    int64
}

var (
	imageMimes    = []string{"image/jpeg", "image/png", "image/webp", "image/gif"}
	imageExts     = []string{"jpg", "jpeg", "png", "webp", "gif"}
	videoMimes    = []string{"video/mp4", "video/webm"}
	videoExts     = []string{"mp4", "webm"}
	documentMimes = []string{
		"application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.ms-excel",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.ms-powerpoint",
		"application/vnd.openxmlformats-officedocument.presentationml.presentation",
		"text/plain",
	}
	documentExts = []string{"pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx", "txt"}
)

func set(values []string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

// Rules returns the upload rule of every kind.
func Rules(limits UploadLimits) map[domain.UploadKind]UploadRule {
	return map[domain.UploadKind]UploadRule{
		domain.UploadThumbnail:   {KeyPrefix: "thumbnails/", MimeTypes: set(imageMimes), Extensions: set(imageExts), MaxSize: limits.Thumbnail},
		domain.UploadInlineImage: {KeyPrefix: "editor-images/", MimeTypes: set(imageMimes), Extensions: set(imageExts), MaxSize: limits.Image},
		domain.UploadInlineVideo: {KeyPrefix: "editor-videos/", MimeTypes: set(videoMimes), Extensions: set(videoExts), MaxSize: limits.Video},
		domain.UploadDocument:    {KeyPrefix: "documents/", MimeTypes: set(documentMimes), Extensions: set(documentExts), MaxSize: limits.Document},
	}
}

// Extension returns the lower-cased extension of filename without the dot.
func Extension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// DeclaredMimeType resolves the content type an upload claims, falling back
// to the filename extension when the client sent nothing useful.
func DeclaredMimeType(contentType, filename string) string {
	if contentType != "" && contentType != "application/octet-stream" {
		if base, _, err := mime.ParseMediaType(contentType); err == nil {
			return strings.ToLower(base)
		}
	}
	if byExt := mime.TypeByExtension(filepath.Ext(filename)); byExt != "" {
		base, _, _ := mime.ParseMediaType(byExt)
		return base
	}
	return ""
}

// CheckUpload validates the metadata of an upload against its kind's rule.
func CheckUpload(upload domain.PendingUpload, rule UploadRule) error {
	if upload.OriginalFilename == "" {
		return fmt.Errorf("%w: filename is required", ErrInvalidExtension)
	}
	if ext := Extension(upload.OriginalFilename); !rule.Extensions[ext] {
		return fmt.Errorf("%w: %q not allowed for %s", ErrInvalidExtension, ext, upload.Kind)
	}
	if !rule.MimeTypes[upload.ContentType] {
		return fmt.Errorf("%w: %s not allowed for %s", ErrInvalidMimeType, upload.ContentType, upload.Kind)
	}
	if upload.Size > rule.MaxSize {
		return fmt.Errorf("%w: %.1f MB exceeds %.1f MB", ErrPayloadTooLarge, FormatSizeMB(upload.Size), FormatSizeMB(rule.MaxSize))
	}
	return nil
}

// ReadVerified reads at most rule.MaxSize bytes and checks that the content
// really is of the declared type.
func ReadVerified(r io.Reader, declared string, rule UploadRule) ([]byte, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, rule.MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if n > rule.MaxSize {
		return nil, fmt.Errorf("%w: exceeds %.1f MB", ErrPayloadTooLarge, FormatSizeMB(rule.MaxSize))
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrContentMismatch)
	}

	detected := mimetype.Detect(buf.Bytes())
	if !detected.Is(declared) {
		return nil, fmt.Errorf("%w: declared %s, detected %s", ErrContentMismatch, declared, detected.String())
	}
	return buf.Bytes(), nil
}
