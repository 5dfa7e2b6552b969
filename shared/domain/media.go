package domain

import "time"

// Category groups URLs discovered in a post body.
type Category string

const (
	CategoryImage    Category = "IMAGE"
	CategoryVideo    Category = "VIDEO"
	CategoryDocument Category = "DOCUMENT"
)

// Categories lists every category in processing order.
var Categories = []Category{CategoryImage, CategoryVideo, CategoryDocument}

// MediaURLs maps a category to the URLs found for it, in document order.
type MediaURLs = map[Category][]string

const (
	RefThumbnail ReferenceKind = "THUMBNAIL"
	RefImage     ReferenceKind = ReferenceKind(CategoryImage)
	RefVideo     ReferenceKind = ReferenceKind(CategoryVideo)
	RefDocument  ReferenceKind = ReferenceKind(CategoryDocument)
)

// UploadKind is the upload flow a file came through.
type UploadKind string

const (
	UploadThumbnail   UploadKind = "THUMBNAIL"
	UploadInlineImage UploadKind = "INLINE_IMAGE"
	UploadInlineVideo UploadKind = "INLINE_VIDEO"
	UploadDocument    UploadKind = "DOCUMENT"
)

// ParseUploadKind accepts the kind names used by upload forms.
func ParseUploadKind(s string) (UploadKind, bool) {
	switch UploadKind(s) {
	case UploadThumbnail, UploadInlineImage, UploadInlineVideo, UploadDocument:
		return UploadKind(s), true
	}
	return "", false
}

// Post is the read-only view of a post the media engine works with.
// Deleted is a tombstone; storage read paths never return tombstoned posts.
type Post struct {
	Id           PostId    `db:"id"`
	Title        PostTitle `db:"title"`
	HTMLBody     string    `db:"html_body"`
	ThumbnailURL *string   `db:"thumbnail_url"`
	Deleted      bool      `db:"deleted"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Thumbnail returns the thumbnail URL or an empty string.
func (p *Post) Thumbnail() string {
	if p.ThumbnailURL == nil {
		return ""
	}
	return *p.ThumbnailURL
}

// FileAsset is the metadata of an uploaded object.
// PreviousVersionId links to the version this one replaced; it does not own it.
type FileAsset struct {
	Id                FileId     `db:"id"`
	OriginalFilename  string     `db:"original_filename"`
	StorageKey        string     `db:"storage_key"`
	PublicURL         string     `db:"public_url"`
	ContentType       string     `db:"content_type"`
	ByteSize          int64      `db:"byte_size"`
	UploadKind        UploadKind `db:"upload_kind"`
	Version           int        `db:"version"`
	PreviousVersionId *FileId    `db:"previous_version_id"`
	CreatedAt         time.Time  `db:"created_at"`
}

// Association links a post to a file under a reference kind.
// (PostId, FileId, ReferenceKind) is unique.
type Association struct {
	Id            AssociationId `db:"id"`
	PostId        PostId        `db:"post_id"`
	FileId        FileId        `db:"file_id"`
	ReferenceKind ReferenceKind `db:"reference_kind"`
	CreatedAt     time.Time     `db:"created_at"`
}

// AttachedFile is an association together with the file it points at.
type AttachedFile struct {
	Association
	File FileAsset
}

// PendingUpload is a validated upload waiting to be stored.
type PendingUpload struct {
	OriginalFilename string
	ContentType      string
	Size             int64
	Kind             UploadKind
}

// MediaJob asks for the URLs found in a post body to be associated with the post.
type MediaJob struct {
	PostId     PostId    `json:"post_id"`
	URLs       MediaURLs `json:"urls"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
