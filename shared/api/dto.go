package api

import (
	"time"

	"github.com/blogmedia/blogmedia/shared/domain"
)

// Request DTOs

type PostRequest struct {
	Title        string  `json:"title" validate:"required,max=300"`
	Body         string  `json:"body"`
	Format       string  `json:"format,omitempty" validate:"omitempty,oneof=html markdown"`
	ThumbnailURL *string `json:"thumbnail_url,omitempty" validate:"omitempty,max=2048"`
}

func (r PostRequest) Draft() domain.PostDraft {
	return domain.PostDraft{
		Title:        domain.PostTitle(r.Title),
		Body:         r.Body,
		Format:       r.Format,
		ThumbnailURL: r.ThumbnailURL,
	}
}

// SweepRequest asks for an immediate sweep of files unreferenced for Hours.
type SweepRequest struct {
	Hours *int `json:"hours" validate:"required,min=0,max=87600"`
}

// Response DTOs

type FileResponse struct {
	Id                domain.FileId     `json:"id"`
	URL               string            `json:"url"`
	OriginalFilename  string            `json:"original_filename"`
	ContentType       string            `json:"content_type"`
	Size              int64             `json:"size"`
	Kind              domain.UploadKind `json:"kind"`
	Version           int               `json:"version"`
	PreviousVersionId *domain.FileId    `json:"previous_version_id,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

func NewFileResponse(f domain.FileAsset) FileResponse {
	return FileResponse{
		Id:                f.Id,
		URL:               f.PublicURL,
		OriginalFilename:  f.OriginalFilename,
		ContentType:       f.ContentType,
		Size:              f.ByteSize,
		Kind:              f.UploadKind,
		Version:           f.Version,
		PreviousVersionId: f.PreviousVersionId,
		CreatedAt:         f.CreatedAt,
	}
}

type AttachedFileResponse struct {
	ReferenceKind domain.ReferenceKind `json:"reference_kind"`
	AttachedAt    time.Time            `json:"attached_at"`
	File          FileResponse         `json:"file"`
}

type PostResponse struct {
	Id           domain.PostId          `json:"id"`
	Title        string                 `json:"title"`
	HTMLBody     string                 `json:"html_body"`
	ThumbnailURL *string                `json:"thumbnail_url,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
	Files        []AttachedFileResponse `json:"files,omitempty"`
}

func NewPostResponse(p domain.Post) PostResponse {
	return PostResponse{
		Id:           p.Id,
		Title:        p.Title,
		HTMLBody:     p.HTMLBody,
		ThumbnailURL: p.ThumbnailURL,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func NewPostDetailResponse(d domain.PostDetail) PostResponse {
	resp := NewPostResponse(d.Post)
	resp.Files = make([]AttachedFileResponse, 0, len(d.Files))
	for _, f := range d.Files {
		resp.Files = append(resp.Files, AttachedFileResponse{
			ReferenceKind: f.ReferenceKind,
			AttachedAt:    f.CreatedAt,
			File:          NewFileResponse(f.File),
		})
	}
	return resp
}
