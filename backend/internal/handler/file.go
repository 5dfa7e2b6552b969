package handler

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/blogmedia/blogmedia/shared/api"
	"github.com/blogmedia/blogmedia/shared/domain"
	shared_errors "github.com/blogmedia/blogmedia/shared/errors"
	"github.com/blogmedia/blogmedia/shared/logger"
	"github.com/blogmedia/blogmedia/shared/utils"
	"github.com/blogmedia/blogmedia/shared/validation"
)

func (h *Handler) maxUploadSize() int64 {
	u := h.cfg.Public.Upload
	return max(u.MaxThumbnailSize, u.MaxImageSize, u.MaxVideoSize, u.MaxDocumentSize)
}

// UploadFile accepts a multipart form with a "kind" field and a "file" part.
func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	if err := validation.ParseUploadForm(w, r, h.maxUploadSize()); err != nil {
		if errors.Is(err, validation.ErrPayloadTooLarge) {
			err = &shared_errors.ErrorWithStatusCode{
				Message:    fmt.Sprintf("Uploads are limited to %.0f MB", validation.FormatSizeMB(h.maxUploadSize())),
				StatusCode: http.StatusRequestEntityTooLarge,
			}
		}
		writeError(w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	kind, ok := domain.ParseUploadKind(r.FormValue("kind"))
	if !ok {
		writeError(w, shared_errors.BadRequest("kind must be one of THUMBNAIL, INLINE_IMAGE, INLINE_VIDEO, DOCUMENT"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, shared_errors.BadRequest("missing file"))
		return
	}
	defer file.Close()

	asset, err := h.files.Upload(r.Context(), domain.PendingUpload{
		OriginalFilename: header.Filename,
		ContentType:      header.Header.Get("Content-Type"),
		Size:             header.Size,
		Kind:             kind,
	}, file)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/v1/files/%d", asset.Id))
	utils.WriteJSON(w, http.StatusCreated, api.NewFileResponse(asset))
}

// DownloadFile streams the stored object. Stored keys never change, so the
// response may be cached forever.
func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	id, err := parseIdParam(r, "file")
	if err != nil {
		writeError(w, err)
		return
	}

	asset, body, err := h.files.Open(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	defer body.Close()

	headers := w.Header()
	headers.Set("Content-Type", asset.ContentType)
	headers.Set("Content-Length", strconv.FormatInt(asset.ByteSize, 10))
	headers.Set("Cache-Control", "public, max-age=31536000, immutable")
	headers.Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": asset.OriginalFilename}))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, body); err != nil {
		logger.Log.Warn("file download interrupted", "component", "upload", "file_id", id, "error", err)
	}
}
