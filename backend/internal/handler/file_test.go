package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	internal_errors "github.com/blogmedia/blogmedia/backend/internal/errors"
	"github.com/blogmedia/blogmedia/shared/api"
	"github.com/blogmedia/blogmedia/shared/config"
	"github.com/blogmedia/blogmedia/shared/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uploadRequest(t *testing.T, kind, filename, contentType string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if kind != "" {
		require.NoError(t, mw.WriteField("kind", kind))
	}
	if filename != "" {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
		header.Set("Content-Type", contentType)
		part, err := mw.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestUploadFileHandler(t *testing.T) {
	t.Run("successful upload", func(t *testing.T) {
		mockService := &MockFileService{
			MockUpload: func(ctx context.Context, upload domain.PendingUpload, content io.Reader) (domain.FileAsset, error) {
				data, err := io.ReadAll(content)
				require.NoError(t, err)
				assert.Equal(t, pngHeader, data)
				return domain.FileAsset{
					Id:               17,
					OriginalFilename: upload.OriginalFilename,
					PublicURL:        "https://cdn.example.com/editor-images/x.png",
					ContentType:      "image/png",
					ByteSize:         int64(len(data)),
					UploadKind:       upload.Kind,
					Version:          1,
				}, nil
			},
		}
		router := setupRouter(&Handler{files: mockService, cfg: testConfig()})

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, uploadRequest(t, "INLINE_IMAGE", "cat.png", "image/png", pngHeader))

		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		assert.Equal(t, "/v1/files/17", rr.Header().Get("Location"))
		var resp api.FileResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "https://cdn.example.com/editor-images/x.png", resp.URL)
		assert.Equal(t, domain.UploadInlineImage, resp.Kind)

		require.Len(t, mockService.uploads, 1)
		assert.Equal(t, "cat.png", mockService.uploads[0].OriginalFilename)
		assert.Equal(t, "image/png", mockService.uploads[0].ContentType)
		assert.Equal(t, int64(len(pngHeader)), mockService.uploads[0].Size)
	})

	t.Run("unknown kind", func(t *testing.T) {
		mockService := &MockFileService{}
		router := setupRouter(&Handler{files: mockService, cfg: testConfig()})

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, uploadRequest(t, "AVATAR", "cat.png", "image/png", pngHeader))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Empty(t, mockService.uploads)
	})

	t.Run("missing file", func(t *testing.T) {
		mockService := &MockFileService{}
		router := setupRouter(&Handler{files: mockService, cfg: testConfig()})

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, uploadRequest(t, "DOCUMENT", "", "", nil))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "missing file")
	})

	t.Run("not a multipart request", func(t *testing.T) {
		router := setupRouter(&Handler{files: &MockFileService{}, cfg: testConfig()})

		req := httptest.NewRequest(http.MethodPost, "/v1/files", strings.NewReader(`{"kind":"DOCUMENT"}`))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("request over the largest limit", func(t *testing.T) {
		cfg := testConfig()
		cfg.Public.Upload = config.Upload{MaxThumbnailSize: 10, MaxImageSize: 10, MaxVideoSize: 10, MaxDocumentSize: 10}
		mockService := &MockFileService{}
		router := setupRouter(&Handler{files: mockService, cfg: cfg})

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, uploadRequest(t, "DOCUMENT", "big.txt", "text/plain", bytes.Repeat([]byte("a"), 2<<20)))

		assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
		assert.Contains(t, rr.Body.String(), "Uploads are limited to")
		assert.Empty(t, mockService.uploads)
	})

	t.Run("rejected by validation", func(t *testing.T) {
		mockService := &MockFileService{
			MockUpload: func(ctx context.Context, upload domain.PendingUpload, content io.Reader) (domain.FileAsset, error) {
				return domain.FileAsset{}, &internal_errors.ValidationError{Message: "invalid MIME type: application/zip"}
			},
		}
		router := setupRouter(&Handler{files: mockService, cfg: testConfig()})

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, uploadRequest(t, "DOCUMENT", "a.zip", "application/zip", []byte("PK")))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "invalid MIME type")
	})
}

func TestDownloadFileHandler(t *testing.T) {
	t.Run("streams the object", func(t *testing.T) {
		content := "%PDF-1.4 hello"
		mockService := &MockFileService{
			MockOpen: func(ctx context.Context, id domain.FileId) (domain.FileAsset, io.ReadCloser, error) {
				assert.Equal(t, domain.FileId(3), id)
				return domain.FileAsset{
					Id:               id,
					OriginalFilename: "report 2026.pdf",
					ContentType:      "application/pdf",
					ByteSize:         int64(len(content)),
				}, io.NopCloser(strings.NewReader(content)), nil
			},
		}
		router := setupRouter(&Handler{files: mockService})

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/files/3", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, content, rr.Body.String())
		assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
		assert.Equal(t, fmt.Sprint(len(content)), rr.Header().Get("Content-Length"))
		assert.Contains(t, rr.Header().Get("Content-Disposition"), `filename="report 2026.pdf"`)
		assert.Contains(t, rr.Header().Get("Cache-Control"), "immutable")
	})

	t.Run("unknown file", func(t *testing.T) {
		mockService := &MockFileService{
			MockOpen: func(ctx context.Context, id domain.FileId) (domain.FileAsset, io.ReadCloser, error) {
				return domain.FileAsset{}, nil, &internal_errors.FileNotFoundError{Id: id}
			},
		}
		router := setupRouter(&Handler{files: mockService})

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/files/3", nil))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("metadata without object", func(t *testing.T) {
		mockService := &MockFileService{
			MockOpen: func(ctx context.Context, id domain.FileId) (domain.FileAsset, io.ReadCloser, error) {
				return domain.FileAsset{}, nil, fmt.Errorf("open object: %w", internal_errors.NotFound)
			},
		}
		router := setupRouter(&Handler{files: mockService})

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/files/3", nil))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
