package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	internal_errors "github.com/blogmedia/blogmedia/backend/internal/errors"
	"github.com/blogmedia/blogmedia/shared/api"
	"github.com/blogmedia/blogmedia/shared/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePostHandler(t *testing.T) {
	t.Run("successful request", func(t *testing.T) {
		thumb := "https://cdn.example.com/thumbnails/t.jpg"
		mockService := &MockPostService{
			MockCreate: func(ctx context.Context, draft domain.PostDraft) (domain.Post, error) {
				assert.Equal(t, "Hello", draft.Title)
				assert.Equal(t, "# Hi", draft.Body)
				assert.Equal(t, "markdown", draft.Format)
				require.NotNil(t, draft.ThumbnailURL)
				assert.Equal(t, thumb, *draft.ThumbnailURL)
				return domain.Post{Id: 9, Title: draft.Title, HTMLBody: "<h1>Hi</h1>", ThumbnailURL: draft.ThumbnailURL}, nil
			},
		}
		router := setupRouter(&Handler{posts: mockService})

		body := []byte(`{"title":"Hello","body":"# Hi","format":"markdown","thumbnail_url":"` + thumb + `"}`)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/posts", bytes.NewReader(body)))

		require.Equal(t, http.StatusCreated, rr.Code)
		var resp api.PostResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, domain.PostId(9), resp.Id)
		assert.Equal(t, "<h1>Hi</h1>", resp.HTMLBody)
	})

	t.Run("invalid request body json", func(t *testing.T) {
		router := setupRouter(&Handler{posts: &MockPostService{}})

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/posts", bytes.NewReader([]byte(`{invalid json::}`))))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "Body is invalid json")
	})

	t.Run("missing title", func(t *testing.T) {
		router := setupRouter(&Handler{posts: &MockPostService{}})

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/posts", bytes.NewReader([]byte(`{"body":"x"}`))))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "Required fields missing")
	})

	t.Run("unknown format", func(t *testing.T) {
		router := setupRouter(&Handler{posts: &MockPostService{}})

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/posts", bytes.NewReader([]byte(`{"title":"t","format":"rst"}`))))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("service validation error", func(t *testing.T) {
		mockService := &MockPostService{
			MockCreate: func(ctx context.Context, draft domain.PostDraft) (domain.Post, error) {
				return domain.Post{}, &internal_errors.ValidationError{Message: "title must not be blank"}
			},
		}
		router := setupRouter(&Handler{posts: mockService})

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/posts", bytes.NewReader([]byte(`{"title":"  "}`))))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "title must not be blank")
	})
}

func TestUpdatePostHandler(t *testing.T) {
	t.Run("successful request", func(t *testing.T) {
		mockService := &MockPostService{
			MockUpdate: func(ctx context.Context, id domain.PostId, draft domain.PostDraft) (domain.Post, error) {
				assert.Equal(t, domain.PostId(4), id)
				return domain.Post{Id: id, Title: draft.Title}, nil
			},
		}
		router := setupRouter(&Handler{posts: mockService})

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/v1/posts/4", bytes.NewReader([]byte(`{"title":"New"}`))))

		require.Equal(t, http.StatusOK, rr.Code)
		var resp api.PostResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "New", resp.Title)
	})

	t.Run("post not found", func(t *testing.T) {
		mockService := &MockPostService{
			MockUpdate: func(ctx context.Context, id domain.PostId, draft domain.PostDraft) (domain.Post, error) {
				return domain.Post{}, &internal_errors.PostNotFoundError{PostId: id}
			},
		}
		router := setupRouter(&Handler{posts: mockService})

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/v1/posts/4", bytes.NewReader([]byte(`{"title":"New"}`))))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestGetPostHandler(t *testing.T) {
	t.Run("includes attached files", func(t *testing.T) {
		created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		mockService := &MockPostService{
			MockGet: func(ctx context.Context, id domain.PostId) (domain.PostDetail, error) {
				return domain.PostDetail{
					Post: domain.Post{Id: id, Title: "T", HTMLBody: `<img src="https://cdn.example.com/editor-images/a.png">`},
					Files: []domain.AttachedFile{{
						Association: domain.Association{PostId: id, FileId: 5, ReferenceKind: domain.RefImage, CreatedAt: created},
						File:        domain.FileAsset{Id: 5, PublicURL: "https://cdn.example.com/editor-images/a.png", UploadKind: domain.UploadInlineImage, Version: 1},
					}},
				}, nil
			},
		}
		router := setupRouter(&Handler{posts: mockService})

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/posts/2", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		var resp api.PostResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Len(t, resp.Files, 1)
		assert.Equal(t, domain.RefImage, resp.Files[0].ReferenceKind)
		assert.Equal(t, domain.FileId(5), resp.Files[0].File.Id)
		assert.True(t, created.Equal(resp.Files[0].AttachedAt))
	})

	t.Run("deleted post is not found", func(t *testing.T) {
		mockService := &MockPostService{
			MockGet: func(ctx context.Context, id domain.PostId) (domain.PostDetail, error) {
				return domain.PostDetail{}, &internal_errors.PostNotFoundError{PostId: id}
			},
		}
		router := setupRouter(&Handler{posts: mockService})

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/posts/2", nil))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestDeletePostHandler(t *testing.T) {
	t.Run("successful request", func(t *testing.T) {
		var deleted domain.PostId
		mockService := &MockPostService{
			MockDelete: func(ctx context.Context, id domain.PostId) error {
				deleted = id
				return nil
			},
		}
		router := setupRouter(&Handler{posts: mockService})

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/v1/posts/11", nil))

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, domain.PostId(11), deleted)
	})

	t.Run("already deleted", func(t *testing.T) {
		mockService := &MockPostService{
			MockDelete: func(ctx context.Context, id domain.PostId) error {
				return &internal_errors.PostNotFoundError{PostId: id}
			},
		}
		router := setupRouter(&Handler{posts: mockService})

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/v1/posts/11", nil))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
