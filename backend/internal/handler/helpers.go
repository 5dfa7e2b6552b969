package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	internal_errors "github.com/blogmedia/blogmedia/backend/internal/errors"
	shared_errors "github.com/blogmedia/blogmedia/shared/errors"
	"github.com/blogmedia/blogmedia/shared/utils"
	"github.com/blogmedia/blogmedia/shared/validation"
	"github.com/go-chi/chi/v5"
)

// writeError translates domain errors to status codes before writing them.
func writeError(w http.ResponseWriter, err error) {
	utils.WriteErrorAndStatusCode(w, toStatusError(err))
}

func toStatusError(err error) error {
	var validationErr *internal_errors.ValidationError
	var postNotFound *internal_errors.PostNotFoundError
	var fileNotFound *internal_errors.FileNotFoundError

	switch {
	case errors.As(err, &validationErr):
		return shared_errors.BadRequest(validationErr.Message)
	case errors.As(err, &postNotFound):
		return shared_errors.NotFound("Post not found")
	case errors.As(err, &fileNotFound):
		return shared_errors.NotFound("File not found")
	case errors.Is(err, internal_errors.NotFound):
		return shared_errors.NotFound("Not found")
	case errors.Is(err, internal_errors.ErrSweepInProgress):
		return &shared_errors.ErrorWithStatusCode{Message: "A sweep is already running", StatusCode: http.StatusConflict}
	case errors.Is(err, validation.ErrMalformedForm):
		return shared_errors.BadRequest("Request must be a multipart form with a file part")
	case errors.Is(err, validation.ErrPayloadTooLarge):
		return &shared_errors.ErrorWithStatusCode{Message: "Upload is too large", StatusCode: http.StatusRequestEntityTooLarge}
	case errors.Is(err, context.DeadlineExceeded):
		return &shared_errors.ErrorWithStatusCode{Message: "Request timed out", StatusCode: http.StatusServiceUnavailable}
	}
	return err
}

// parseIdParam reads a positive int64 path parameter.
func parseIdParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, shared_errors.BadRequest(fmt.Sprintf("invalid %s: must be a positive integer", name))
	}
	return id, nil
}
