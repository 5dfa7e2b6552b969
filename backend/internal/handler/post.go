package handler

import (
	"net/http"

	"github.com/blogmedia/blogmedia/shared/api"
	"github.com/blogmedia/blogmedia/shared/utils"
)

func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var body api.PostRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		writeError(w, err)
		return
	}

	post, err := h.posts.Create(r.Context(), body.Draft())
	if err != nil {
		writeError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, api.NewPostResponse(post))
}

func (h *Handler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	id, err := parseIdParam(r, "post")
	if err != nil {
		writeError(w, err)
		return
	}

	var body api.PostRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		writeError(w, err)
		return
	}

	post, err := h.posts.Update(r.Context(), id, body.Draft())
	if err != nil {
		writeError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, api.NewPostResponse(post))
}

func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	id, err := parseIdParam(r, "post")
	if err != nil {
		writeError(w, err)
		return
	}

	detail, err := h.posts.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, api.NewPostDetailResponse(detail))
}

func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	id, err := parseIdParam(r, "post")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.posts.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
