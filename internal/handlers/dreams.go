package handlers

import (
	"net/http"
	"strconv"

	"github.com/AnshRaj112/somnia-backend/internal/apperr"
	"github.com/AnshRaj112/somnia-backend/internal/models"
	"github.com/AnshRaj112/somnia-backend/internal/services"
)

type CreateDreamRequest struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

type DreamResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Dream   *models.Dream `json:"dream"`
}

type DreamsResponse struct {
	Success bool           `json:"success"`
	Dreams  []models.Dream `json:"dreams"`
	Total   int64          `json:"total"`
}

type TagsResponse struct {
	Success bool         `json:"success"`
	Tags    []models.Tag `json:"tags"`
}

func (h *Handler) CreateDream(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req CreateDreamRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := h.requestContext(r)
	defer cancel()

	dream, err := h.dreams.Create(ctx, user.ID, services.CreateDreamInput{
		Title:   req.Title,
		Content: req.Content,
		Tags:    req.Tags,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, DreamResponse{Success: true, Message: "Dream saved", Dream: dream})
}

// ListDreams pages through the caller's dreams, newest first. Query params
// limit and skip are optional.
func (h *Handler) ListDreams(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	skip, err := queryInt(r, "skip")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := h.requestContext(r)
	defer cancel()

	dreams, total, err := h.dreams.List(ctx, user.ID, limit, skip)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DreamsResponse{Success: true, Dreams: dreams, Total: total})
}

func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := h.requestContext(r)
	defer cancel()

	tags, err := h.dreams.Tags(ctx, user.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TagsResponse{Success: true, Tags: tags})
}

func queryInt(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, apperr.Validation(name, name+" must be a non-negative integer")
	}
	return n, nil
}
