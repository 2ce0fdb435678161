package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow-engine/internal/repository"
)

type PostHandler struct {
	posts   repository.PostRepository
	history repository.PostingHistoryRepository
}

func NewPostHandler(posts repository.PostRepository, history repository.PostingHistoryRepository) *PostHandler {
	return &PostHandler{
		posts:   posts,
		history: history,
	}
}

// GetPost returns a post with its publishing state.
func (h *PostHandler) GetPost(c *fiber.Ctx) error {
	postID, err := GetIDParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	post, err := h.posts.GetByID(c.Context(), postID)
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch post",
		})
	}
	if post == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Post not found",
		})
	}

	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) PostHistory(c *fiber.Ctx) error {
	postID, err := GetIDParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	entries, err := h.history.ListByPostID(c.Context(), postID)
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch posting history",
		})
	}

	return c.Status(fiber.StatusOK).JSON(entries)
}
