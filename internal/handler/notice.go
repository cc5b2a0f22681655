package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tauhid97k/school-management-sub000/internal/middleware"
	"github.com/tauhid97k/school-management-sub000/internal/model"
	"github.com/tauhid97k/school-management-sub000/internal/repository"
)

// NoticeStore is the persistence surface of the notice handlers. Satisfied
// by *repository.NoticeRepo.
type NoticeStore interface {
	List(ctx context.Context) ([]model.Notice, error)
	Create(ctx context.Context, title, description string, by model.PrincipalRef) (uint64, error)
	Delete(ctx context.Context, id uint64) error
}

// NoticeHandler serves school-wide announcements.
type NoticeHandler struct {
	Notices NoticeStore
}

func NewNoticeHandler(notices NoticeStore) *NoticeHandler {
	return &NoticeHandler{Notices: notices}
}

type noticeReq struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (h *NoticeHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	notices, err := h.Notices.List(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"data": notices})
}

func (h *NoticeHandler) Create(c echo.Context) error {
	user, ok := middleware.UserFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "Authentication required"})
	}

	var req noticeReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Invalid request body"})
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{
			"message": "Validation failed",
			"errors":  map[string]string{"title": "Title is required"},
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	id, err := h.Notices.Create(ctx, req.Title, req.Description, user.Ref())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": id})
}

func (h *NoticeHandler) Delete(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Invalid id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Notices.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"message": "Notice not found"})
		}
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Notice deleted"})
}
