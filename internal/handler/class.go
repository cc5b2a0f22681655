package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tauhid97k/school-management-sub000/internal/model"
	"github.com/tauhid97k/school-management-sub000/internal/repository"
)

// ClassStore is the persistence surface of the class handlers. Satisfied
// by *repository.ClassRepo.
type ClassStore interface {
	List(ctx context.Context) ([]model.Class, error)
	Create(ctx context.Context, name, section, room string) (uint64, error)
	Update(ctx context.Context, id uint64, name, section, room string) error
	Delete(ctx context.Context, id uint64) error
}

// ClassHandler serves class CRUD. Authorization happens entirely in the
// route middleware; handlers only consume the attached user context.
type ClassHandler struct {
	Classes ClassStore
}

func NewClassHandler(classes ClassStore) *ClassHandler {
	return &ClassHandler{Classes: classes}
}

type classReq struct {
	Name    string `json:"name"`
	Section string `json:"section"`
	Room    string `json:"room"`
}

func (h *ClassHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	classes, err := h.Classes.List(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"data": classes})
}

func (h *ClassHandler) Create(c echo.Context) error {
	var req classReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Invalid request body"})
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{
			"message": "Validation failed",
			"errors":  map[string]string{"name": "Class name is required"},
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	id, err := h.Classes.Create(ctx, req.Name, strings.TrimSpace(req.Section), strings.TrimSpace(req.Room))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": id})
}

func (h *ClassHandler) Update(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Invalid id"})
	}
	var req classReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Invalid request body"})
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{
			"message": "Validation failed",
			"errors":  map[string]string{"name": "Class name is required"},
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Classes.Update(ctx, id, req.Name, strings.TrimSpace(req.Section), strings.TrimSpace(req.Room)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"message": "Class not found"})
		}
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Class updated"})
}

func (h *ClassHandler) Delete(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Invalid id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Classes.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"message": "Class not found"})
		}
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Class deleted"})
}
