package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/oakshelf/library-lending-backend/internal/book"
	"github.com/oakshelf/library-lending-backend/internal/pkg/response"
)

type Handler struct {
	service book.Service
}

func NewHandler(service book.Service) *Handler {
	return &Handler{service: service}
}

func mapBookError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, book.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, book.ErrTitleRequired),
		errors.Is(err, book.ErrAuthorRequired),
		errors.Is(err, book.ErrInvalidKind),
		errors.Is(err, book.ErrInvalidUnits),
		errors.Is(err, book.ErrInvalidLoanDays),
		errors.Is(err, book.ErrNotDigital),
		errors.Is(err, book.ErrNotPhysical):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, book.ErrUnitsUnavailable),
		errors.Is(err, book.ErrHasActiveReservations):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func (h *Handler) List(c *gin.Context) {
	var req ListBooksRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters", "details": err.Error()})
		return
	}

	filter := book.Filter{
		Keyword:   req.Keyword,
		Kind:      req.Kind,
		GenreID:   req.GenreID,
		Active:    req.Active,
		Page:      req.Page,
		PageSize:  req.PageSize,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	}

	books, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list books"})
		return
	}

	items := make([]BookResponse, len(books))
	for i, b := range books {
		items[i] = NewBookResponse(b)
	}

	c.JSON(http.StatusOK, response.NewPageResponse(items, filter.Page, filter.PageSize, total))
}

func (h *Handler) Get(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid UUID"})
		return
	}

	b, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		mapBookError(c, err)
		return
	}

	c.JSON(http.StatusOK, NewBookResponse(b))
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	b, err := h.service.Create(c.Request.Context(), book.CreateRequest{
		Title:       req.Title,
		Author:      req.Author,
		ISBN:        req.ISBN,
		Description: req.Description,
		Kind:        req.Kind,
		GenreID:     req.GenreID,
		TotalUnits:  req.TotalUnits,
		LoanDays:    req.LoanDays,
	})
	if err != nil {
		mapBookError(c, err)
		return
	}

	c.JSON(http.StatusCreated, NewBookResponse(b))
}

func (h *Handler) Update(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid UUID"})
		return
	}

	var req UpdateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	b, err := h.service.Update(c.Request.Context(), id, book.UpdateRequest{
		Title:       req.Title,
		Author:      req.Author,
		ISBN:        req.ISBN,
		Description: req.Description,
		GenreID:     req.GenreID,
		LoanDays:    req.LoanDays,
		Active:      req.Active,
	})
	if err != nil {
		mapBookError(c, err)
		return
	}

	c.JSON(http.StatusOK, NewBookResponse(b))
}

func (h *Handler) Delete(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid UUID"})
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		mapBookError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) AddUnits(c *gin.Context) {
	h.adjustUnits(c, false)
}

func (h *Handler) RemoveUnits(c *gin.Context) {
	h.adjustUnits(c, true)
}

func (h *Handler) adjustUnits(c *gin.Context, remove bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid UUID"})
		return
	}

	var req AdjustUnitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var (
		b   *book.Book
		err error
	)
	if remove {
		b, err = h.service.RemoveUnits(c.Request.Context(), id, req.Count)
	} else {
		b, err = h.service.AddUnits(c.Request.Context(), id, req.Count)
	}
	if err != nil {
		mapBookError(c, err)
		return
	}

	c.JSON(http.StatusOK, NewBookResponse(b))
}

// UploadCover stores a cover image for the book and generates a thumbnail.
func (h *Handler) UploadCover(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid UUID"})
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}

	b, err := h.service.UploadCover(c.Request.Context(), id, header)
	if err != nil {
		mapBookError(c, err)
		return
	}

	c.JSON(http.StatusOK, NewBookResponse(b))
}

// UploadFile stores the digital asset for a digital or hybrid book.
func (h *Handler) UploadFile(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid UUID"})
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}

	b, err := h.service.UploadFile(c.Request.Context(), id, header)
	if err != nil {
		mapBookError(c, err)
		return
	}

	c.JSON(http.StatusOK, NewBookResponse(b))
}

// GetCover streams the cover image (or its thumbnail with ?thumb=true).
func (h *Handler) GetCover(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid UUID"})
		return
	}

	thumb := c.Query("thumb") == "true"

	rc, err := h.service.OpenCover(c.Request.Context(), id, thumb)
	if err != nil {
		if errors.Is(err, book.ErrNoCover) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		mapBookError(c, err)
		return
	}
	defer rc.Close()

	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, rc)
}
