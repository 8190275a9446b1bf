package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/oakshelf/library-lending-backend/internal/auth"
	"github.com/oakshelf/library-lending-backend/internal/book"
	"github.com/oakshelf/library-lending-backend/internal/pkg/response"
	"github.com/oakshelf/library-lending-backend/internal/reservation"
	"github.com/oakshelf/library-lending-backend/internal/user"
)

type Handler struct {
	service     reservation.Service
	userService user.Service
	bookService book.Service
}

func NewHandler(service reservation.Service, userService user.Service, bookService book.Service) *Handler {
	return &Handler{
		service:     service,
		userService: userService,
		bookService: bookService,
	}
}

// checkCanApprove helper checks if the current user holds the approver role.
func (h *Handler) checkCanApprove(c *gin.Context, userID string) bool {
	u, err := h.userService.GetByID(c.Request.Context(), userID)
	if err != nil {
		return false
	}
	return u.CanApprove()
}

func (h *Handler) Create(c *gin.Context) {
	var body CreateReservationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	userID := auth.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	res, err := h.service.Create(c.Request.Context(), reservation.CreateRequest{
		BookID: body.BookID,
		UserID: userID,
		Kind:   body.Kind,
		Note:   body.Note,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, NewReservationResponse(res))
}

func (h *Handler) List(c *gin.Context) {
	var req ListReservationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters", "details": err.Error()})
		return
	}

	// Access Control Logic: approvers may browse everything; everyone else
	// is forced to their own reservations.
	currentUserID := auth.GetUserID(c)
	filterUserID := currentUserID
	if h.checkCanApprove(c, currentUserID) {
		filterUserID = req.UserID // can be empty to show all
	}

	filter := reservation.Filter{
		UserID:    filterUserID,
		BookID:    req.BookID,
		Status:    req.Status,
		Kind:      req.Kind,
		Overdue:   req.Overdue,
		Page:      req.Page,
		PageSize:  req.PageSize,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	}

	reservations, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list reservations"})
		return
	}

	items := make([]ReservationResponse, len(reservations))
	for i, r := range reservations {
		items[i] = NewReservationResponse(r)
	}

	c.JSON(http.StatusOK, response.NewPageResponse(items, filter.Page, filter.PageSize, total))
}

func (h *Handler) Get(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid UUID"})
		return
	}

	res, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	// Access Check: requester owns the reservation OR approver role.
	userID := auth.GetUserID(c)
	if res.UserID != userID && !h.checkCanApprove(c, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "permission denied"})
		return
	}

	c.JSON(http.StatusOK, NewReservationResponse(res))
}

func (h *Handler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid UUID"})
		return
	}

	userID := auth.GetUserID(c)
	if err := h.service.Cancel(c.Request.Context(), userID, id); err != nil {
		response.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) Approve(c *gin.Context) {
	h.transition(c, func(ctx *gin.Context, approverID, id string) (*reservation.Reservation, error) {
		return h.service.Approve(ctx.Request.Context(), approverID, id)
	})
}

func (h *Handler) Reject(c *gin.Context) {
	var body RejectReservationRequest
	// Reason is optional; an empty body is fine.
	_ = c.ShouldBindJSON(&body)

	h.transition(c, func(ctx *gin.Context, approverID, id string) (*reservation.Reservation, error) {
		return h.service.Reject(ctx.Request.Context(), approverID, id, body.Reason)
	})
}

func (h *Handler) Issue(c *gin.Context) {
	h.transition(c, func(ctx *gin.Context, approverID, id string) (*reservation.Reservation, error) {
		return h.service.Issue(ctx.Request.Context(), approverID, id)
	})
}

func (h *Handler) Return(c *gin.Context) {
	h.transition(c, func(ctx *gin.Context, approverID, id string) (*reservation.Reservation, error) {
		return h.service.Return(ctx.Request.Context(), approverID, id)
	})
}

func (h *Handler) transition(c *gin.Context, op func(*gin.Context, string, string) (*reservation.Reservation, error)) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid UUID"})
		return
	}

	approverID := auth.GetUserID(c)
	res, err := op(c, approverID, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewReservationResponse(res))
}

// ListWaitlist returns the ordered waitlist for a book. Approver only.
func (h *Handler) ListWaitlist(c *gin.Context) {
	bookID := c.Param("id")
	if _, err := uuid.Parse(bookID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid UUID"})
		return
	}

	entries, err := h.service.ListWaitlist(c.Request.Context(), bookID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]ReservationResponse, len(entries))
	for i, r := range entries {
		items[i] = NewReservationResponse(r)
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// Download streams the digital asset to the owner of an approved download
// reservation. Approval grants access; there is no issue step for downloads.
func (h *Handler) Download(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid UUID"})
		return
	}

	res, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	userID := auth.GetUserID(c)
	if res.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "permission denied"})
		return
	}
	if res.Kind != reservation.KindDownload {
		response.Error(c, reservation.ErrKindMismatch)
		return
	}
	if res.Status != reservation.StatusApproved {
		response.Error(c, reservation.ErrNotApprovedYet)
		return
	}

	rc, b, err := h.bookService.OpenFile(c.Request.Context(), res.BookID)
	if err != nil {
		if errors.Is(err, book.ErrNoDigitalFile) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open file"})
		return
	}
	defer rc.Close()

	c.Header("Content-Disposition", `attachment; filename="`+b.Title+`"`)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, rc)
}
