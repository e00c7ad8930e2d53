package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hallpass-labs/examhall-backend/internal/model"
	"github.com/hallpass-labs/examhall-backend/internal/response"
	"github.com/hallpass-labs/examhall-backend/internal/service"
	"github.com/hallpass-labs/examhall-backend/internal/validator"
)

// UserHandler handles admin-facing account management endpoints.
type UserHandler struct {
	userService *service.UserService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// ListUsers godoc
// GET /api/v1/admin/users
// Optional filters: ?role=PROFESSOR&approved=false
func (h *UserHandler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "25"))

	var role *model.Role
	if raw := c.Query("role"); raw != "" {
		r := model.Role(raw)
		if !r.Valid() {
			response.Fail(c, http.StatusBadRequest, response.ErrValidation)
			return
		}
		role = &r
	}

	var approved *bool
	if raw := c.Query("approved"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrValidation)
			return
		}
		approved = &v
	}

	users, pagination, err := h.userService.List(c.Request.Context(), role, approved, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"users": users}, pagination)
}

// ApproveUser godoc
// POST /api/v1/admin/users/:user_id/approve
// Unlocks login for a pending professor account.
func (h *UserHandler) ApproveUser(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.userService.Approve(c.Request.Context(), userID); err != nil {
		h.failUser(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// UpdateUserRole godoc
// PUT /api/v1/admin/users/:user_id/role
func (h *UserHandler) UpdateUserRole(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.UpdateRoleRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.userService.UpdateRole(c.Request.Context(), userID, model.Role(req.Role)); err != nil {
		h.failUser(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// DeleteUser godoc
// DELETE /api/v1/admin/users/:user_id
func (h *UserHandler) DeleteUser(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.userService.Delete(c.Request.Context(), userID); err != nil {
		h.failUser(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

func (h *UserHandler) failUser(c *gin.Context, err error) {
	if errors.Is(err, pgx.ErrNoRows) {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
}
