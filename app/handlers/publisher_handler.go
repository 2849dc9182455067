// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/telepost/telepost/app/dto"
	businessflow "github.com/telepost/telepost/business_flow"
	"github.com/telepost/telepost/utils"
)

// PublisherHandlerInterface defines the contract for publisher handlers
type PublisherHandlerInterface interface {
	SchedulePost(c fiber.Ctx) error
	AddChannels(c fiber.Ctx) error
	ReschedulePublication(c fiber.Ctx) error
	CancelPublication(c fiber.Ctx) error
	EditPostContent(c fiber.Ctx) error
	DeletePost(c fiber.Ctx) error
	ListPublications(c fiber.Ctx) error
}

// PublisherHandler handles publication-related HTTP requests
type PublisherHandler struct {
	flow      businessflow.PublisherFlow
	validator *validator.Validate
}

// NewPublisherHandler creates a new publisher handler
func NewPublisherHandler(flow businessflow.PublisherFlow) *PublisherHandler {
	return &PublisherHandler{
		flow:      flow,
		validator: validator.New(),
	}
}

func (h *PublisherHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *PublisherHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// SchedulePost handles post creation and fan-out to channels
// @Summary Schedule Post
// @Tags Posts
// @Accept json
// @Produce json
// @Param request body dto.SchedulePostRequest true "Post scheduling data"
// @Success 201 {object} dto.APIResponse{data=dto.SchedulePostResponse} "Post scheduled"
// @Router /api/v1/posts [post]
func (h *PublisherHandler) SchedulePost(c fiber.Ctx) error {
	var req dto.SchedulePostRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return h.validationError(c, err)
	}

	userID, ok := authenticatedUserID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "User ID not found in context", "MISSING_USER_ID", nil)
	}
	req.UserID = userID

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.flow.SchedulePost(h.createRequestContext(c, "/api/v1/posts"), &req, metadata)
	if err != nil {
		return h.flowError(c, err, "Post scheduling failed", "POST_SCHEDULING_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Post scheduled successfully", result)
}

// AddChannels fans an existing post out to additional channels
// @Summary Add Channels
// @Tags Posts
// @Accept json
// @Produce json
// @Param id path string true "Post ID"
// @Param request body dto.AddChannelsRequest true "Channels and schedule"
// @Success 201 {object} dto.APIResponse{data=dto.AddChannelsResponse} "Channels added"
// @Router /api/v1/posts/{id}/channels [post]
func (h *PublisherHandler) AddChannels(c fiber.Ctx) error {
	var req dto.AddChannelsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.PostID = c.Params("id")

	if err := h.validator.Struct(&req); err != nil {
		return h.validationError(c, err)
	}

	userID, ok := authenticatedUserID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "User ID not found in context", "MISSING_USER_ID", nil)
	}
	req.UserID = userID

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.flow.AddChannels(h.createRequestContext(c, "/api/v1/posts/"+req.PostID+"/channels"), &req, metadata)
	if err != nil {
		return h.flowError(c, err, "Adding channels failed", "ADD_CHANNELS_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Channels added successfully", result)
}

// ReschedulePublication moves a pending publication to new times
// @Summary Reschedule Publication
// @Tags Publications
// @Accept json
// @Produce json
// @Param id path string true "Publication ID"
// @Param request body dto.ReschedulePublicationRequest true "New schedule"
// @Success 200 {object} dto.APIResponse{data=dto.ReschedulePublicationResponse} "Publication rescheduled"
// @Router /api/v1/publications/{id}/reschedule [post]
func (h *PublisherHandler) ReschedulePublication(c fiber.Ctx) error {
	var req dto.ReschedulePublicationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.PublicationID = c.Params("id")

	if err := h.validator.Struct(&req); err != nil {
		return h.validationError(c, err)
	}

	userID, ok := authenticatedUserID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "User ID not found in context", "MISSING_USER_ID", nil)
	}
	req.UserID = userID

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.flow.Reschedule(h.createRequestContext(c, "/api/v1/publications/"+req.PublicationID+"/reschedule"), &req, metadata)
	if err != nil {
		return h.flowError(c, err, "Reschedule failed", "RESCHEDULE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Publication rescheduled successfully", result)
}

// CancelPublication withdraws one pending publication
// @Summary Cancel Publication
// @Tags Publications
// @Produce json
// @Param id path string true "Publication ID"
// @Success 200 {object} dto.APIResponse{data=dto.CancelPublicationResponse} "Publication cancelled"
// @Router /api/v1/publications/{id} [delete]
func (h *PublisherHandler) CancelPublication(c fiber.Ctx) error {
	req := dto.CancelPublicationRequest{PublicationID: c.Params("id")}

	if err := h.validator.Struct(&req); err != nil {
		return h.validationError(c, err)
	}

	userID, ok := authenticatedUserID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "User ID not found in context", "MISSING_USER_ID", nil)
	}
	req.UserID = userID

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.flow.CancelPublication(h.createRequestContext(c, "/api/v1/publications/"+req.PublicationID), &req, metadata)
	if err != nil {
		return h.flowError(c, err, "Cancel failed", "CANCEL_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Publication cancelled successfully", result)
}

// EditPostContent replaces post content and live-edits published messages
// @Summary Edit Post Content
// @Tags Posts
// @Accept json
// @Produce json
// @Param id path string true "Post ID"
// @Param request body dto.EditPostContentRequest true "New content"
// @Success 200 {object} dto.APIResponse{data=dto.EditPostContentResponse} "Post content updated"
// @Router /api/v1/posts/{id}/content [put]
func (h *PublisherHandler) EditPostContent(c fiber.Ctx) error {
	var req dto.EditPostContentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.PostID = c.Params("id")

	if err := h.validator.Struct(&req); err != nil {
		return h.validationError(c, err)
	}

	userID, ok := authenticatedUserID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "User ID not found in context", "MISSING_USER_ID", nil)
	}
	req.UserID = userID

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.flow.EditPostContent(h.createRequestContext(c, "/api/v1/posts/"+req.PostID+"/content"), &req, metadata)
	if err != nil {
		return h.flowError(c, err, "Post update failed", "POST_UPDATE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Post content updated successfully", result)
}

// DeletePost removes a post, its pending publications and live messages
// @Summary Delete Post
// @Tags Posts
// @Produce json
// @Param id path string true "Post ID"
// @Success 200 {object} dto.APIResponse{data=dto.DeletePostResponse} "Post deleted"
// @Router /api/v1/posts/{id} [delete]
func (h *PublisherHandler) DeletePost(c fiber.Ctx) error {
	req := dto.DeletePostRequest{PostID: c.Params("id")}

	if err := h.validator.Struct(&req); err != nil {
		return h.validationError(c, err)
	}

	userID, ok := authenticatedUserID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "User ID not found in context", "MISSING_USER_ID", nil)
	}
	req.UserID = userID

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.flow.DeletePost(h.createRequestContext(c, "/api/v1/posts/"+req.PostID), &req, metadata)
	if err != nil {
		return h.flowError(c, err, "Post delete failed", "POST_DELETE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Post deleted successfully", result)
}

// ListPublications returns a page of the user's publications
// @Summary List Publications
// @Tags Publications
// @Produce json
// @Param post_id query string false "Filter by post ID"
// @Param status query string false "Filter by status"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} dto.APIResponse{data=dto.ListPublicationsResponse} "Publications listed"
// @Router /api/v1/publications [get]
func (h *PublisherHandler) ListPublications(c fiber.Ctx) error {
	req := dto.ListPublicationsRequest{
		Page:     fiber.Query[int](c, "page"),
		PageSize: fiber.Query[int](c, "page_size"),
	}
	if postID := c.Query("post_id"); postID != "" {
		req.PostID = &postID
	}
	if status := c.Query("status"); status != "" {
		req.Status = &status
	}

	if err := h.validator.Struct(&req); err != nil {
		return h.validationError(c, err)
	}

	userID, ok := authenticatedUserID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "User ID not found in context", "MISSING_USER_ID", nil)
	}
	req.UserID = userID

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.flow.ListPublications(h.createRequestContext(c, "/api/v1/publications"), &req, metadata)
	if err != nil {
		return h.flowError(c, err, "Listing failed", "PUBLICATION_LIST_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Publications listed successfully", result)
}

func (h *PublisherHandler) validationError(c fiber.Ctx, err error) error {
	var validationErrors []string
	for _, fieldErr := range err.(validator.ValidationErrors) {
		validationErrors = append(validationErrors, getValidationErrorMessage(fieldErr))
	}
	return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
}

// flowError maps business errors onto HTTP status codes
func (h *PublisherHandler) flowError(c fiber.Ctx, err error, message, code string) error {
	switch {
	case businessflow.IsPostNotFound(err):
		return h.ErrorResponse(c, fiber.StatusNotFound, "Post not found", "POST_NOT_FOUND", nil)
	case businessflow.IsPublicationNotFound(err):
		return h.ErrorResponse(c, fiber.StatusNotFound, "Publication not found", "PUBLICATION_NOT_FOUND", nil)
	case businessflow.IsChannelNotFound(err):
		return h.ErrorResponse(c, fiber.StatusNotFound, "Channel not found", "CHANNEL_NOT_FOUND", nil)
	case businessflow.IsAccessDenied(err):
		return h.ErrorResponse(c, fiber.StatusForbidden, "Access denied", "ACCESS_DENIED", nil)
	case businessflow.IsPublicationNotPending(err):
		return h.ErrorResponse(c, fiber.StatusConflict, "Publication is not awaiting publish", "PUBLICATION_NOT_PENDING", nil)
	case businessflow.IsNoActiveChannels(err), businessflow.IsNoChannels(err):
		return h.ErrorResponse(c, fiber.StatusUnprocessableEntity, "No active channels to publish to", "NO_ACTIVE_CHANNELS", nil)
	case businessflow.IsContentInvalid(err), businessflow.IsUnknownPostKind(err), businessflow.IsDeleteBeforePublish(err):
		return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "POST_VALIDATION_FAILED", nil)
	case businessflow.IsQueueUnavailable(err):
		return h.ErrorResponse(c, fiber.StatusServiceUnavailable, "Job queue is unavailable", "QUEUE_UNAVAILABLE", nil)
	}

	log.Println(message, err)
	return h.ErrorResponse(c, fiber.StatusInternalServerError, message, code, nil)
}

// authenticatedUserID reads the user id the auth middleware stored
func authenticatedUserID(c fiber.Ctx) (uuid.UUID, bool) {
	userID, ok := c.Locals("user_id").(uuid.UUID)
	return userID, ok
}

// createRequestContext creates a context with timeout and request-scoped values
func (h *PublisherHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

func (h *PublisherHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)

	return ctx
}
