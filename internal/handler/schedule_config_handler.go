package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/planbook/planbook-api/internal/models"
	"github.com/planbook/planbook-api/internal/service"
	appErrors "github.com/planbook/planbook-api/pkg/errors"
	"github.com/planbook/planbook-api/pkg/response"
)

// ScheduleConfigHandler manages schedule configuration endpoints.
type ScheduleConfigHandler struct {
	service *service.ConfigService
}

// NewScheduleConfigHandler constructs handler.
func NewScheduleConfigHandler(svc *service.ConfigService) *ScheduleConfigHandler {
	return &ScheduleConfigHandler{service: svc}
}

// List godoc
// @Summary List schedule configurations
// @Tags Configurations
// @Produce json
// @Param search query string false "Search by title"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /configs [get]
func (h *ScheduleConfigHandler) List(c *gin.Context) {
	var filter models.ScheduleConfigFilter
	filter.Search = c.Query("search")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}

	configs, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, configs, pagination)
}

// Get godoc
// @Summary Get a schedule configuration
// @Tags Configurations
// @Produce json
// @Param id path string true "Configuration ID"
// @Success 200 {object} response.Envelope
// @Router /configs/{id} [get]
func (h *ScheduleConfigHandler) Get(c *gin.Context) {
	cfg, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}

// Create godoc
// @Summary Create schedule configuration
// @Tags Configurations
// @Accept json
// @Produce json
// @Param payload body service.CreateConfigRequest true "Configuration payload"
// @Success 201 {object} response.Envelope
// @Router /configs [post]
func (h *ScheduleConfigHandler) Create(c *gin.Context) {
	var req service.CreateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	cfg, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cfg)
}

// Update godoc
// @Summary Update schedule configuration
// @Tags Configurations
// @Accept json
// @Produce json
// @Param id path string true "Configuration ID"
// @Param payload body service.CreateConfigRequest true "Configuration payload"
// @Success 200 {object} response.Envelope
// @Router /configs/{id} [put]
func (h *ScheduleConfigHandler) Update(c *gin.Context) {
	var req service.CreateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	cfg, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}

// Delete godoc
// @Summary Delete schedule configuration
// @Tags Configurations
// @Produce json
// @Param id path string true "Configuration ID"
// @Success 204
// @Router /configs/{id} [delete]
func (h *ScheduleConfigHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
