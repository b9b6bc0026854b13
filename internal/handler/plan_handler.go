package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/planbook/planbook-api/internal/models"
	"github.com/planbook/planbook-api/internal/service"
	appErrors "github.com/planbook/planbook-api/pkg/errors"
	"github.com/planbook/planbook-api/pkg/response"
)

const dateLayout = "2006-01-02"

// PlanHandler manages the active schedule session: activation, event
// listings, the editing triggers, saving and export.
type PlanHandler struct {
	plans  *service.PlanService
	export *service.ExportService
}

// NewPlanHandler constructs handler.
func NewPlanHandler(plans *service.PlanService, export *service.ExportService) *PlanHandler {
	return &PlanHandler{plans: plans, export: export}
}

type activatePlanRequest struct {
	ConfigID string `json:"config_id" binding:"required"`
}

// Activate godoc
// @Summary Activate the schedule for a configuration
// @Tags Plans
// @Accept json
// @Produce json
// @Param payload body activatePlanRequest true "Activation payload"
// @Success 200 {object} response.Envelope
// @Router /plans/activate [post]
func (h *PlanHandler) Activate(c *gin.Context) {
	var req activatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	schedule, result, err := h.plans.Activate(c.Request.Context(), req.ConfigID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"schedule": schedule, "result": result}, nil)
}

// Active godoc
// @Summary Get the active schedule
// @Tags Plans
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /plans/active [get]
func (h *PlanHandler) Active(c *gin.Context) {
	schedule, cfg, err := h.plans.Active()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"schedule": schedule, "config": cfg}, nil)
}

// Events godoc
// @Summary List events of the active schedule
// @Tags Plans
// @Produce json
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Param period query int false "Period number"
// @Param type query string false "Event type"
// @Success 200 {object} response.Envelope
// @Router /plans/active/events [get]
func (h *PlanHandler) Events(c *gin.Context) {
	var filter models.ScheduleEventFilter
	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse(dateLayout, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid from date"))
			return
		}
		filter.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse(dateLayout, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid to date"))
			return
		}
		filter.To = &to
	}
	if raw := c.Query("period"); raw != "" {
		period, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid period"))
			return
		}
		filter.Period = &period
	}
	if raw := c.Query("type"); raw != "" {
		eventType := models.EventType(raw)
		filter.EventType = &eventType
	}

	events, err := h.plans.Events(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}

// LessonAdded godoc
// @Summary Notify the planner that a course gained lessons
// @Tags Plans
// @Accept json
// @Produce json
// @Param payload body service.LessonAddedRequest true "Trigger payload"
// @Success 200 {object} response.Envelope
// @Router /plans/active/lessons [post]
func (h *PlanHandler) LessonAdded(c *gin.Context) {
	var req service.LessonAddedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, continuations, err := h.plans.LessonAdded(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"result": result, "continuations": continuations}, nil)
}

type specialDayPayload struct {
	Date   string `json:"date" binding:"required"`
	Period int    `json:"period" binding:"required,min=1"`
	Label  string `json:"label,omitempty"`
}

func (p specialDayPayload) toRequest() (service.SpecialDayRequest, error) {
	date, err := time.Parse(dateLayout, p.Date)
	if err != nil {
		return service.SpecialDayRequest{}, appErrors.Clone(appErrors.ErrValidation, "invalid date, expected YYYY-MM-DD")
	}
	return service.SpecialDayRequest{Date: date, Period: p.Period, Label: p.Label}, nil
}

// InsertSpecialDay godoc
// @Summary Insert a special day slot and shift lessons forward
// @Tags Plans
// @Accept json
// @Produce json
// @Param payload body specialDayPayload true "Special day payload"
// @Success 200 {object} response.Envelope
// @Router /plans/active/special-days [post]
func (h *PlanHandler) InsertSpecialDay(c *gin.Context) {
	var payload specialDayPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req, err := payload.toRequest()
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.plans.InsertSpecialDay(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// DeleteSpecialDay godoc
// @Summary Delete a special day slot and shift lessons backward
// @Tags Plans
// @Produce json
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param period query int true "Period number"
// @Success 200 {object} response.Envelope
// @Router /plans/active/special-days [delete]
func (h *PlanHandler) DeleteSpecialDay(c *gin.Context) {
	date, err := time.Parse(dateLayout, c.Query("date"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date, expected YYYY-MM-DD"))
		return
	}
	period, err := strconv.Atoi(c.Query("period"))
	if err != nil || period < 1 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid period"))
		return
	}
	result, err := h.plans.DeleteSpecialDay(c.Request.Context(), service.SpecialDayRequest{Date: date, Period: period})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Save godoc
// @Summary Queue persistence of the active schedule
// @Tags Plans
// @Produce json
// @Success 202 {object} response.Envelope
// @Router /plans/active/save [post]
func (h *PlanHandler) Save(c *gin.Context) {
	jobID, err := h.plans.EnqueueSave()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"job_id": jobID}, nil)
}

// Export godoc
// @Summary Export the active schedule
// @Tags Plans
// @Produce json
// @Param format query string false "Export format (csv or pdf)"
// @Success 200 {object} response.Envelope
// @Router /plans/active/export [post]
func (h *PlanHandler) Export(c *gin.Context) {
	format := service.ExportFormat(c.DefaultQuery("format", string(service.ExportFormatPDF)))
	result, err := h.export.Generate(c.Request.Context(), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Download godoc
// @Summary Download a previously exported file
// @Tags Plans
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200
// @Router /export/{token} [get]
func (h *PlanHandler) Download(c *gin.Context) {
	_, relPath, _, err := h.export.ParseToken(c.Param("token"), false)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrForbidden.Code, http.StatusForbidden, "invalid download token"))
		return
	}
	file, err := h.export.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "export file not found"))
		return
	}
	defer file.Close() //nolint:errcheck
	c.FileAttachment(file.Name(), relPath)
}
