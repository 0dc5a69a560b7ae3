package handlers

import (
	"net/http"

	"github.com/escola-hub/academic-records/internal/application/query"
	"github.com/gin-gonic/gin"
)

// ReportHandler serves the engagement report.
type ReportHandler struct {
	engagement    *query.EngagementReportHandler
	defaultWindow int
}

// NewReportHandler creates a new ReportHandler. defaultWindow applies when a
// request omits window_days.
func NewReportHandler(engagement *query.EngagementReportHandler, defaultWindow int) *ReportHandler {
	return &ReportHandler{engagement: engagement, defaultWindow: defaultWindow}
}

// Register mounts the routes on rg.
func (h *ReportHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/reports/engagement", h.Engagement)
}

// Engagement handles GET /reports/engagement?window_days=&mode=.
func (h *ReportHandler) Engagement(c *gin.Context) {
	window, err := queryInt(c, "EngagementReport", "window_days")
	if err != nil {
		RespondError(c, err)
		return
	}
	if window == nil {
		window = &h.defaultWindow
	}

	report, err := h.engagement.Handle(c.Request.Context(), query.EngagementReportQuery{
		WindowDays: window,
		Mode:       c.Query("mode"),
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	respondData(c, http.StatusOK, report)
}
