package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	reminderdomain "github.com/duetrack/duetrack/internal/reminder/domain"
)

type upsertTemplateRequest struct {
	Tier         string `json:"tier" binding:"required"`
	Subject      string `json:"subject" binding:"required"`
	Body         string `json:"body" binding:"required"`
	DaysAfterDue int    `json:"days_after_due"`
	Active       *bool  `json:"active"`
}

type automationConfigRequest struct {
	Enabled            bool `json:"enabled"`
	FirstReminderDays  int  `json:"first_reminder_days" binding:"required"`
	SecondReminderDays int  `json:"second_reminder_days" binding:"required"`
	FinalNoticeDays    int  `json:"final_notice_days" binding:"required"`
	CooldownDays       int  `json:"cooldown_days"`
}

type attemptOutcomeRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

func (s *Server) UpsertReminderTemplate(c *gin.Context) {
	companyID, ok := parseID(c, "companyId")
	if !ok {
		return
	}

	var req upsertTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	template, err := s.reminderSvc.UpsertTemplate(c.Request.Context(), companyID, reminderdomain.UpsertTemplateInput{
		Tier:         reminderdomain.Tier(strings.ToUpper(strings.TrimSpace(req.Tier))),
		Subject:      req.Subject,
		Body:         req.Body,
		DaysAfterDue: req.DaysAfterDue,
		Active:       active,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": template})
}

func (s *Server) ListReminderTemplates(c *gin.Context) {
	companyID, ok := parseID(c, "companyId")
	if !ok {
		return
	}

	templates, err := s.reminderSvc.ListTemplates(c.Request.Context(), companyID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": templates})
}

func (s *Server) DeleteReminderTemplate(c *gin.Context) {
	companyID, ok := parseID(c, "companyId")
	if !ok {
		return
	}
	templateID, ok := parseID(c, "templateId")
	if !ok {
		return
	}

	if err := s.reminderSvc.DeleteTemplate(c.Request.Context(), companyID, templateID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) GetAutomationConfig(c *gin.Context) {
	companyID, ok := parseID(c, "companyId")
	if !ok {
		return
	}

	cfg, err := s.reminderSvc.GetAutomationConfig(c.Request.Context(), companyID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cfg})
}

func (s *Server) UpdateAutomationConfig(c *gin.Context) {
	companyID, ok := parseID(c, "companyId")
	if !ok {
		return
	}

	var req automationConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	cfg, err := s.reminderSvc.UpdateAutomationConfig(c.Request.Context(), companyID, reminderdomain.UpdateAutomationConfigInput{
		Enabled:            req.Enabled,
		FirstReminderDays:  req.FirstReminderDays,
		SecondReminderDays: req.SecondReminderDays,
		FinalNoticeDays:    req.FinalNoticeDays,
		CooldownDays:       req.CooldownDays,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cfg})
}

// PreviewReminderEligibility runs the dispatch gate without opening an
// attempt, so the UI can show a disabled reminder control with the
// reason code.
func (s *Server) PreviewReminderEligibility(c *gin.Context) {
	companyID, ok := parseID(c, "companyId")
	if !ok {
		return
	}
	invoiceID, ok := parseID(c, "invoiceId")
	if !ok {
		return
	}

	eval, err := s.reminderSvc.Evaluate(c.Request.Context(), companyID, invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": eval})
}

func (s *Server) ListDispatchAttempts(c *gin.Context) {
	companyID, ok := parseID(c, "companyId")
	if !ok {
		return
	}

	req := reminderdomain.ListAttemptsRequest{CompanyID: companyID}
	if err := c.ShouldBindQuery(&req.Pagination); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}
	if status := strings.ToUpper(strings.TrimSpace(c.Query("status"))); status != "" {
		req.Status = reminderdomain.AttemptStatus(status)
	}

	resp, err := s.reminderSvc.ListAttempts(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Attempts, "page_info": resp.PageInfo})
}

// CloseDispatchAttempt is the callback for senders that deliver out of
// process: they report sent or failed(retryable|terminal) here.
func (s *Server) CloseDispatchAttempt(c *gin.Context) {
	companyID, ok := parseID(c, "companyId")
	if !ok {
		return
	}
	attemptID, ok := parseID(c, "attemptId")
	if !ok {
		return
	}

	var req attemptOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	attempt, err := s.reminderSvc.CloseAttempt(c.Request.Context(), companyID, attemptID, reminderdomain.CloseOutcome{
		Status: reminderdomain.AttemptStatus(strings.ToUpper(strings.TrimSpace(req.Status))),
		Reason: req.Reason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": attempt})
}
