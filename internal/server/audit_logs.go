package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/duetrack/duetrack/internal/audit/domain"
)

func (s *Server) ListAuditLogs(c *gin.Context) {
	companyID, ok := parseID(c, "companyId")
	if !ok {
		return
	}

	req := auditdomain.ListAuditLogRequest{
		CompanyID:  companyID,
		Action:     strings.TrimSpace(c.Query("action")),
		TargetType: strings.TrimSpace(c.Query("target_type")),
		TargetID:   strings.TrimSpace(c.Query("target_id")),
	}
	if err := c.ShouldBindQuery(&req.Pagination); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	if raw := strings.TrimSpace(c.Query("start_at")); raw != "" {
		start, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("start_at", "invalid_date", "expected RFC3339"))
			return
		}
		req.StartAt = &start
	}
	if raw := strings.TrimSpace(c.Query("end_at")); raw != "" {
		end, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("end_at", "invalid_date", "expected RFC3339"))
			return
		}
		req.EndAt = &end
	}

	resp, err := s.auditSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.AuditLogs, "page_info": resp.PageInfo})
}
