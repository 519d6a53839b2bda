package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/duetrack/duetrack/internal/invoice/domain"
)

type createInvoiceRequest struct {
	Number       string `json:"number" binding:"required"`
	ContactEmail string `json:"contact_email"`
	Currency     string `json:"currency"`
	AmountTotal  int64  `json:"amount_total" binding:"required"`
	IssueDate    string `json:"issue_date" binding:"required"`
	DueDate      string `json:"due_date" binding:"required"`
}

type applyPaymentRequest struct {
	Amount    int64  `json:"amount" binding:"required"`
	PaidAt    string `json:"paid_at"`
	Method    string `json:"method"`
	Reference string `json:"reference"`
}

type listInvoicesQuery struct {
	Page     int    `form:"page,default=1"`
	PageSize int    `form:"page_size,default=25"`
	Status   string `form:"status"`
	Overdue  *bool  `form:"overdue"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	companyID, ok := parseID(c, "companyId")
	if !ok {
		return
	}

	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	issueDate, err := parseDate(req.IssueDate)
	if err != nil {
		AbortWithError(c, newValidationError("issue_date", "invalid_date", "expected YYYY-MM-DD"))
		return
	}
	dueDate, err := parseDate(req.DueDate)
	if err != nil {
		AbortWithError(c, newValidationError("due_date", "invalid_date", "expected YYYY-MM-DD"))
		return
	}

	inv, err := s.invoiceSvc.CreateInvoice(c.Request.Context(), invoicedomain.CreateInvoiceInput{
		CompanyID:    companyID,
		Number:       req.Number,
		ContactEmail: req.ContactEmail,
		Currency:     req.Currency,
		AmountTotal:  req.AmountTotal,
		IssueDate:    issueDate,
		DueDate:      dueDate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": inv})
}

func (s *Server) GetInvoice(c *gin.Context) {
	companyID, ok := parseID(c, "companyId")
	if !ok {
		return
	}
	invoiceID, ok := parseID(c, "invoiceId")
	if !ok {
		return
	}

	detail, err := s.invoiceSvc.GetInvoice(c.Request.Context(), companyID, invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": detail})
}

func (s *Server) ListInvoices(c *gin.Context) {
	companyID, ok := parseID(c, "companyId")
	if !ok {
		return
	}

	var query listInvoicesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	req := invoicedomain.ListInvoicesRequest{
		CompanyID: companyID,
		Overdue:   query.Overdue,
	}
	req.Page = query.Page
	req.PageSize = query.PageSize

	if status := strings.ToUpper(strings.TrimSpace(query.Status)); status != "" {
		switch invoicedomain.SettlementStatus(status) {
		case invoicedomain.StatusUnsettled, invoicedomain.StatusPartial, invoicedomain.StatusSettled:
			req.Status = invoicedomain.SettlementStatus(status)
		default:
			AbortWithError(c, newValidationError("status", "invalid_status", "unknown settlement status"))
			return
		}
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Invoices, "page_info": resp.PageInfo})
}

func (s *Server) DeleteInvoice(c *gin.Context) {
	companyID, ok := parseID(c, "companyId")
	if !ok {
		return
	}
	invoiceID, ok := parseID(c, "invoiceId")
	if !ok {
		return
	}

	if err := s.invoiceSvc.DeleteInvoice(c.Request.Context(), companyID, invoiceID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ApplyPayment(c *gin.Context) {
	companyID, ok := parseID(c, "companyId")
	if !ok {
		return
	}
	invoiceID, ok := parseID(c, "invoiceId")
	if !ok {
		return
	}

	var req applyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	input := invoicedomain.PaymentInput{
		Amount:    req.Amount,
		Method:    req.Method,
		Reference: req.Reference,
	}
	if strings.TrimSpace(req.PaidAt) != "" {
		paidAt, err := parseDate(req.PaidAt)
		if err != nil {
			AbortWithError(c, newValidationError("paid_at", "invalid_date", "expected YYYY-MM-DD"))
			return
		}
		input.PaidAt = paidAt
	}

	snap, err := s.invoiceSvc.ApplyPayment(c.Request.Context(), companyID, invoiceID, input)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": snap})
}

func (s *Server) RemovePayment(c *gin.Context) {
	companyID, ok := parseID(c, "companyId")
	if !ok {
		return
	}
	invoiceID, ok := parseID(c, "invoiceId")
	if !ok {
		return
	}
	paymentID, ok := parseID(c, "paymentId")
	if !ok {
		return
	}

	snap, err := s.invoiceSvc.RemovePayment(c.Request.Context(), companyID, invoiceID, paymentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": snap})
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}
