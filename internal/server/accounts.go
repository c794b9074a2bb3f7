package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingrecorddomain "github.com/smallbiznis/tokenledger/internal/billingrecord/domain"
	ledgerdomain "github.com/smallbiznis/tokenledger/internal/ledger/domain"
)

type creditRequest struct {
	Amount      int64  `json:"amount"`
	Reference   string `json:"reference"`
	Description string `json:"description"`
}

type listQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
	Status    string `form:"status"`
	Type      string `form:"type"`
}

// GetBalance returns the balance, or a sufficiency check when
// required_credits is given.
func (s *Server) GetBalance(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	required, err := parseOptionalInt64(c.Query("required_credits"))
	if err != nil || (required != nil && *required < 0) {
		AbortWithError(c, newValidationError("required_credits", "invalid_required_credits", "required_credits must be a non-negative integer"))
		return
	}

	ctx := c.Request.Context()
	if required != nil {
		validation, err := s.ledgerSvc.CheckBalance(ctx, userID, *required)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, validation)
		return
	}

	balance, err := s.ledgerSvc.GetBalance(ctx, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func (s *Server) CreditAccount(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	var req creditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		reference = strings.TrimSpace(c.GetHeader(headerIdempotencyKey))
	}

	result, err := s.ledgerSvc.Credit(c.Request.Context(), ledgerdomain.CreditRequest{
		UserID:      userID,
		Amount:      req.Amount,
		Reference:   reference,
		Description: strings.TrimSpace(req.Description),
		Actor:       actorLabel(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if !result.Applied {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

func (s *Server) ListLedgerEntries(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	var query listQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ledgerSvc.ListEntries(c.Request.Context(), ledgerdomain.ListEntriesRequest{
		UserID:    userID,
		Status:    strings.TrimSpace(query.Status),
		PageToken: strings.TrimSpace(query.PageToken),
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Entries, "page_info": resp.PageInfo})
}

func (s *Server) ListBillingRecords(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	var query listQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ledgerSvc.ListBillingRecords(c.Request.Context(), billingrecorddomain.ListRequest{
		UserID:    userID,
		Type:      strings.TrimSpace(query.Type),
		PageToken: strings.TrimSpace(query.PageToken),
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.BillingRecords, "page_info": resp.PageInfo})
}

func (s *Server) GetLedgerEntry(c *gin.Context) {
	entry, err := s.ledgerSvc.GetEntry(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}
