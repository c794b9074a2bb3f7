package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	exchangeratedomain "github.com/smallbiznis/tokenledger/internal/exchangerate/domain"
)

const defaultRateHistoryLimit = 50

type setExchangeRateRequest struct {
	CreditsPerUnit decimal.Decimal `json:"credits_per_unit"`
	Reason         string          `json:"reason"`
}

func (s *Server) GetExchangeRate(c *gin.Context) {
	rate, err := s.rateSvc.GetCurrent(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rate)
}

func (s *Server) SetExchangeRate(c *gin.Context) {
	var req setExchangeRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	rate, err := s.rateSvc.SetNew(c.Request.Context(), exchangeratedomain.SetRateRequest{
		CreditsPerUnit: req.CreditsPerUnit,
		Reason:         strings.TrimSpace(req.Reason),
		Actor:          actorLabel(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rate)
}

func (s *Server) ListExchangeRateHistory(c *gin.Context) {
	limit := defaultRateHistoryLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	history, err := s.rateSvc.History(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": history})
}
