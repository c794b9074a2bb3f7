package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	pricedomain "github.com/smallbiznis/tokenledger/internal/price/domain"
)

type setModelPriceRequest struct {
	InputPricePerK  decimal.Decimal `json:"input_price_per_k"`
	OutputPricePerK decimal.Decimal `json:"output_price_per_k"`
	ServiceType     string          `json:"service_type"`
}

func (s *Server) ListModelPrices(c *gin.Context) {
	configs, err := s.priceStore.GetActiveConfigs(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": configs})
}

func (s *Server) ListModelPriceVersions(c *gin.Context) {
	versions, err := s.priceStore.ListVersions(c.Request.Context(), c.Param("model_name"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": versions})
}

// SetModelPrice publishes a new price version. Ledger entries already
// written keep the price they were charged at.
func (s *Server) SetModelPrice(c *gin.Context) {
	var req setModelPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	serviceType := pricedomain.ServiceType(strings.TrimSpace(req.ServiceType))
	if serviceType == "" {
		serviceType = pricedomain.ServiceTypeAIModel
	}

	cfg, err := s.priceStore.SetModelPrice(c.Request.Context(), pricedomain.SetModelPriceRequest{
		ModelName:       c.Param("model_name"),
		InputPricePerK:  req.InputPricePerK,
		OutputPricePerK: req.OutputPricePerK,
		ServiceType:     serviceType,
		Actor:           actorLabel(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}
