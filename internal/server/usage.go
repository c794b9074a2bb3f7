package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/smallbiznis/tokenledger/internal/ledger/domain"
	usagedomain "github.com/smallbiznis/tokenledger/internal/usage/domain"
)

const headerIdempotencyKey = "Idempotency-Key"

type usageEventRequest struct {
	ModelName       string     `json:"model_name"`
	InputTokens     int64      `json:"input_tokens"`
	OutputTokens    int64      `json:"output_tokens"`
	UserID          string     `json:"user_id"`
	ConversationID  string     `json:"conversation_id"`
	MessageID       string     `json:"message_id"`
	IdempotencyKey  string     `json:"idempotency_key"`
	SourceTimestamp *time.Time `json:"source_timestamp"`
	PaidTier        bool       `json:"paid_tier"`
	StrictPricing   bool       `json:"strict_pricing"`
}

type estimateRequest struct {
	ModelName    string `json:"model_name"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	Prompt       string `json:"prompt"`
}

func (s *Server) IngestUsageEvent(c *gin.Context) {
	var req usageEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	event := usagedomain.UsageEvent{
		ModelName:      strings.TrimSpace(req.ModelName),
		InputTokens:    req.InputTokens,
		OutputTokens:   req.OutputTokens,
		UserID:         strings.TrimSpace(req.UserID),
		ConversationID: strings.TrimSpace(req.ConversationID),
		MessageID:      strings.TrimSpace(req.MessageID),
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
		PaidTier:       req.PaidTier,
		StrictPricing:  req.StrictPricing,
	}
	if event.IdempotencyKey == "" {
		event.IdempotencyKey = strings.TrimSpace(c.GetHeader(headerIdempotencyKey))
	}
	if req.SourceTimestamp != nil {
		event.SourceTimestamp = req.SourceTimestamp.UTC()
	}
	if err := event.Validate(); err != nil {
		AbortWithError(c, err)
		return
	}

	if !s.allowUsageIngest(c, event.UserID) {
		return
	}

	result, err := s.ledgerSvc.ProcessUsageEvent(c.Request.Context(), event)
	if err != nil {
		if result != nil && result.State == ledgerdomain.StateRejected {
			_ = c.Error(err)
			status, payload := mapError(err)
			c.AbortWithStatusJSON(status, gin.H{"error": payload, "result": result})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) EstimateCost(c *gin.Context) {
	var req estimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	modelName := strings.TrimSpace(req.ModelName)
	if req.Prompt != "" {
		calc, err := s.ledgerSvc.EstimateFromText(ctx, modelName, req.Prompt, req.OutputTokens)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, calc)
		return
	}

	calc, err := s.ledgerSvc.EstimateCost(ctx, modelName, req.InputTokens, req.OutputTokens)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, calc)
}
