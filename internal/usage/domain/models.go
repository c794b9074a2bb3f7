// Package domain describes usage reports submitted for metering.
package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidUserID      = errors.New("invalid_user_id")
	ErrInvalidModelName   = errors.New("invalid_model_name")
	ErrMissingDedupeKey   = errors.New("missing_dedupe_key")
	ErrDeduperUnavailable = errors.New("deduper_unavailable")
)

// UsageEvent is one completed model call reported by a caller.
type UsageEvent struct {
	ModelName       string    `json:"model_name"`
	InputTokens     int64     `json:"input_tokens"`
	OutputTokens    int64     `json:"output_tokens"`
	UserID          string    `json:"user_id"`
	ConversationID  string    `json:"conversation_id,omitempty"`
	MessageID       string    `json:"message_id,omitempty"`
	IdempotencyKey  string    `json:"idempotency_key,omitempty"`
	SourceTimestamp time.Time `json:"source_timestamp,omitempty"`
	// PaidTier is set by reporters that know the call hit a paid model.
	PaidTier bool `json:"paid_tier,omitempty"`
	// StrictPricing rejects unknown models instead of pricing them from the
	// heuristic table, even when auto-create is switched on.
	StrictPricing bool `json:"strict_pricing,omitempty"`
}

const (
	keySpaceMessage     = "cm"
	keySpaceIdempotency = "idem"
)

// DedupeKey identifies the event across retries. The conversation and
// message pair wins over the transport idempotency key. Keys are scoped to
// the user, and the two sources live in separate key spaces.
func (e UsageEvent) DedupeKey() (string, error) {
	userID := strings.TrimSpace(e.UserID)
	conversationID := strings.TrimSpace(e.ConversationID)
	messageID := strings.TrimSpace(e.MessageID)
	if conversationID != "" && messageID != "" {
		return tupleKey(keySpaceMessage, userID, conversationID, messageID), nil
	}
	if key := strings.TrimSpace(e.IdempotencyKey); key != "" {
		return tupleKey(keySpaceIdempotency, userID, key), nil
	}
	return "", ErrMissingDedupeKey
}

// tupleKey hashes length-prefixed parts, so no choice of separator inside a
// part can make two different tuples collide.
func tupleKey(space string, parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(strconv.Itoa(len(part))))
		h.Write([]byte{':'})
		h.Write([]byte(part))
	}
	return space + ":" + hex.EncodeToString(h.Sum(nil))
}

// Validate checks the event shape. Token counts are validated when pricing.
func (e UsageEvent) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return ErrInvalidUserID
	}
	if strings.TrimSpace(e.ModelName) == "" {
		return ErrInvalidModelName
	}
	_, err := e.DedupeKey()
	return err
}

// Deduper remembers processed dedupe keys for a bounded window.
type Deduper interface {
	IsNew(ctx context.Context, key string) (bool, error)
	MarkProcessed(ctx context.Context, key string) error
}
