package service

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	ratingdomain "github.com/smallbiznis/tokenledger/internal/rating/domain"
	"go.uber.org/zap"
)

const fallbackEncoding = "o200k_base"

type encoder interface {
	Encode(text string, allowedSpecial []string, disallowedSpecial []string) []int
}

// Tokenizer counts tokens with tiktoken. Encodings are loaded lazily and
// cached; when one cannot be loaded it estimates four bytes per token.
type Tokenizer struct {
	log *zap.Logger

	mu       sync.Mutex
	encoders map[string]encoder
	load     func(modelName string) (encoder, error)
}

func NewTokenizer(log *zap.Logger) *Tokenizer {
	return &Tokenizer{
		log:      log.Named("rating.tokenizer"),
		encoders: map[string]encoder{},
		load:     loadEncoding,
	}
}

func loadEncoding(modelName string) (encoder, error) {
	if tkm, err := tiktoken.EncodingForModel(modelName); err == nil {
		return tkm, nil
	}
	return tiktoken.GetEncoding(fallbackEncoding)
}

func (t *Tokenizer) CountTokens(modelName, text string) int64 {
	if text == "" {
		return 0
	}
	key := strings.ToLower(strings.TrimSpace(modelName))

	t.mu.Lock()
	enc, ok := t.encoders[key]
	if !ok {
		loaded, err := t.load(key)
		if err != nil {
			t.log.Warn("tiktoken encoding unavailable, estimating", zap.String("model_name", key), zap.Error(err))
		} else {
			enc = loaded
		}
		t.encoders[key] = enc
	}
	t.mu.Unlock()

	if enc == nil {
		return estimateTokens(text)
	}
	return int64(len(enc.Encode(text, nil, nil)))
}

func estimateTokens(text string) int64 {
	return int64(len(text)+3) / 4
}

var _ ratingdomain.TokenCounter = (*Tokenizer)(nil)
