package tracing

import (
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

var blockedAttributeKeys = map[attribute.Key]struct{}{
	"authorization":   {},
	"api_key":         {},
	"x-api-key":       {},
	"idempotency_key": {},
	"credit_balance":  {},
}

// SafeAttributes drops attributes that may leak credentials or balances.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, blocked := blockedAttributeKeys[attribute.Key(strings.ToLower(string(attr.Key)))]; blocked {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError reduces an error to its message with API keys masked.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	fields := strings.Fields(msg)
	for i, field := range fields {
		if strings.HasPrefix(field, "tl_") && len(field) > 8 {
			fields[i] = field[:7] + "***"
		}
	}
	return errors.New(strings.Join(fields, " "))
}
