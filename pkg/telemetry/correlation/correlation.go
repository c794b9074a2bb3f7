// Package correlation carries one ID per request across logs, spans and
// audit entries. Clients may supply their own through HeaderName.
package correlation

import (
	"context"
	"strings"
	"unicode"

	"github.com/oklog/ulid/v2"
)

const HeaderName = "X-Correlation-Id"

// maxLength bounds client-supplied IDs before they reach logs and audit rows.
const maxLength = 128

type ctxKey struct{}

// ID returns the correlation ID on ctx, or "".
func ID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// WithID stores id on ctx. Blank, oversized or non-printable IDs are ignored.
func WithID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > maxLength || strings.IndexFunc(id, notPrintable) >= 0 {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

// Ensure returns ctx with a correlation ID, minting a ULID when none is set.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := ID(ctx); id != "" {
		return ctx, id
	}
	id := ulid.Make().String()
	return context.WithValue(ctx, ctxKey{}, id), id
}

func notPrintable(r rune) bool {
	return !unicode.IsPrint(r) || unicode.IsSpace(r)
}
