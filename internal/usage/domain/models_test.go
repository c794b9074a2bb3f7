package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustKey(t *testing.T, e UsageEvent) string {
	t.Helper()
	key, err := e.DedupeKey()
	require.NoError(t, err)
	return key
}

func TestDedupeKeySources(t *testing.T) {
	message := mustKey(t, UsageEvent{UserID: "u1", ConversationID: "c1", MessageID: "m1", IdempotencyKey: "k"})
	assert.True(t, strings.HasPrefix(message, "cm:"))
	assert.Len(t, message, len("cm:")+64)
	assert.Equal(t, message, mustKey(t, UsageEvent{UserID: " u1 ", ConversationID: " c1", MessageID: "m1 "}),
		"surrounding whitespace and the unused idempotency key do not matter")

	fallback := mustKey(t, UsageEvent{UserID: "u1", ConversationID: "c1", IdempotencyKey: " k-42 "})
	assert.True(t, strings.HasPrefix(fallback, "idem:"))
	assert.Equal(t, fallback, mustKey(t, UsageEvent{UserID: "u1", IdempotencyKey: "k-42"}))

	_, err := UsageEvent{UserID: "u1", MessageID: "m1"}.DedupeKey()
	assert.ErrorIs(t, err, ErrMissingDedupeKey)
}

func TestDedupeKeyDistinguishesTuples(t *testing.T) {
	cases := []struct {
		name string
		a, b UsageEvent
	}{
		{
			name: "separator inside conversation vs message",
			a:    UsageEvent{UserID: "u1", ConversationID: "a:b", MessageID: "c"},
			b:    UsageEvent{UserID: "u1", ConversationID: "a", MessageID: "b:c"},
		},
		{
			name: "message pair vs idempotency key",
			a:    UsageEvent{UserID: "u1", ConversationID: "idem", MessageID: "x"},
			b:    UsageEvent{UserID: "u1", IdempotencyKey: "x"},
		},
		{
			name: "pair spelled as an idempotency key",
			a:    UsageEvent{UserID: "u1", ConversationID: "c1", MessageID: "m1"},
			b:    UsageEvent{UserID: "u1", IdempotencyKey: "c1:m1"},
		},
		{
			name: "same message for another user",
			a:    UsageEvent{UserID: "u1", ConversationID: "conv-1", MessageID: "m1"},
			b:    UsageEvent{UserID: "u2", ConversationID: "conv-1", MessageID: "m1"},
		},
		{
			name: "user boundary shifted into conversation",
			a:    UsageEvent{UserID: "u1", ConversationID: "2c", MessageID: "m"},
			b:    UsageEvent{UserID: "u12", ConversationID: "c", MessageID: "m"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.NotEqual(t, mustKey(t, tc.a), mustKey(t, tc.b))
		})
	}
}

func TestValidate(t *testing.T) {
	valid := UsageEvent{UserID: "u1", ModelName: "gpt-4", ConversationID: "c", MessageID: "m"}
	assert.NoError(t, valid.Validate())

	missingUser := valid
	missingUser.UserID = ""
	assert.ErrorIs(t, missingUser.Validate(), ErrInvalidUserID)

	missingModel := valid
	missingModel.ModelName = " "
	assert.ErrorIs(t, missingModel.Validate(), ErrInvalidModelName)

	missingKey := valid
	missingKey.MessageID = ""
	assert.ErrorIs(t, missingKey.Validate(), ErrMissingDedupeKey)
}
