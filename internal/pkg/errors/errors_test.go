package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      Kind
		retriable bool
	}{
		{name: "nil", err: nil, kind: "", retriable: false},
		{name: "plain", err: errors.New("boom"), kind: KindInternal, retriable: false},
		{name: "transient", err: NewImportError(KindTransientIO, "read failed", nil), kind: KindTransientIO, retriable: true},
		{name: "wrapped normalizer", err: fmt.Errorf("parse: %w", NewImportError(KindNormalizerUnavailable, "llm down", nil)), kind: KindNormalizerUnavailable, retriable: true},
		{name: "protected", err: NewImportError(KindPasswordProtected, "encrypted", nil), kind: KindPasswordProtected, retriable: false},
		{name: "schema", err: NewImportError(KindSchemaValidationFailed, "bad output", nil), kind: KindSchemaValidationFailed, retriable: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.kind, KindOf(tt.err))
			require.Equal(t, tt.retriable, IsRetriable(tt.err))
		})
	}
}

func TestUserMessageHidesCause(t *testing.T) {
	err := NewImportError(KindCorrupted, "document is corrupted", errors.New("zip: not a valid zip file"))
	require.Equal(t, "document is corrupted", UserMessage(err))
	require.Contains(t, err.Error(), "zip: not a valid zip file")
	require.Equal(t, "internal error", UserMessage(errors.New("pq: connection refused")))
	require.NotEmpty(t, KindCorrupted.Hint())
}
