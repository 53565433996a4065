package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	err := Wrap(errors.New("boom"), KindTransient, "call llm").WithMetadata("model", "m1")
	assert.Equal(t, "[transient] call llm map[model:m1]: boom", err.Error())
}

func TestKindThroughWrapping(t *testing.T) {
	base := New(KindPrecondition, "missing scope")
	wrapped := fmt.Errorf("research gmail: %w", base)

	assert.True(t, IsKind(wrapped, KindPrecondition))
	assert.False(t, IsKind(wrapped, KindTransient))
	assert.Equal(t, KindPrecondition, KindOf(wrapped))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.False(t, IsKind(nil, KindPrecondition))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("x"), false},
		{"transient", New(KindTransient, "x"), true},
		{"quality", New(KindQualityGuard, "x"), true},
		{"precondition", New(KindPrecondition, "x"), false},
		{"integrity", fmt.Errorf("wrap: %w", New(KindDataIntegrity, "x")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
