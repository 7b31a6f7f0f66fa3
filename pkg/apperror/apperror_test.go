package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsIsMatchesByKind(t *testing.T) {
	err := NotFound("invoice %s not found", "abc")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.Equal(t, "invoice abc not found", err.Error())
}

func TestKindOfWrapped(t *testing.T) {
	wrapped := fmt.Errorf("approve correction: %w", InvalidState("correction is already approved"))
	assert.Equal(t, KindInvalidState, KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, ErrInvalidState))

	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestConflictWithDependents(t *testing.T) {
	err := fmt.Errorf("delete company: %w", ConflictWithDependents(3, "company has restaurants"))
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, int64(3), DependentsOf(err))
	assert.Equal(t, int64(0), DependentsOf(errors.New("plain")))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "amount_exceeds_balance", KindAmountExceedsBalance.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
