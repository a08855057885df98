package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageWrapsAndUnwraps(t *testing.T) {
	wrapped := Stage("filter", 2, ErrMissingReferent)
	assert.ErrorIs(t, wrapped, ErrMissingReferent)
	assert.Contains(t, wrapped.Error(), "stage 2")
	assert.Contains(t, wrapped.Error(), "filter")
}

func TestStageNilIsNil(t *testing.T) {
	assert.NoError(t, Stage("filter", 0, nil))
}

func TestStageErrorUnwrap(t *testing.T) {
	se := &StageError{Operator: "merge", Stage: 1, Err: ErrConflict}
	assert.Equal(t, ErrConflict, errors.Unwrap(se))
	assert.True(t, errors.Is(se, ErrConflict))
}
