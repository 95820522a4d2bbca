package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorUnwrap(t *testing.T) {
	err := NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrConfiguration)
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.Contains(t, err.Error(), "CONFIG_ERROR")
}

func TestErrorChain(t *testing.T) {
	inner := errors.New("connection refused")
	mid := fmt.Errorf("opening database: %w", inner)
	outer := fmt.Errorf("run history unavailable: %w", mid)

	chain := ErrorChain(outer)
	assert.Equal(t, []string{
		"run history unavailable: opening database: connection refused",
		"opening database: connection refused",
		"connection refused",
	}, chain)

	assert.Nil(t, ErrorChain(nil))
}
