package errs

import (
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errLocked = errors.New("locked")

func TestItemErrorUnwrapsCause(t *testing.T) {
	err := NewItemError(snowflake.ID(42), errLocked)

	assert.ErrorIs(t, err, errLocked)
	assert.Equal(t, "item 42: locked", err.Error())

	itemErr, ok := AsItemError(err)
	require.True(t, ok)
	assert.Equal(t, "42", itemErr.ID)
}

func TestAsItemErrorIgnoresPlainErrors(t *testing.T) {
	_, ok := AsItemError(errLocked)
	assert.False(t, ok)
}
