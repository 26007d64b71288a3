package od

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVariableGetters(t *testing.T) {
	v, err := NewVariable(0, "test", INTEGER16, AttributeSdoRw, "-100")
	require.NoError(t, err)

	got, err := v.Int16()
	require.NoError(t, err)
	assert.Equal(t, int16(-100), got)

	assert.Equal(t, uint32(2), v.DataLength())
	assert.Equal(t, v.DefaultValue(), v.Raw())
}

func TestVariableTypeMismatch(t *testing.T) {
	v, err := NewVariable(0, "test", UNSIGNED8, AttributeSdoRw, "1")
	require.NoError(t, err)

	_, err = v.Uint32()
	assert.Equal(t, ErrTypeMismatch, err)
}
