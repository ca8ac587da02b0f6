package sales_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anyx/sales-engine/sales"
)

func TestClassify(t *testing.T) {
	assert.Nil(t, sales.Classify(nil))

	t.Run("classified errors pass through", func(t *testing.T) {
		in := sales.ValidationError("price is %s", "bad")
		out := sales.Classify(fmt.Errorf("wrapped: %w", in))
		assert.Same(t, in, out)
	})

	t.Run("invalid input sentinel is validation", func(t *testing.T) {
		err := fmt.Errorf("%w: granularity", sales.ErrInvalidInput)
		e := sales.Classify(err)
		assert.Equal(t, sales.KindValidation, e.Kind)
		assert.Equal(t, err.Error(), e.Message)
	})

	t.Run("anything else is operational with a generic message", func(t *testing.T) {
		cause := errors.New("disk I/O error: /var/lib/sales.db")
		e := sales.Classify(cause)

		assert.Equal(t, sales.KindOperational, e.Kind)
		assert.Equal(t, sales.GenericFailureMessage, e.Message)
		assert.NotContains(t, e.Error(), "/var/lib")
		assert.True(t, errors.Is(e, sales.ErrStorage))
		assert.True(t, errors.Is(e, cause))
		assert.True(t, errors.Is(e.Cause(), cause))
	})
}

func TestError_WithPathCopies(t *testing.T) {
	e := sales.ValidationError("nope")
	withPath := e.WithPath("makePayment")

	assert.Equal(t, "makePayment", withPath.Path)
	assert.Empty(t, e.Path)
	assert.Equal(t, e.Message, withPath.Message)
	assert.True(t, errors.Is(withPath, sales.ErrInvalidInput))
}

func TestKindHelpers(t *testing.T) {
	require.True(t, sales.IsValidation(sales.ValidationError("x")))
	require.False(t, sales.IsOperational(sales.ValidationError("x")))
	require.True(t, sales.IsOperational(errors.New("timeout")))
	require.False(t, sales.IsValidation(nil))
	require.False(t, sales.IsOperational(nil))
}

func TestConfigError(t *testing.T) {
	err := &sales.ConfigError{Method: sales.MethodAmex, Reason: "max can't be less than min"}

	assert.Equal(t, "invalid rate configuration for AMEX: max can't be less than min", err.Error())
	assert.True(t, errors.Is(err, sales.ErrInvalidConfig))
}
