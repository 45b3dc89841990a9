package assert

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPositive(t *testing.T) {
	require.NotPanics(t, func() { Positive("rps", 4.0) })
	require.NotPanics(t, func() { Positive("attempts", 3) })
	require.PanicsWithValue(t, "expected attempts to be positive, got 0", func() { Positive("attempts", 0) })
	require.Panics(t, func() { Positive("rps", -1.5) })
}
