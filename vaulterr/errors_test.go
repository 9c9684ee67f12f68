package vaulterr

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestErrorKinds asserts kinds survive wrapping and match their sentinels.
func TestErrorKinds(t *testing.T) {
	t.Parallel()

	specific := errors.New("invalid message length")
	err := Wrap(KindValidation, "wots.Sign", specific, "len=%d", 31)

	require.ErrorIs(t, err, ErrValidation)
	require.ErrorIs(t, err, specific)
	require.NotErrorIs(t, err, ErrIntegrity)
	require.Equal(t, KindValidation, KindOf(err))
	require.Equal(
		t, "wots.Sign: validation: len=31: invalid message length",
		err.Error(),
	)

	// Wrapping again with fmt keeps the kind reachable.
	outer := fmt.Errorf("spend: %w", err)
	require.Equal(t, KindValidation, KindOf(outer))
	require.ErrorIs(t, outer, ErrValidation)

	require.Equal(t, KindUnknown, KindOf(io.EOF))
	require.Nil(t, Wrap(KindFatal, "op", nil, "ignored"))
}

// TestRecoverable checks only fatal errors are unrecoverable.
func TestRecoverable(t *testing.T) {
	t.Parallel()

	require.False(t, KindFatal.Recoverable())
	require.False(t, KindUnknown.Recoverable())
	for _, k := range []Kind{
		KindValidation, KindIntegrity, KindInsufficientFunds,
		KindExternal,
	} {
		require.True(t, k.Recoverable(), k.String())
	}
}
