package errors_test

import (
	"fmt"
	"io"
	"testing"

	apperrors "github.com/dvloznov/sabadell-dashboard/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestMark(t *testing.T) {
	cause := fmt.Errorf("Download: copy: %w", io.ErrUnexpectedEOF)

	marked := apperrors.Mark(cause, apperrors.ErrNetwork)
	require.True(t, apperrors.Is(marked, apperrors.ErrNetwork))
	require.True(t, apperrors.Is(marked, io.ErrUnexpectedEOF))
	require.False(t, apperrors.Is(marked, apperrors.ErrQuery))

	// marking twice with the same sentinel keeps the error as is
	require.Equal(t, marked, apperrors.Mark(marked, apperrors.ErrNetwork))
	require.Nil(t, apperrors.Mark(nil, apperrors.ErrNetwork))
}

func TestWrapf(t *testing.T) {
	err := apperrors.Wrapf(apperrors.ErrNoRemoteFile, "SelectLatest: folder %s", "abc")
	require.EqualError(t, err, "SelectLatest: folder abc: no remote file available")
	require.True(t, apperrors.Is(err, apperrors.ErrNoRemoteFile))
	require.Nil(t, apperrors.Wrapf(nil, "ignored"))
}
