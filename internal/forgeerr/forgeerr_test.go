package forgeerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapNilReturnsNil(t *testing.T) {
	require.NoError(t, Wrap(KindSource, "download", nil))
}

func TestIsRecoversKindThroughUnwrap(t *testing.T) {
	cause := errors.New("checksum mismatch")
	wrapped := Wrap(KindSource, "downloading foo-1.0.0", cause)

	require.True(t, Is(wrapped, KindSource))
	require.False(t, Is(wrapped, KindCompile))
	require.ErrorIs(t, wrapped, cause)
}

func TestRenderIncludesCausalChain(t *testing.T) {
	cause := errors.New("no matching version")
	wrapped := Wrap(KindResolution, "resolving bar", cause)

	rendered := Render(wrapped)
	require.Contains(t, rendered, "resolution")
	require.Contains(t, rendered, "resolving bar")
	require.Contains(t, rendered, "no matching version")
}

func TestWrapStackNil(t *testing.T) {
	require.NoError(t, WrapStack(nil))
}
