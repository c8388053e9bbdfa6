package quickapi

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/artquick/quick/internal/isa"
)

func TestThreadOffsets(t *testing.T) {
	for _, ptr := range []isa.PointerSize{isa.PointerSize32, isa.PointerSize64} {
		d := ThreadOffsets(ptr)
		require.Equal(t, ptr, d.PointerSize)
		// Pointer fields follow the 32 and 64 bit blocks.
		require.Equal(t, ThreadOffset(threadTLS32Size+threadTLS64Size), d.CardTable)
		require.Equal(t, d.CardTable+ThreadOffset(ptr), d.Exception)
		require.True(t, d.IsGcMarking < threadTLS32Size)
		require.True(t, d.TopHandleScope > d.Self)
		require.Equal(t, d.QuickEntrypoints, d.QuickEntrypoint(QuickDeliverException))
		require.Equal(t, d.QuickEntrypoints+ThreadOffset(ptr), d.QuickEntrypoint(QuickJniMethodStart))
		require.Zero(t, int(d.Exception)%ptr.Bytes())
	}
	require.Panics(t, func() { ThreadOffsets(3) })
	require.Panics(t, func() { ThreadOffsets(isa.PointerSize64).QuickEntrypoint(quickEntrypointEnd) })
}

func TestHandleScopeLayout(t *testing.T) {
	require.Equal(t, Offset(0), HandleScopeLinkOffset(isa.PointerSize64))
	require.Equal(t, Offset(8), HandleScopeNumberOfReferencesOffset(isa.PointerSize64))
	require.Equal(t, Offset(12), HandleScopeReferencesOffset(isa.PointerSize64))
	require.Equal(t, Offset(8), HandleScopeReferencesOffset(isa.PointerSize32))
	require.Equal(t, 8+4+4*3, HandleScopeSizeOf(isa.PointerSize64, 3))
	require.Equal(t, 4+4, HandleScopeSizeOf(isa.PointerSize32, 0))
}

func TestArtMethodOffsets(t *testing.T) {
	require.Equal(t, Offset(24), ArtMethodEntryPointFromJniOffset(isa.PointerSize64))
	require.Equal(t, Offset(32), ArtMethodEntryPointFromQuickCompiledCodeOffset(isa.PointerSize64))
	require.Equal(t, Offset(20), ArtMethodEntryPointFromJniOffset(isa.PointerSize32))
}

func TestQuickEntrypoint_String(t *testing.T) {
	require.Equal(t, "pDeliverException", QuickDeliverException.String())
	require.Equal(t, "pReadBarrierJni", QuickReadBarrierJni.String())
	require.Equal(t, "QuickEntrypoint(100)", QuickEntrypoint(100).String())
}
