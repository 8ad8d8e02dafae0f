package page

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	entries := []Entry{{Key: 1, Value: 10}, {Key: 2, Value: 20}, {Key: 3, Value: 30}}
	buf := PackPage(entries)
	require.Len(t, buf, Size)

	got := UnpackPage(buf)
	require.Equal(t, entries, got)
}

func TestUnpackStopsAtPadding(t *testing.T) {
	buf := PackPage([]Entry{{Key: 5, Value: 50}})
	got := UnpackPage(buf)
	require.Equal(t, []Entry{{Key: 5, Value: 50}}, got)
}

func TestEffectiveSize(t *testing.T) {
	buf := PackPage([]Entry{{Key: 1, Value: 1}, {Key: 2, Value: 2}})
	require.Equal(t, 2, EffectiveSize(buf))

	full := make([]Entry, NumEntries)
	for i := range full {
		full[i] = Entry{Key: int64(i + 1), Value: int64(i + 1)}
	}
	buf = PackPage(full)
	require.Equal(t, NumEntries, EffectiveSize(buf))
}

func TestAlignUp(t *testing.T) {
	require.Equal(t, int64(0), AlignUp(0))
	require.Equal(t, int64(Size), AlignUp(1))
	require.Equal(t, int64(Size), AlignUp(Size))
	require.Equal(t, int64(2*Size), AlignUp(Size+1))
}
