package segment

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNamesSortInCreationOrder(t *testing.T) {
	var names []string
	for i := 0; i < 50; i++ {
		names = append(names, NewSortedName())
	}
	for i := 1; i < len(names); i++ {
		require.Less(t, names[i-1], names[i])
	}
}

func TestFormatOfRecognizesPrefixes(t *testing.T) {
	f, ok := FormatOf(NewSortedName())
	require.True(t, ok)
	require.Equal(t, Sorted, f)

	f, ok = FormatOf(NewBSSTName())
	require.True(t, ok)
	require.Equal(t, BSST, f)

	_, ok = FormatOf("garbage.bin")
	require.False(t, ok)
}

func TestMetadataRoundTrip(t *testing.T) {
	m := Metadata{
		EntriesOffset: 4096,
		FilterOffset:  8192,
		SeedsOffset:   12288,
		BitsPerEntry:  10,
		NumEntries:    256,
		FilterLength:  320,
		NumSeeds:      7,
		FileSize:      16384,
	}
	got := DecodeMetadata(m.Encode())
	require.Equal(t, m, got)
}

func TestListSegmentsSortsAscending(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		_, err := WriteSorted(dir, nil)
		require.NoError(t, err)
	}

	got, err := ListSegments(dir)
	require.NoError(t, err)
	require.Len(t, got, 5)
	for i := 1; i < len(got); i++ {
		require.Less(t, got[i-1], got[i])
	}
}
