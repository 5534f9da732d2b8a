package campaignd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionOrdering(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0", "1.1", -1},
		{"1.1", "1.0", 1},
		{"1.0", "1.0", 0},
		{"1.0", "1.0.0", 0},
		{"1.9", "1.10", -1},
		{"0.9.9", "1.0", -1},
		{"2.0", "10.0", -1},
		{"1.0", "1.0.1", -1},
		// Numeric components order before textual ones.
		{"1.0", "1.0.beta", -1},
		{"1.0.alpha", "1.0.beta", -1},
	}
	for _, tt := range tests {
		got := ParseVersion(tt.a).Compare(ParseVersion(tt.b))
		require.Equal(t, tt.want, got, "%s vs %s", tt.a, tt.b)
	}
}

func TestVersionCanonicalForm(t *testing.T) {
	v := ParseVersion("1.02.3")
	require.Equal(t, "1.02.3", v.String())
	require.True(t, v.Equal(ParseVersion("1.2.3")))
}

func TestVersionMapInsertReplace(t *testing.T) {
	vm := NewVersionMap()
	vm.InsertReplace(VersionRecord{Version: "1.0", Filename: "a.gz"})
	vm.InsertReplace(VersionRecord{Version: "1.2", Filename: "c.gz"})
	vm.InsertReplace(VersionRecord{Version: "1.1", Filename: "b.gz"})
	require.Equal(t, 3, vm.Len())

	// Equal-key insertion replaces without growing the map.
	vm.InsertReplace(VersionRecord{Version: "1.1.0", Filename: "b2.gz"})
	require.Equal(t, 3, vm.Len())

	rec, ok := vm.Find(ParseVersion("1.1"))
	require.True(t, ok)
	require.Equal(t, "b2.gz", rec.Filename)

	first, ok := vm.First()
	require.True(t, ok)
	require.Equal(t, "1.0", first.Version)

	last, ok := vm.Last()
	require.True(t, ok)
	require.Equal(t, "1.2", last.Version)
}

func TestVersionMapNearestOlder(t *testing.T) {
	vm := NewVersionMap(
		VersionRecord{Version: "1.0"},
		VersionRecord{Version: "1.2"},
		VersionRecord{Version: "1.4"},
	)

	rec, ok := vm.NearestOlder(ParseVersion("1.3"))
	require.True(t, ok)
	require.Equal(t, "1.2", rec.Version)

	// An exact key is its own nearest-older.
	rec, ok = vm.NearestOlder(ParseVersion("1.2"))
	require.True(t, ok)
	require.Equal(t, "1.2", rec.Version)

	_, ok = vm.NearestOlder(ParseVersion("0.9"))
	require.False(t, ok)
}

func TestVersionMapPairs(t *testing.T) {
	vm := NewVersionMap(
		VersionRecord{Version: "1.2"},
		VersionRecord{Version: "1.0"},
		VersionRecord{Version: "1.1"},
	)

	var pairs [][2]string
	for prev, next := range vm.Pairs() {
		pairs = append(pairs, [2]string{prev.Version, next.Version})
	}
	require.Equal(t, [][2]string{{"1.0", "1.1"}, {"1.1", "1.2"}}, pairs)
}

func TestVersionMapRange(t *testing.T) {
	vm := NewVersionMap(
		VersionRecord{Version: "1.0"},
		VersionRecord{Version: "1.1"},
		VersionRecord{Version: "1.2"},
		VersionRecord{Version: "1.3"},
	)

	recs := vm.Range(ParseVersion("1.1"), ParseVersion("1.3"))
	require.Len(t, recs, 3)
	require.Equal(t, "1.1", recs[0].Version)
	require.Equal(t, "1.3", recs[2].Version)

	// Reversed or unknown bounds produce nothing.
	require.Nil(t, vm.Range(ParseVersion("1.3"), ParseVersion("1.1")))
	require.Nil(t, vm.Range(ParseVersion("0.5"), ParseVersion("1.3")))
	require.Nil(t, vm.Range(ParseVersion("1.1"), ParseVersion("1.1")))
}
