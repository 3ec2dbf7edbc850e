package stat

import "testing"

import "github.com/google/go-cmp/cmp"
import "github.com/stretchr/testify/require"

func TestStatFields(t *testing.T) {
	var st Stat_t
	st.Wdev(1)
	st.Wino(42)
	st.Wmode(IFDIR)
	st.Wsize(4096)
	st.Wrdev(0)

	require.EqualValues(t, 42, st.Rino())
	require.EqualValues(t, 4096, st.Size())
	require.True(t, st.Isdir())
}

func TestIsdirFalseForRegularFile(t *testing.T) {
	var st Stat_t
	st.Wmode(0)
	require.False(t, st.Isdir())
}

// TestStatRoundTripStructural rebuilds an identical Stat_t through the
// setter API twice and diffs the two for full structural equality,
// unexported fields included, so that building a Stat_t through the
// setters is shown to be deterministic.
func TestStatRoundTripStructural(t *testing.T) {
	build := func() *Stat_t {
		st := &Stat_t{}
		st.Wdev(7)
		st.Wino(123)
		st.Wmode(IFDIR)
		st.Wsize(8192)
		st.Wrdev(3)
		return st
	}
	a, b := build(), build()
	if diff := cmp.Diff(a, b, cmp.AllowUnexported(Stat_t{})); diff != "" {
		t.Fatalf("round-tripped Stat_t mismatch (-want +got):\n%s", diff)
	}
}
