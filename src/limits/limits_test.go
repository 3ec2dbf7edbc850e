package limits

import "testing"

import "github.com/stretchr/testify/require"

func TestTakenGiven(t *testing.T) {
	s := &Sysatomic_t{}
	s.Given(2)
	require.True(t, s.Take())
	require.True(t, s.Take())
	require.False(t, s.Take())
	require.EqualValues(t, 0, s.Remain())

	s.Give()
	require.EqualValues(t, 1, s.Remain())
}

func TestMkSysLimit(t *testing.T) {
	sl := MkSysLimit()
	require.EqualValues(t, 20000, sl.Vnodes.Remain())
	require.True(t, sl.Openfds.Take())
}
