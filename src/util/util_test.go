package util

import "testing"

import "github.com/stretchr/testify/require"

func TestRoundupRounddown(t *testing.T) {
	require.Equal(t, 512, Roundup(1, 512))
	require.Equal(t, 512, Roundup(512, 512))
	require.Equal(t, 1024, Roundup(513, 512))
	require.Equal(t, 0, Rounddown(511, 512))
	require.Equal(t, 512, Rounddown(1023, 512))
}

func TestMinMax(t *testing.T) {
	require.Equal(t, 3, Min(3, 7))
	require.Equal(t, 7, Max(3, 7))
}

func TestReadnWriten(t *testing.T) {
	buf := make([]uint8, 16)
	Writen(buf, 4, 0, 0xdeadbeef)
	require.Equal(t, 0xdeadbeef, Readn(buf, 4, 0))

	Writen(buf, 8, 8, 0x1122334455)
	require.Equal(t, 0x1122334455, Readn(buf, 8, 8))

	Writen(buf, 1, 4, 0xff)
	require.Equal(t, 0xff, Readn(buf, 1, 4))
}

func TestReadnOutOfBounds(t *testing.T) {
	buf := make([]uint8, 4)
	require.Panics(t, func() { Readn(buf, 8, 0) })
	require.Panics(t, func() { Writen(buf, 4, 2, 1) })
}
