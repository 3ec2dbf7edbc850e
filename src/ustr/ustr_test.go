package ustr

import "testing"

import "github.com/stretchr/testify/require"

func TestDotDotdot(t *testing.T) {
	require.True(t, Ustr(".").Isdot())
	require.False(t, Ustr("..").Isdot())
	require.True(t, Ustr("..").Isdotdot())
	require.False(t, Ustr(".").Isdotdot())
}

func TestEq(t *testing.T) {
	require.True(t, Ustr("foo").Eq(Ustr("foo")))
	require.False(t, Ustr("foo").Eq(Ustr("foobar")))
	require.False(t, Ustr("foo").Eq(Ustr("bar")))
}

func TestExtend(t *testing.T) {
	base := MkUstrRoot()
	got := base.Extend(Ustr("home"))
	require.Equal(t, "/home", got.String())

	got2 := got.ExtendStr("user")
	require.Equal(t, "/home/user", got2.String())

	// Extend must not mutate the receiver's backing array.
	require.Equal(t, "/", base.String())
}

func TestIsAbsolute(t *testing.T) {
	require.True(t, Ustr("/etc").IsAbsolute())
	require.False(t, Ustr("etc").IsAbsolute())
	require.False(t, MkUstr().IsAbsolute())
}

func TestMkUstrSlice(t *testing.T) {
	buf := []uint8{'h', 'i', 0, 'x', 'x'}
	require.Equal(t, "hi", MkUstrSlice(buf).String())

	noNul := []uint8{'h', 'i'}
	require.Equal(t, "hi", MkUstrSlice(noNul).String())
}

func TestIndexByte(t *testing.T) {
	require.Equal(t, 3, Ustr("/a/b").IndexByte('b'))
	require.Equal(t, -1, Ustr("/a/b").IndexByte('z'))
}
