package bpath

import "testing"

import "github.com/stretchr/testify/require"

import "ustr"

func TestCanonicalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"/", "/"},
		{"/a/b/c", "/a/b/c"},
		{"/a//b", "/a/b"},
		{"/a/./b", "/a/b"},
		{"/a/b/..", "/a"},
		{"/a/../b", "/b"},
		{"/..", "/"},
		{"/a/../../b", "/b"},
	}
	for _, c := range cases {
		got := Canonicalize(ustr.Ustr(c.in))
		require.Equal(t, c.want, got.String(), "canonicalize(%q)", c.in)
	}
}

func TestCanonicalizeRequiresAbsolute(t *testing.T) {
	require.Panics(t, func() { Canonicalize(ustr.Ustr("rel/path")) })
}

func TestSplitPath(t *testing.T) {
	dir, name := Split_path(ustr.Ustr("/a/b/c"))
	require.Equal(t, "/a/b", dir.String())
	require.Equal(t, "c", name.String())

	dir, name = Split_path(ustr.Ustr("/"))
	require.Equal(t, "/", dir.String())
	require.Equal(t, "", name.String())

	dir, name = Split_path(ustr.Ustr("/home"))
	require.Equal(t, "/", dir.String())
	require.Equal(t, "home", name.String())
}
