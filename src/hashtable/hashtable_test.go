package hashtable

import "testing"

import "github.com/stretchr/testify/require"

import "ustr"

func TestSetGetDel(t *testing.T) {
	ht := MkHash(8)

	_, inserted := ht.Set(ustr.Ustr("/a"), 1)
	require.True(t, inserted)

	v, ok := ht.Get(ustr.Ustr("/a"))
	require.True(t, ok)
	require.Equal(t, 1, v)

	_, inserted = ht.Set(ustr.Ustr("/a"), 2)
	require.False(t, inserted)

	ht.Del(ustr.Ustr("/a"))
	_, ok = ht.Get(ustr.Ustr("/a"))
	require.False(t, ok)
}

func TestSizeAndElems(t *testing.T) {
	ht := MkHash(4)
	ht.Set("x", 1)
	ht.Set("y", 2)
	ht.Set(3, "three")

	require.Equal(t, 3, ht.Size())
	require.Len(t, ht.Elems(), 3)
}

func TestIntKeys(t *testing.T) {
	ht := MkHash(16)
	for i := 0; i < 20; i++ {
		ht.Set(i, i*i)
	}
	v, ok := ht.Get(7)
	require.True(t, ok)
	require.Equal(t, 49, v)
}
