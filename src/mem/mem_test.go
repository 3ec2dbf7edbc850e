package mem

import "testing"

import "github.com/stretchr/testify/require"

func freshPhysmem(n int) *Physmem_t {
	Physmem = &Physmem_t{}
	return Phys_init(n)
}

func TestAllocFreeRoundTrip(t *testing.T) {
	phys := freshPhysmem(4)
	require.Equal(t, 4, phys.Pgcount())

	pg, pa, ok := phys.Refpg_new()
	require.True(t, ok)
	require.NotNil(t, pg)
	require.Equal(t, 3, phys.Pgcount())

	phys.Refup(pa)
	require.Equal(t, 1, phys.Refcnt(pa))
	phys.Refup(pa)

	require.False(t, phys.Refdown(pa)) // still one outstanding ref from the second Refup
	require.True(t, phys.Refdown(pa))  // drops to zero, frame freed
	require.Equal(t, 4, phys.Pgcount())
}

func TestExhaustion(t *testing.T) {
	phys := freshPhysmem(1)
	_, _, ok := phys.Refpg_new()
	require.True(t, ok)
	_, _, ok = phys.Refpg_new()
	require.False(t, ok)
}

func TestDmapReturnsBackingStorage(t *testing.T) {
	phys := freshPhysmem(2)
	pg, pa, ok := phys.Refpg_new_nozero()
	require.True(t, ok)
	pg[0] = 0x41

	got := phys.Dmap(pa)
	require.Equal(t, 0x41, got[0])
}

func TestRefdownUnderflowPanics(t *testing.T) {
	phys := freshPhysmem(1)
	_, pa, _ := phys.Refpg_new()
	require.Panics(t, func() { phys.Refdown(pa) })
}
