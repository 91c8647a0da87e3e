package farm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kashimo.ai/internal/sim/catalogs"
	"kashimo.ai/internal/sim/chunkmath"
	"kashimo.ai/internal/sim/mathx"
)

func TestRegistryInPlaceLifecycle(t *testing.T) {
	h := newHarness()
	p := mathx.V(3, 64, -2)

	h.set(p, wheat(0))
	require.False(t, h.reg.IsEmpty())
	assert.Equal(t, 1, h.reg.CropCount())
	assert.False(t, h.reg.CanHarvest(p))

	h.set(p, wheat(7))
	assert.True(t, h.reg.CanHarvest(p))
	got, ok := h.reg.Nearest(pt(0, 64, 0))
	require.True(t, ok)
	assert.Equal(t, p, got)

	h.set(p, air())
	assert.True(t, h.reg.IsEmpty())
	assert.Equal(t, 0, h.reg.Len())
	assert.Equal(t, 0, h.reg.CropCount())
	_, ok = h.reg.Nearest(pt(0, 64, 0))
	assert.False(t, ok)

	assert.Equal(t, []ChangeKind{ChangePlanted, ChangeHarvestable, ChangeInvalidated, ChangeRemoved}, h.events.kinds())
}

func TestRegistrySpeciesSwap(t *testing.T) {
	h := newHarness()
	p := mathx.V(0, 0, 0)
	h.set(p, wheat(7))
	h.events.reset()

	h.set(p, catalogs.AgedState("carrots", 2))
	c, ok := h.reg.Crop(p)
	require.True(t, ok)
	assert.Equal(t, h.def("carrots").ID, c.Species())
	assert.Equal(t, 2, c.Age())
	assert.False(t, h.reg.CanHarvest(p))
	assert.Equal(t, []ChangeKind{ChangeInvalidated, ChangeRemoved, ChangePlanted}, h.events.kinds())
}

func TestRegistryStemRoundTrip(t *testing.T) {
	h := newHarness()
	stem := mathx.V(0, 0, 0)
	fruit := mathx.V(0, 0, 1)

	h.set(stem, catalogs.AgedState("melon_stem", 0))
	h.set(stem, catalogs.AgedState("melon_stem", 7))
	assert.False(t, h.reg.CanHarvest(fruit))

	h.set(fruit, catalogs.State("melon"))
	h.set(stem, catalogs.FacingState("attached_melon_stem", catalogs.South))
	require.True(t, h.reg.CanHarvest(fruit))
	got, ok := h.reg.Nearest(pt(0.5, 0, 3))
	require.True(t, ok)
	assert.Equal(t, fruit, got)

	h.set(fruit, air())
	assert.False(t, h.reg.CanHarvest(fruit))
	c, ok := h.reg.Crop(stem)
	require.True(t, ok, "the stem outlives its fruit")
	assert.Equal(t, 7, c.Age())

	h.set(stem, catalogs.AgedState("melon_stem", 7))
	assert.Equal(t, 0, h.reg.HarvestableCount())
	assert.Equal(t, 1, h.reg.CropCount())
}

func TestRegistryStemAcrossChunkFace(t *testing.T) {
	h := newHarness()
	stem := mathx.V(15, 0, 4)
	fruit := mathx.V(16, 0, 4)
	require.Equal(t, chunkmath.ChunkKey{}, chunkmath.ChunkOf(stem))
	require.Equal(t, chunkmath.ChunkKey{X: 1}, chunkmath.ChunkOf(fruit))

	h.set(fruit, catalogs.State("pumpkin"))
	h.set(stem, catalogs.FacingState("attached_pumpkin_stem", catalogs.East))
	require.True(t, h.reg.CanHarvest(fruit))
	_, ok := h.reg.Partition(chunkmath.ChunkKey{X: 1})
	assert.False(t, ok, "the target belongs to the stem's partition")

	got, ok := h.reg.Nearest(pt(20, 0, 4))
	require.True(t, ok)
	assert.Equal(t, fruit, got)

	h.set(fruit, catalogs.State("dirt"))
	assert.False(t, h.reg.CanHarvest(fruit))
	assert.Equal(t, 1, h.reg.Len())
}

func TestRegistryHarvestBlockOfOtherSpecies(t *testing.T) {
	h := newHarness()
	h.set(mathx.V(0, 0, 1), catalogs.State("melon"))
	h.set(mathx.V(0, 0, 0), catalogs.FacingState("attached_melon_stem", catalogs.South))

	// a pumpkin where the melon was is not this stem's product
	h.set(mathx.V(0, 0, 1), catalogs.State("pumpkin"))
	assert.False(t, h.reg.CanHarvest(mathx.V(0, 0, 1)))

	// melon to melon is not a change
	h.set(mathx.V(0, 0, 1), catalogs.State("melon"))
	h.set(mathx.V(0, 0, 0), catalogs.FacingState("attached_melon_stem", catalogs.South))
	h.set(mathx.V(0, 0, 1), catalogs.State("melon"))
	assert.True(t, h.reg.CanHarvest(mathx.V(0, 0, 1)))
}

func TestRegistryStalkColumn(t *testing.T) {
	h := newHarness()
	base := mathx.V(0, 0, 0)
	h.world.put(base.Down(), sand())

	h.set(base, cane())
	c, ok := h.reg.Crop(base)
	require.True(t, ok)
	assert.Equal(t, 0, c.Age())

	h.set(base.Up(), cane())
	require.True(t, h.reg.CanHarvest(base.Up()))
	assert.Equal(t, 1, h.reg.CropCount())

	// third block changes nothing
	h.set(base.Offset(0, 2, 0), cane())
	assert.Equal(t, 1, h.reg.HarvestableCount())
	assert.Equal(t, 1, h.reg.CropCount())
	h.set(base.Offset(0, 2, 0), air())
	assert.True(t, h.reg.CanHarvest(base.Up()))

	h.set(base.Up(), air())
	assert.False(t, h.reg.CanHarvest(base.Up()))
	assert.Equal(t, 1, h.reg.CropCount())

	h.set(base, air())
	assert.True(t, h.reg.IsEmpty())
}

func TestRegistryStalkNeedsSoil(t *testing.T) {
	h := newHarness()
	h.world.put(mathx.V(0, -1, 0), catalogs.State("stone"))
	h.set(mathx.V(0, 0, 0), cane())
	assert.True(t, h.reg.IsEmpty())

	// below is not loaded
	h.reg.OnBlockUpdate(nil, BlockView{Pos: mathx.V(0, 16*40, 0), State: cane()})
	assert.True(t, h.reg.IsEmpty())
}

func TestRegistryStalkDiscoveredGrown(t *testing.T) {
	h := newHarness()
	base := mathx.V(4, 10, 4)
	h.world.put(base.Down(), catalogs.State("grass_block"))
	h.world.put(base, catalogs.State("bamboo"))
	h.world.put(base.Up(), catalogs.State("bamboo"))

	h.reg.OnBlockUpdate(nil, BlockView{Pos: base, State: catalogs.State("bamboo")})
	require.True(t, h.reg.CanHarvest(base.Up()))
	h.reg.OnBlockUpdate(nil, BlockView{Pos: base.Up(), State: catalogs.State("bamboo")})
	assert.Equal(t, 1, h.reg.CropCount())
	assert.Equal(t, 1, h.reg.HarvestableCount())
}

func TestRegistryStalkTopAcrossChunkFloor(t *testing.T) {
	h := newHarness()
	base := mathx.V(2, 15, 2)
	top := base.Up()
	require.NotEqual(t, chunkmath.ChunkOf(base), chunkmath.ChunkOf(top))

	h.world.put(base.Down(), sand())
	h.set(base, cane())
	h.set(top, cane())
	require.True(t, h.reg.CanHarvest(top))

	got, ok := h.reg.Nearest(pt(2.5, 20, 2.5))
	require.True(t, ok)
	assert.Equal(t, top, got)
}

func TestRegistryRepeatedUpdatesAreIdempotent(t *testing.T) {
	h := newHarness()
	for i := 0; i < 3; i++ {
		h.set(mathx.V(1, 0, 1), wheat(7))
		h.reg.OnBlockUpdate(nil, BlockView{Pos: mathx.V(1, 0, 1), State: wheat(7)})
	}
	assert.Equal(t, 1, h.reg.CropCount())
	assert.Equal(t, 1, h.reg.HarvestableCount())
	assert.Equal(t, []ChangeKind{ChangePlanted, ChangeHarvestable}, h.events.kinds())
}

func TestRegistryIgnoresUnrelatedBlocks(t *testing.T) {
	h := newHarness()
	h.set(mathx.V(0, 0, 0), catalogs.State("stone"))
	h.set(mathx.V(0, 0, 0), catalogs.State("water"))
	h.reg.OnBlockUpdate(nil, BlockView{Pos: mathx.V(0, 0, 0), State: catalogs.State("melon")})
	assert.True(t, h.reg.IsEmpty())
	assert.Empty(t, h.events.changes)
}

func TestRegistryClear(t *testing.T) {
	h := newHarness()
	for x := 0; x < 40; x += 4 {
		h.set(mathx.V(x, 0, 0), wheat(7))
	}
	require.Equal(t, 3, h.reg.Len())
	h.reg.Clear()
	assert.True(t, h.reg.IsEmpty())
	assert.Equal(t, 0, h.reg.CropCount())
	assert.Equal(t, 0, h.reg.HarvestableCount())
}
