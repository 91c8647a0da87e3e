package farm

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kashimo.ai/internal/sim/catalogs"
	"kashimo.ai/internal/sim/mathx"
)

// randomFarm plants crops on a coarse grid so that no two crops or targets collide, and
// returns the positions that must come out as harvestable.
func randomFarm(t *testing.T, h *harness, rng *rand.Rand, n int) []mathx.Vec3 {
	t.Helper()
	used := map[mathx.Vec3]bool{}
	var want []mathx.Vec3
	facings := []catalogs.Facing{catalogs.North, catalogs.South, catalogs.West, catalogs.East}
	for i := 0; i < n; i++ {
		p := mathx.V(rng.IntN(60)*3-90, rng.IntN(12)*4-24, rng.IntN(60)*3-90)
		if used[p] {
			continue
		}
		used[p] = true
		switch rng.IntN(4) {
		case 0:
			age := rng.IntN(8)
			h.set(p, wheat(age))
			if age == 7 {
				want = append(want, p)
			}
		case 1:
			f := facings[rng.IntN(len(facings))]
			h.set(p, catalogs.FacingState("attached_melon_stem", f))
			want = append(want, p.Add(f.Unit()))
		case 2:
			h.set(p, catalogs.AgedState("pumpkin_stem", rng.IntN(8)))
		default:
			h.world.put(p.Down(), sand())
			h.set(p, cane())
			if rng.IntN(2) == 0 {
				h.set(p.Up(), cane())
				want = append(want, p.Up())
			}
		}
	}
	return want
}

func bruteNearest(ref mathx.Vec3f, want []mathx.Vec3) float64 {
	best := math.Inf(1)
	for _, p := range want {
		best = math.Min(best, ref.DistSq(p))
	}
	return best
}

func TestNearestMatchesBruteForce(t *testing.T) {
	for _, cutoff := range []int{1, 250, 500, 1000} {
		rng := rand.New(rand.NewPCG(7, uint64(cutoff)))
		h := newHarness()
		h.reg = NewRegistry(RegistryConfig{Crops: h.crops, World: h.world, ShellCutoffPermille: cutoff})
		want := randomFarm(t, h, rng, 400)
		require.NotEmpty(t, want)
		require.Equal(t, len(want), h.reg.HarvestableCount())

		for i := 0; i < 200; i++ {
			ref := pt(rng.Float64()*240-120, rng.Float64()*80-40, rng.Float64()*240-120)
			got, ok := h.reg.Nearest(ref)
			require.True(t, ok)
			assert.Contains(t, want, got)
			assert.InDelta(t, bruteNearest(ref, want), ref.DistSq(got), 1e-9, "cutoff %d ref %s", cutoff, ref)
		}
	}
}

func TestNearestSeqOrdersEverything(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 13))
	h := newHarness()
	want := randomFarm(t, h, rng, 300)
	ref := pt(3.5, 0, -7.25)

	var got []mathx.Vec3
	last := -1.0
	for p := range h.reg.NearestSeq(ref) {
		d := ref.DistSq(p)
		require.GreaterOrEqual(t, d, last)
		last = d
		got = append(got, p)
	}
	assert.ElementsMatch(t, want, got)

	first, ok := h.reg.Nearest(ref)
	require.True(t, ok)
	assert.InDelta(t, ref.DistSq(first), ref.DistSq(got[0]), 1e-9)

	top := h.reg.NearestN(ref, 5)
	assert.Equal(t, got[:5], top)
	assert.Nil(t, h.reg.NearestN(ref, 0))
}

func TestNearestCorrectsEarlyStop(t *testing.T) {
	h := newHarness()
	h.reg = NewRegistry(RegistryConfig{Crops: h.crops, World: h.world, ShellCutoffPermille: 1})

	// many partitions with nothing ripe
	for i := 0; i < 50; i++ {
		h.set(mathx.V(200+i*16, 0, 200), wheat(1))
	}
	far := mathx.V(0, 0, 0)
	near := mathx.V(17, 0, 0)
	h.set(far, wheat(7))
	h.set(near, wheat(7))

	got, ok := h.reg.Nearest(pt(15.9, 0, 0.5))
	require.True(t, ok)
	assert.Equal(t, near, got)
}

func TestNearestFindsStemTargetAcrossFace(t *testing.T) {
	h := newHarness()
	h.reg = NewRegistry(RegistryConfig{Crops: h.crops, World: h.world, ShellCutoffPermille: 1})
	for i := 0; i < 50; i++ {
		h.set(mathx.V(-300, 0, i*16), wheat(0))
	}
	h.set(mathx.V(17, 0, 0), wheat(7))
	h.set(mathx.V(15, 0, 0), catalogs.FacingState("attached_melon_stem", catalogs.East))

	ref := pt(16.2, 0, 0.5)
	got, ok := h.reg.Nearest(ref)
	require.True(t, ok)
	assert.Equal(t, mathx.V(16, 0, 0), got)
}

func TestNearestFallsBackPastEmptyShells(t *testing.T) {
	h := newHarness()
	for i := 0; i < 30; i++ {
		h.set(mathx.V(i*16, 0, 0), wheat(2))
	}
	h.set(mathx.V(5000, 0, 5000), wheat(7))

	got, ok := h.reg.Nearest(pt(0, 0, 0))
	require.True(t, ok)
	assert.Equal(t, mathx.V(5000, 0, 5000), got)
}

func TestNearestNothingRipe(t *testing.T) {
	h := newHarness()
	_, ok := h.reg.Nearest(pt(0, 0, 0))
	assert.False(t, ok)

	h.set(mathx.V(1, 1, 1), wheat(3))
	_, ok = h.reg.Nearest(pt(0, 0, 0))
	assert.False(t, ok)
	for range h.reg.NearestSeq(pt(0, 0, 0)) {
		t.Fatal("nothing should be yielded")
	}
}
