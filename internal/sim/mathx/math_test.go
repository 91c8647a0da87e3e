package mathx

import "testing"

func TestFloorDivAndMod(t *testing.T) {
	cases := []struct {
		a, q, m int
	}{
		{0, 0, 0},
		{15, 0, 15},
		{16, 1, 0},
		{-1, -1, 15},
		{-16, -1, 0},
		{-17, -2, 15},
	}
	for _, c := range cases {
		if got := FloorDiv(c.a, 16); got != c.q {
			t.Fatalf("FloorDiv(%d,16)=%d want %d", c.a, got, c.q)
		}
		if got := Mod(c.a, 16); got != c.m {
			t.Fatalf("Mod(%d,16)=%d want %d", c.a, got, c.m)
		}
	}
}

func TestVec3fFloorAndDist(t *testing.T) {
	p := Vec3f{X: -0.5, Y: 64.2, Z: 3.99}
	if got := p.Floor(); got != V(-1, 64, 3) {
		t.Fatalf("Floor=%v", got)
	}
	o := Vec3f{}
	if d := o.Dist(V(3, 4, 0)); d != 5 {
		t.Fatalf("Dist=%v want 5", d)
	}
}

func TestHash3Deterministic(t *testing.T) {
	if Hash3(7, 1, 2, 3) != Hash3(7, 1, 2, 3) {
		t.Fatalf("hash not deterministic")
	}
	if Hash3(7, 1, 2, 3) == Hash3(8, 1, 2, 3) {
		t.Fatalf("seed ignored")
	}
}
