// Package gen holds the stateless layout functions behind generated farm worlds.
package gen

import "kashimo.ai/internal/sim/mathx"

func FloorDiv(a, b int) int {
	return mathx.FloorDiv(a, b)
}

func Mod(a, b int) int {
	return mathx.Mod(a, b)
}

func Hash2(seed int64, x, z int) uint64 {
	return mathx.Hash2(seed, x, z)
}

func Hash3(seed int64, x, y, z int) uint64 {
	return mathx.Hash3(seed, x, y, z)
}

// FieldAt picks which of n crops a field region grows, or -1 for plain grass. Regions
// are regionSize blocks square.
func FieldAt(seed int64, x, z, regionSize int, n int, probPermille int) int {
	if n <= 0 {
		return -1
	}
	if regionSize <= 0 {
		regionSize = 1
	}
	rx := FloorDiv(x, regionSize)
	rz := FloorDiv(z, regionSize)
	h := Hash2(seed, rx, rz)
	if h%1000 >= uint64(ClampPermille(probPermille)) {
		return -1
	}
	return int((h >> 10) % uint64(n))
}

// FieldLocal is the position of (x, z) inside its field region.
func FieldLocal(x, z, regionSize int) (int, int) {
	if regionSize <= 0 {
		return 0, 0
	}
	return Mod(x, regionSize), Mod(z, regionSize)
}

func WithinSpawnClear(x, z, radius int) bool {
	if radius <= 0 {
		return false
	}
	r := int64(radius)
	dx := int64(x)
	dz := int64(z)
	return dx*dx+dz*dz <= r*r
}

func ClampPermille(v int) int {
	if v < 0 {
		return 0
	}
	if v > 1000 {
		return 1000
	}
	return v
}

// Roll reports whether the position hash lands under permille.
func Roll(seed int64, x, y, z int, permille int) bool {
	return Hash3(seed, x, y, z)%1000 < uint64(ClampPermille(permille))
}

// Pick returns a position-stable value in [0, n).
func Pick(seed int64, x, y, z int, n int) int {
	if n <= 0 {
		return 0
	}
	return int(Hash3(seed, x, y, z) % uint64(n))
}
