package chunkmath

import (
	"iter"

	"kashimo.ai/internal/sim/mathx"
)

// ShellSize is the number of chunks at Chebyshev distance exactly r.
func ShellSize(r int) int {
	if r <= 0 {
		return 1
	}
	outer := 2*r + 1
	inner := 2*r - 1
	return outer*outer*outer - inner*inner*inner
}

// Shell lists the chunks whose Chebyshev distance from center is exactly r.
func Shell(center ChunkKey, r int) []ChunkKey {
	if r <= 0 {
		return []ChunkKey{center}
	}
	out := make([]ChunkKey, 0, ShellSize(r))
	for y := -r; y <= r; y++ {
		for x := -r; x <= r; x++ {
			if y == -r || y == r || x == -r || x == r {
				for z := -r; z <= r; z++ {
					out = append(out, center.Offset(x, y, z))
				}
				continue
			}
			out = append(out, center.Offset(x, y, -r), center.Offset(x, y, r))
		}
	}
	return out
}

// Radial yields shells of radius 0, 1, 2, ... around center. It never ends on its own;
// each call starts over from radius 0.
func Radial(center ChunkKey) iter.Seq2[int, []ChunkKey] {
	return func(yield func(int, []ChunkKey) bool) {
		for r := 0; ; r++ {
			if !yield(r, Shell(center, r)) {
				return
			}
		}
	}
}

// Chebyshev is the ring index of b around a.
func Chebyshev(a, b ChunkKey) int {
	return mathx.MaxInt(mathx.AbsInt(a.X-b.X), mathx.MaxInt(mathx.AbsInt(a.Y-b.Y), mathx.AbsInt(a.Z-b.Z)))
}
