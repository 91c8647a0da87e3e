// Package chunkmath maps block positions onto 16x16x16 chunk sections and measures
// distances between points and chunk volumes.
package chunkmath

import (
	"fmt"
	"math"

	"kashimo.ai/internal/sim/mathx"
)

const Size = 16

type ChunkKey struct {
	X, Y, Z int
}

func (k ChunkKey) Offset(dx, dy, dz int) ChunkKey {
	return ChunkKey{X: k.X + dx, Y: k.Y + dy, Z: k.Z + dz}
}

// Origin is the lowest block position inside the chunk.
func (k ChunkKey) Origin() mathx.Vec3 {
	return mathx.Vec3{X: k.X * Size, Y: k.Y * Size, Z: k.Z * Size}
}

func (k ChunkKey) String() string {
	return fmt.Sprintf("[%d, %d, %d]", k.X, k.Y, k.Z)
}

// Bounds is the inclusive box of block positions inside the chunk.
func (k ChunkKey) Bounds() Bounds {
	o := k.Origin()
	return Bounds{Min: o, Max: o.Offset(Size-1, Size-1, Size-1)}
}

func ChunkOf(p mathx.Vec3) ChunkKey {
	return ChunkKey{
		X: mathx.FloorDiv(p.X, Size),
		Y: mathx.FloorDiv(p.Y, Size),
		Z: mathx.FloorDiv(p.Z, Size),
	}
}

func ChunkOfPoint(p mathx.Vec3f) ChunkKey {
	return ChunkOf(p.Floor())
}

// Local returns the position relative to the chunk origin, each axis in [0,15].
func Local(p mathx.Vec3) mathx.Vec3 {
	return mathx.Vec3{
		X: mathx.Mod(p.X, Size),
		Y: mathx.Mod(p.Y, Size),
		Z: mathx.Mod(p.Z, Size),
	}
}

// Index flattens a local position into a section block index.
func Index(local mathx.Vec3) int {
	return local.X + local.Z*Size + local.Y*Size*Size
}

// Bounds is an inclusive axis-aligned box of integer block positions.
type Bounds struct {
	Min, Max mathx.Vec3
}

// Expand grows the box by lo on the negative side and hi on the positive side.
func (b Bounds) Expand(lo, hi mathx.Vec3) Bounds {
	return Bounds{
		Min: b.Min.Offset(-lo.X, -lo.Y, -lo.Z),
		Max: b.Max.Add(hi),
	}
}

func (b Bounds) Contains(p mathx.Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// DistanceTo is the minimum Euclidean distance from p to any point of the box.
func (b Bounds) DistanceTo(p mathx.Vec3f) float64 {
	dx := axisGap(p.X, b.Min.X, b.Max.X)
	dy := axisGap(p.Y, b.Min.Y, b.Max.Y)
	dz := axisGap(p.Z, b.Min.Z, b.Max.Z)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func axisGap(v float64, lo, hi int) float64 {
	switch {
	case v < float64(lo):
		return float64(lo) - v
	case v > float64(hi):
		return v - float64(hi)
	default:
		return 0
	}
}

// DistanceToChunk is the minimum distance from p to a block position inside the chunk.
func DistanceToChunk(p mathx.Vec3f, k ChunkKey) float64 {
	return k.Bounds().DistanceTo(p)
}

// SearchRange returns the inclusive range of chunk keys whose bounds, expanded by lo and
// hi, may hold a position within dist of p.
func SearchRange(p mathx.Vec3f, dist float64, lo, hi mathx.Vec3) (min, max ChunkKey) {
	axis := func(v float64, l, h int) (int, int) {
		a := int(math.Ceil((v - dist - float64(h) - (Size - 1)) / Size))
		b := int(math.Floor((v + dist + float64(l)) / Size))
		return a, b
	}
	min.X, max.X = axis(p.X, lo.X, hi.X)
	min.Y, max.Y = axis(p.Y, lo.Y, hi.Y)
	min.Z, max.Z = axis(p.Z, lo.Z, hi.Z)
	return min, max
}

// Volume is the number of keys in an inclusive range, 0 when the range is empty.
func Volume(min, max ChunkKey) int {
	if max.X < min.X || max.Y < min.Y || max.Z < min.Z {
		return 0
	}
	return (max.X - min.X + 1) * (max.Y - min.Y + 1) * (max.Z - min.Z + 1)
}
