package mathx

import (
	"fmt"
	"math"
)

// Vec3 is an integer block position.
type Vec3 struct {
	X, Y, Z int
}

func V(x, y, z int) Vec3 { return Vec3{X: x, Y: y, Z: z} }

func (v Vec3) Offset(dx, dy, dz int) Vec3 {
	return Vec3{X: v.X + dx, Y: v.Y + dy, Z: v.Z + dz}
}

func (v Vec3) Add(o Vec3) Vec3 { return v.Offset(o.X, o.Y, o.Z) }

func (v Vec3) Up() Vec3   { return v.Offset(0, 1, 0) }
func (v Vec3) Down() Vec3 { return v.Offset(0, -1, 0) }

func (v Vec3) Float() Vec3f {
	return Vec3f{X: float64(v.X), Y: float64(v.Y), Z: float64(v.Z)}
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%d, %d, %d)", v.X, v.Y, v.Z)
}

// Vec3f is a continuous position, e.g. where the bot is standing.
type Vec3f struct {
	X, Y, Z float64
}

func (p Vec3f) DistSq(v Vec3) float64 {
	dx := float64(v.X) - p.X
	dy := float64(v.Y) - p.Y
	dz := float64(v.Z) - p.Z
	return dx*dx + dy*dy + dz*dz
}

func (p Vec3f) Dist(v Vec3) float64 {
	return math.Sqrt(p.DistSq(v))
}

// Floor returns the block the point is inside of.
func (p Vec3f) Floor() Vec3 {
	return Vec3{X: int(math.Floor(p.X)), Y: int(math.Floor(p.Y)), Z: int(math.Floor(p.Z))}
}

func (p Vec3f) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", p.X, p.Y, p.Z)
}
