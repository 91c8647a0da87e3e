package farm

import (
	"kashimo.ai/internal/sim/catalogs"
	"kashimo.ai/internal/sim/mathx"
)

// Outcome is what a block observation did to a crop.
type Outcome uint8

const (
	// Ignored means the observation did not concern the crop or carried nothing usable.
	Ignored Outcome = iota
	Updated
	// Removed means the anchor block is no longer this species.
	Removed
)

// Crop is one growable plant. Its age is always recomputed from observed block state.
type Crop struct {
	pos    mathx.Vec3
	def    catalogs.CropDef
	age    int
	facing catalogs.Facing
}

func NewCrop(pos mathx.Vec3, def catalogs.CropDef) *Crop {
	return &Crop{pos: pos, def: def}
}

// Pos is the anchor: the plant block itself, the stem block, or the lowest block of a
// stalk column.
func (c *Crop) Pos() mathx.Vec3 { return c.pos }

func (c *Crop) Def() catalogs.CropDef { return c.def }

func (c *Crop) Species() catalogs.SpeciesID { return c.def.ID }

func (c *Crop) Age() int { return c.age }

func (c *Crop) CanHarvest() bool {
	return c.def.CanHarvestAt(c.age)
}

// Target is the block to break once the crop can be harvested.
func (c *Crop) Target() (mathx.Vec3, bool) {
	if !c.CanHarvest() {
		return mathx.Vec3{}, false
	}
	switch c.def.Topology {
	case catalogs.Stem:
		return c.pos.Add(c.facing.Unit()), true
	case catalogs.Stalk:
		return c.pos.Up(), true
	}
	return c.pos, true
}

// Update consumes a block observed at b.Pos. species is the plant species of b.State, or
// zero when it is not a plant block.
func (c *Crop) Update(b BlockView, species catalogs.SpeciesID) Outcome {
	switch c.def.Topology {
	case catalogs.InPlace:
		if b.Pos != c.pos {
			return Ignored
		}
		if species != c.def.ID {
			return Removed
		}
		if !b.State.HasAge() {
			return Ignored
		}
		c.age = c.clampAge(b.State.Age)
		return Updated

	case catalogs.Stem:
		if b.Pos != c.pos {
			return Ignored
		}
		if species != c.def.ID {
			return Removed
		}
		switch {
		case b.State.Facing != catalogs.FacingNone:
			c.age = c.def.MaxAge + 1
			c.facing = b.State.Facing
		case b.State.HasAge():
			c.age = c.clampAge(b.State.Age)
			c.facing = catalogs.FacingNone
		default:
			return Ignored
		}
		return Updated

	case catalogs.Stalk:
		if b.Pos == c.pos {
			if species != c.def.ID {
				return Removed
			}
			return Ignored
		}
		if b.Pos != c.pos.Up() {
			return Ignored
		}
		if species == c.def.ID {
			c.age = 1
		} else {
			c.age = 0
		}
		return Updated
	}
	return Ignored
}

// detach drops a stem's product after the product block was broken.
func (c *Crop) detach() {
	if c.def.Topology != catalogs.Stem || c.age <= c.def.MaxAge {
		return
	}
	c.age = c.def.MaxAge
	c.facing = catalogs.FacingNone
}

func (c *Crop) clampAge(age int) int {
	if age < 0 {
		return 0
	}
	if age > c.def.MaxAge {
		return c.def.MaxAge
	}
	return age
}
