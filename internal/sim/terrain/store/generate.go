package store

import (
	"strings"

	"kashimo.ai/internal/sim/catalogs"
	"kashimo.ai/internal/sim/chunkmath"
	genpkg "kashimo.ai/internal/sim/terrain/gen"
)

// FarmGen lays out a flat farm: stone and dirt below GroundY, a soil layer at GroundY
// and crop fields one block above it.
type FarmGen struct {
	Seed    int64
	Crops   *catalogs.CropCatalog
	GroundY int

	FieldSize         int
	FieldProbPermille int
	RipePermille      int
	AttachedPermille  int
	SpawnClearRadius  int
}

func DefaultFarmGen(seed int64, crops *catalogs.CropCatalog) FarmGen {
	return FarmGen{
		Seed:              seed,
		Crops:             crops,
		GroundY:           0,
		FieldSize:         24,
		FieldProbPermille: 700,
		RipePermille:      250,
		AttachedPermille:  400,
		SpawnClearRadius:  4,
	}
}

// NewGeneratedStore returns a store that fills sections from gen on first access.
func NewGeneratedStore(blocks *catalogs.BlockCatalog, gen FarmGen) *ChunkStore {
	s := NewChunkStore(blocks)
	s.Gen = &gen
	return s
}

func (s *ChunkStore) GetOrGenSection(key chunkmath.ChunkKey) *Section {
	if sec, ok := s.Sections[key]; ok {
		return sec
	}
	sec := NewSection(key)
	if s.Gen != nil {
		s.GenerateSection(sec)
	}
	_ = sec.Digest()
	s.Sections[key] = sec
	return sec
}

func (s *ChunkStore) GenerateSection(sec *Section) {
	origin := sec.Key.Origin()
	for y := 0; y < chunkmath.Size; y++ {
		for z := 0; z < chunkmath.Size; z++ {
			for x := 0; x < chunkmath.Size; x++ {
				st := s.Gen.BlockAt(origin.X+x, origin.Y+y, origin.Z+z)
				id, ok := s.Blocks.ID(st)
				if !ok {
					id = 0
				}
				sec.Blocks[chunkmath.Index(localOf(x, y, z))] = id
			}
		}
	}
	sec.dirty = true
}

// BlockAt is the generated block at a world position.
func (g *FarmGen) BlockAt(x, y, z int) catalogs.BlockState {
	switch {
	case y < g.GroundY-3:
		return catalogs.State("stone")
	case y < g.GroundY:
		return catalogs.State("dirt")
	case y == g.GroundY:
		return g.ground(x, z)
	case y > g.GroundY:
		return g.above(x, y, z)
	}
	return catalogs.State(catalogs.Air)
}

func (g *FarmGen) field(x, z int) (catalogs.CropDef, bool) {
	if g.Crops == nil || genpkg.WithinSpawnClear(x, z, g.SpawnClearRadius) {
		return catalogs.CropDef{}, false
	}
	i := genpkg.FieldAt(g.Seed, x, z, g.FieldSize, len(g.Crops.Defs), g.FieldProbPermille)
	if i < 0 {
		return catalogs.CropDef{}, false
	}
	// one block of grass around every field
	lx, lz := genpkg.FieldLocal(x, z, g.FieldSize)
	if lx == 0 || lz == 0 || lx == g.FieldSize-1 || lz == g.FieldSize-1 {
		return catalogs.CropDef{}, false
	}
	return g.Crops.Defs[i], true
}

func (g *FarmGen) ground(x, z int) catalogs.BlockState {
	def, ok := g.field(x, z)
	if !ok {
		return catalogs.State("grass_block")
	}
	lx, lz := genpkg.FieldLocal(x, z, g.FieldSize)
	switch def.Topology {
	case catalogs.Stem:
		if stemRow(lz) {
			return catalogs.State("farmland")
		}
		return catalogs.State("grass_block")
	case catalogs.Stalk:
		if lx%4 == 0 {
			return catalogs.State("water")
		}
		if g.Crops.IsStalkSoil("sand") && def.Name == "sugar_cane" {
			return catalogs.State("sand")
		}
		return catalogs.State("grass_block")
	}
	if lz%9 == 4 {
		return catalogs.State("water")
	}
	return catalogs.State("farmland")
}

func (g *FarmGen) above(x, y, z int) catalogs.BlockState {
	air := catalogs.State(catalogs.Air)
	def, ok := g.field(x, z)
	if !ok {
		return air
	}
	lx, lz := genpkg.FieldLocal(x, z, g.FieldSize)
	h := y - g.GroundY
	switch def.Topology {
	case catalogs.InPlace:
		if h != 1 || lz%9 == 4 {
			return air
		}
		return catalogs.AgedState(def.PlantBlocks[0], g.age(def, x, z))

	case catalogs.Stem:
		if h != 1 {
			return air
		}
		if stemRow(lz) {
			if f, ok := g.stemFacing(x, z, lz); ok {
				return catalogs.FacingState(attachedBlock(def), f)
			}
			return catalogs.AgedState(def.PlantBlocks[0], g.age(def, x, z))
		}
		// fruit rows sit between stem rows
		if f, ok := g.stemFacing(x, z+1, lz+1); ok && f == catalogs.North {
			return catalogs.State(def.HarvestBlock)
		}
		if f, ok := g.stemFacing(x, z-1, lz-1); ok && f == catalogs.South {
			return catalogs.State(def.HarvestBlock)
		}
		return air

	case catalogs.Stalk:
		if lx%4 == 0 {
			return air
		}
		height := 1 + genpkg.Pick(g.Seed+7, x, 0, z, 3)
		if h <= height {
			return catalogs.State(def.PlantBlocks[0])
		}
	}
	return air
}

func stemRow(lz int) bool { return lz%3 == 1 }

func (g *FarmGen) age(def catalogs.CropDef, x, z int) int {
	if genpkg.Roll(g.Seed+1, x, 0, z, g.RipePermille) {
		return def.MaxAge
	}
	return genpkg.Pick(g.Seed+2, x, 0, z, def.MaxAge)
}

// stemFacing is where the stem at (x, z) carries its fruit, if anywhere. lz is the
// stem's row inside its field; fruit never lands on the field border.
func (g *FarmGen) stemFacing(x, z, lz int) (catalogs.Facing, bool) {
	if !stemRow(lz) || lz < 1 || lz > g.FieldSize-2 {
		return catalogs.FacingNone, false
	}
	f, ok := g.attached(x, z)
	if !ok {
		return catalogs.FacingNone, false
	}
	if t := lz + f.Unit().Z; t < 1 || t > g.FieldSize-2 {
		return catalogs.FacingNone, false
	}
	return f, true
}

func (g *FarmGen) attached(x, z int) (catalogs.Facing, bool) {
	if !genpkg.Roll(g.Seed+3, x, 0, z, g.AttachedPermille) {
		return catalogs.FacingNone, false
	}
	if genpkg.Pick(g.Seed+4, x, 0, z, 2) == 0 {
		return catalogs.North, true
	}
	return catalogs.South, true
}

func attachedBlock(def catalogs.CropDef) string {
	for _, b := range def.PlantBlocks {
		if strings.HasPrefix(b, "attached_") {
			return b
		}
	}
	return def.PlantBlocks[0]
}
