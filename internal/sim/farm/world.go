// Package farm tracks growable crops across a streamed voxel world and answers
// nearest-harvestable queries.
//
// Nothing in this package is safe for concurrent use. Callers deliver block updates,
// scans and searches from a single goroutine.
package farm

import (
	"kashimo.ai/internal/sim/catalogs"
	"kashimo.ai/internal/sim/chunkmath"
	"kashimo.ai/internal/sim/mathx"
)

// BlockView is a block state observed at a position.
type BlockView struct {
	Pos   mathx.Vec3
	State catalogs.BlockState
}

func (b BlockView) String() string {
	return b.State.String() + "@" + b.Pos.String()
}

// World answers point queries against the loaded part of the world. ok is false when
// the position is not loaded.
type World interface {
	BlockAt(pos mathx.Vec3) (catalogs.BlockState, bool)
}

// ChunkSource additionally exposes the block-state palette of a loaded section.
type ChunkSource interface {
	World
	Palette(key chunkmath.ChunkKey) ([]uint16, bool)
}

type ChangeKind uint8

const (
	ChangePlanted ChangeKind = iota + 1
	ChangeHarvestable
	ChangeInvalidated
	ChangeRemoved
)

var changeNames = map[ChangeKind]string{
	ChangePlanted:     "PLANTED",
	ChangeHarvestable: "HARVESTABLE",
	ChangeInvalidated: "INVALIDATED",
	ChangeRemoved:     "REMOVED",
}

func (k ChangeKind) String() string { return changeNames[k] }

// Change describes one transition of the crop index. Pos is the harvestable position for
// HARVESTABLE and INVALIDATED, and the anchor otherwise.
type Change struct {
	Kind    ChangeKind
	Species catalogs.SpeciesID
	Anchor  mathx.Vec3
	Pos     mathx.Vec3
}

// Observer receives index transitions. It is called synchronously and must not call
// back into the registry.
type Observer interface {
	CropChanged(c Change)
}
