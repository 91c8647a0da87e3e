// Package store mirrors the loaded part of the world as 16x16x16 sections of block
// palette ids.
package store

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"slices"

	"kashimo.ai/internal/sim/catalogs"
	"kashimo.ai/internal/sim/chunkmath"
	"kashimo.ai/internal/sim/mathx"
)

const SectionVolume = chunkmath.Size * chunkmath.Size * chunkmath.Size

var (
	ErrSectionShape = errors.New("section must hold 4096 blocks")
	ErrUnknownState = errors.New("unknown block state id")
)

type Section struct {
	Key    chunkmath.ChunkKey
	Blocks []uint16 // len = 16*16*16, indexed by chunkmath.Index

	dirty   bool
	hash    [32]byte
	palette []uint16
}

func NewSection(key chunkmath.ChunkKey) *Section {
	return &Section{Key: key, Blocks: make([]uint16, SectionVolume), dirty: true}
}

func localOf(x, y, z int) mathx.Vec3 { return mathx.V(x, y, z) }

func (s *Section) Get(local mathx.Vec3) uint16 {
	return s.Blocks[chunkmath.Index(local)]
}

// Set stores b and returns the previous id.
func (s *Section) Set(local mathx.Vec3, b uint16) uint16 {
	i := chunkmath.Index(local)
	old := s.Blocks[i]
	if old == b {
		return old
	}
	s.Blocks[i] = b
	s.dirty = true
	return old
}

func (s *Section) Digest() [32]byte {
	s.refresh()
	return s.hash
}

// Palette lists the distinct ids present in the section, ascending.
func (s *Section) Palette() []uint16 {
	s.refresh()
	return s.palette
}

func (s *Section) refresh() {
	if !s.dirty && s.palette != nil {
		return
	}
	h := sha256.New()
	var tmp [2]byte
	seen := map[uint16]struct{}{}
	for _, v := range s.Blocks {
		binary.LittleEndian.PutUint16(tmp[:], v)
		h.Write(tmp[:])
		seen[v] = struct{}{}
	}
	copy(s.hash[:], h.Sum(nil))
	pal := make([]uint16, 0, len(seen))
	for v := range seen {
		pal = append(pal, v)
	}
	slices.Sort(pal)
	s.palette = pal
	s.dirty = false
}

// BlockChange is one SetBlock applied to a loaded section.
type BlockChange struct {
	Pos      mathx.Vec3
	Old, New catalogs.BlockState
	// OldKnown is false when the previous id was not a catalog state.
	OldKnown bool
}

type ChunkStore struct {
	Blocks   *catalogs.BlockCatalog
	Sections map[chunkmath.ChunkKey]*Section
	// Gen is nil for a mirror of a remote world.
	Gen *FarmGen
}

func NewChunkStore(blocks *catalogs.BlockCatalog) *ChunkStore {
	return &ChunkStore{
		Blocks:   blocks,
		Sections: map[chunkmath.ChunkKey]*Section{},
	}
}
