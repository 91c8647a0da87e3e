package store

import (
	"slices"

	"kashimo.ai/internal/sim/catalogs"
	"kashimo.ai/internal/sim/chunkmath"
	"kashimo.ai/internal/sim/mathx"
)

func (s *ChunkStore) LoadedKeys() []chunkmath.ChunkKey {
	keys := make([]chunkmath.ChunkKey, 0, len(s.Sections))
	for k := range s.Sections {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b chunkmath.ChunkKey) int {
		if a.X != b.X {
			return a.X - b.X
		}
		if a.Y != b.Y {
			return a.Y - b.Y
		}
		return a.Z - b.Z
	})
	return keys
}

func (s *ChunkStore) Section(key chunkmath.ChunkKey) (*Section, bool) {
	sec, ok := s.Sections[key]
	return sec, ok
}

func (s *ChunkStore) Loaded(key chunkmath.ChunkKey) bool {
	_, ok := s.Sections[key]
	return ok
}

// Palette returns the ids present in a loaded section.
func (s *ChunkStore) Palette(key chunkmath.ChunkKey) ([]uint16, bool) {
	sec, ok := s.Sections[key]
	if !ok {
		return nil, false
	}
	return sec.Palette(), true
}

// BlockID returns the raw palette id at pos.
func (s *ChunkStore) BlockID(pos mathx.Vec3) (uint16, bool) {
	sec, ok := s.Sections[chunkmath.ChunkOf(pos)]
	if !ok {
		return 0, false
	}
	return sec.Get(chunkmath.Local(pos)), true
}

// BlockAt resolves the block at pos. Positions in unloaded sections, or holding an id
// the catalog does not know, report false.
func (s *ChunkStore) BlockAt(pos mathx.Vec3) (catalogs.BlockState, bool) {
	id, ok := s.BlockID(pos)
	if !ok {
		return catalogs.BlockState{}, false
	}
	return s.Blocks.State(id)
}

// LoadSection installs or replaces a section. blocks is copied.
func (s *ChunkStore) LoadSection(key chunkmath.ChunkKey, blocks []uint16) (*Section, error) {
	if len(blocks) != SectionVolume {
		return nil, ErrSectionShape
	}
	sec := NewSection(key)
	copy(sec.Blocks, blocks)
	s.Sections[key] = sec
	return sec, nil
}

func (s *ChunkStore) Unload(key chunkmath.ChunkKey) bool {
	if _, ok := s.Sections[key]; !ok {
		return false
	}
	delete(s.Sections, key)
	return true
}

// SetBlock writes id at pos. ok is false when the section is not loaded.
func (s *ChunkStore) SetBlock(pos mathx.Vec3, id uint16) (BlockChange, bool, error) {
	st, known := s.Blocks.State(id)
	if !known {
		return BlockChange{}, false, ErrUnknownState
	}
	sec, ok := s.Sections[chunkmath.ChunkOf(pos)]
	if !ok {
		return BlockChange{Pos: pos, New: st}, false, nil
	}
	oldID := sec.Set(chunkmath.Local(pos), id)
	old, oldKnown := s.Blocks.State(oldID)
	return BlockChange{Pos: pos, Old: old, New: st, OldKnown: oldKnown}, true, nil
}
