package farm

import (
	"kashimo.ai/internal/sim/catalogs"
	"kashimo.ai/internal/sim/chunkmath"
)

// ScanResult summarizes one Scan call.
type ScanResult struct {
	Key chunkmath.ChunkKey
	// Missing is set when the section is not loaded. Nothing is remembered then.
	Missing bool
	// Already is set when the section was scanned before and not forgotten since.
	Already bool
	// Skipped is set when the palette holds no plant block at all.
	Skipped bool
	// Pruned counts crops dropped because their block changed while nobody watched.
	Pruned int
	Fed    int
}

// Scanner feeds the plant blocks of freshly loaded sections into a registry, once per
// section.
type Scanner struct {
	reg *Registry
	src ChunkSource

	// relevant[id] is set for palette ids that name a plant block
	relevant []bool
	scanned  map[chunkmath.ChunkKey]struct{}
}

func NewScanner(reg *Registry, src ChunkSource, blocks *catalogs.BlockCatalog) *Scanner {
	relevant := make([]bool, len(blocks.States))
	for id, st := range blocks.States {
		if _, ok := reg.crops.Plant(st.Name); ok {
			relevant[id] = true
		}
	}
	return &Scanner{
		reg:      reg,
		src:      src,
		relevant: relevant,
		scanned:  map[chunkmath.ChunkKey]struct{}{},
	}
}

func (s *Scanner) Scan(key chunkmath.ChunkKey) ScanResult {
	res := ScanResult{Key: key}
	if _, ok := s.scanned[key]; ok {
		res.Already = true
		return res
	}
	palette, ok := s.src.Palette(key)
	if !ok {
		res.Missing = true
		return res
	}
	s.scanned[key] = struct{}{}
	res.Pruned = s.reg.Prune(key)
	if !s.anyRelevant(palette) {
		res.Skipped = true
		return res
	}

	origin := key.Origin()
	for x := 0; x < chunkmath.Size; x++ {
		for y := 0; y < chunkmath.Size; y++ {
			for z := 0; z < chunkmath.Size; z++ {
				pos := origin.Offset(x, y, z)
				st, ok := s.src.BlockAt(pos)
				if !ok {
					continue
				}
				if _, plant := s.reg.crops.Plant(st.Name); !plant {
					continue
				}
				s.reg.OnBlockUpdate(nil, BlockView{Pos: pos, State: st})
				res.Fed++
			}
		}
	}
	return res
}

func (s *Scanner) anyRelevant(palette []uint16) bool {
	for _, id := range palette {
		if int(id) < len(s.relevant) && s.relevant[id] {
			return true
		}
	}
	return false
}

// Scanned reports whether key was scanned since it was last forgotten.
func (s *Scanner) Scanned(key chunkmath.ChunkKey) bool {
	_, ok := s.scanned[key]
	return ok
}

// Forget allows key to be scanned again, e.g. after the section was unloaded.
func (s *Scanner) Forget(key chunkmath.ChunkKey) {
	delete(s.scanned, key)
}

// Reset forgets every scanned section.
func (s *Scanner) Reset() {
	clear(s.scanned)
}
