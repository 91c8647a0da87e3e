package farm

import (
	"kashimo.ai/internal/sim/catalogs"
	"kashimo.ai/internal/sim/chunkmath"
	"kashimo.ai/internal/sim/mathx"
)

// mapWorld is a sparse world where every position inside a loaded chunk is air unless set.
type mapWorld struct {
	blocks *catalogs.BlockCatalog
	loaded map[chunkmath.ChunkKey]bool
	set    map[mathx.Vec3]catalogs.BlockState
}

func newMapWorld(blocks *catalogs.BlockCatalog) *mapWorld {
	return &mapWorld{
		blocks: blocks,
		loaded: map[chunkmath.ChunkKey]bool{},
		set:    map[mathx.Vec3]catalogs.BlockState{},
	}
}

func (w *mapWorld) put(pos mathx.Vec3, st catalogs.BlockState) {
	w.loaded[chunkmath.ChunkOf(pos)] = true
	w.set[pos] = st
}

func (w *mapWorld) BlockAt(pos mathx.Vec3) (catalogs.BlockState, bool) {
	if !w.loaded[chunkmath.ChunkOf(pos)] {
		return catalogs.BlockState{}, false
	}
	if st, ok := w.set[pos]; ok {
		return st, true
	}
	return catalogs.State(catalogs.Air), true
}

func (w *mapWorld) Palette(key chunkmath.ChunkKey) ([]uint16, bool) {
	if !w.loaded[key] {
		return nil, false
	}
	seen := map[uint16]bool{0: true}
	out := []uint16{0}
	for pos, st := range w.set {
		if chunkmath.ChunkOf(pos) != key {
			continue
		}
		id, ok := w.blocks.ID(st)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, true
}

// harness wires a registry to a map world and applies updates the way a feed would:
// world first, then registry.
type harness struct {
	crops  *catalogs.CropCatalog
	world  *mapWorld
	reg    *Registry
	events *recorder
}

func newHarness() *harness {
	cats := catalogs.Default()
	w := newMapWorld(cats.Blocks)
	rec := &recorder{}
	return &harness{
		crops:  cats.Crops,
		world:  w,
		events: rec,
		reg:    NewRegistry(RegistryConfig{Crops: cats.Crops, World: w, Observer: rec}),
	}
}

func (h *harness) set(pos mathx.Vec3, st catalogs.BlockState) {
	var prev *BlockView
	if old, ok := h.world.BlockAt(pos); ok {
		prev = &BlockView{Pos: pos, State: old}
	}
	h.world.put(pos, st)
	h.reg.OnBlockUpdate(prev, BlockView{Pos: pos, State: st})
}

func (h *harness) def(name string) catalogs.CropDef {
	d, ok := h.crops.Plant(name)
	if !ok {
		panic("unknown plant block " + name)
	}
	return d
}

type recorder struct {
	changes []Change
}

func (r *recorder) CropChanged(c Change) { r.changes = append(r.changes, c) }

func (r *recorder) kinds() []ChangeKind {
	out := make([]ChangeKind, 0, len(r.changes))
	for _, c := range r.changes {
		out = append(out, c.Kind)
	}
	return out
}

func (r *recorder) reset() { r.changes = nil }

func wheat(age int) catalogs.BlockState { return catalogs.AgedState("wheat", age) }

func sand() catalogs.BlockState { return catalogs.State("sand") }

func cane() catalogs.BlockState { return catalogs.State("sugar_cane") }

func air() catalogs.BlockState { return catalogs.State(catalogs.Air) }

func pt(x, y, z float64) mathx.Vec3f { return mathx.Vec3f{X: x, Y: y, Z: z} }
