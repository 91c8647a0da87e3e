package farm

import (
	"kashimo.ai/internal/sim/catalogs"
	"kashimo.ai/internal/sim/chunkmath"
	"kashimo.ai/internal/sim/mathx"
)

// DefaultShellCutoffPermille stops the shell walk of a nearest search once half of the
// partitions have been visited and a candidate is known.
const DefaultShellCutoffPermille = 500

type RegistryConfig struct {
	Crops *catalogs.CropCatalog
	World World
	// Observer is optional.
	Observer Observer
	// ShellCutoffPermille is the share of partitions, in thousandths, after which the
	// shell walk stops once a candidate is known. 0 selects the default.
	ShellCutoffPermille int
}

// Registry is the chunk-partitioned crop index. A partition exists only while it
// holds at least one crop.
type Registry struct {
	crops    *catalogs.CropCatalog
	world    World
	observer Observer
	cutoff   int

	chunks  map[chunkmath.ChunkKey]*CropSet
	planted int
}

func NewRegistry(cfg RegistryConfig) *Registry {
	cutoff := cfg.ShellCutoffPermille
	if cutoff <= 0 {
		cutoff = DefaultShellCutoffPermille
	}
	if cutoff > 1000 {
		cutoff = 1000
	}
	crops := cfg.Crops
	if crops == nil {
		crops = catalogs.DefaultCrops()
	}
	return &Registry{
		crops:    crops,
		world:    cfg.World,
		observer: cfg.Observer,
		cutoff:   cutoff,
		chunks:   map[chunkmath.ChunkKey]*CropSet{},
	}
}

func (r *Registry) Crops() *catalogs.CropCatalog { return r.crops }

// IsEmpty reports whether no crop is tracked anywhere.
func (r *Registry) IsEmpty() bool { return len(r.chunks) == 0 }

// Len is the number of live partitions.
func (r *Registry) Len() int { return len(r.chunks) }

// CropCount is the number of tracked crops.
func (r *Registry) CropCount() int { return r.planted }

// HarvestableCount is the number of distinct harvestable positions. A fruit owned by
// stems in two partitions counts once.
func (r *Registry) HarvestableCount() int {
	n := 0
	for k, set := range r.chunks {
		for pos := range set.harvestable {
			if chunkmath.ChunkOf(pos) == k || r.holder(pos) == k {
				n++
			}
		}
	}
	return n
}

// holder is the first partition, in probe order, that lists pos as harvestable.
func (r *Registry) holder(pos mathx.Vec3) chunkmath.ChunkKey {
	for _, k := range probeKeys(pos) {
		if set, ok := r.chunks[k]; ok && set.CanHarvest(pos) {
			return k
		}
	}
	return chunkmath.ChunkOf(pos)
}

func (r *Registry) Partition(key chunkmath.ChunkKey) (*CropSet, bool) {
	set, ok := r.chunks[key]
	return set, ok
}

// Crop returns the crop anchored at pos.
func (r *Registry) Crop(anchor mathx.Vec3) (*Crop, bool) {
	set, ok := r.chunks[chunkmath.ChunkOf(anchor)]
	if !ok {
		return nil, false
	}
	return set.Crop(anchor)
}

// CanHarvest reports whether pos is currently a harvestable position.
func (r *Registry) CanHarvest(pos mathx.Vec3) bool {
	for _, k := range probeKeys(pos) {
		if set, ok := r.chunks[k]; ok && set.CanHarvest(pos) {
			return true
		}
	}
	return false
}

// Clear forgets every crop, e.g. after a reconnect.
func (r *Registry) Clear() {
	for k, set := range r.chunks {
		for anchor := range set.crops {
			set.Delete(anchor)
		}
		delete(r.chunks, k)
	}
	r.planted = 0
}

// OnBlockUpdate consumes one world change at nb.Pos. old is nil when the previous state
// is unknown, as for blocks discovered by a chunk scan. The world must already reflect
// the new block.
func (r *Registry) OnBlockUpdate(old *BlockView, nb BlockView) {
	var oldDef, newDef catalogs.CropDef
	var oldPlant, newPlant bool
	if old != nil {
		oldDef, oldPlant = r.crops.Plant(old.State.Name)
	}
	newDef, newPlant = r.crops.Plant(nb.State.Name)

	if !oldPlant && !newPlant {
		if old != nil {
			r.onHarvestBlock(*old, nb)
		}
		return
	}

	if oldPlant && (!newPlant || oldDef.ID != newDef.ID) {
		r.remove(oldDef, nb)
	}
	if newPlant && (!oldPlant || oldDef.ID != newDef.ID) {
		r.place(newDef, nb)
		return
	}
	if newPlant {
		r.update(newDef, nb)
	}
}

// onHarvestBlock handles a product block (melon, pumpkin) turning into something else.
func (r *Registry) onHarvestBlock(old, nb BlockView) {
	def, ok := r.crops.Harvest(old.State.Name)
	if !ok || def.Topology != catalogs.Stem {
		return
	}
	if nd, ok := r.crops.Harvest(nb.State.Name); ok && nd.ID == def.ID {
		return
	}
	r.invalidate(nb.Pos)
}

// invalidate drops a harvestable position. Its owners are anchored in the same chunk or
// in neighbors across the faces the position touches, possibly several at once.
func (r *Registry) invalidate(pos mathx.Vec3) {
	for _, k := range probeKeys(pos) {
		set, ok := r.chunks[k]
		if !ok || !set.CanHarvest(pos) {
			continue
		}
		set.Invalidate(pos)
		r.dropIfEmpty(k)
	}
}

func probeKeys(pos mathx.Vec3) []chunkmath.ChunkKey {
	home := chunkmath.ChunkOf(pos)
	local := chunkmath.Local(pos)
	keys := []chunkmath.ChunkKey{home}
	switch local.X {
	case 0:
		keys = append(keys, home.Offset(-1, 0, 0))
	case chunkmath.Size - 1:
		keys = append(keys, home.Offset(1, 0, 0))
	}
	switch local.Z {
	case 0:
		keys = append(keys, home.Offset(0, 0, -1))
	case chunkmath.Size - 1:
		keys = append(keys, home.Offset(0, 0, 1))
	}
	if local.Y == 0 {
		// stalk tops sit one above their anchor
		keys = append(keys, home.Offset(0, -1, 0))
	}
	return keys
}

// Prune deletes the crops anchored in key whose anchor block no longer belongs to their
// species, e.g. after the section was unloaded and changed out of sight. Crops whose
// anchor is not loaded are kept. It returns the number of crops dropped.
func (r *Registry) Prune(key chunkmath.ChunkKey) int {
	set, ok := r.chunks[key]
	if !ok || r.world == nil {
		return 0
	}
	var gone []mathx.Vec3
	for anchor, c := range set.crops {
		st, loaded := r.world.BlockAt(anchor)
		if loaded && r.species(st) != c.Species() {
			gone = append(gone, anchor)
		}
	}
	for _, anchor := range gone {
		set.Delete(anchor)
	}
	r.dropIfEmpty(key)
	return len(gone)
}

func (r *Registry) place(def catalogs.CropDef, nb BlockView) {
	if def.Topology != catalogs.Stalk {
		r.apply(nb.Pos, def, nb)
		return
	}
	anchor, ok := r.stalkAnchor(nb.Pos, def)
	if !ok {
		return
	}
	if anchor != nb.Pos {
		r.apply(anchor, def, nb)
		return
	}
	// new column; the block above may already be grown
	k := chunkmath.ChunkOf(anchor)
	r.partition(k).Add(anchor, def)
	if r.world != nil {
		if above, ok := r.world.BlockAt(anchor.Up()); ok {
			r.partition(k).Update(anchor, def, BlockView{Pos: anchor.Up(), State: above}, r.species(above))
		}
	}
	r.dropIfEmpty(k)
}

func (r *Registry) update(def catalogs.CropDef, nb BlockView) {
	if def.Topology == catalogs.Stalk {
		// a stalk block never changes age in place
		return
	}
	r.apply(nb.Pos, def, nb)
}

func (r *Registry) remove(def catalogs.CropDef, nb BlockView) {
	if def.Topology != catalogs.Stalk {
		r.delete(nb.Pos)
		return
	}
	if _, ok := r.Crop(nb.Pos); ok {
		r.delete(nb.Pos)
		return
	}
	// the top of a column went away; its anchor sits right below
	if r.world == nil {
		return
	}
	below, ok := r.world.BlockAt(nb.Pos.Down())
	if !ok || r.species(below) != def.ID {
		return
	}
	anchor := nb.Pos.Down()
	if _, ok := r.Crop(anchor); !ok {
		return
	}
	r.apply(anchor, def, nb)
}

// stalkAnchor finds the column base a stalk block belongs to. ok is false when the
// block is not part of a column this registry should track.
func (r *Registry) stalkAnchor(pos mathx.Vec3, def catalogs.CropDef) (mathx.Vec3, bool) {
	if r.world == nil {
		return mathx.Vec3{}, false
	}
	below, ok := r.world.BlockAt(pos.Down())
	if !ok {
		return mathx.Vec3{}, false
	}
	if r.species(below) == def.ID {
		base, ok := r.world.BlockAt(pos.Down().Down())
		if !ok {
			return mathx.Vec3{}, false
		}
		if _, plant := r.crops.Plant(base.Name); plant {
			// third block or higher
			return mathx.Vec3{}, false
		}
		return pos.Down(), true
	}
	if !r.crops.IsStalkSoil(below.Name) {
		return mathx.Vec3{}, false
	}
	return pos, true
}

func (r *Registry) apply(anchor mathx.Vec3, def catalogs.CropDef, b BlockView) {
	k := chunkmath.ChunkOf(anchor)
	r.partition(k).Update(anchor, def, b, r.species(b.State))
	r.dropIfEmpty(k)
}

func (r *Registry) delete(anchor mathx.Vec3) {
	k := chunkmath.ChunkOf(anchor)
	set, ok := r.chunks[k]
	if !ok {
		return
	}
	set.Delete(anchor)
	r.dropIfEmpty(k)
}

func (r *Registry) partition(k chunkmath.ChunkKey) *CropSet {
	set, ok := r.chunks[k]
	if !ok {
		set = newCropSet(r.notify)
		r.chunks[k] = set
	}
	return set
}

func (r *Registry) dropIfEmpty(k chunkmath.ChunkKey) {
	if set, ok := r.chunks[k]; ok && set.Empty() {
		delete(r.chunks, k)
	}
}

func (r *Registry) species(st catalogs.BlockState) catalogs.SpeciesID {
	def, ok := r.crops.Plant(st.Name)
	if !ok {
		return 0
	}
	return def.ID
}

func (r *Registry) notify(c Change) {
	switch c.Kind {
	case ChangePlanted:
		r.planted++
	case ChangeRemoved:
		r.planted--
	}
	if r.observer != nil {
		r.observer.CropChanged(c)
	}
}
