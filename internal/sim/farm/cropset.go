package farm

import (
	"cmp"
	"slices"
	"sort"

	"kashimo.ai/internal/sim/catalogs"
	"kashimo.ai/internal/sim/mathx"
)

// CropSet holds the crops anchored in one chunk and the positions among them that can
// be harvested right now.
type CropSet struct {
	crops map[mathx.Vec3]*Crop
	// harvest target -> anchors of the crops that own it. Two stems may share one
	// fruit, so a target stays until its last owner lets go.
	harvestable map[mathx.Vec3][]mathx.Vec3

	// Harvestable targets ordered by distance to ref once ref is set.
	order  []mathx.Vec3
	ref    mathx.Vec3f
	hasRef bool

	notify func(Change)
}

func NewCropSet() *CropSet {
	return newCropSet(nil)
}

func newCropSet(notify func(Change)) *CropSet {
	return &CropSet{
		crops:       map[mathx.Vec3]*Crop{},
		harvestable: map[mathx.Vec3][]mathx.Vec3{},
		notify:      notify,
	}
}

func (s *CropSet) Len() int { return len(s.crops) }

func (s *CropSet) Empty() bool { return len(s.crops) == 0 }

func (s *CropSet) HarvestableCount() int { return len(s.harvestable) }

func (s *CropSet) Has(anchor mathx.Vec3) bool {
	_, ok := s.crops[anchor]
	return ok
}

func (s *CropSet) Crop(anchor mathx.Vec3) (*Crop, bool) {
	c, ok := s.crops[anchor]
	return c, ok
}

// CanHarvest reports whether pos is a harvestable position of some crop in the set.
func (s *CropSet) CanHarvest(pos mathx.Vec3) bool {
	_, ok := s.harvestable[pos]
	return ok
}

// Add registers a new age-0 crop at anchor. An existing crop is returned unchanged.
func (s *CropSet) Add(anchor mathx.Vec3, def catalogs.CropDef) *Crop {
	if c, ok := s.crops[anchor]; ok {
		return c
	}
	c := NewCrop(anchor, def)
	s.crops[anchor] = c
	s.emit(ChangePlanted, c, anchor)
	return c
}

// Update routes an observed block to the crop at anchor, creating the crop first when
// it is missing.
func (s *CropSet) Update(anchor mathx.Vec3, def catalogs.CropDef, b BlockView, species catalogs.SpeciesID) Outcome {
	c := s.Add(anchor, def)
	prev, had := c.Target()
	out := c.Update(b, species)
	switch out {
	case Removed:
		s.Delete(anchor)
	case Updated:
		s.syncTarget(c, prev, had)
	}
	return out
}

// Delete drops the crop at anchor together with its harvestable position.
func (s *CropSet) Delete(anchor mathx.Vec3) bool {
	c, ok := s.crops[anchor]
	if !ok {
		return false
	}
	if t, ok := c.Target(); ok {
		s.release(t, anchor)
		s.emit(ChangeInvalidated, c, t)
	}
	delete(s.crops, anchor)
	s.emit(ChangeRemoved, c, anchor)
	return true
}

// Invalidate forgets a harvestable position whose block went away while the owning
// stems stay, e.g. a broken melon next to its stem. Every stem pointing at pos is
// detached; other owners keep the position.
func (s *CropSet) Invalidate(pos mathx.Vec3) bool {
	owners, ok := s.harvestable[pos]
	if !ok {
		return false
	}
	dropped := false
	for _, anchor := range slices.Clone(owners) {
		c := s.crops[anchor]
		if c.def.Topology != catalogs.Stem {
			continue
		}
		c.detach()
		s.release(pos, anchor)
		s.emit(ChangeInvalidated, c, pos)
		dropped = true
	}
	return dropped
}

// Nearest returns the harvestable position closest to ref.
func (s *CropSet) Nearest(ref mathx.Vec3f) (mathx.Vec3, bool) {
	if len(s.order) == 0 {
		return mathx.Vec3{}, false
	}
	s.sortFor(ref)
	return s.order[0], true
}

// NearestAll returns every harvestable position, closest to ref first.
func (s *CropSet) NearestAll(ref mathx.Vec3f) []mathx.Vec3 {
	s.sortFor(ref)
	return slices.Clone(s.order)
}

func (s *CropSet) syncTarget(c *Crop, prev mathx.Vec3, had bool) {
	next, has := c.Target()
	if had && (!has || next != prev) {
		s.release(prev, c.pos)
		s.emit(ChangeInvalidated, c, prev)
	}
	if has && (!had || next != prev) {
		s.claim(next, c.pos)
		s.emit(ChangeHarvestable, c, next)
	}
}

// claim records anchor as an owner of pos. pos enters the order on its first owner.
func (s *CropSet) claim(pos, anchor mathx.Vec3) {
	owners, ok := s.harvestable[pos]
	if slices.Contains(owners, anchor) {
		return
	}
	s.harvestable[pos] = append(owners, anchor)
	if !ok {
		s.insert(pos)
	}
}

// release removes anchor from the owners of pos. pos leaves the order with its last owner.
func (s *CropSet) release(pos, anchor mathx.Vec3) {
	owners := s.harvestable[pos]
	i := slices.Index(owners, anchor)
	if i < 0 {
		return
	}
	if owners = slices.Delete(owners, i, i+1); len(owners) > 0 {
		s.harvestable[pos] = owners
		return
	}
	delete(s.harvestable, pos)
	if i := slices.Index(s.order, pos); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
}

func (s *CropSet) insert(pos mathx.Vec3) {
	if !s.hasRef {
		s.order = append(s.order, pos)
		return
	}
	i := sort.Search(len(s.order), func(i int) bool {
		return s.compare(s.order[i], pos) >= 0
	})
	s.order = slices.Insert(s.order, i, pos)
}

func (s *CropSet) sortFor(ref mathx.Vec3f) {
	if s.hasRef && s.ref == ref {
		return
	}
	s.ref, s.hasRef = ref, true
	slices.SortFunc(s.order, s.compare)
}

// compare orders by distance to ref, then by coordinates so ties are stable.
func (s *CropSet) compare(a, b mathx.Vec3) int {
	if c := cmp.Compare(s.ref.DistSq(a), s.ref.DistSq(b)); c != 0 {
		return c
	}
	return comparePos(a, b)
}

func comparePos(a, b mathx.Vec3) int {
	if c := cmp.Compare(a.X, b.X); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Y, b.Y); c != 0 {
		return c
	}
	return cmp.Compare(a.Z, b.Z)
}

func (s *CropSet) emit(kind ChangeKind, c *Crop, pos mathx.Vec3) {
	if s.notify == nil {
		return
	}
	s.notify(Change{Kind: kind, Species: c.def.ID, Anchor: c.pos, Pos: pos})
}
