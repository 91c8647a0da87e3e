package catalogs

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Topology is the growth shape of a species.
type Topology uint8

const (
	// InPlace crops grow by age in a single block (wheat, potatoes).
	InPlace Topology = iota + 1
	// Stem crops mature by attaching to a product block next to them (melon, pumpkin).
	Stem
	// Stalk crops grow upward one block at a time (sugar cane, bamboo).
	Stalk
)

var topologyNames = map[Topology]string{
	InPlace: "IN_PLACE",
	Stem:    "STEM",
	Stalk:   "STALK",
}

func (t Topology) String() string {
	if s, ok := topologyNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Topology(%d)", uint8(t))
}

func ParseTopology(s string) (Topology, bool) {
	for t, name := range topologyNames {
		if name == s {
			return t, true
		}
	}
	return 0, false
}

// SpeciesID identifies a CropDef inside one CropCatalog. Zero means "not a crop".
type SpeciesID uint16

// CropDef is shared by every crop of a species and must not be modified.
type CropDef struct {
	ID           SpeciesID
	Name         string
	MaxAge       int
	Topology     Topology
	PlantBlocks  []string
	HarvestBlock string
	Products     []string
	Seed         string
}

// ReadyAge is the age at which a crop of this species can be harvested.
func (d CropDef) ReadyAge() int {
	switch d.Topology {
	case InPlace:
		return d.MaxAge
	case Stem:
		return d.MaxAge + 1
	case Stalk:
		return 1
	}
	return -1
}

// TopAge is the largest age a crop of this species can hold.
func (d CropDef) TopAge() int {
	switch d.Topology {
	case Stem:
		return d.MaxAge + 1
	case Stalk:
		return 1
	}
	return d.MaxAge
}

func (d CropDef) CanHarvestAt(age int) bool {
	return d.Topology != 0 && age == d.ReadyAge()
}

type CropCatalog struct {
	Defs      []CropDef
	ByPlant   map[string]SpeciesID
	ByHarvest map[string]SpeciesID
	StalkSoil map[string]struct{}
	Digest    string
}

// NewCropCatalog assigns species ids in slice order and builds the reverse indices.
func NewCropCatalog(defs []CropDef, stalkSoil []string) (*CropCatalog, error) {
	c := &CropCatalog{
		Defs:      make([]CropDef, 0, len(defs)),
		ByPlant:   map[string]SpeciesID{},
		ByHarvest: map[string]SpeciesID{},
		StalkSoil: map[string]struct{}{},
	}
	names := map[string]struct{}{}
	for i, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("crop %d: empty name", i)
		}
		if _, dup := names[d.Name]; dup {
			return nil, fmt.Errorf("crop %s: duplicate name", d.Name)
		}
		names[d.Name] = struct{}{}
		if _, ok := topologyNames[d.Topology]; !ok {
			return nil, fmt.Errorf("crop %s: unknown growth %d", d.Name, d.Topology)
		}
		if d.MaxAge < 0 {
			return nil, fmt.Errorf("crop %s: negative max age", d.Name)
		}
		if len(d.PlantBlocks) == 0 {
			return nil, fmt.Errorf("crop %s: no plant blocks", d.Name)
		}
		if d.HarvestBlock != "" && d.Topology != Stem {
			return nil, fmt.Errorf("crop %s: harvest block is only valid for %s", d.Name, Stem)
		}
		if d.Topology == Stem && d.HarvestBlock == "" {
			return nil, fmt.Errorf("crop %s: %s crop without harvest block", d.Name, Stem)
		}

		d.ID = SpeciesID(i + 1)
		for _, b := range d.PlantBlocks {
			if _, dup := c.ByPlant[b]; dup {
				return nil, fmt.Errorf("crop %s: plant block %s already registered", d.Name, b)
			}
			c.ByPlant[b] = d.ID
		}
		if d.HarvestBlock != "" {
			if _, dup := c.ByHarvest[d.HarvestBlock]; dup {
				return nil, fmt.Errorf("crop %s: harvest block %s already registered", d.Name, d.HarvestBlock)
			}
			if _, clash := c.ByPlant[d.HarvestBlock]; clash {
				return nil, fmt.Errorf("crop %s: harvest block %s is also a plant block", d.Name, d.HarvestBlock)
			}
			c.ByHarvest[d.HarvestBlock] = d.ID
		}
		c.Defs = append(c.Defs, d)
	}
	for _, s := range stalkSoil {
		c.StalkSoil[s] = struct{}{}
	}

	b, _ := json.Marshal(cropFileFrom(c))
	c.Digest = sha256Hex(b)
	return c, nil
}

func (c *CropCatalog) Def(id SpeciesID) (CropDef, bool) {
	if id == 0 || int(id) > len(c.Defs) {
		return CropDef{}, false
	}
	return c.Defs[id-1], true
}

// Plant looks up the species a growth-stage block belongs to.
func (c *CropCatalog) Plant(block string) (CropDef, bool) {
	id, ok := c.ByPlant[block]
	if !ok {
		return CropDef{}, false
	}
	return c.Def(id)
}

// Harvest looks up the Stem species whose product block is named block.
func (c *CropCatalog) Harvest(block string) (CropDef, bool) {
	id, ok := c.ByHarvest[block]
	if !ok {
		return CropDef{}, false
	}
	return c.Def(id)
}

func (c *CropCatalog) IsStalkSoil(block string) bool {
	_, ok := c.StalkSoil[block]
	return ok
}

func DefaultCrops() *CropCatalog {
	c, err := NewCropCatalog([]CropDef{
		{Name: "wheat", MaxAge: 7, Topology: InPlace, PlantBlocks: []string{"wheat"}, Products: []string{"wheat", "wheat_seeds"}, Seed: "wheat_seeds"},
		{Name: "potatoes", MaxAge: 7, Topology: InPlace, PlantBlocks: []string{"potatoes"}, Products: []string{"potato", "poisonous_potato"}, Seed: "potato"},
		{Name: "carrots", MaxAge: 7, Topology: InPlace, PlantBlocks: []string{"carrots"}, Products: []string{"carrot"}, Seed: "carrot"},
		{Name: "beetroots", MaxAge: 3, Topology: InPlace, PlantBlocks: []string{"beetroots"}, Products: []string{"beetroot", "beetroot_seeds"}, Seed: "beetroot_seeds"},
		{Name: "melon", MaxAge: 7, Topology: Stem, PlantBlocks: []string{"melon_stem", "attached_melon_stem"}, HarvestBlock: "melon", Products: []string{"melon"}, Seed: "melon_seeds"},
		{Name: "pumpkin", MaxAge: 7, Topology: Stem, PlantBlocks: []string{"pumpkin_stem", "attached_pumpkin_stem"}, HarvestBlock: "pumpkin", Products: []string{"pumpkin"}, Seed: "pumpkin_seeds"},
		{Name: "sugar_cane", Topology: Stalk, PlantBlocks: []string{"sugar_cane"}, Products: []string{"sugar_cane"}, Seed: "sugar_cane"},
		{Name: "bamboo", Topology: Stalk, PlantBlocks: []string{"bamboo", "bamboo_sapling"}, Products: []string{"bamboo"}, Seed: "bamboo"},
	}, []string{"grass_block", "sand", "dirt"})
	if err != nil {
		panic(err)
	}
	return c
}

// crops.json layout.
type cropFile struct {
	StalkSoil []string       `json:"stalk_soil"`
	Crops     []cropFileItem `json:"crops"`
}

type cropFileItem struct {
	Name     string   `json:"name"`
	Growth   string   `json:"growth"`
	MaxAge   int      `json:"max_age"`
	Plant    []string `json:"plant"`
	Harvest  string   `json:"harvest,omitempty"`
	Products []string `json:"products"`
	Seed     string   `json:"seed"`
}

func cropFileFrom(c *CropCatalog) cropFile {
	f := cropFile{Crops: make([]cropFileItem, 0, len(c.Defs))}
	for s := range c.StalkSoil {
		f.StalkSoil = append(f.StalkSoil, s)
	}
	sort.Strings(f.StalkSoil)
	for _, d := range c.Defs {
		f.Crops = append(f.Crops, cropFileItem{
			Name:     d.Name,
			Growth:   d.Topology.String(),
			MaxAge:   d.MaxAge,
			Plant:    d.PlantBlocks,
			Harvest:  d.HarvestBlock,
			Products: d.Products,
			Seed:     d.Seed,
		})
	}
	return f
}

func parseCrops(raw []byte) (*CropCatalog, error) {
	if err := validate(cropsSchema, raw); err != nil {
		return nil, err
	}
	var f cropFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	defs := make([]CropDef, 0, len(f.Crops))
	for _, it := range f.Crops {
		topo, ok := ParseTopology(it.Growth)
		if !ok {
			return nil, fmt.Errorf("crop %s: unknown growth %q", it.Name, it.Growth)
		}
		defs = append(defs, CropDef{
			Name:         it.Name,
			MaxAge:       it.MaxAge,
			Topology:     topo,
			PlantBlocks:  it.Plant,
			HarvestBlock: it.Harvest,
			Products:     it.Products,
			Seed:         it.Seed,
		})
	}
	return NewCropCatalog(defs, f.StalkSoil)
}
