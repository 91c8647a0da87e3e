package catalogs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCropsReverseIndices(t *testing.T) {
	c := DefaultCrops()
	wheat, ok := c.Plant("wheat")
	if !ok || wheat.Topology != InPlace || wheat.MaxAge != 7 {
		t.Fatalf("wheat: %+v ok=%v", wheat, ok)
	}
	stem, ok := c.Plant("attached_melon_stem")
	if !ok || stem.Topology != Stem {
		t.Fatalf("attached stem: %+v ok=%v", stem, ok)
	}
	other, _ := c.Plant("melon_stem")
	if other.ID != stem.ID {
		t.Fatalf("both stem blocks must map to one species: %d vs %d", other.ID, stem.ID)
	}
	melon, ok := c.Harvest("melon")
	if !ok || melon.ID != stem.ID {
		t.Fatalf("harvest melon: %+v ok=%v", melon, ok)
	}
	if _, ok := c.Harvest("wheat"); ok {
		t.Fatalf("wheat is not a harvest block")
	}
	if _, ok := c.Plant("melon"); ok {
		t.Fatalf("melon is not a plant block")
	}
	if !c.IsStalkSoil("sand") || c.IsStalkSoil("stone") {
		t.Fatalf("unexpected stalk soil set: %v", c.StalkSoil)
	}
	if c.Digest == "" {
		t.Fatalf("missing digest")
	}
}

func TestCanHarvestAtMatchesTopology(t *testing.T) {
	c := DefaultCrops()
	for _, d := range c.Defs {
		for age := 0; age <= d.MaxAge+1; age++ {
			var want bool
			switch d.Topology {
			case InPlace:
				want = age == d.MaxAge
			case Stem:
				want = age == d.MaxAge+1
			case Stalk:
				want = age == 1
			}
			if got := d.CanHarvestAt(age); got != want {
				t.Fatalf("%s age=%d: CanHarvestAt=%v want %v", d.Name, age, got, want)
			}
		}
	}
}

func TestNewCropCatalogRejectsDuplicates(t *testing.T) {
	_, err := NewCropCatalog([]CropDef{
		{Name: "a", Topology: InPlace, PlantBlocks: []string{"x"}},
		{Name: "b", Topology: InPlace, PlantBlocks: []string{"x"}},
	}, nil)
	if err == nil {
		t.Fatalf("expected duplicate plant block error")
	}
	_, err = NewCropCatalog([]CropDef{
		{Name: "a", Topology: InPlace, PlantBlocks: []string{"x"}, HarvestBlock: "y"},
	}, nil)
	if err == nil {
		t.Fatalf("expected harvest block on non-stem error")
	}
}

func TestDefaultBlocksPalette(t *testing.T) {
	cats := Default()
	if s, _ := cats.Blocks.State(0); s != State(Air) {
		t.Fatalf("palette id 0 = %v, want air", s)
	}
	for _, s := range []BlockState{
		AgedState("wheat", 7),
		AgedState("beetroots", 3),
		FacingState("attached_pumpkin_stem", West),
		AgedState("melon_stem", 0),
		State("sugar_cane"),
		State("melon"),
		State("sand"),
	} {
		if _, ok := cats.Blocks.ID(s); !ok {
			t.Fatalf("palette missing %s", s)
		}
	}
	if _, ok := cats.Blocks.ID(AgedState("beetroots", 4)); ok {
		t.Fatalf("beetroots only grow to age 3")
	}
}

func TestBlockStateJSON(t *testing.T) {
	in := []BlockState{State(Air), AgedState("wheat", 0), FacingState("attached_melon_stem", South)}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out []BlockState
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("state %d: got %v want %v (json %s)", i, out[i], in[i], b)
		}
	}
}

func TestLoadFallsBackToDefaults(t *testing.T) {
	cats, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cats.Crops.Digest != DefaultCrops().Digest {
		t.Fatalf("expected default crops")
	}
	if cats.Blocks.Digest != DefaultBlocks(cats.Crops).Digest {
		t.Fatalf("expected default blocks")
	}
}

func TestLoadCropsFile(t *testing.T) {
	dir := t.TempDir()
	raw := `{
	  "stalk_soil": ["sand"],
	  "crops": [
	    {"name":"wheat","growth":"IN_PLACE","max_age":7,"plant":["wheat"],"products":["wheat"],"seed":"wheat_seeds"},
	    {"name":"melon","growth":"STEM","max_age":7,"plant":["melon_stem","attached_melon_stem"],"harvest":"melon","seed":"melon_seeds"},
	    {"name":"cactus","growth":"STALK","plant":["cactus"],"seed":"cactus"}
	  ]
	}`
	if err := os.WriteFile(filepath.Join(dir, "crops.json"), []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cats, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cactus, ok := cats.Crops.Plant("cactus")
	if !ok || cactus.Topology != Stalk || cactus.ID != 3 {
		t.Fatalf("cactus: %+v ok=%v", cactus, ok)
	}
	if !cats.Crops.IsStalkSoil("sand") || cats.Crops.IsStalkSoil("dirt") {
		t.Fatalf("stalk soil: %v", cats.Crops.StalkSoil)
	}
	if _, ok := cats.Blocks.ID(State("cactus")); !ok {
		t.Fatalf("generated palette misses cactus")
	}
}

func TestLoadCropsRejectsSchemaViolations(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crops.json")
	raw := `{"crops":[{"name":"wheat","growth":"SIDEWAYS","plant":["wheat"],"seed":"x"}]}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadCrops(path); err == nil {
		t.Fatalf("expected schema error")
	}
	if _, err := Load(dir); err == nil {
		t.Fatalf("Load must surface a broken crops.json")
	}
}

func TestLoadBlocksFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.json")
	raw := `[{"name":"wheat","age":1},{"name":"air"},{"name":"attached_melon_stem","facing":"east"}]`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := LoadBlocks(path)
	if err != nil {
		t.Fatalf("LoadBlocks: %v", err)
	}
	if len(c.States) != 3 || c.States[0] != State(Air) {
		t.Fatalf("states: %v", c.States)
	}
	if id, _ := c.ID(FacingState("attached_melon_stem", East)); id != 2 {
		t.Fatalf("attached stem id=%d want 2", id)
	}

	if err := os.WriteFile(path, []byte(`[{"name":"wheat"}]`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadBlocks(path); err == nil {
		t.Fatalf("expected missing air error")
	}
}
