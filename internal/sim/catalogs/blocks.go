package catalogs

import (
	"encoding/json"
	"fmt"
	"strings"

	"kashimo.ai/internal/sim/mathx"
)

const (
	Air = "air"

	// NoAge marks a block state without an age property.
	NoAge = -1
)

// Facing is the cardinal facing property of a block state.
type Facing uint8

const (
	FacingNone Facing = iota
	North
	South
	West
	East
)

var facingNames = [...]string{"", "north", "south", "west", "east"}

func (f Facing) String() string {
	if int(f) < len(facingNames) {
		return facingNames[f]
	}
	return fmt.Sprintf("Facing(%d)", uint8(f))
}

func ParseFacing(s string) (Facing, bool) {
	for i, name := range facingNames {
		if i > 0 && name == s {
			return Facing(i), true
		}
	}
	return FacingNone, false
}

// Unit is the horizontal step one block in the facing direction (north is -z).
func (f Facing) Unit() mathx.Vec3 {
	switch f {
	case North:
		return mathx.V(0, 0, -1)
	case South:
		return mathx.V(0, 0, 1)
	case West:
		return mathx.V(-1, 0, 0)
	case East:
		return mathx.V(1, 0, 0)
	}
	return mathx.Vec3{}
}

// BlockState is a block name plus the decoded properties crops care about.
type BlockState struct {
	Name   string
	Age    int
	Facing Facing
}

func State(name string) BlockState { return BlockState{Name: name, Age: NoAge} }

func AgedState(name string, age int) BlockState { return BlockState{Name: name, Age: age} }

func FacingState(name string, f Facing) BlockState {
	return BlockState{Name: name, Age: NoAge, Facing: f}
}

func (s BlockState) HasAge() bool { return s.Age >= 0 }

func (s BlockState) String() string {
	var props []string
	if s.HasAge() {
		props = append(props, fmt.Sprintf("age=%d", s.Age))
	}
	if s.Facing != FacingNone {
		props = append(props, "facing="+s.Facing.String())
	}
	if len(props) == 0 {
		return s.Name
	}
	return s.Name + "[" + strings.Join(props, ",") + "]"
}

type blockStateJSON struct {
	Name   string `json:"name"`
	Age    *int   `json:"age,omitempty"`
	Facing string `json:"facing,omitempty"`
}

func (s BlockState) MarshalJSON() ([]byte, error) {
	out := blockStateJSON{Name: s.Name, Facing: s.Facing.String()}
	if s.HasAge() {
		age := s.Age
		out.Age = &age
	}
	return json.Marshal(out)
}

func (s *BlockState) UnmarshalJSON(b []byte) error {
	var in blockStateJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*s = State(in.Name)
	if in.Age != nil {
		s.Age = *in.Age
	}
	if in.Facing != "" {
		f, ok := ParseFacing(in.Facing)
		if !ok {
			return fmt.Errorf("block %s: bad facing %q", in.Name, in.Facing)
		}
		s.Facing = f
	}
	return nil
}

// BlockCatalog maps compact block-state ids to states. Id 0 is always air.
type BlockCatalog struct {
	States []BlockState
	Index  map[BlockState]uint16
	Digest string
}

func NewBlockCatalog(states []BlockState) (*BlockCatalog, error) {
	if len(states) > 1<<16 {
		return nil, fmt.Errorf("block palette too large: %d", len(states))
	}
	hasAir := false
	ordered := make([]BlockState, 0, len(states)+1)
	ordered = append(ordered, State(Air))
	for _, s := range states {
		if s.Name == "" {
			return nil, fmt.Errorf("block palette: empty name")
		}
		if s == State(Air) {
			hasAir = true
			continue
		}
		ordered = append(ordered, s)
	}
	if !hasAir {
		return nil, fmt.Errorf("block palette: missing %s", Air)
	}

	c := &BlockCatalog{
		States: ordered,
		Index:  make(map[BlockState]uint16, len(ordered)),
	}
	for i, s := range ordered {
		if _, dup := c.Index[s]; dup {
			return nil, fmt.Errorf("block palette: duplicate state %s", s)
		}
		c.Index[s] = uint16(i)
	}
	b, _ := json.Marshal(ordered)
	c.Digest = sha256Hex(b)
	return c, nil
}

func (c *BlockCatalog) State(id uint16) (BlockState, bool) {
	if int(id) >= len(c.States) {
		return BlockState{}, false
	}
	return c.States[id], true
}

func (c *BlockCatalog) ID(s BlockState) (uint16, bool) {
	id, ok := c.Index[s]
	return id, ok
}

// MustID is for fixtures and generators working against a known palette.
func (c *BlockCatalog) MustID(s BlockState) uint16 {
	id, ok := c.Index[s]
	if !ok {
		panic(fmt.Sprintf("block state %s not in palette", s))
	}
	return id
}

// DefaultBlocks builds a palette holding every growth stage of the given crops plus the
// handful of terrain blocks a farm is made of.
func DefaultBlocks(crops *CropCatalog) *BlockCatalog {
	var states []BlockState
	seen := map[BlockState]struct{}{}
	add := func(s BlockState) {
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		states = append(states, s)
	}

	add(State(Air))
	add(State("stone"))
	add(State("water"))
	add(State("farmland"))
	for _, s := range cropFileFrom(crops).StalkSoil {
		add(State(s))
	}
	for _, d := range crops.Defs {
		for _, b := range d.PlantBlocks {
			switch {
			case d.Topology == Stalk:
				add(State(b))
			case d.Topology == Stem && strings.HasPrefix(b, "attached_"):
				for f := North; f <= East; f++ {
					add(FacingState(b, f))
				}
			default:
				for age := 0; age <= d.MaxAge; age++ {
					add(AgedState(b, age))
				}
			}
		}
		if d.HarvestBlock != "" {
			add(State(d.HarvestBlock))
		}
	}
	c, err := NewBlockCatalog(states)
	if err != nil {
		panic(err)
	}
	return c
}

func parseBlocks(raw []byte) (*BlockCatalog, error) {
	if err := validate(blocksSchema, raw); err != nil {
		return nil, err
	}
	var states []BlockState
	if err := json.Unmarshal(raw, &states); err != nil {
		return nil, err
	}
	return NewBlockCatalog(states)
}
