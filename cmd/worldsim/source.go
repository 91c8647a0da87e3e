package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand/v2"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"kashimo.ai/internal/protocol"
	"kashimo.ai/internal/sim/catalogs"
	"kashimo.ai/internal/sim/chunkmath"
	"kashimo.ai/internal/sim/mathx"
	"kashimo.ai/internal/sim/terrain/store"
)

type simConfig struct {
	Seed       int64
	ViewRadius int
	MinY, MaxY int
	Tick       time.Duration
	Encoding   string
	// Changes is the number of block mutations per tick.
	Changes int
}

// simSource serves every client its own copy of a generated farm and keeps it growing.
type simSource struct {
	cfg  simConfig
	cats *catalogs.Catalogs
	log  *log.Logger
	conn atomic.Uint64
}

func newSimSource(cfg simConfig, cats *catalogs.Catalogs, logger *log.Logger) *simSource {
	if cfg.Changes <= 0 {
		cfg.Changes = 4
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 200 * time.Millisecond
	}
	if cfg.Encoding == "" {
		cfg.Encoding = protocol.EncodingZstdU16
	}
	return &simSource{cfg: cfg, cats: cats, log: logger}
}

func (s *simSource) Welcome(hello protocol.HelloMsg) (protocol.WelcomeMsg, []protocol.CatalogMsg) {
	n := s.conn.Add(1)
	data, _ := json.Marshal(s.cats.Blocks.States)
	w := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       fmt.Sprintf("sim-%d-%s", n, hello.AgentName),
		WorldParams: protocol.WorldParams{
			ChunkSize: [3]int{chunkmath.Size, chunkmath.Size, chunkmath.Size},
			MinY:      s.cfg.MinY,
			MaxY:      s.cfg.MaxY,
			Seed:      s.cfg.Seed,
		},
		Catalogs: protocol.CatalogDigests{
			BlockPalette: protocol.DigestRef{Digest: s.cats.Blocks.Digest, Count: len(s.cats.Blocks.States)},
			CropsDigest:  s.cats.Crops.Digest,
		},
	}
	cat := protocol.CatalogMsg{
		Type:            protocol.TypeCatalog,
		ProtocolVersion: protocol.Version,
		Name:            protocol.CatalogBlockPalette,
		Digest:          s.cats.Blocks.Digest,
		Part:            1,
		TotalParts:      1,
		Data:            data,
	}
	return w, []protocol.CatalogMsg{cat}
}

func (s *simSource) Stream(ctx context.Context, hello protocol.HelloMsg, out chan<- []byte) error {
	radius := hello.Capabilities.ViewRadius
	if radius <= 0 || radius > s.cfg.ViewRadius {
		radius = s.cfg.ViewRadius
	}
	sim := newFarmSim(s.cats, s.cfg, radius, rand.New(rand.NewPCG(uint64(s.cfg.Seed), s.conn.Load())))

	send := func(v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		select {
		case out <- b:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := send(protocol.NewSelf(0, sim.self)); err != nil {
		return err
	}
	for _, k := range sim.keys {
		m, err := protocol.NewChunkEncoded(k, sim.world.Sections[k].Blocks, s.cfg.Encoding)
		if err != nil {
			return err
		}
		if err := send(m); err != nil {
			return err
		}
	}
	s.log.Printf("%s: sent %d sections, %d growers", hello.AgentName, len(sim.keys), len(sim.growers))

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		for _, m := range sim.step() {
			if err := send(m); err != nil {
				return err
			}
		}
	}
}

// farmSim mutates one generated farm the way a working farm changes: crops age,
// ripe crops get harvested and replanted, stems grow fruit and lose it.
type farmSim struct {
	cats    *catalogs.Catalogs
	world   *store.ChunkStore
	rng     *rand.Rand
	changes int

	keys    []chunkmath.ChunkKey
	growers []mathx.Vec3
	self    mathx.Vec3f
	tick    uint64
}

func newFarmSim(cats *catalogs.Catalogs, cfg simConfig, radius int, rng *rand.Rand) *farmSim {
	world := store.NewGeneratedStore(cats.Blocks, store.DefaultFarmGen(cfg.Seed, cats.Crops))
	sim := &farmSim{
		cats:    cats,
		world:   world,
		rng:     rng,
		changes: cfg.Changes,
		self:    mathx.Vec3f{X: 0.5, Y: float64(world.Gen.GroundY + 1), Z: 0.5},
	}
	minCY := mathx.FloorDiv(cfg.MinY, chunkmath.Size)
	maxCY := mathx.FloorDiv(cfg.MaxY, chunkmath.Size)
	for cy := minCY; cy <= maxCY; cy++ {
		for cz := -radius; cz <= radius; cz++ {
			for cx := -radius; cx <= radius; cx++ {
				sim.keys = append(sim.keys, chunkmath.ChunkKey{X: cx, Y: cy, Z: cz})
			}
		}
	}
	// nearest first, like a real server streams its view
	slices.SortStableFunc(sim.keys, func(a, b chunkmath.ChunkKey) int {
		da, db := chunkmath.DistanceToChunk(sim.self, a), chunkmath.DistanceToChunk(sim.self, b)
		switch {
		case da < db:
			return -1
		case da > db:
			return 1
		}
		return 0
	})
	for _, k := range sim.keys {
		sec := world.GetOrGenSection(k)
		origin := k.Origin()
		for i, id := range sec.Blocks {
			st, _ := cats.Blocks.State(id)
			def, ok := cats.Crops.Plant(st.Name)
			if !ok || def.Topology == catalogs.Stalk {
				continue
			}
			sim.growers = append(sim.growers, origin.Add(localAt(i)))
		}
	}
	return sim
}

func localAt(i int) mathx.Vec3 {
	n := chunkmath.Size
	return mathx.V(i%n, (i/n)/n, (i/n)%n)
}

func (s *farmSim) step() []any {
	s.tick++
	var msgs []any
	if len(s.growers) == 0 {
		return nil
	}
	for range s.changes {
		pos := s.growers[s.rng.IntN(len(s.growers))]
		msgs = append(msgs, s.grow(pos)...)
	}
	if s.tick%25 == 0 {
		s.self.X += float64(s.rng.IntN(9) - 4)
		s.self.Z += float64(s.rng.IntN(9) - 4)
		msgs = append(msgs, protocol.NewSelf(s.tick, s.self))
	}
	return msgs
}

func (s *farmSim) grow(pos mathx.Vec3) []any {
	st, ok := s.world.BlockAt(pos)
	if !ok {
		return nil
	}
	def, ok := s.cats.Crops.Plant(st.Name)
	if !ok {
		return nil
	}
	switch {
	case def.Topology == catalogs.InPlace && st.Age < def.MaxAge:
		return s.set(pos, catalogs.AgedState(st.Name, st.Age+1))
	case def.Topology == catalogs.InPlace:
		// harvested and replanted in one go
		return s.set(pos, catalogs.AgedState(st.Name, 0))
	case st.Facing != catalogs.FacingNone:
		fruit := pos.Add(st.Facing.Unit())
		out := s.set(fruit, catalogs.State(catalogs.Air))
		return append(out, s.set(pos, catalogs.AgedState(def.PlantBlocks[0], def.MaxAge))...)
	case st.Age < def.MaxAge:
		return s.set(pos, catalogs.AgedState(st.Name, st.Age+1))
	}
	for _, f := range []catalogs.Facing{catalogs.North, catalogs.South, catalogs.West, catalogs.East} {
		fruit := pos.Add(f.Unit())
		if b, ok := s.world.BlockAt(fruit); !ok || b.Name != catalogs.Air {
			continue
		}
		out := s.set(fruit, catalogs.State(def.HarvestBlock))
		return append(out, s.set(pos, catalogs.FacingState(attachedName(def), f))...)
	}
	return nil
}

func (s *farmSim) set(pos mathx.Vec3, st catalogs.BlockState) []any {
	id, ok := s.cats.Blocks.ID(st)
	if !ok {
		return nil
	}
	ch, loaded, err := s.world.SetBlock(pos, id)
	if err != nil || !loaded {
		return nil
	}
	var old *uint16
	if ch.OldKnown {
		if oid, ok := s.cats.Blocks.ID(ch.Old); ok {
			old = &oid
		}
	}
	return []any{protocol.NewBlockUpdate(s.tick, pos, old, id)}
}

func attachedName(def catalogs.CropDef) string {
	for _, b := range def.PlantBlocks {
		if strings.HasPrefix(b, "attached_") {
			return b
		}
	}
	return def.PlantBlocks[0]
}
