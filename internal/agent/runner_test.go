package agent

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	feedlog "kashimo.ai/internal/persistence/log"
	"kashimo.ai/internal/protocol"
	"kashimo.ai/internal/sim/catalogs"
	"kashimo.ai/internal/sim/chunkmath"
	"kashimo.ai/internal/sim/farm"
	"kashimo.ai/internal/sim/mathx"
	"kashimo.ai/internal/sim/terrain/store"
	"kashimo.ai/internal/sim/tuning"
	"kashimo.ai/internal/transport/ws"
)

var spawn = mathx.Vec3f{X: 0.5, Y: 1, Z: 0.5}

func farmKeys() []chunkmath.ChunkKey {
	var keys []chunkmath.ChunkKey
	for y := -1; y <= 1; y++ {
		for z := -2; z <= 1; z++ {
			for x := -2; x <= 1; x++ {
				keys = append(keys, chunkmath.ChunkKey{X: x, Y: y, Z: z})
			}
		}
	}
	return keys
}

// source is a generated farm plus the messages that stream it.
type source struct {
	cats  *catalogs.Catalogs
	world *store.ChunkStore
	keys  []chunkmath.ChunkKey
}

func newSource(t *testing.T, seed int64) *source {
	t.Helper()
	cats := catalogs.Default()
	return &source{
		cats:  cats,
		world: store.NewGeneratedStore(cats.Blocks, store.DefaultFarmGen(seed, cats.Crops)),
		keys:  farmKeys(),
	}
}

func (s *source) session() ws.Session {
	return ws.Session{
		Welcome: protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SessionID:       "test",
			Catalogs: protocol.CatalogDigests{
				BlockPalette: protocol.DigestRef{Digest: s.cats.Blocks.Digest, Count: len(s.cats.Blocks.States)},
			},
		},
		Blocks: s.cats.Blocks,
	}
}

func (s *source) chunk(t *testing.T, key chunkmath.ChunkKey) protocol.ChunkMsg {
	t.Helper()
	m, err := protocol.NewChunk(key, s.world.GetOrGenSection(key).Blocks)
	require.NoError(t, err)
	return m
}

// reference indexes the generated world directly, without the feed in between.
func (s *source) reference() *farm.Registry {
	reg := farm.NewRegistry(farm.RegistryConfig{Crops: s.cats.Crops, World: s.world})
	sc := farm.NewScanner(reg, s.world, s.cats.Blocks)
	for _, k := range s.keys {
		s.world.GetOrGenSection(k)
	}
	for _, k := range s.keys {
		sc.Scan(k)
	}
	return reg
}

func newRunner(s *source, cfg Config) *Runner {
	cfg.Catalogs = s.cats
	if cfg.Tuning == (tuning.Tuning{}) {
		cfg.Tuning = tuning.Defaults()
	}
	return New(cfg)
}

func stream(t *testing.T, r *Runner, s *source, keys []chunkmath.ChunkKey) {
	t.Helper()
	r.Apply(s.session())
	r.Apply(protocol.NewSelf(1, spawn))
	for _, k := range keys {
		r.Apply(s.chunk(t, k))
	}
}

func TestRunnerMirrorsGeneratedFarm(t *testing.T) {
	s := newSource(t, 11)
	want := s.reference()
	require.Positive(t, want.HarvestableCount(), "seed should grow something ripe")

	var decisions []Decision
	r := newRunner(s, Config{OnDecision: func(d Decision) { decisions = append(decisions, d) }})
	stream(t, r, s, s.keys)
	require.Equal(t, len(s.keys), r.Pending())

	for r.Pending() > 0 {
		r.Tick()
	}
	require.Equal(t, want.CropCount(), r.Registry().CropCount())
	require.Equal(t, want.HarvestableCount(), r.Registry().HarvestableCount())

	d := r.Last()
	require.True(t, d.Found)
	wantTarget, _ := want.Nearest(spawn)
	require.Equal(t, wantTarget, d.Target)
	require.Equal(t, want.NearestN(spawn, 3), d.Preview)

	// the budget caps each tick and the nearest sections go first
	budget := tuning.Defaults().ScanBudgetPerTick
	require.Equal(t, budget, decisions[0].Scanned)
	require.Equal(t, len(s.keys)-budget, decisions[0].Pending)
}

func TestRunnerScanOrderDoesNotMatter(t *testing.T) {
	s := newSource(t, 23)
	a := newRunner(s, Config{})
	stream(t, a, s, s.keys)
	a.Flush()

	rev := slices.Clone(s.keys)
	slices.Reverse(rev)
	b := newRunner(s, Config{Tuning: tuning.Tuning{ScanBudgetPerTick: 1, DecisionTickMs: 10}})
	stream(t, b, s, rev)
	b.Flush()

	require.Equal(t, a.Registry().CropCount(), b.Registry().CropCount())
	require.Equal(t, a.Registry().HarvestableCount(), b.Registry().HarvestableCount())
	require.Equal(t, a.Registry().NearestN(spawn, 10), b.Registry().NearestN(spawn, 10))
}

func TestRunnerBlockUpdateHarvests(t *testing.T) {
	s := newSource(t, 11)
	r := newRunner(s, Config{})
	stream(t, r, s, s.keys)
	r.Flush()

	d := r.Tick()
	require.True(t, d.Found)
	before := r.Registry().HarvestableCount()

	oldID, ok := r.Store().BlockID(d.Target)
	require.True(t, ok)
	r.Apply(protocol.NewBlockUpdate(2, d.Target, &oldID, 0))

	require.False(t, r.Registry().CanHarvest(d.Target))
	require.Less(t, r.Registry().HarvestableCount(), before)
	next := r.Tick()
	require.NotEqual(t, d.Target, next.Target)
}

func TestRunnerChunkReloadFeedsDifferences(t *testing.T) {
	s := newSource(t, 11)
	r := newRunner(s, Config{})
	stream(t, r, s, s.keys)
	r.Flush()

	target := r.Tick().Target
	key := chunkmath.ChunkOf(target)
	sec, ok := r.Store().Section(key)
	require.True(t, ok)
	blocks := slices.Clone(sec.Blocks)
	blocks[chunkmath.Index(chunkmath.Local(target))] = 0

	m, err := protocol.NewChunk(key, blocks)
	require.NoError(t, err)
	r.Apply(m)

	require.Zero(t, r.Pending(), "a scanned section is diffed, not rescanned")
	require.False(t, r.Registry().CanHarvest(target))
}

func TestRunnerUnloadKeepsCrops(t *testing.T) {
	s := newSource(t, 11)
	r := newRunner(s, Config{})
	stream(t, r, s, s.keys)
	r.Flush()
	crops := r.Registry().CropCount()

	key := s.keys[0]
	r.Apply(protocol.NewUnload(key))
	require.False(t, r.Store().Loaded(key))
	require.Equal(t, crops, r.Registry().CropCount())

	// a reload after unload is scanned again and finds the same crops
	r.Apply(s.chunk(t, key))
	require.Equal(t, 1, r.Pending())
	r.Flush()
	require.Equal(t, crops, r.Registry().CropCount())
}

func TestRunnerReloadPrunesCropsGoneWhileUnloaded(t *testing.T) {
	s := newSource(t, 11)
	idx := &recordingIndex{}
	r := newRunner(s, Config{Index: idx})
	stream(t, r, s, s.keys)
	r.Flush()

	target := ripeInPlace(t, r)
	key := chunkmath.ChunkOf(target)
	crops := r.Registry().CropCount()
	sec, ok := r.Store().Section(key)
	require.True(t, ok)
	blocks := slices.Clone(sec.Blocks)

	r.Apply(protocol.NewUnload(key))
	require.True(t, r.Registry().CanHarvest(target), "crops outlive an unload")

	// harvested by someone else while out of view
	blocks[chunkmath.Index(chunkmath.Local(target))] = 0
	m, err := protocol.NewChunk(key, blocks)
	require.NoError(t, err)
	r.Apply(m)
	require.Equal(t, 1, r.Pending())
	r.Flush()

	require.False(t, r.Registry().CanHarvest(target))
	require.Equal(t, crops-1, r.Registry().CropCount())
	last := idx.scans[len(idx.scans)-1]
	require.Equal(t, key, last.Key)
	require.Equal(t, 1, last.Pruned)
}

func TestRunnerUnloadDropsPendingSection(t *testing.T) {
	s := newSource(t, 11)
	r := newRunner(s, Config{})
	stream(t, r, s, s.keys[:2])
	r.Apply(protocol.NewUnload(s.keys[0]))
	require.Equal(t, 1, r.Pending())
}

func TestRunnerNewSessionStartsOver(t *testing.T) {
	s := newSource(t, 11)
	r := newRunner(s, Config{})
	stream(t, r, s, s.keys)
	r.Flush()
	require.False(t, r.Registry().IsEmpty())

	r.Apply(s.session())
	require.True(t, r.Registry().IsEmpty())
	require.Empty(t, r.Store().LoadedKeys())
	require.False(t, r.Last().Found)
}

func TestRunnerWithoutSelfDoesNotDecide(t *testing.T) {
	s := newSource(t, 11)
	r := newRunner(s, Config{})
	r.Apply(s.session())
	for _, k := range s.keys {
		r.Apply(s.chunk(t, k))
	}
	d := r.Tick()
	require.False(t, d.HasRef)
	require.False(t, d.Found)
	require.Positive(t, d.Scanned)
}

type recordingIndex struct {
	changes   []farm.Change
	scans     []farm.ScanResult
	decisions int
}

func (x *recordingIndex) CropChanged(c farm.Change)                              { x.changes = append(x.changes, c) }
func (x *recordingIndex) RecordScan(res farm.ScanResult)                         { x.scans = append(x.scans, res) }
func (x *recordingIndex) RecordDecision(mathx.Vec3f, mathx.Vec3, bool, int, int) { x.decisions++ }

func TestRunnerFeedsIndex(t *testing.T) {
	s := newSource(t, 11)
	idx := &recordingIndex{}
	r := newRunner(s, Config{Index: idx})
	stream(t, r, s, s.keys)
	r.Flush()
	r.Tick()

	require.Len(t, idx.scans, len(s.keys))
	planted := 0
	for _, c := range idx.changes {
		if c.Kind == farm.ChangePlanted {
			planted++
		}
	}
	require.Equal(t, r.Registry().CropCount(), planted)
	require.Equal(t, 1, idx.decisions)
}

// ripeInPlace is the nearest harvestable crop that ripens where it stands. Removing it
// leaves a world that a later scan sees the same way the live registry does.
func ripeInPlace(t *testing.T, r *Runner) mathx.Vec3 {
	t.Helper()
	for pos := range r.Registry().NearestSeq(spawn) {
		st, ok := r.Store().BlockAt(pos)
		if !ok {
			continue
		}
		if def, ok := r.cfg.Catalogs.Crops.Plant(st.Name); ok && def.Topology == catalogs.InPlace {
			return pos
		}
	}
	t.Fatalf("no ripe in-place crop")
	return mathx.Vec3{}
}

func TestReplayRebuildsRegistry(t *testing.T) {
	s := newSource(t, 31)
	dir := t.TempDir()
	fl := feedlog.NewFeedLogger(dir)
	live := newRunner(s, Config{FeedLog: fl})
	stream(t, live, s, s.keys)
	live.Flush()
	target := ripeInPlace(t, live)
	oldID, _ := live.Store().BlockID(target)
	live.Apply(protocol.NewBlockUpdate(3, target, &oldID, 0))
	require.NoError(t, fl.Close())

	replayed := newRunner(s, Config{})
	p := NewReplayer(replayed)
	require.NoError(t, p.Dir(dir))

	require.Equal(t, 1, p.Sessions)
	require.Equal(t, live.Registry().CropCount(), replayed.Registry().CropCount())
	require.Equal(t, live.Registry().HarvestableCount(), replayed.Registry().HarvestableCount())
	require.False(t, replayed.Registry().CanHarvest(target))
	got, _ := replayed.Registry().Nearest(spawn)
	want, _ := live.Registry().Nearest(spawn)
	require.Equal(t, want, got)
}

func TestReplayRejectsMessagesBeforeSession(t *testing.T) {
	s := newSource(t, 11)
	p := NewReplayer(newRunner(s, Config{}))
	raw := []byte(`{"type":"SELF","protocol_version":"1.0","tick":1,"pos":[0,0,0]}`)
	err := p.Entry(feedlog.FeedEntry{Seq: 1, Msg: raw})
	require.ErrorIs(t, err, ErrNoSession)
}
