// Package agent runs the farmer's world mirror: it applies feed messages to the chunk
// store and crop registry and picks the next harvest target on every decision tick.
package agent

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"slices"
	"time"

	"kashimo.ai/internal/protocol"
	"kashimo.ai/internal/sim/catalogs"
	"kashimo.ai/internal/sim/chunkmath"
	"kashimo.ai/internal/sim/farm"
	"kashimo.ai/internal/sim/mathx"
	"kashimo.ai/internal/sim/terrain/store"
	"kashimo.ai/internal/sim/tuning"
	"kashimo.ai/internal/transport/ws"
)

// FeedRecorder persists received feed messages.
type FeedRecorder interface {
	WriteMessage(msg any) error
}

// Index receives the history of the farm as it is observed.
type Index interface {
	farm.Observer
	RecordScan(res farm.ScanResult)
	RecordDecision(ref mathx.Vec3f, target mathx.Vec3, found bool, crops, ripe int)
}

type Config struct {
	Catalogs *catalogs.Catalogs
	Tuning   tuning.Tuning
	Logger   *log.Logger

	// Optional side channels.
	FeedLog FeedRecorder
	Index   Index
	// OnDecision is called after every decision tick.
	OnDecision func(Decision)
}

// Decision is the outcome of one decision tick.
type Decision struct {
	Ref     mathx.Vec3f
	HasRef  bool
	Target  mathx.Vec3
	Found   bool
	Preview []mathx.Vec3
	Crops   int
	Ripe    int
	Scanned int
	Pending int
}

// Runner owns the store, registry and scanner. None of its methods may be called
// concurrently; Run serialises feed messages and ticks on one goroutine.
type Runner struct {
	cfg Config
	log *log.Logger

	blocks  *catalogs.BlockCatalog
	store   *store.ChunkStore
	reg     *farm.Registry
	scanner *farm.Scanner
	pending []chunkmath.ChunkKey

	self    mathx.Vec3f
	hasSelf bool
	last    Decision
}

func New(cfg Config) *Runner {
	if cfg.Catalogs == nil {
		cfg.Catalogs = catalogs.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	r := &Runner{cfg: cfg, log: logger}
	r.reset(cfg.Catalogs.Blocks)
	return r
}

func (r *Runner) Registry() *farm.Registry       { return r.reg }
func (r *Runner) Store() *store.ChunkStore       { return r.store }
func (r *Runner) Blocks() *catalogs.BlockCatalog { return r.blocks }
func (r *Runner) Last() Decision                 { return r.last }

// Pending is the number of loaded sections not scanned yet.
func (r *Runner) Pending() int { return len(r.pending) }

// reset drops everything mirrored so far and starts over with a palette.
func (r *Runner) reset(blocks *catalogs.BlockCatalog) {
	r.blocks = blocks
	r.store = store.NewChunkStore(blocks)
	var obs farm.Observer
	if r.cfg.Index != nil {
		obs = r.cfg.Index
	}
	r.reg = farm.NewRegistry(farm.RegistryConfig{
		Crops:               r.cfg.Catalogs.Crops,
		World:               r.store,
		Observer:            obs,
		ShellCutoffPermille: r.cfg.Tuning.ShellCutoffPermille,
	})
	r.scanner = farm.NewScanner(r.reg, r.store, blocks)
	r.pending = r.pending[:0]
	r.last = Decision{}
}

// Run applies messages and ticks until ctx ends or msgs is closed.
func (r *Runner) Run(ctx context.Context, msgs <-chan any) error {
	tick := r.cfg.Tuning.DecisionTick()
	if tick <= 0 {
		tick = tuning.Defaults().DecisionTick()
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			r.Apply(m)
		case <-ticker.C:
			r.Tick()
		}
	}
}

// Apply mirrors one feed message. Malformed messages are logged and skipped.
func (r *Runner) Apply(msg any) {
	r.record(msg)
	switch m := msg.(type) {
	case ws.Session:
		r.log.Printf("session %s: palette %s (%d states)", m.Welcome.SessionID, short(m.Blocks.Digest), len(m.Blocks.States))
		r.reset(m.Blocks)
	case protocol.ChunkMsg:
		r.applyChunk(m)
	case protocol.UnloadMsg:
		r.applyUnload(m.Key())
	case protocol.BlockUpdateMsg:
		r.applyBlockUpdate(m)
	case protocol.SelfMsg:
		r.self, r.hasSelf = m.Point(), true
	case protocol.ErrorMsg:
		r.log.Printf("server error %s: %s", m.Code, m.Message)
	case protocol.CatalogMsg, protocol.WelcomeMsg:
		// palette already settled by the session
	default:
		r.log.Printf("ignoring %T", msg)
	}
}

func (r *Runner) record(msg any) {
	if r.cfg.FeedLog == nil {
		return
	}
	var err error
	if s, ok := msg.(ws.Session); ok {
		// a session is logged as its WELCOME plus the palette that was settled on
		if err = r.cfg.FeedLog.WriteMessage(s.Welcome); err == nil {
			err = r.cfg.FeedLog.WriteMessage(paletteCatalog(s.Blocks))
		}
	} else {
		err = r.cfg.FeedLog.WriteMessage(msg)
	}
	if err != nil {
		r.log.Printf("feed log: %v", err)
	}
}

func paletteCatalog(b *catalogs.BlockCatalog) protocol.CatalogMsg {
	data, _ := json.Marshal(b.States)
	return protocol.CatalogMsg{
		Type:            protocol.TypeCatalog,
		ProtocolVersion: protocol.Version,
		Name:            protocol.CatalogBlockPalette,
		Digest:          b.Digest,
		Part:            1,
		TotalParts:      1,
		Data:            data,
	}
}

func (r *Runner) applyChunk(m protocol.ChunkMsg) {
	key := m.Key()
	blocks, err := m.Blocks()
	if err != nil {
		r.log.Printf("chunk %s: %v", key, err)
		return
	}
	prev, reload := r.store.Section(key)
	var before []uint16
	if reload {
		before = slices.Clone(prev.Blocks)
	}
	if _, err := r.store.LoadSection(key, blocks); err != nil {
		r.log.Printf("chunk %s: %v", key, err)
		return
	}
	if !reload || !r.scanner.Scanned(key) {
		if !slices.Contains(r.pending, key) {
			r.pending = append(r.pending, key)
		}
		return
	}
	// already indexed: feed only what changed
	origin := key.Origin()
	for y := 0; y < chunkmath.Size; y++ {
		for z := 0; z < chunkmath.Size; z++ {
			for x := 0; x < chunkmath.Size; x++ {
				local := mathx.V(x, y, z)
				i := chunkmath.Index(local)
				if before[i] == blocks[i] {
					continue
				}
				r.feed(origin.Add(local), before[i], blocks[i])
			}
		}
	}
}

func (r *Runner) applyUnload(key chunkmath.ChunkKey) {
	r.store.Unload(key)
	r.scanner.Forget(key)
	if i := slices.Index(r.pending, key); i >= 0 {
		r.pending = slices.Delete(r.pending, i, i+1)
	}
}

func (r *Runner) applyBlockUpdate(m protocol.BlockUpdateMsg) {
	pos := m.Position()
	ch, loaded, err := r.store.SetBlock(pos, m.New)
	if err != nil {
		r.log.Printf("block update %s: %v", pos, err)
		return
	}
	nb := farm.BlockView{Pos: pos, State: ch.New}
	switch {
	case loaded && ch.OldKnown:
		r.reg.OnBlockUpdate(&farm.BlockView{Pos: pos, State: ch.Old}, nb)
	case !loaded && m.Old != nil:
		if old, ok := r.blocks.State(*m.Old); ok {
			r.reg.OnBlockUpdate(&farm.BlockView{Pos: pos, State: old}, nb)
			return
		}
		r.reg.OnBlockUpdate(nil, nb)
	default:
		r.reg.OnBlockUpdate(nil, nb)
	}
}

// feed hands a raw id change to the registry; the store already holds newID.
func (r *Runner) feed(pos mathx.Vec3, oldID, newID uint16) {
	nst, ok := r.blocks.State(newID)
	if !ok {
		return
	}
	nb := farm.BlockView{Pos: pos, State: nst}
	if ost, ok := r.blocks.State(oldID); ok {
		r.reg.OnBlockUpdate(&farm.BlockView{Pos: pos, State: ost}, nb)
		return
	}
	r.reg.OnBlockUpdate(nil, nb)
}

// Tick scans pending sections within budget, nearest first, then picks a target.
func (r *Runner) Tick() Decision {
	scanned := r.scanPending()

	d := Decision{
		Ref:     r.self,
		HasRef:  r.hasSelf,
		Crops:   r.reg.CropCount(),
		Ripe:    r.reg.HarvestableCount(),
		Scanned: scanned,
		Pending: len(r.pending),
	}
	if r.hasSelf {
		d.Target, d.Found = r.reg.Nearest(r.self)
		if d.Found && r.cfg.Tuning.NearestPreview > 0 {
			d.Preview = r.reg.NearestN(r.self, r.cfg.Tuning.NearestPreview)
		}
		if r.cfg.Index != nil {
			r.cfg.Index.RecordDecision(r.self, d.Target, d.Found, d.Crops, d.Ripe)
		}
	}
	if d.Found != r.last.Found || d.Target != r.last.Target {
		if d.Found {
			r.log.Printf("target %s (%.1f away) crops=%d ripe=%d", d.Target, r.self.Dist(d.Target), d.Crops, d.Ripe)
		} else if r.last.Found {
			r.log.Printf("no harvestable crop; crops=%d", d.Crops)
		}
	}
	r.last = d
	if r.cfg.OnDecision != nil {
		r.cfg.OnDecision(d)
	}
	return d
}

func (r *Runner) scanPending() int {
	if len(r.pending) == 0 {
		return 0
	}
	if r.hasSelf {
		slices.SortStableFunc(r.pending, func(a, b chunkmath.ChunkKey) int {
			da := chunkmath.DistanceToChunk(r.self, a)
			db := chunkmath.DistanceToChunk(r.self, b)
			switch {
			case da < db:
				return -1
			case da > db:
				return 1
			}
			return 0
		})
	}
	budget := r.cfg.Tuning.ScanBudgetPerTick
	if budget <= 0 || budget > len(r.pending) {
		budget = len(r.pending)
	}
	n := 0
	for _, key := range r.pending[:budget] {
		res := r.scanner.Scan(key)
		if res.Missing {
			continue
		}
		n++
		if r.cfg.Index != nil {
			r.cfg.Index.RecordScan(res)
		}
	}
	r.pending = slices.Delete(r.pending, 0, budget)
	return n
}

// Flush scans every pending section regardless of budget.
func (r *Runner) Flush() int {
	n := 0
	for len(r.pending) > 0 {
		n += r.scanPending()
	}
	return n
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
