package farm

import (
	"container/heap"
	"iter"
	"math"

	"kashimo.ai/internal/sim/chunkmath"
	"kashimo.ai/internal/sim/mathx"
)

// A harvestable position may lie outside its anchor's chunk: stem products one block
// away horizontally, stalk tops one block up.
var (
	reachLo = mathx.V(1, 0, 1)
	reachHi = mathx.V(1, 1, 1)
)

func reachBounds(k chunkmath.ChunkKey) chunkmath.Bounds {
	return k.Bounds().Expand(reachLo, reachHi)
}

// Nearest returns the harvestable position closest to ref, or false when there is none.
//
// Partitions are visited in Chebyshev shells around ref's chunk until a candidate is
// known and enough partitions were seen, then every partition that could still hold a
// closer position is checked.
func (r *Registry) Nearest(ref mathx.Vec3f) (mathx.Vec3, bool) {
	if len(r.chunks) == 0 {
		return mathx.Vec3{}, false
	}
	s := nearestSearch{
		reg:       r,
		ref:       ref,
		remaining: make(map[chunkmath.ChunkKey]struct{}, len(r.chunks)),
	}
	for k := range r.chunks {
		s.remaining[k] = struct{}{}
	}
	total := len(r.chunks)

	for radius, shell := range chunkmath.Radial(chunkmath.ChunkOfPoint(ref)) {
		if radius > 0 && chunkmath.ShellSize(radius) > len(s.remaining) {
			break
		}
		for _, k := range shell {
			if _, ok := s.remaining[k]; ok {
				s.visit(k)
			}
		}
		if len(s.remaining) == 0 {
			break
		}
		if s.found && s.visited*1000 >= r.cutoff*total {
			break
		}
	}

	if !s.found {
		for k := range s.remaining {
			s.visit(k)
			if s.found {
				break
			}
		}
	}
	if !s.found {
		return mathx.Vec3{}, false
	}

	s.correct()
	return s.best, true
}

type nearestSearch struct {
	reg       *Registry
	ref       mathx.Vec3f
	remaining map[chunkmath.ChunkKey]struct{}
	visited   int

	found  bool
	best   mathx.Vec3
	bestSq float64
}

func (s *nearestSearch) visit(k chunkmath.ChunkKey) {
	delete(s.remaining, k)
	s.visited++
	set, ok := s.reg.chunks[k]
	if !ok {
		return
	}
	p, ok := set.Nearest(s.ref)
	if !ok {
		return
	}
	d := s.ref.DistSq(p)
	if !s.found || d < s.bestSq {
		s.found, s.best, s.bestSq = true, p, d
	}
}

// correct visits every unvisited partition whose reach is within the current best
// distance, enumerating keys or filtering the remaining set, whichever is smaller.
func (s *nearestSearch) correct() {
	lo, hi := chunkmath.SearchRange(s.ref, math.Sqrt(s.bestSq), reachLo, reachHi)
	if chunkmath.Volume(lo, hi) <= len(s.remaining) {
		for x := lo.X; x <= hi.X; x++ {
			for y := lo.Y; y <= hi.Y; y++ {
				for z := lo.Z; z <= hi.Z; z++ {
					s.consider(chunkmath.ChunkKey{X: x, Y: y, Z: z})
				}
			}
		}
		return
	}
	for k := range s.remaining {
		s.consider(k)
	}
}

func (s *nearestSearch) consider(k chunkmath.ChunkKey) {
	if _, ok := s.remaining[k]; !ok {
		return
	}
	if reachBounds(k).DistanceTo(s.ref) > math.Sqrt(s.bestSq) {
		return
	}
	s.visit(k)
}

// NearestSeq yields every harvestable position in non-decreasing distance from ref.
// Partitions are opened lazily, so stopping early is cheap. The registry must not be
// mutated while the sequence is being consumed.
func (r *Registry) NearestSeq(ref mathx.Vec3f) iter.Seq[mathx.Vec3] {
	return func(yield func(mathx.Vec3) bool) {
		var parts partQueue
		for k, set := range r.chunks {
			if set.HarvestableCount() == 0 {
				continue
			}
			d := reachBounds(k).DistanceTo(ref)
			parts = append(parts, partItem{key: k, distSq: d * d})
		}
		heap.Init(&parts)

		var cands candQueue
		var last mathx.Vec3
		yielded := false
		for {
			for parts.Len() > 0 && (cands.Len() == 0 || parts[0].distSq <= cands[0].distSq) {
				it := heap.Pop(&parts).(partItem)
				set, ok := r.chunks[it.key]
				if !ok {
					continue
				}
				for _, p := range set.NearestAll(ref) {
					heap.Push(&cands, candItem{pos: p, distSq: ref.DistSq(p)})
				}
			}
			if cands.Len() == 0 {
				return
			}
			c := heap.Pop(&cands).(candItem)
			// a fruit shared across partitions is queued once per partition; copies pop
			// back to back since both partitions open before either copy is due
			if yielded && c.pos == last {
				continue
			}
			last, yielded = c.pos, true
			if !yield(c.pos) {
				return
			}
		}
	}
}

// NearestN returns up to n harvestable positions, closest first.
func (r *Registry) NearestN(ref mathx.Vec3f, n int) []mathx.Vec3 {
	if n <= 0 {
		return nil
	}
	out := make([]mathx.Vec3, 0, n)
	for p := range r.NearestSeq(ref) {
		out = append(out, p)
		if len(out) == n {
			break
		}
	}
	return out
}

type partItem struct {
	key    chunkmath.ChunkKey
	distSq float64
}

type partQueue []partItem

func (q partQueue) Len() int           { return len(q) }
func (q partQueue) Less(i, j int) bool { return q[i].distSq < q[j].distSq }
func (q partQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *partQueue) Push(x any)        { *q = append(*q, x.(partItem)) }
func (q *partQueue) Pop() any {
	old := *q
	it := old[len(old)-1]
	*q = old[:len(old)-1]
	return it
}

type candItem struct {
	pos    mathx.Vec3
	distSq float64
}

type candQueue []candItem

func (q candQueue) Len() int { return len(q) }
func (q candQueue) Less(i, j int) bool {
	if q[i].distSq != q[j].distSq {
		return q[i].distSq < q[j].distSq
	}
	return comparePos(q[i].pos, q[j].pos) < 0
}
func (q candQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *candQueue) Push(x any)   { *q = append(*q, x.(candItem)) }
func (q *candQueue) Pop() any {
	old := *q
	it := old[len(old)-1]
	*q = old[:len(old)-1]
	return it
}
