// Package streaming computes, for every connected player, the set of objects streamed to its client
package streaming

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/xiaonanln/gostream/engine/consts"
	"github.com/xiaonanln/gostream/engine/entity"
	"github.com/xiaonanln/gostream/engine/gwlog"
	"github.com/xiaonanln/gostream/engine/gwutils"
	"github.com/xiaonanln/gostream/engine/opmon"
	"github.com/xiaonanln/gostream/engine/spatial"
	"golang.org/x/sync/errgroup"
)

// Index answers the range queries of a streaming pass; implemented by *spatial.Grid
type Index interface {
	QueryRange(dim int32, pos entity.Vector3, radius entity.Coord) ([]spatial.Hit, error)
}

// Handler receives the applied stream-in and stream-out transitions on the main routine.
// Stream-outs of disconnected players are still delivered so that ownership can be cleaned up.
type Handler interface {
	OnStreamIn(player, obj *entity.Object)
	OnStreamOut(player, obj *entity.Object)
}

// Options are the streaming knobs; caps <= 0 mean unlimited
type Options struct {
	StreamingDistance entity.Coord
	MaxPeds           int
	MaxObjects        int
	MaxVehicles       int
	ThreadCount       int
}

type candidate struct {
	obj    *entity.Object
	distSq entity.Coord
}

type result struct {
	player *entity.Object
	want   []candidate
	err    error
}

// Manager runs streaming passes
type Manager struct {
	registry *entity.Registry
	index    Index
	handler  Handler
	opts     Options
	// resync repairs the index after a failed query; may be nil
	resync func() int

	passes uint64
}

// NewManager creates a streaming manager
func NewManager(registry *entity.Registry, index Index, handler Handler, opts Options) *Manager {
	if opts.ThreadCount < 1 {
		opts.ThreadCount = 1
	}
	return &Manager{
		registry: registry,
		index:    index,
		handler:  handler,
		opts:     opts,
	}
}

// SetResync installs the function called after a failed spatial query
func (m *Manager) SetResync(f func() int) {
	m.resync = f
}

// Options returns the streaming knobs
func (m *Manager) Options() Options {
	return m.opts
}

// SetOptions replaces the streaming knobs; the next pass uses them. Main routine only.
func (m *Manager) SetOptions(opts Options) {
	if opts.ThreadCount < 1 {
		opts.ThreadCount = 1
	}
	m.opts = opts
}

// Passes returns the number of completed streaming passes
func (m *Manager) Passes() uint64 {
	return m.passes
}

// Tick runs one streaming pass: workers compute the wanted set of their partition of players,
// then the results are applied in player id order on the calling routine.
func (m *Manager) Tick(ctx context.Context) error {
	op := opmon.StartOperation("streaming.Tick")
	defer op.Finish(consts.TICK_WARN_THRESHOLD)

	players := m.registry.AllOfType(entity.KindPlayer)
	if len(players) == 0 {
		m.passes++
		return nil
	}

	results := make([]result, len(players))
	threads := m.opts.ThreadCount
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < threads; w++ {
		w := w
		g.Go(func() error {
			for i, p := range players {
				if int(p.ID())%threads != w {
					continue
				}
				if err := gctx.Err(); err != nil {
					return err
				}
				results[i] = m.compute(p)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "streaming pass")
	}

	needResync := false
	for i := range results {
		r := &results[i]
		if r.err != nil {
			gwlog.Errorf("streaming: %s skipped: %v", r.player, r.err)
			needResync = true
			continue
		}
		m.apply(r)
	}
	if needResync && m.resync != nil {
		m.resync()
	}
	m.passes++
	return nil
}

// queryRadius covers the largest object-specific streaming distance
func (m *Manager) queryRadius() entity.Coord {
	radius := m.opts.StreamingDistance
	if d := m.registry.MaxStreamingDistance(); d > radius {
		radius = d
	}
	return radius
}

func (m *Manager) compute(player *entity.Object) (r result) {
	r.player = player
	if player.Player().Disconnected() {
		return
	}
	if err := gwutils.CatchPanic(func() {
		r.want, r.err = m.wanted(player)
	}); err != nil {
		r.err = err
		r.want = nil
	}
	return
}

// wanted returns the objects player should stream, in rank order
func (m *Manager) wanted(player *entity.Object) ([]candidate, error) {
	hits, err := m.index.QueryRange(player.Dimension(), player.Position(), m.queryRadius())
	if err != nil {
		return nil, err
	}

	// the player's own streaming distance, when set, bounds everything it sees
	playerRangeSq := entity.Coord(-1)
	if d := player.StreamingDistance(); d > 0 {
		playerRangeSq = d * d
	}

	cands := make([]candidate, 0, len(hits))
	for _, h := range hits {
		if h.Ref == player.Ref() || !h.Ref.Kind.IsStreamable() {
			continue
		}
		obj := m.registry.GetRef(h.Ref)
		if obj == nil || !obj.Streamed() || obj.Dimension() != player.Dimension() {
			continue
		}
		d := obj.EffectiveStreamingDistance(m.opts.StreamingDistance)
		if h.DistSq > d*d {
			continue
		}
		if playerRangeSq >= 0 && h.DistSq > playerRangeSq {
			continue
		}
		cands = append(cands, candidate{obj: obj, distSq: h.DistSq})
	}

	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		pa, pb := a.obj.Kind().StreamPriority(), b.obj.Kind().StreamPriority()
		if pa != pb {
			return pa < pb
		}
		if a.distSq != b.distSq {
			return a.distSq < b.distSq
		}
		return a.obj.Ref().Less(b.obj.Ref())
	})

	kindCount := map[entity.Kind]int{}
	groupCount := map[*entity.Object]int{}
	want := cands[:0]
	for _, c := range cands {
		kind := c.obj.Kind()
		if max := m.kindCap(kind); max > 0 && kindCount[kind] >= max {
			continue
		}
		if kind == entity.KindVirtualEntity {
			group := c.obj.VirtualEntity().Group()
			if groupCount[group] >= group.VirtualEntityGroup().MaxEntitiesInStream {
				continue
			}
			groupCount[group]++
		}
		kindCount[kind]++
		want = append(want, c)
	}
	return want, nil
}

func (m *Manager) kindCap(kind entity.Kind) int {
	switch kind {
	case entity.KindVehicle:
		return m.opts.MaxVehicles
	case entity.KindPed:
		return m.opts.MaxPeds
	case entity.KindObject:
		return m.opts.MaxObjects
	}
	return 0
}

// apply diffs the wanted set against the current one: stream-outs first, then stream-ins in rank order
func (m *Manager) apply(r *result) {
	player := r.player
	if !player.IsValid() {
		return
	}
	ps := player.Player()
	wantSet := make(map[entity.Ref]entity.Coord, len(r.want))
	for _, c := range r.want {
		wantSet[c.obj.Ref()] = c.distSq
	}

	for _, ref := range ps.StreamedRefs() {
		if _, ok := wantSet[ref]; ok {
			continue
		}
		ps.Unstream(ref)
		obj := m.registry.GetRef(ref)
		if obj == nil {
			continue
		}
		obj.RemoveObserver(player)
		if consts.DEBUG_STREAMING {
			gwlog.Debugf("streaming: %s stream out %s", player, obj)
		}
		m.notify(func() { m.handler.OnStreamOut(player, obj) })
		// a handler destroyed the player; its cleanup already ran
		if !player.IsValid() {
			return
		}
	}

	for _, c := range r.want {
		ref := c.obj.Ref()
		if ps.IsStreamed(ref) {
			ps.SetStreamed(ref, c.distSq)
			continue
		}
		// destroyed by a handler earlier in this pass
		if !c.obj.IsValid() {
			continue
		}
		ps.SetStreamed(ref, c.distSq)
		c.obj.AddObserver(player)
		if consts.DEBUG_STREAMING {
			gwlog.Debugf("streaming: %s stream in %s", player, c.obj)
		}
		obj := c.obj
		m.notify(func() { m.handler.OnStreamIn(player, obj) })
		if !player.IsValid() {
			return
		}
	}
}

func (m *Manager) notify(f func()) {
	if m.handler != nil {
		gwutils.RunPanicless(f)
	}
}

// HandleDestroyed drops every streaming reference to a destroyed object.
// Must run before the registry clears the observer set of obj.
func (m *Manager) HandleDestroyed(obj *entity.Object) {
	ref := obj.Ref()
	for _, p := range obj.Observers() {
		if ps := p.Player(); ps != nil {
			ps.Unstream(ref)
		}
	}
	if obj.Kind() != entity.KindPlayer {
		return
	}
	ps := obj.Player()
	for _, sref := range ps.StreamedRefs() {
		ps.Unstream(sref)
		if o := m.registry.GetRef(sref); o != nil {
			o.RemoveObserver(obj)
		}
	}
	for _, k := range entity.AllKinds {
		if !k.IsWorld() {
			continue
		}
		m.registry.ForEach(k, func(o *entity.Object) bool {
			o.ForgetPlayer(obj.ID())
			return true
		})
	}
}
