package streaming

import (
	"context"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
	"github.com/xiaonanln/gostream/engine/entity"
	"github.com/xiaonanln/gostream/engine/spatial"
)

type recorder struct {
	ins  []string
	outs []string
}

func (rec *recorder) OnStreamIn(player, obj *entity.Object) {
	rec.ins = append(rec.ins, player.String()+">"+obj.String())
}

func (rec *recorder) OnStreamOut(player, obj *entity.Object) {
	rec.outs = append(rec.outs, player.String()+">"+obj.String())
}

type failingIndex struct {
	Index
	fail bool
}

func (fi *failingIndex) QueryRange(dim int32, pos entity.Vector3, radius entity.Coord) ([]spatial.Hit, error) {
	if fi.fail {
		return nil, spatial.ErrCorruptIndex
	}
	return fi.Index.QueryRange(dim, pos, radius)
}

type fixture struct {
	registry *entity.Registry
	grid     *spatial.Grid
	rec      *recorder
	mgr      *Manager
}

func newFixture(opts Options) *fixture {
	r := entity.NewRegistry(nil)
	ix := spatial.NewIndexer(r, spatial.NewGrid(50))
	rec := &recorder{}
	return &fixture{
		registry: r,
		grid:     ix.Grid(),
		rec:      rec,
		mgr:      NewManager(r, ix.Grid(), rec, opts),
	}
}

func (f *fixture) player(t *testing.T, pos entity.Vector3) *entity.Object {
	p, err := f.registry.Create(entity.KindPlayer, &entity.Options{Pos: pos, Player: &entity.PlayerInfo{Name: "p"}})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func (f *fixture) create(t *testing.T, kind entity.Kind, pos entity.Vector3) *entity.Object {
	o, err := f.registry.Create(kind, &entity.Options{Pos: pos})
	if err != nil {
		t.Fatal(err)
	}
	return o
}

func (f *fixture) tick(t *testing.T) {
	if err := f.mgr.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestStreamInOut(t *testing.T) {
	f := newFixture(Options{StreamingDistance: 100})
	p := f.player(t, entity.Vector3{})
	v := f.create(t, entity.KindVehicle, entity.Vector3{X: 50, Y: 0, Z: 0})
	far := f.create(t, entity.KindVehicle, entity.Vector3{X: 150, Y: 0, Z: 0})

	f.tick(t)
	assert.Equal(t, []string{"Player<1>>Vehicle<1>"}, f.rec.ins)
	assert.T(t, v.IsObservedBy(p), "near vehicle observed")
	assert.T(t, !far.IsObservedBy(p), "far vehicle not observed")
	d, ok := p.Player().StreamedDistanceSq(v.Ref())
	assert.T(t, ok, "streamed")
	assert.Equal(t, entity.Coord(2500), d)

	// boundary is inclusive
	far.SetPosition(entity.Vector3{X: 100, Y: 0, Z: 0})
	v.SetPosition(entity.Vector3{X: 101, Y: 0, Z: 0})
	f.tick(t)
	assert.Equal(t, []string{"Player<1>>Vehicle<1>"}, f.rec.outs)
	assert.Equal(t, []entity.Ref{far.Ref()}, p.Player().StreamedRefs())
	assert.T(t, v.KnownBy().Contains(p), "known after stream out")
	assert.T(t, !v.IsObservedBy(p), "not observed after stream out")

	// steady state produces no transitions
	f.tick(t)
	assert.Equal(t, 2, len(f.rec.ins))
	assert.Equal(t, 1, len(f.rec.outs))
}

func TestPlayersSeeEachOther(t *testing.T) {
	f := newFixture(Options{StreamingDistance: 100})
	p1 := f.player(t, entity.Vector3{})
	p2 := f.player(t, entity.Vector3{X: 10, Y: 0, Z: 0})
	f.tick(t)
	assert.T(t, p1.IsObservedBy(p2) && p2.IsObservedBy(p1), "mutual streaming")
	assert.T(t, !p1.IsObservedBy(p1), "never streamed to self")
}

func TestDimensionFilter(t *testing.T) {
	f := newFixture(Options{StreamingDistance: 100})
	p := f.player(t, entity.Vector3{})
	v := f.create(t, entity.KindVehicle, entity.Vector3{})
	v.SetDimension(2)
	f.tick(t)
	assert.Equal(t, 0, p.Player().StreamedCount())
	p.SetDimension(2)
	f.tick(t)
	assert.T(t, v.IsObservedBy(p), "same dimension")
}

func TestCapTieBreaksToLowerID(t *testing.T) {
	f := newFixture(Options{StreamingDistance: 100, MaxVehicles: 2})
	p := f.player(t, entity.Vector3{})
	// three vehicles at the same distance
	f.create(t, entity.KindVehicle, entity.Vector3{X: 10, Y: 0, Z: 0})
	f.create(t, entity.KindVehicle, entity.Vector3{X: 0, Y: 10, Z: 0})
	f.create(t, entity.KindVehicle, entity.Vector3{X: -10, Y: 0, Z: 0})
	near := f.create(t, entity.KindVehicle, entity.Vector3{X: 1, Y: 0, Z: 0})
	ped := f.create(t, entity.KindPed, entity.Vector3{X: 90, Y: 0, Z: 0})

	f.tick(t)
	assert.Equal(t, []entity.Ref{
		{Kind: entity.KindVehicle, ID: 1},
		{Kind: entity.KindPed, ID: 1},
		near.Ref(),
	}, p.Player().StreamedRefs())
	assert.T(t, ped.IsObservedBy(p), "peds have their own cap")
	// stream-ins run in rank order: vehicles before peds, nearest first
	assert.Equal(t, []string{"Player<1>>Vehicle<4>", "Player<1>>Vehicle<1>", "Player<1>>Ped<1>"}, f.rec.ins)
}

func TestObjectStreamingDistance(t *testing.T) {
	f := newFixture(Options{StreamingDistance: 100})
	p := f.player(t, entity.Vector3{})
	o, _ := f.registry.Create(entity.KindObject, &entity.Options{Pos: entity.Vector3{X: 300, Y: 0, Z: 0}, StreamingDistance: 500})
	m, _ := f.registry.Create(entity.KindMarker, &entity.Options{Pos: entity.Vector3{X: 30, Y: 0, Z: 0}, StreamingDistance: 20})
	f.tick(t)
	assert.T(t, o.IsObservedBy(p), "object distance overrides the default")
	assert.T(t, !m.IsObservedBy(p), "short marker distance")

	o.SetStreamed(false)
	f.tick(t)
	assert.T(t, !o.IsObservedBy(p), "unstreamed objects stream out")
}

func TestVirtualEntityGroupCap(t *testing.T) {
	f := newFixture(Options{StreamingDistance: 100})
	p := f.player(t, entity.Vector3{})
	group, _ := f.registry.Create(entity.KindVirtualEntityGroup, &entity.Options{MaxEntitiesInStream: 1})
	ve1, _ := f.registry.Create(entity.KindVirtualEntity, &entity.Options{Group: group, Pos: entity.Vector3{X: 20, Y: 0, Z: 0}})
	ve2, _ := f.registry.Create(entity.KindVirtualEntity, &entity.Options{Group: group, Pos: entity.Vector3{X: 10, Y: 0, Z: 0}})
	f.tick(t)
	assert.T(t, ve2.IsObservedBy(p), "nearest member streamed")
	assert.T(t, !ve1.IsObservedBy(p), "group cap excludes the farther member")
}

func TestDisconnectedPlayerStreamsOut(t *testing.T) {
	f := newFixture(Options{StreamingDistance: 100})
	p := f.player(t, entity.Vector3{})
	v := f.create(t, entity.KindVehicle, entity.Vector3{})
	f.tick(t)
	p.Player().MarkDisconnected()
	f.tick(t)
	assert.T(t, !v.IsObservedBy(p), "cleanup stream out")
	assert.Equal(t, []string{"Player<1>>Vehicle<1>"}, f.rec.outs)
}

func TestFailedQueryKeepsSetAndResyncs(t *testing.T) {
	f := newFixture(Options{StreamingDistance: 100})
	fi := &failingIndex{Index: f.grid}
	f.mgr = NewManager(f.registry, fi, f.rec, Options{StreamingDistance: 100, ThreadCount: 3})
	resynced := 0
	f.mgr.SetResync(func() int {
		resynced++
		return 0
	})

	p := f.player(t, entity.Vector3{})
	v := f.create(t, entity.KindVehicle, entity.Vector3{})
	f.tick(t)
	assert.T(t, v.IsObservedBy(p), "streamed")

	fi.fail = true
	v.SetPosition(entity.Vector3{X: 1000, Y: 0, Z: 0})
	f.tick(t)
	assert.T(t, v.IsObservedBy(p), "set unchanged on failure")
	assert.Equal(t, 1, resynced)
	assert.Equal(t, 0, len(f.rec.outs))

	fi.fail = false
	f.tick(t)
	assert.T(t, !v.IsObservedBy(p), "next pass recovers")
}

func TestHandleDestroyed(t *testing.T) {
	f := newFixture(Options{StreamingDistance: 100})
	p := f.player(t, entity.Vector3{})
	v := f.create(t, entity.KindVehicle, entity.Vector3{})
	f.tick(t)

	f.mgr.HandleDestroyed(v)
	f.registry.Destroy(v)
	assert.Equal(t, 0, p.Player().StreamedCount())

	v2 := f.create(t, entity.KindVehicle, entity.Vector3{})
	f.tick(t)
	f.mgr.HandleDestroyed(p)
	f.registry.Destroy(p)
	assert.Equal(t, 0, len(v2.Observers()))
	assert.Equal(t, 0, len(v2.KnownBy()))
}

// destroyOnStreamIn destroys the player the first time it streams anything in
type destroyOnStreamIn struct {
	recorder
	registry *entity.Registry
	mgr      *Manager
}

func (h *destroyOnStreamIn) OnStreamIn(player, obj *entity.Object) {
	h.recorder.OnStreamIn(player, obj)
	if player.IsValid() {
		h.mgr.HandleDestroyed(player)
		h.registry.Destroy(player)
	}
}

func TestPlayerDestroyedByStreamInHandler(t *testing.T) {
	f := newFixture(Options{StreamingDistance: 100})
	h := &destroyOnStreamIn{registry: f.registry}
	h.mgr = NewManager(f.registry, f.grid, h, Options{StreamingDistance: 100})
	f.mgr = h.mgr

	p := f.player(t, entity.Vector3{})
	v1 := f.create(t, entity.KindVehicle, entity.Vector3{X: 10, Y: 0, Z: 0})
	v2 := f.create(t, entity.KindVehicle, entity.Vector3{X: 20, Y: 0, Z: 0})
	f.tick(t)

	assert.Equal(t, 1, len(h.ins))
	assert.T(t, !p.IsValid(), "destroyed")
	for _, v := range []*entity.Object{v1, v2} {
		assert.Equal(t, 0, len(v.Observers()))
		assert.Equal(t, 0, len(v.KnownBy()))
	}

	// a later player may reuse the id; it must not inherit observation
	f.registry.Flush()
	p2 := f.player(t, entity.Vector3{X: 100000, Y: 0, Z: 0})
	assert.T(t, !v2.IsObservedBy(p2), "new player does not observe v2")
	assert.T(t, !v1.IsObservedBy(p2), "new player does not observe v1")
}

func TestPartitionedWorkers(t *testing.T) {
	f := newFixture(Options{StreamingDistance: 100, ThreadCount: 4})
	for i := 0; i < 10; i++ {
		f.player(t, entity.Vector3{X: entity.Coord(i), Y: 0, Z: 0})
	}
	f.tick(t)
	for _, p := range f.registry.AllOfType(entity.KindPlayer) {
		assert.Equal(t, 9, p.Player().StreamedCount())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := f.mgr.Tick(ctx)
	assert.Equal(t, context.Canceled, errors.Cause(err))
}
