package migration

import (
	"context"
	"fmt"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
	"github.com/xiaonanln/gostream/engine/entity"
)

type changeLog []string

func (cl *changeLog) OnNetOwnerChange(ent, oldOwner, newOwner *entity.Object) {
	*cl = append(*cl, fmt.Sprintf("%s:%s->%s", ent, oldOwner, newOwner))
}

func newPlayer(t *testing.T, r *entity.Registry) *entity.Object {
	p, err := r.Create(entity.KindPlayer, &entity.Options{Player: &entity.PlayerInfo{Name: "p"}})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

// stream marks ent as streamed to player at squared distance distSq, like a streaming pass would
func stream(player, ent *entity.Object, distSq entity.Coord) {
	player.Player().SetStreamed(ent.Ref(), distSq)
	ent.AddObserver(player)
}

func unstream(player, ent *entity.Object) {
	player.Player().Unstream(ent.Ref())
	ent.RemoveObserver(player)
}

func setup(t *testing.T, opts Options) (*entity.Registry, *Manager, *changeLog) {
	r := entity.NewRegistry(nil)
	cl := &changeLog{}
	return r, NewManager(r, cl, opts), cl
}

func TestStreamInAssignsOwner(t *testing.T) {
	r, m, cl := setup(t, Options{})
	v, _ := r.Create(entity.KindVehicle, nil)
	p1 := newPlayer(t, r)
	p2 := newPlayer(t, r)

	stream(p1, v, 100)
	m.OnStreamIn(p1, v)
	stream(p2, v, 1)
	m.OnStreamIn(p2, v)
	assert.Equal(t, p1, v.NetOwner())
	assert.Equal(t, changeLog{"Vehicle<1>:Object<nil>->Player<1>"}, *cl)

	// the owner stays while it is eligible, even when another observer is closer
	assert.Equal(t, nil, m.Tick(context.Background()))
	assert.Equal(t, p1, v.NetOwner())

	// owner streams out: closest remaining observer takes over
	unstream(p1, v)
	m.OnStreamOut(p1, v)
	assert.Equal(t, p2, v.NetOwner())
	assert.Equal(t, "Vehicle<1>:Player<1>->Player<2>", (*cl)[1])

	unstream(p2, v)
	m.OnStreamOut(p2, v)
	assert.T(t, v.NetOwner() == nil, "no observer left")
	assert.Equal(t, 3, len(*cl))
}

func TestPickTieBreaksToLowerID(t *testing.T) {
	r, m, _ := setup(t, Options{})
	v, _ := r.Create(entity.KindVehicle, nil)
	p1 := newPlayer(t, r)
	p2 := newPlayer(t, r)
	p3 := newPlayer(t, r)
	stream(p3, v, 25)
	stream(p2, v, 25)
	stream(p1, v, 400)

	assert.Equal(t, nil, m.Tick(context.Background()))
	assert.Equal(t, p2, v.NetOwner())
}

func TestMigrationDistanceAndDisabledPlayers(t *testing.T) {
	r, m, _ := setup(t, Options{Distance: 10, ThreadCount: 2})
	v, _ := r.Create(entity.KindVehicle, nil)
	far := newPlayer(t, r)
	opted := newPlayer(t, r)
	stream(far, v, 200)
	stream(opted, v, 1)
	opted.Player().SetNetOwnershipDisabled(true)

	m.Tick(context.Background())
	assert.T(t, v.NetOwner() == nil, "nobody eligible")

	far.Player().SetStreamed(v.Ref(), 99)
	m.Tick(context.Background())
	assert.Equal(t, far, v.NetOwner())

	// owner leaves the migration distance
	far.Player().SetStreamed(v.Ref(), 101)
	opted.Player().SetNetOwnershipDisabled(false)
	m.Tick(context.Background())
	assert.Equal(t, opted, v.NetOwner())
}

func TestSetNetOwner(t *testing.T) {
	r, m, cl := setup(t, Options{})
	v, _ := r.Create(entity.KindVehicle, nil)
	blip, _ := r.Create(entity.KindBlip, nil)
	p1 := newPlayer(t, r)
	p2 := newPlayer(t, r)
	stream(p1, v, 1)

	assert.Equal(t, ErrNotObserver, errors.Cause(m.SetNetOwner(v, p2, false)))
	assert.Equal(t, ErrNotOwnable, errors.Cause(m.SetNetOwner(blip, p1, false)))
	assert.Equal(t, ErrInvalidPlayer, errors.Cause(m.SetNetOwner(v, v, false)))

	stream(p2, v, 50)
	assert.Equal(t, nil, m.SetNetOwner(v, p2, true))
	assert.Equal(t, p2, v.NetOwner())
	assert.T(t, v.MigrationDisabled(), "migration disabled")

	// pinned owners survive migration passes
	m.Tick(context.Background())
	assert.Equal(t, p2, v.NetOwner())

	m.ResetNetOwner(v, false)
	assert.Equal(t, p1, v.NetOwner())
	assert.T(t, !v.MigrationDisabled(), "migration enabled")

	m.ResetNetOwner(v, true)
	assert.T(t, v.NetOwner() == nil, "reset with migration disabled leaves no owner")
	m.Tick(context.Background())
	assert.T(t, v.NetOwner() == nil, "still unowned")
	assert.Equal(t, 3, len(*cl))
}

func TestPinnedOwnerStreamOut(t *testing.T) {
	r, m, _ := setup(t, Options{})
	v, _ := r.Create(entity.KindVehicle, nil)
	p1 := newPlayer(t, r)
	p2 := newPlayer(t, r)
	stream(p1, v, 1)
	stream(p2, v, 1)
	m.SetNetOwner(v, p2, true)
	unstream(p2, v)
	m.OnStreamOut(p2, v)
	assert.T(t, v.NetOwner() == nil, "pinned owner gone")
	assert.T(t, v.MigrationDisabled(), "still pinned")
}

func TestOwnerDestroyed(t *testing.T) {
	r, m, cl := setup(t, Options{})
	v, _ := r.Create(entity.KindVehicle, nil)
	ped, _ := r.Create(entity.KindPed, nil)
	p1 := newPlayer(t, r)
	p2 := newPlayer(t, r)
	stream(p1, v, 1)
	stream(p1, ped, 1)
	stream(p2, v, 5)
	m.Tick(context.Background())
	assert.Equal(t, p1, v.NetOwner())
	assert.Equal(t, p1, ped.NetOwner())

	listener := &destroyHook{m: m}
	r.AddListener(listener)
	r.Destroy(p1)
	assert.Equal(t, p2, v.NetOwner())
	assert.T(t, ped.NetOwner() == nil, "no one left for the ped")
	assert.Equal(t, "Ped<1>:Player<1>->Object<nil>", (*cl)[len(*cl)-1])
}

type destroyHook struct {
	entity.NopListener
	m *Manager
}

func (h *destroyHook) OnObjectDestroyed(o *entity.Object) {
	h.m.HandleDestroyed(o)
}
