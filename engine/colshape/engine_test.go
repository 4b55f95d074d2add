package colshape

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/gostream/engine/entity"
	"github.com/xiaonanln/gostream/engine/spatial"
)

type transitions []string

func (tr *transitions) OnEnter(shape, ent *entity.Object) {
	*tr = append(*tr, "enter "+ent.String())
}

func (tr *transitions) OnLeave(shape, ent *entity.Object) {
	*tr = append(*tr, "leave "+ent.String())
}

func newEngine() (*entity.Registry, *Engine, *transitions) {
	r := entity.NewRegistry(nil)
	ix := spatial.NewIndexer(r, spatial.NewGrid(10))
	tr := &transitions{}
	return r, NewEngine(r, ix.Grid(), tr), tr
}

func shape(t *testing.T, r *entity.Registry, pos entity.Vector3, so *entity.ShapeOptions) *entity.Object {
	s, err := r.Create(entity.KindColShape, &entity.Options{Pos: pos, Shape: so})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestEnterLeaveEnter(t *testing.T) {
	r, e, tr := newEngine()
	sphere := shape(t, r, entity.Vector3{}, &entity.ShapeOptions{Type: entity.ShapeSphere, Radius: 5})
	v, _ := r.Create(entity.KindVehicle, &entity.Options{Pos: entity.Vector3{X: 1, Y: 1, Z: 1}})

	e.Tick()
	e.Tick()
	assert.Equal(t, transitions{"enter Vehicle<1>"}, *tr)
	assert.T(t, e.IsEntityIn(sphere, v), "inside")

	v.SetPosition(entity.Vector3{X: 20, Y: 0, Z: 0})
	e.Tick()
	v.SetPosition(entity.Vector3{X: 0, Y: 0, Z: 5})
	e.Tick()
	e.Tick()
	assert.Equal(t, transitions{"enter Vehicle<1>", "leave Vehicle<1>", "enter Vehicle<1>"}, *tr)
	assert.T(t, e.IsEntityIDIn(sphere, v.Ref()), "inside again")
}

func TestPlayersOnlyAndNonCollidables(t *testing.T) {
	r, e, tr := newEngine()
	s := shape(t, r, entity.Vector3{}, &entity.ShapeOptions{Type: entity.ShapeCircle, Radius: 5, PlayersOnly: true})
	r.Create(entity.KindVehicle, &entity.Options{})
	r.Create(entity.KindMarker, &entity.Options{})
	p, _ := r.Create(entity.KindPlayer, &entity.Options{Pos: entity.Vector3{X: 0, Y: 0, Z: 100}, Player: &entity.PlayerInfo{}})
	e.Tick()
	assert.Equal(t, transitions{"enter Player<1>"}, *tr)
	assert.Equal(t, []entity.Ref{p.Ref()}, e.Members(s))
}

func TestDimensionMismatch(t *testing.T) {
	r, e, tr := newEngine()
	shape(t, r, entity.Vector3{}, &entity.ShapeOptions{Type: entity.ShapeSphere, Radius: 5})
	v, _ := r.Create(entity.KindVehicle, &entity.Options{Dimension: 3})
	e.Tick()
	assert.Equal(t, 0, len(*tr))
	v.SetDimension(0)
	e.Tick()
	assert.Equal(t, transitions{"enter Vehicle<1>"}, *tr)
}

func TestDestroyedEntityLeavesSilently(t *testing.T) {
	r, e, tr := newEngine()
	s := shape(t, r, entity.Vector3{}, &entity.ShapeOptions{Type: entity.ShapeSphere, Radius: 5})
	v, _ := r.Create(entity.KindVehicle, &entity.Options{})
	e.Tick()
	e.HandleDestroyed(v)
	r.Destroy(v)
	e.Tick()
	assert.Equal(t, transitions{"enter Vehicle<1>"}, *tr)
	assert.Equal(t, 0, len(e.Members(s)))

	e.HandleDestroyed(s)
	r.Destroy(s)
	assert.T(t, !e.IsEntityIDIn(s, v.Ref()), "destroyed shape has no members")
}

func TestShapeOrderingInTick(t *testing.T) {
	r, e, tr := newEngine()
	shape(t, r, entity.Vector3{}, &entity.ShapeOptions{Type: entity.ShapeSphere, Radius: 50})
	r.Create(entity.KindVehicle, &entity.Options{Pos: entity.Vector3{X: 2, Y: 0, Z: 0}})
	r.Create(entity.KindPed, &entity.Options{Pos: entity.Vector3{X: 3, Y: 0, Z: 0}})
	r.Create(entity.KindPlayer, &entity.Options{Pos: entity.Vector3{X: 40, Y: 0, Z: 0}, Player: &entity.PlayerInfo{}})
	e.Tick()
	assert.Equal(t, transitions{"enter Player<1>", "enter Vehicle<1>", "enter Ped<1>"}, *tr)
}

func TestPredicates(t *testing.T) {
	r := entity.NewRegistry(nil)
	cyl := shape(t, r, entity.Vector3{X: 0, Y: 0, Z: 10}, &entity.ShapeOptions{Type: entity.ShapeCylinder, Radius: 2, Height: 5})
	assert.T(t, Contains(cyl, entity.Vector3{X: 1, Y: 1, Z: 12}), "inside cylinder")
	assert.T(t, Contains(cyl, entity.Vector3{X: 0, Y: 0, Z: 15}), "cylinder top is inclusive")
	assert.T(t, !Contains(cyl, entity.Vector3{X: 0, Y: 0, Z: 9}), "below cylinder")
	assert.T(t, !Contains(cyl, entity.Vector3{X: 2, Y: 1, Z: 12}), "outside radius")

	cub := shape(t, r, entity.Vector3{}, &entity.ShapeOptions{Type: entity.ShapeCuboid, Min: entity.Vector3{X: -1, Y: -1, Z: -1}, Max: entity.Vector3{X: 1, Y: 2, Z: 3}})
	assert.T(t, Contains(cub, entity.Vector3{X: 1, Y: 2, Z: 3}), "cuboid corner")
	assert.T(t, !Contains(cub, entity.Vector3{X: 0, Y: 0, Z: 4}), "above cuboid")

	rect := shape(t, r, entity.Vector3{}, &entity.ShapeOptions{Type: entity.ShapeRectangle, Min: entity.Vector3{X: 0, Y: 0, Z: 0}, Max: entity.Vector3{X: 4, Y: 4, Z: 0}})
	assert.T(t, Contains(rect, entity.Vector3{X: 2, Y: 2, Z: 1000}), "rectangles ignore height")

	poly := shape(t, r, entity.Vector3{}, &entity.ShapeOptions{
		Type:   entity.ShapePolygon,
		Points: []entity.Vector2{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 5, Y: 3}, {X: 0, Y: 10}},
		MinZ:   0,
		MaxZ:   5,
	})
	assert.T(t, Contains(poly, entity.Vector3{X: 2, Y: 2, Z: 1}), "inside polygon")
	assert.T(t, !Contains(poly, entity.Vector3{X: 5, Y: 8, Z: 1}), "inside the notch")
	assert.T(t, !Contains(poly, entity.Vector3{X: 2, Y: 2, Z: 6}), "above polygon")

	cp, err := r.Create(entity.KindCheckpoint, &entity.Options{Pos: entity.Vector3{}, Shape: &entity.ShapeOptions{Radius: 3, Height: 2}})
	assert.Equal(t, nil, err)
	assert.T(t, Contains(cp, entity.Vector3{X: 0, Y: 2, Z: 1}), "inside checkpoint")
	assert.T(t, !Contains(cp, entity.Vector3{X: 0, Y: 0, Z: 3}), "above checkpoint")

	v, _ := r.Create(entity.KindVehicle, nil)
	assert.T(t, !Contains(v, entity.Vector3{}), "not a shape")
}

func TestLinkRoute(t *testing.T) {
	r := entity.NewRegistry(nil)
	var route []*entity.Object
	for i := 0; i < 3; i++ {
		cp, _ := r.Create(entity.KindCheckpoint, &entity.Options{Pos: entity.Vector3{X: entity.Coord(i * 10), Y: 0, Z: 0}})
		route = append(route, cp)
	}
	assert.Equal(t, nil, LinkRoute(route))
	assert.Equal(t, entity.Vector3{X: 10, Y: 0, Z: 0}, route[0].Checkpoint().NextPos)
	assert.Equal(t, entity.Vector3{X: 20, Y: 0, Z: 0}, route[1].Checkpoint().NextPos)
	assert.Equal(t, entity.Vector3{X: 20, Y: 0, Z: 0}, route[2].Checkpoint().NextPos)

	v, _ := r.Create(entity.KindVehicle, nil)
	assert.T(t, LinkRoute([]*entity.Object{route[0], v}) != nil, "vehicles cannot be route stops")
}
