// Package colshape tests collidable entities against colshapes and checkpoints and reports enter and leave transitions
package colshape

import (
	"math"

	"github.com/xiaonanln/gostream/engine/entity"
)

const _UNBOUNDED = entity.Coord(math.MaxFloat32)

// predicate tests a point against one shape type; bounds returns the box the broad phase queries
type predicate struct {
	contains func(center entity.Vector3, s *entity.ShapeState, p entity.Vector3) bool
	bounds   func(center entity.Vector3, s *entity.ShapeState) (min, max entity.Vector3)
}

var predicates = map[entity.ShapeType]predicate{
	entity.ShapeSphere: {
		contains: func(c entity.Vector3, s *entity.ShapeState, p entity.Vector3) bool {
			return c.DistanceSqTo(p) <= s.Radius*s.Radius
		},
		bounds: func(c entity.Vector3, s *entity.ShapeState) (entity.Vector3, entity.Vector3) {
			r := entity.Vector3{X: s.Radius, Y: s.Radius, Z: s.Radius}
			return c.Sub(r), c.Add(r)
		},
	},
	entity.ShapeCylinder: {
		contains: containsCylinder,
		bounds:   cylinderBounds,
	},
	entity.ShapeCheckpoint: {
		contains: containsCylinder,
		bounds:   cylinderBounds,
	},
	entity.ShapeCircle: {
		contains: func(c entity.Vector3, s *entity.ShapeState, p entity.Vector3) bool {
			return c.Distance2DSqTo(p) <= s.Radius*s.Radius
		},
		bounds: func(c entity.Vector3, s *entity.ShapeState) (entity.Vector3, entity.Vector3) {
			return entity.Vector3{X: c.X - s.Radius, Y: c.Y - s.Radius, Z: -_UNBOUNDED},
				entity.Vector3{X: c.X + s.Radius, Y: c.Y + s.Radius, Z: _UNBOUNDED}
		},
	},
	entity.ShapeCuboid: {
		contains: func(c entity.Vector3, s *entity.ShapeState, p entity.Vector3) bool {
			return p.X >= s.Min.X && p.X <= s.Max.X &&
				p.Y >= s.Min.Y && p.Y <= s.Max.Y &&
				p.Z >= s.Min.Z && p.Z <= s.Max.Z
		},
		bounds: func(c entity.Vector3, s *entity.ShapeState) (entity.Vector3, entity.Vector3) {
			return s.Min, s.Max
		},
	},
	entity.ShapeRectangle: {
		contains: func(c entity.Vector3, s *entity.ShapeState, p entity.Vector3) bool {
			return p.X >= s.Min.X && p.X <= s.Max.X && p.Y >= s.Min.Y && p.Y <= s.Max.Y
		},
		bounds: func(c entity.Vector3, s *entity.ShapeState) (entity.Vector3, entity.Vector3) {
			return entity.Vector3{X: s.Min.X, Y: s.Min.Y, Z: -_UNBOUNDED},
				entity.Vector3{X: s.Max.X, Y: s.Max.Y, Z: _UNBOUNDED}
		},
	},
	entity.ShapePolygon: {
		contains: func(c entity.Vector3, s *entity.ShapeState, p entity.Vector3) bool {
			if p.Z < s.MinZ || p.Z > s.MaxZ {
				return false
			}
			return pointInPolygon(s.Points, p.XY())
		},
		bounds: func(c entity.Vector3, s *entity.ShapeState) (entity.Vector3, entity.Vector3) {
			min := entity.Vector3{X: _UNBOUNDED, Y: _UNBOUNDED, Z: s.MinZ}
			max := entity.Vector3{X: -_UNBOUNDED, Y: -_UNBOUNDED, Z: s.MaxZ}
			for _, pt := range s.Points {
				min.X, max.X = minCoord(min.X, pt.X), maxCoord(max.X, pt.X)
				min.Y, max.Y = minCoord(min.Y, pt.Y), maxCoord(max.Y, pt.Y)
			}
			return min, max
		},
	},
}

// checkpoints and cylinders extend from their base up by height
func containsCylinder(c entity.Vector3, s *entity.ShapeState, p entity.Vector3) bool {
	if p.Z < c.Z || p.Z > c.Z+s.Height {
		return false
	}
	return c.Distance2DSqTo(p) <= s.Radius*s.Radius
}

func cylinderBounds(c entity.Vector3, s *entity.ShapeState) (entity.Vector3, entity.Vector3) {
	return entity.Vector3{X: c.X - s.Radius, Y: c.Y - s.Radius, Z: c.Z},
		entity.Vector3{X: c.X + s.Radius, Y: c.Y + s.Radius, Z: c.Z + s.Height}
}

// pointInPolygon is the even-odd ray casting test; points on the outline may fall either way
func pointInPolygon(poly []entity.Vector2, p entity.Vector2) bool {
	inside := false
	j := len(poly) - 1
	for i := 0; i < len(poly); i++ {
		a, b := poly[i], poly[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < x {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

func minCoord(a, b entity.Coord) entity.Coord {
	if a < b {
		return a
	}
	return b
}

func maxCoord(a, b entity.Coord) entity.Coord {
	if a > b {
		return a
	}
	return b
}

// Contains returns if the point lies inside the shape; false for non-shapes
func Contains(shape *entity.Object, p entity.Vector3) bool {
	s := shape.Shape()
	if s == nil {
		return false
	}
	pred, ok := predicates[s.Type]
	if !ok {
		return false
	}
	return pred.contains(shape.Position(), s, p)
}

// Bounds returns the axis-aligned box enclosing the shape
func Bounds(shape *entity.Object) (min, max entity.Vector3, ok bool) {
	s := shape.Shape()
	if s == nil {
		return
	}
	pred, found := predicates[s.Type]
	if !found {
		return
	}
	min, max = pred.bounds(shape.Position(), s)
	return min, max, true
}
