package entity

import (
	"fmt"
	"math"
)

// Coord is the type of world coordinates and distances
type Coord float32

// Vector3 is type of object positions and rotations
type Vector3 struct {
	X Coord
	Y Coord
	Z Coord
}

func (p Vector3) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", p.X, p.Y, p.Z)
}

// DistanceTo calculates distance between two positions
func (p Vector3) DistanceTo(o Vector3) Coord {
	return Coord(math.Sqrt(float64(p.DistanceSqTo(o))))
}

// DistanceSqTo calculates the squared distance between two positions
func (p Vector3) DistanceSqTo(o Vector3) Coord {
	dx := p.X - o.X
	dy := p.Y - o.Y
	dz := p.Z - o.Z
	return dx*dx + dy*dy + dz*dz
}

// Distance2DSqTo calculates the squared distance on the XY plane
func (p Vector3) Distance2DSqTo(o Vector3) Coord {
	dx := p.X - o.X
	dy := p.Y - o.Y
	return dx*dx + dy*dy
}

// Sub calculates Vector3 p - Vector3 o
func (p Vector3) Sub(o Vector3) Vector3 {
	return Vector3{p.X - o.X, p.Y - o.Y, p.Z - o.Z}
}

func (p Vector3) Add(o Vector3) Vector3 {
	return Vector3{p.X + o.X, p.Y + o.Y, p.Z + o.Z}
}

// Mul calculates Vector3 p * m
func (p Vector3) Mul(m Coord) Vector3 {
	return Vector3{p.X * m, p.Y * m, p.Z * m}
}

// XY drops the Z component
func (p Vector3) XY() Vector2 {
	return Vector2{p.X, p.Y}
}

// IsFinite reports whether no component is NaN or infinite
func (p Vector3) IsFinite() bool {
	for _, c := range [3]Coord{p.X, p.Y, p.Z} {
		f := float64(c)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// Vector2 is a point on the XY plane, used by flat shapes
type Vector2 struct {
	X Coord
	Y Coord
}

func (p Vector2) String() string {
	return fmt.Sprintf("(%.2f, %.2f)", p.X, p.Y)
}
