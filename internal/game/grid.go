package game

import "github.com/udisondev/towerwars/internal/protocol"

// CellSize is the world size of one grid cell.
const CellSize = 1.0

// Cell addresses one grid square.
type Cell struct {
	GX, GY int16
}

// Grid is the buildable playfield. Units walk the path row left to right;
// towers occupy any other in-bounds cell.
type Grid struct {
	Width, Height int16
	occupied      map[Cell]uint32 // cell -> tower entity id
}

// NewGrid builds the grid for a match mode. Solo fields are small; team
// modes share the large field.
func NewGrid(mode protocol.MatchMode) *Grid {
	w, h := int16(20), int16(15)
	if mode == protocol.ModeSolo {
		w, h = 10, 5
	}
	return &Grid{Width: w, Height: h, occupied: map[Cell]uint32{}}
}

// PathRow is the row units walk on.
func (g *Grid) PathRow() int16 {
	return g.Height / 2
}

// PathY is the world y coordinate of the walking path.
func (g *Grid) PathY() float64 {
	return (float64(g.PathRow()) + 0.5) * CellSize
}

// CanPlace reports whether a tower may occupy the cell: in bounds, off the
// path row and unoccupied.
func (g *Grid) CanPlace(c Cell) bool {
	if c.GX < 0 || c.GX >= g.Width || c.GY < 0 || c.GY >= g.Height {
		return false
	}
	if c.GY == g.PathRow() {
		return false
	}
	_, taken := g.occupied[c]
	return !taken
}

// Place marks the cell occupied by a tower entity.
func (g *Grid) Place(c Cell, entityID uint32) {
	g.occupied[c] = entityID
}

// Clear frees the cell.
func (g *Grid) Clear(c Cell) {
	delete(g.occupied, c)
}

// Centre returns the world coordinates of the cell centre.
func (g *Grid) Centre(c Cell) (x, y float64) {
	return (float64(c.GX) + 0.5) * CellSize, (float64(c.GY) + 0.5) * CellSize
}

// LeakX is the x coordinate past which a unit has left the map.
func (g *Grid) LeakX() float64 {
	return float64(g.Width) * CellSize
}
