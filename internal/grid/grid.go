// Package grid holds the city's tile map. The grid knows nothing about
// money or rules; it is pure storage with bounds checking. All gameplay
// checks live in the engine.
package grid

import (
	"fmt"

	"github.com/Harishik/SkyLand/internal/catalog"
)

// Tile is one cell of the map. An empty cell is {None, 1}; level is
// meaningful only while a building stands on the tile.
type Tile struct {
	Type  catalog.BuildingType `json:"building"`
	Level int                  `json:"level"`
}

// Occupied reports whether something is built on the tile.
func (t Tile) Occupied() bool {
	return t.Type != catalog.None
}

// Grid is a fixed-size square tile map, indexed by (x, y) column/row.
type Grid struct {
	size  int
	tiles []Tile
}

// New returns an empty size x size grid.
func New(size int) *Grid {
	if size < 1 {
		size = 1
	}
	g := &Grid{size: size, tiles: make([]Tile, size*size)}
	for i := range g.tiles {
		g.tiles[i] = Tile{Type: catalog.None, Level: 1}
	}
	return g
}

// FromTiles rebuilds a grid from a flat row-major tile slice, as stored
// by persistence. The slice length must be size*size.
func FromTiles(size int, tiles []Tile) (*Grid, error) {
	if size < 1 {
		return nil, fmt.Errorf("grid size %d out of range", size)
	}
	if len(tiles) != size*size {
		return nil, fmt.Errorf("grid expects %d tiles, got %d", size*size, len(tiles))
	}
	g := &Grid{size: size, tiles: make([]Tile, len(tiles))}
	copy(g.tiles, tiles)
	for i, t := range g.tiles {
		if !t.Type.Valid() {
			return nil, fmt.Errorf("tile %d has unknown building type %d", i, t.Type)
		}
		if t.Level < 1 {
			g.tiles[i].Level = 1
		}
	}
	return g, nil
}

// Size returns the grid's edge length.
func (g *Grid) Size() int {
	return g.size
}

// InBounds reports whether (x, y) addresses a real tile.
func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && x < g.size && y >= 0 && y < g.size
}

// At returns the tile at (x, y). ok is false out of bounds.
func (g *Grid) At(x, y int) (Tile, bool) {
	if !g.InBounds(x, y) {
		return Tile{}, false
	}
	return g.tiles[y*g.size+x], true
}

// Set overwrites the tile at (x, y). Out-of-bounds writes are dropped.
func (g *Grid) Set(x, y int, t Tile) bool {
	if !g.InBounds(x, y) {
		return false
	}
	g.tiles[y*g.size+x] = t
	return true
}

// Clear resets (x, y) to an empty tile.
func (g *Grid) Clear(x, y int) bool {
	return g.Set(x, y, Tile{Type: catalog.None, Level: 1})
}

// Each visits every tile in row-major order.
func (g *Grid) Each(fn func(x, y int, t Tile)) {
	for i, t := range g.tiles {
		fn(i%g.size, i/g.size, t)
	}
}

// Tiles returns a row-major copy of the whole map, for persistence and
// snapshots.
func (g *Grid) Tiles() []Tile {
	out := make([]Tile, len(g.tiles))
	copy(out, g.tiles)
	return out
}

// Clone returns an independent copy of the grid.
func (g *Grid) Clone() *Grid {
	return &Grid{size: g.size, tiles: g.Tiles()}
}
