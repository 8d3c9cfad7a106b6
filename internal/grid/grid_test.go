package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harishik/SkyLand/internal/catalog"
)

func TestNewGridIsEmpty(t *testing.T) {
	g := New(4)

	assert.Equal(t, 4, g.Size())
	g.Each(func(x, y int, tile Tile) {
		assert.Equal(t, Tile{Type: catalog.None, Level: 1}, tile, "tile (%d,%d)", x, y)
	})
}

func TestAtSetBounds(t *testing.T) {
	g := New(3)

	ok := g.Set(2, 1, Tile{Type: catalog.Park, Level: 2})
	require.True(t, ok)

	tile, ok := g.At(2, 1)
	require.True(t, ok)
	assert.Equal(t, Tile{Type: catalog.Park, Level: 2}, tile)
	assert.True(t, tile.Occupied())

	_, ok = g.At(3, 0)
	assert.False(t, ok)
	assert.False(t, g.Set(-1, 0, Tile{Type: catalog.Road, Level: 1}))
}

func TestClearResetsTile(t *testing.T) {
	g := New(2)
	g.Set(0, 0, Tile{Type: catalog.Industrial, Level: 3})

	require.True(t, g.Clear(0, 0))

	tile, _ := g.At(0, 0)
	assert.Equal(t, Tile{Type: catalog.None, Level: 1}, tile)
	assert.False(t, tile.Occupied())
}

func TestFromTilesRoundTrip(t *testing.T) {
	g := New(3)
	g.Set(1, 2, Tile{Type: catalog.School, Level: 2})

	rebuilt, err := FromTiles(3, g.Tiles())
	require.NoError(t, err)

	tile, _ := rebuilt.At(1, 2)
	assert.Equal(t, Tile{Type: catalog.School, Level: 2}, tile)
}

func TestFromTilesRejectsBadInput(t *testing.T) {
	_, err := FromTiles(3, make([]Tile, 4))
	assert.Error(t, err)

	bad := make([]Tile, 4)
	bad[0] = Tile{Type: catalog.BuildingType(99), Level: 1}
	_, err = FromTiles(2, bad)
	assert.Error(t, err)
}

func TestFromTilesNormalizesLevels(t *testing.T) {
	tiles := make([]Tile, 4)
	tiles[1] = Tile{Type: catalog.Road, Level: 0}

	g, err := FromTiles(2, tiles)
	require.NoError(t, err)

	tile, _ := g.At(1, 0)
	assert.Equal(t, 1, tile.Level)
}

func TestCloneIsIndependent(t *testing.T) {
	g := New(2)
	g.Set(0, 1, Tile{Type: catalog.Commercial, Level: 1})

	c := g.Clone()
	c.Set(0, 1, Tile{Type: catalog.None, Level: 1})

	tile, _ := g.At(0, 1)
	assert.Equal(t, catalog.Commercial, tile.Type, "clone writes do not leak back")
}
