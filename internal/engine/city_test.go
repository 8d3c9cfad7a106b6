package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harishik/SkyLand/internal/catalog"
	"github.com/Harishik/SkyLand/internal/config"
	"github.com/Harishik/SkyLand/internal/entropy"
	"github.com/Harishik/SkyLand/internal/grid"
)

func testBalance() config.Sim {
	return config.Default().Sim
}

func newTestCity(t *testing.T) (*City, *FakeClock) {
	t.Helper()
	clk := NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	c := NewCity(testBalance(), catalog.Default(), clk, entropy.Seeded(1))
	return c, clk
}

// restore swaps in a crafted state, keeping the default grid when tiles
// are not supplied.
func restore(t *testing.T, c *City, st State) {
	t.Helper()
	if st.GridSize == 0 {
		st.GridSize = c.GridSize()
		st.Tiles = c.Tiles()
	}
	if st.Modifiers.TaxRate == 0 {
		st.Modifiers.TaxRate = 1.0
	}
	if st.Modifiers.GrowthRate == 0 {
		st.Modifiers.GrowthRate = 1.0
	}
	if st.Token.Price == 0 {
		st.Token.Price = 100
	}
	if st.Stats.Day == 0 {
		st.Stats.Day = 1
	}
	require.NoError(t, c.RestoreState(st))
}

func TestNewCityDefaults(t *testing.T) {
	c, _ := newTestCity(t)

	stats := c.Stats()
	assert.Equal(t, float64(1000), stats.Money)
	assert.Equal(t, float64(0), stats.Population)
	assert.Equal(t, 1, stats.Day)

	mods := c.Modifiers()
	assert.Equal(t, Modifiers{TaxRate: 1.0, GrowthRate: 1.0}, mods)

	assert.Equal(t, 12, c.GridSize())
	assert.Nil(t, c.Goal())
	assert.Nil(t, c.Proposal())
	assert.False(t, c.Token().Connected)
	assert.Equal(t, float64(100), c.Token().Price)
}

func TestStateRoundTrip(t *testing.T) {
	c, _ := newTestCity(t)

	require.Equal(t, OutcomeApplied, c.Place(2, 3, catalog.Residential))
	require.Equal(t, OutcomeApplied, c.ConnectToken())
	require.True(t, c.SetGoal(Goal{
		Description: "Reach 50 citizens",
		TargetType:  TargetPopulation,
		TargetValue: 50,
		Reward:      200,
	}))
	c.AdvanceTick()

	st := c.ExportState()

	c2, _ := newTestCity(t)
	require.NoError(t, c2.RestoreState(st))

	assert.Equal(t, c.Stats(), c2.Stats())
	assert.Equal(t, c.Tiles(), c2.Tiles())
	assert.Equal(t, c.Token(), c2.Token())
	require.NotNil(t, c2.Goal())
	assert.Equal(t, c.Goal().Description, c2.Goal().Description)
	assert.Equal(t, len(c.News()), len(c2.News()))
	assert.Equal(t, len(c.Ledger()), len(c2.Ledger()))
}

func TestRestoreStateRepairsZeroModifiers(t *testing.T) {
	c, _ := newTestCity(t)

	st := c.ExportState()
	st.Modifiers = Modifiers{}
	st.Token.Price = 0
	require.NoError(t, c.RestoreState(st))

	assert.Equal(t, Modifiers{TaxRate: 1.0, GrowthRate: 1.0}, c.Modifiers())
	assert.Equal(t, float64(100), c.Token().Price)
}

func TestRestoreStateRejectsBadGrid(t *testing.T) {
	c, _ := newTestCity(t)

	st := c.ExportState()
	st.Tiles = st.Tiles[:3]
	assert.Error(t, c.RestoreState(st))
}

func TestSnapshotIsDetached(t *testing.T) {
	c, _ := newTestCity(t)
	require.True(t, c.SetGoal(Goal{Description: "x", TargetType: TargetMoney, TargetValue: 1}))

	snap := c.Snapshot()
	require.NotNil(t, snap.Goal)
	snap.Goal.Completed = true
	snap.Stats.Money = -1

	assert.False(t, c.Goal().Completed, "snapshot mutation does not leak")
	assert.Equal(t, float64(1000), c.Stats().Money)
}

func TestExportStateIsDeepCopy(t *testing.T) {
	c, _ := newTestCity(t)
	require.Equal(t, OutcomeApplied, c.Place(0, 0, catalog.Park))

	st := c.ExportState()
	st.Tiles[0] = grid.Tile{Type: catalog.None, Level: 1}
	st.Stats.Money = 0

	tile, _ := c.TileAt(0, 0)
	assert.Equal(t, catalog.Park, tile.Type)
	assert.NotEqual(t, float64(0), c.Stats().Money)
}
