package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBuildingType(t *testing.T) {
	for b := None; b < buildingTypeCount; b++ {
		got, ok := ParseBuildingType(b.String())
		assert.True(t, ok, "parse %q", b.String())
		assert.Equal(t, b, got)
	}

	got, ok := ParseBuildingType("  Residential ")
	assert.True(t, ok)
	assert.Equal(t, Residential, got)

	_, ok = ParseBuildingType("castle")
	assert.False(t, ok)
}

func TestDefaultEntries(t *testing.T) {
	c := Default()

	assert.Equal(t, Entry{Cost: 100, PopGen: 5, Housing: 50}, c.Entry(Residential))
	assert.Equal(t, Entry{Cost: 200, IncomeGen: 20}, c.Entry(Industrial))
	assert.Equal(t, Entry{}, c.Entry(None), "empty tiles yield nothing")
	assert.Equal(t, Entry{}, c.Entry(BuildingType(200)), "out of range is zero")
}

func TestNewOverrides(t *testing.T) {
	c := New(map[BuildingType]Entry{
		Park: {Cost: 5, PopGen: 9},
		None: {Cost: 999},
	})

	assert.Equal(t, Entry{Cost: 5, PopGen: 9}, c.Entry(Park))
	assert.Equal(t, Entry{}, c.Entry(None), "None override ignored")
	assert.Equal(t, float64(100), c.Cost(Residential), "other rows keep defaults")
}

func TestUpgradeCost(t *testing.T) {
	c := Default()

	// Residential base 100: level 1 -> 150, level 2 -> 225, level 3 -> 337.
	assert.Equal(t, float64(150), c.UpgradeCost(Residential, 1))
	assert.Equal(t, float64(225), c.UpgradeCost(Residential, 2))
	assert.Equal(t, float64(337), c.UpgradeCost(Residential, 3))

	// Levels below one are treated as level one.
	assert.Equal(t, c.UpgradeCost(Road, 1), c.UpgradeCost(Road, 0))
}
