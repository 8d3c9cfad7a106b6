// Package catalog defines the static building table the simulation draws from.
// Entries are fixed at startup and never mutated while the city runs.
package catalog

import (
	"fmt"
	"math"
	"strings"
)

// BuildingType enumerates everything that can occupy a tile.
type BuildingType uint8

const (
	None BuildingType = iota
	Road
	Residential
	Commercial
	Industrial
	Park
	School
	Hospital
	Entertainment

	buildingTypeCount
)

// UpgradeGrowth is the per-level multiplier on a building's base cost.
// Upgrading a level-N building costs floor(cost * UpgradeGrowth^N).
const UpgradeGrowth = 1.5

var typeNames = [buildingTypeCount]string{
	"none", "road", "residential", "commercial", "industrial",
	"park", "school", "hospital", "entertainment",
}

func (b BuildingType) String() string {
	if int(b) < len(typeNames) {
		return typeNames[b]
	}
	return "unknown"
}

// Valid reports whether b names a real building type (None included).
func (b BuildingType) Valid() bool {
	return b < buildingTypeCount
}

// ParseBuildingType maps a wire name ("residential") back to its type.
func ParseBuildingType(s string) (BuildingType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range typeNames {
		if name == s {
			return BuildingType(i), true
		}
	}
	return None, false
}

// MarshalText writes the type as its wire name, so tiles serialize as
// "residential" rather than an enum ordinal.
func (b BuildingType) MarshalText() ([]byte, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("unknown building type %d", b)
	}
	return []byte(b.String()), nil
}

// UnmarshalText parses a wire name.
func (b *BuildingType) UnmarshalText(text []byte) error {
	t, ok := ParseBuildingType(string(text))
	if !ok {
		return fmt.Errorf("unknown building type %q", text)
	}
	*b = t
	return nil
}

// Types lists every buildable type in catalog order, None excluded.
func Types() []BuildingType {
	ts := make([]BuildingType, 0, buildingTypeCount-1)
	for t := Road; t < buildingTypeCount; t++ {
		ts = append(ts, t)
	}
	return ts
}

// Entry is one immutable catalog row: what a building costs and what one
// level of it contributes each tick.
type Entry struct {
	Cost      float64 `yaml:"cost" json:"cost"`
	PopGen    float64 `yaml:"pop_gen" json:"pop_gen"`
	IncomeGen float64 `yaml:"income_gen" json:"income_gen"`
	Housing   float64 `yaml:"housing" json:"housing"` // capacity added per level
}

// Catalog is the building table. Treat values returned from it as read-only.
type Catalog struct {
	entries [buildingTypeCount]Entry
}

// Default returns the stock balance table.
func Default() *Catalog {
	c := &Catalog{}
	c.entries[Road] = Entry{Cost: 10}
	c.entries[Residential] = Entry{Cost: 100, PopGen: 5, Housing: 50}
	c.entries[Commercial] = Entry{Cost: 150, IncomeGen: 12}
	c.entries[Industrial] = Entry{Cost: 200, IncomeGen: 20}
	c.entries[Park] = Entry{Cost: 80, PopGen: 2}
	c.entries[School] = Entry{Cost: 300, PopGen: 3}
	c.entries[Hospital] = Entry{Cost: 400, PopGen: 4}
	c.entries[Entertainment] = Entry{Cost: 350, IncomeGen: 25}
	return c
}

// New builds a catalog from the defaults with per-type overrides applied.
// Overriding None is ignored; empty tiles cost and yield nothing.
func New(overrides map[BuildingType]Entry) *Catalog {
	c := Default()
	for t, e := range overrides {
		if t == None || !t.Valid() {
			continue
		}
		c.entries[t] = e
	}
	return c
}

// Entry returns the catalog row for a building type.
func (c *Catalog) Entry(t BuildingType) Entry {
	if !t.Valid() {
		return Entry{}
	}
	return c.entries[t]
}

// Cost returns the placement cost for a building type.
func (c *Catalog) Cost(t BuildingType) float64 {
	return c.Entry(t).Cost
}

// UpgradeCost returns what it costs to raise a building of the given type
// from level to level+1.
func (c *Catalog) UpgradeCost(t BuildingType, level int) float64 {
	if level < 1 {
		level = 1
	}
	return math.Floor(c.Entry(t).Cost * math.Pow(UpgradeGrowth, float64(level)))
}
