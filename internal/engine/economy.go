// Economy pass: per-tick aggregation of income and population growth from
// the grid, modifier application, and the housing clamp.
package engine

import (
	"github.com/Harishik/SkyLand/internal/grid"
)

// advanceEconomy runs the per-tick economic update and returns the income
// applied and the housing cap in force, for reporting. Caller holds the
// lock.
//
// Order matters: raw yields from the grid, then tax and growth modifiers,
// then the staking bonus, then the housing clamp. Money is credited
// unclamped; passive income can never drive it negative.
func (c *City) advanceEconomy() (income, housingCap float64) {
	var popGrowth float64

	c.grid.Each(func(_, _ int, t grid.Tile) {
		if !t.Occupied() {
			return
		}
		e := c.cat.Entry(t.Type)
		lvl := float64(t.Level)
		income += e.IncomeGen * lvl
		popGrowth += e.PopGen * lvl
		housingCap += e.Housing * lvl
	})

	income *= c.mods.TaxRate
	popGrowth *= c.mods.GrowthRate

	if c.token.Staked > 0 {
		popGrowth *= 1 + c.token.Staked/c.bal.StakeDivisor
	}

	if housingCap == 0 && c.stats.Population > 0 {
		// No housing at all: residents leave at a flat rate instead of
		// growing.
		c.stats.Population = clampFloor(c.stats.Population-c.bal.DeclineRate, 0)
	} else {
		next := c.stats.Population + popGrowth
		if next > housingCap {
			next = housingCap
		}
		c.stats.Population = next
	}

	c.stats.Money += income
	c.stats.Day++

	return income, housingCap
}
