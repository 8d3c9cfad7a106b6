// Player actions against the grid. Every action is fund-checked and
// applied under one lock hold, so a check can never pass on state another
// action has since changed.
package engine

import (
	"github.com/Harishik/SkyLand/internal/catalog"
	"github.com/Harishik/SkyLand/internal/grid"
)

// Outcome classifies what an action did.
type Outcome uint8

const (
	// OutcomeApplied means the state changed.
	OutcomeApplied Outcome = iota
	// OutcomeSelected means the click landed on an existing building and
	// was treated as a selection, not a mutation.
	OutcomeSelected
	// OutcomeNoFunds means the action was refused for money (or token
	// balance) and a notice was posted. Nothing changed.
	OutcomeNoFunds
	// OutcomeIgnored means the target was invalid. Nothing changed and
	// nothing is surfaced.
	OutcomeIgnored
)

var outcomeNames = [...]string{"applied", "selected", "no_funds", "ignored"}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "unknown"
}

// Place puts a new building on an empty tile, deducting its cost.
// Clicking an existing non-road building with a build tool selects it
// instead of mutating anything.
func (c *City) Place(x, y int, t catalog.BuildingType) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t == catalog.None || !t.Valid() {
		return OutcomeIgnored
	}
	tile, ok := c.grid.At(x, y)
	if !ok {
		return OutcomeIgnored
	}
	if tile.Occupied() {
		if tile.Type != catalog.Road {
			return OutcomeSelected
		}
		return OutcomeIgnored
	}

	cost := c.cat.Cost(t)
	if c.stats.Money < cost {
		c.pushNews("Construction halted: not enough funds for a new "+t.String()+".", NewsNegative)
		return OutcomeNoFunds
	}

	c.stats.Money -= cost
	c.grid.Set(x, y, grid.Tile{Type: t, Level: 1})
	c.recordAction("built a %s at (%d,%d)", t, x, y)
	return OutcomeApplied
}

// Demolish clears an occupied tile for the flat demolition fee.
// Demolishing an empty tile is a no-op.
func (c *City) Demolish(x, y int) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	tile, ok := c.grid.At(x, y)
	if !ok || !tile.Occupied() {
		return OutcomeIgnored
	}
	if c.stats.Money < c.bal.DemolitionCost {
		c.pushNews("Demolition crew refused the job: not enough funds.", NewsNegative)
		return OutcomeNoFunds
	}

	c.stats.Money -= c.bal.DemolitionCost
	c.grid.Clear(x, y)
	c.recordAction("demolished the %s at (%d,%d)", tile.Type, x, y)
	return OutcomeApplied
}

// Upgrade raises an occupied tile one level. The cost grows with the
// current level.
func (c *City) Upgrade(x, y int) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	tile, ok := c.grid.At(x, y)
	if !ok || !tile.Occupied() {
		return OutcomeIgnored
	}

	cost := c.cat.UpgradeCost(tile.Type, tile.Level)
	if c.stats.Money < cost {
		c.pushNews("Upgrade postponed: not enough funds.", NewsNegative)
		return OutcomeNoFunds
	}

	c.stats.Money -= cost
	tile.Level++
	c.grid.Set(x, y, tile)
	c.recordAction("upgraded the %s at (%d,%d) to level %d", tile.Type, x, y, tile.Level)
	return OutcomeApplied
}
