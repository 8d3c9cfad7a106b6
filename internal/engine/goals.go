// Goal tracking: one active development goal, evaluated each tick against
// the fresh stats snapshot, paid out only when the player claims it.
package engine

import (
	"strings"

	"github.com/google/uuid"

	"github.com/Harishik/SkyLand/internal/catalog"
)

// TargetType says which number a goal measures.
type TargetType string

const (
	TargetMoney         TargetType = "money"
	TargetPopulation    TargetType = "population"
	TargetBuildingCount TargetType = "building_count"
)

// ParseTargetType maps a wire name to a target type.
func ParseTargetType(s string) (TargetType, bool) {
	switch TargetType(strings.ToLower(strings.TrimSpace(s))) {
	case TargetMoney:
		return TargetMoney, true
	case TargetPopulation:
		return TargetPopulation, true
	case TargetBuildingCount:
		return TargetBuildingCount, true
	}
	return "", false
}

// Goal is the active development objective. Building is meaningful only
// when TargetType is building_count.
type Goal struct {
	ID          string               `json:"id"`
	Description string               `json:"description"`
	TargetType  TargetType           `json:"target_type"`
	TargetValue float64              `json:"target_value"`
	Building    catalog.BuildingType `json:"building,omitempty"`
	Reward      float64              `json:"reward"`
	Completed   bool                 `json:"completed"`
}

// Goal returns a copy of the active goal, or nil when the slot is empty.
func (c *City) Goal() *Goal {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.goal == nil {
		return nil
	}
	g := *c.goal
	return &g
}

// NeedsGoal reports whether the goal slot is empty, which is what gates
// new generation requests.
func (c *City) NeedsGoal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.goal == nil
}

// SetGoal adopts a generated goal if the slot is still empty. Results
// arriving after another goal landed are dropped; the merge always
// re-checks live state rather than trusting the state at dispatch time.
func (c *City) SetGoal(g Goal) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.goal != nil {
		return false
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	g.Completed = false
	if g.TargetType != TargetBuildingCount {
		g.Building = catalog.None
	}
	c.goal = &g
	c.pushNews("New development goal: "+g.Description, NewsNeutral)
	return true
}

// evaluateGoal flips the completion flag once the target is met. The
// reward waits for an explicit claim. Caller holds the lock. Returns
// whether the flag flipped this tick.
func (c *City) evaluateGoal() bool {
	if c.goal == nil || c.goal.Completed {
		return false
	}

	var current float64
	switch c.goal.TargetType {
	case TargetMoney:
		current = c.stats.Money
	case TargetPopulation:
		current = c.stats.Population
	case TargetBuildingCount:
		current = float64(c.buildingCounts()[c.goal.Building])
	default:
		return false
	}

	if current < c.goal.TargetValue {
		return false
	}
	c.goal.Completed = true
	c.pushNews("Goal reached: "+c.goal.Description+" Claim your reward.", NewsPositive)
	return true
}

// ClaimGoal pays the reward for a completed goal and clears the slot so a
// new goal can be requested. Claiming early or with no goal is ignored.
func (c *City) ClaimGoal() (Outcome, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.goal == nil || !c.goal.Completed {
		return OutcomeIgnored, 0
	}

	reward := c.goal.Reward
	c.stats.Money += reward
	c.goal = nil
	c.recordAction("claimed a goal reward of %.0f", reward)
	c.pushNews("Goal reward collected.", NewsPositive)
	return OutcomeApplied, reward
}
