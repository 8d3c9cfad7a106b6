// Modifier effects set by governance votes. Effects overwrite the fields
// they name and leave the rest alone; repeating a vote is idempotent, not
// cumulative.
package engine

import "strings"

// EffectKind names a governance outcome's mechanical effect.
type EffectKind string

const (
	EffectTaxBreak       EffectKind = "tax_break"
	EffectPopulationBoom EffectKind = "population_boom"
	EffectAusterity      EffectKind = "austerity"
	EffectFestival       EffectKind = "festival"
)

// ParseEffect validates a generated effect name.
func ParseEffect(s string) (EffectKind, bool) {
	switch EffectKind(strings.ToLower(strings.TrimSpace(s))) {
	case EffectTaxBreak:
		return EffectTaxBreak, true
	case EffectPopulationBoom:
		return EffectPopulationBoom, true
	case EffectAusterity:
		return EffectAusterity, true
	case EffectFestival:
		return EffectFestival, true
	}
	return "", false
}

// applyEffect writes an effect's fixed modifier values. Festival also
// charges its one-time cost with no affordability gate; the treasury may
// go negative here, matching how votes have always settled. Caller holds
// the lock.
func (c *City) applyEffect(k EffectKind) {
	switch k {
	case EffectTaxBreak:
		c.mods.TaxRate = 1.2
	case EffectPopulationBoom:
		c.mods.GrowthRate = 1.5
	case EffectAusterity:
		c.mods.TaxRate = 0.8
		c.mods.GrowthRate = 0.8
	case EffectFestival:
		c.mods.GrowthRate = 2.0
		c.stats.Money -= c.bal.FestivalCost
	}
}
