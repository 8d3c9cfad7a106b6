// Package engine owns the city state and advances it one tick at a time.
// The City is the single writer of simulation state: every mutation, player
// action or async generation merge alike, happens under its lock so no
// partial-tick state is ever observable.
package engine

import (
	"fmt"
	"math"
	"sync"

	"github.com/Harishik/SkyLand/internal/catalog"
	"github.com/Harishik/SkyLand/internal/config"
	"github.com/Harishik/SkyLand/internal/entropy"
	"github.com/Harishik/SkyLand/internal/grid"
)

// Stats is the per-tick headline state. Money and population are real
// valued; fractional growth accumulates and is only clamped at the housing
// cap and the zero floor.
type Stats struct {
	Money      float64 `json:"money"`
	Population float64 `json:"population"`
	Day        int     `json:"day"`
}

// Modifiers are the process-wide multipliers governance votes adjust.
// Outside of votes they sit at 1.0.
type Modifiers struct {
	TaxRate    float64 `json:"tax_rate"`
	GrowthRate float64 `json:"growth_rate"`
}

// City is the complete simulation state plus the rules that mutate it.
type City struct {
	mu sync.Mutex

	cat *catalog.Catalog
	bal config.Sim

	clock Clock
	rng   entropy.Source

	grid  *grid.Grid
	stats Stats
	mods  Modifiers

	goal     *Goal
	token    Token
	proposal *Proposal

	// lastResolved keeps the most recently voted proposal around for the
	// readers that want to show the outcome.
	lastResolved *Proposal

	auditing bool

	news   []News
	ledger []Transaction
	recent []string
}

// NewCity builds a fresh city: empty grid, starting treasury, day one.
func NewCity(bal config.Sim, cat *catalog.Catalog, clk Clock, rng entropy.Source) *City {
	if clk == nil {
		clk = RealClock{}
	}
	if rng == nil {
		rng = entropy.Crypto{}
	}
	return &City{
		cat:   cat,
		bal:   bal,
		clock: clk,
		rng:   rng,
		grid:  grid.New(bal.GridSize),
		stats: Stats{
			Money:      bal.StartingMoney,
			Population: bal.StartingPopulation,
			Day:        1,
		},
		mods:  Modifiers{TaxRate: 1.0, GrowthRate: 1.0},
		token: Token{Price: bal.TokenPrice},
	}
}

// TickReport summarizes one tick for logs and the event stream.
type TickReport struct {
	Day           int     `json:"day"`
	Money         float64 `json:"money"`
	Population    float64 `json:"population"`
	Income        float64 `json:"income"`
	HousingCap    float64 `json:"housing_cap"`
	GoalCompleted bool    `json:"goal_completed"`
	TokenPrice    float64 `json:"token_price,omitempty"`
}

// AdvanceTick runs one full simulation step: economy, goal evaluation,
// token mining. The whole step is atomic; readers see either the previous
// day or the next, never something in between.
func (c *City) AdvanceTick() TickReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Mining is contractually based on the population before this tick's
	// growth, so capture it first.
	prevPop := c.stats.Population

	income, housingCap := c.advanceEconomy()
	completedNow := c.evaluateGoal()
	c.advanceToken(prevPop)

	return TickReport{
		Day:           c.stats.Day,
		Money:         c.stats.Money,
		Population:    c.stats.Population,
		Income:        income,
		HousingCap:    housingCap,
		GoalCompleted: completedNow,
		TokenPrice:    c.token.Price,
	}
}

// Stats returns the current headline numbers.
func (c *City) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Modifiers returns the active multiplier set.
func (c *City) Modifiers() Modifiers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mods
}

// Tiles returns a row-major copy of the map.
func (c *City) Tiles() []grid.Tile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grid.Tiles()
}

// GridSize returns the map's edge length.
func (c *City) GridSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grid.Size()
}

// TileAt returns the tile at (x, y); ok is false out of bounds.
func (c *City) TileAt(x, y int) (grid.Tile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grid.At(x, y)
}

// BuildingCounts tallies occupied tiles per building type.
func (c *City) BuildingCounts() map[catalog.BuildingType]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buildingCounts()
}

func (c *City) buildingCounts() map[catalog.BuildingType]int {
	counts := make(map[catalog.BuildingType]int)
	c.grid.Each(func(_, _ int, t grid.Tile) {
		if t.Occupied() {
			counts[t.Type]++
		}
	})
	return counts
}

// Snapshot is a consistent read of everything a client or the generation
// service needs. Nested objects are copies; mutating a snapshot never
// touches live state.
type Snapshot struct {
	Stats     Stats                        `json:"stats"`
	Modifiers Modifiers                    `json:"modifiers"`
	Counts    map[catalog.BuildingType]int `json:"-"`
	Goal      *Goal                        `json:"goal,omitempty"`
	Token     Token                        `json:"token"`
	Proposal  *Proposal                    `json:"proposal,omitempty"`
	Recent    []string                     `json:"recent_actions,omitempty"`
}

// Snapshot captures the current state in one locked read.
func (c *City) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Stats:     c.stats,
		Modifiers: c.mods,
		Counts:    c.buildingCounts(),
		Token:     c.token,
		Recent:    append([]string(nil), c.recent...),
	}
	if c.goal != nil {
		g := *c.goal
		snap.Goal = &g
	}
	if c.proposal != nil {
		p := *c.proposal
		snap.Proposal = &p
	}
	return snap
}

// State is the durable form of a city, shared by the database layer and
// snapshot files.
type State struct {
	GridSize  int           `json:"grid_size"`
	Tiles     []grid.Tile   `json:"tiles"`
	Stats     Stats         `json:"stats"`
	Modifiers Modifiers     `json:"modifiers"`
	Goal      *Goal         `json:"goal,omitempty"`
	Token     Token         `json:"token"`
	Proposal  *Proposal     `json:"proposal,omitempty"`
	News      []News        `json:"news"`
	Ledger    []Transaction `json:"ledger"`
}

// ExportState deep-copies the city into its durable form.
func (c *City) ExportState() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{
		GridSize:  c.grid.Size(),
		Tiles:     c.grid.Tiles(),
		Stats:     c.stats,
		Modifiers: c.mods,
		Token:     c.token,
		News:      append([]News(nil), c.news...),
		Ledger:    append([]Transaction(nil), c.ledger...),
	}
	if c.goal != nil {
		g := *c.goal
		st.Goal = &g
	}
	if c.proposal != nil {
		p := *c.proposal
		st.Proposal = &p
	}
	return st
}

// RestoreState replaces the city's state with a previously exported one.
func (c *City) RestoreState(st State) error {
	g, err := grid.FromTiles(st.GridSize, st.Tiles)
	if err != nil {
		return fmt.Errorf("restore grid: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.grid = g
	c.stats = st.Stats
	c.mods = st.Modifiers
	if c.mods.TaxRate == 0 {
		c.mods.TaxRate = 1.0
	}
	if c.mods.GrowthRate == 0 {
		c.mods.GrowthRate = 1.0
	}
	c.goal = nil
	if st.Goal != nil {
		g := *st.Goal
		c.goal = &g
	}
	c.token = st.Token
	if c.token.Price < c.bal.TokenFloor {
		c.token.Price = c.bal.TokenPrice
	}
	c.proposal = nil
	if st.Proposal != nil {
		p := *st.Proposal
		c.proposal = &p
	}
	c.news = append([]News(nil), st.News...)
	c.ledger = append([]Transaction(nil), st.Ledger...)
	c.auditing = false
	return nil
}

// recordAction keeps a short trail of recent player actions that the
// generation prompts use for flavor.
func (c *City) recordAction(format string, args ...any) {
	const keep = 8
	c.recent = append(c.recent, fmt.Sprintf(format, args...))
	if len(c.recent) > keep {
		c.recent = c.recent[len(c.recent)-keep:]
	}
}

func clampFloor(v, floor float64) float64 {
	return math.Max(v, floor)
}
