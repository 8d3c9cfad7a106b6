package mayor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Harishik/SkyLand/internal/llm"
)

const systemPrompt = `You are the Mayor, an autonomous player of SkyLand — an isometric city simulation with a tick-driven economy, development goals and governance ballots.

Your role: study the city each cycle and make zero or one move. You play patiently; a city grows on compounding income, not on frantic building.

## Priorities (in order)

1. CLAIM REWARDS — If a completed goal is waiting, claim it before anything else. Free money.

2. HOUSING FIRST — Population declines every day it exceeds housing capacity. If utilization is near or past 100%, build residential before anything else.

3. INCOME ENGINE — With housing covered, add commercial or industrial so the treasury grows. Upgrade existing buildings when an upgrade yields more than a new placement of the same cost.

4. VOTE BALLOTS — When a proposal is on the ballot, vote. If an audit is attached, weigh its score and risk; without one, favor rejection unless the city clearly needs the effect.

5. RESTRAINT — "none" is the RIGHT choice when the treasury is thin or nothing is wrong. Never spend below one cheap building of reserve.

## Available Actions

- "none" — no move this cycle.
- "build" — place a building on an EMPTY tile. Needs x, y, building.
- "upgrade" — raise an existing building one level. Needs x, y.
- "demolish" — clear a tile (refunds nothing, costs a fee). Rarely right.
- "claim_goal" — collect a completed goal's reward.
- "vote" — settle the open ballot. Needs option: 0 approves, 1 rejects.

## Response Format

Respond with ONLY valid JSON (no markdown, no explanation outside the JSON):
{
  "action": "none",
  "rationale": "Brief explanation of the assessment and why this move (or no move).",
  "move": null
}

For moves:
{
  "action": "build",
  "rationale": "Housing at 96% and ninety in the treasury to spare.",
  "move": {"x": 4, "y": 2, "building": "residential"}
}

For votes, set "move": {"option": 0} or {"option": 1}.

## Important Rules

- Respond ONLY with JSON. No prose, no markdown fences.
- "action" must be one of: "none", "build", "upgrade", "demolish", "claim_goal", "vote".
- When action is "none", set "move" to null.
- Build only on tiles the grid shows as "none".
- Never propose a building the treasury cannot pay for.
- Consider the trends, not just the current day. A slow decline needs action sooner than a single bad tick.`

// Decision is the model's recommended move.
type Decision struct {
	Action    string `json:"action"`
	Rationale string `json:"rationale"`
	Move      *Move  `json:"move"`
}

// Move carries the parameters a decided action needs.
type Move struct {
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Building string `json:"building,omitempty"`
	Option   *int   `json:"option,omitempty"`
}

// Decide sends the snapshot to the model and returns a vetted Decision.
func Decide(ctx context.Context, client *llm.Client, snap *CitySnapshot, health *CityHealth, memory string) (*Decision, error) {
	prompt := formatSnapshot(snap, health)
	if memory != "" {
		prompt += "\n" + memory
	}

	slog.Debug("mayor prompt", "length", len(prompt))

	resp, err := client.Complete(ctx, systemPrompt, prompt, 512)
	if err != nil {
		return nil, fmt.Errorf("model call: %w", err)
	}

	// Strip markdown fences if the model wraps them anyway.
	resp = strings.TrimSpace(resp)
	resp = strings.TrimPrefix(resp, "```json")
	resp = strings.TrimPrefix(resp, "```")
	resp = strings.TrimSuffix(resp, "```")
	resp = strings.TrimSpace(resp)

	var decision Decision
	if err := json.Unmarshal([]byte(resp), &decision); err != nil {
		return nil, fmt.Errorf("parse decision (raw: %s): %w", resp, err)
	}

	if err := enforceGuardrails(&decision, snap, health); err != nil {
		return nil, fmt.Errorf("guardrail violation: %w", err)
	}
	return &decision, nil
}

// enforceGuardrails validates the decision against the observed city so a
// hallucinated move never reaches the API.
func enforceGuardrails(d *Decision, snap *CitySnapshot, health *CityHealth) error {
	switch d.Action {
	case "none":
		d.Move = nil
		return nil

	case "claim_goal":
		if !health.GoalReady {
			return fmt.Errorf("claim_goal with no completed goal waiting")
		}
		d.Move = nil
		return nil

	case "build", "upgrade", "demolish", "vote":
		if d.Move == nil {
			return fmt.Errorf("action %q requires a move payload", d.Action)
		}

	default:
		return fmt.Errorf("unknown action %q", d.Action)
	}

	if d.Action == "vote" {
		if !health.BallotOpen {
			return fmt.Errorf("vote with no proposal on the ballot")
		}
		if d.Move.Option == nil || *d.Move.Option < 0 || *d.Move.Option > 1 {
			return fmt.Errorf("vote option must be 0 or 1")
		}
		return nil
	}

	// Grid moves share bounds checking.
	size := snap.Grid.Size
	if d.Move.X < 0 || d.Move.X >= size || d.Move.Y < 0 || d.Move.Y >= size {
		return fmt.Errorf("move (%d,%d) outside the %dx%d grid", d.Move.X, d.Move.Y, size, size)
	}
	tile := snap.Grid.Tiles[d.Move.Y*size+d.Move.X]

	switch d.Action {
	case "build":
		if tile.Building != "none" {
			return fmt.Errorf("tile (%d,%d) already holds a %s", d.Move.X, d.Move.Y, tile.Building)
		}
		var cost float64 = -1
		for _, b := range snap.Palette {
			if b.Name == d.Move.Building {
				cost = b.Cost
				break
			}
		}
		if cost < 0 {
			return fmt.Errorf("unknown building %q", d.Move.Building)
		}
		if cost > snap.Status.Money {
			return fmt.Errorf("%s costs %.0f, treasury holds %.0f", d.Move.Building, cost, snap.Status.Money)
		}

	case "upgrade", "demolish":
		if tile.Building == "none" {
			return fmt.Errorf("tile (%d,%d) is empty", d.Move.X, d.Move.Y)
		}
	}

	return nil
}

// formatSnapshot builds a concise prompt from the city snapshot.
func formatSnapshot(snap *CitySnapshot, health *CityHealth) string {
	var b strings.Builder

	s := snap.Status
	fmt.Fprintf(&b, "## City (day %d) — assessment: %s\n", s.Day, health.CrisisLevel)
	fmt.Fprintf(&b, "Treasury: %.0f | Population: %.1f | Housing use: %.0f%%\n",
		s.Money, s.Population, health.HousingUse*100)
	fmt.Fprintf(&b, "Tax rate: %.2f | Growth rate: %.2f | Speed: %.1fx\n\n", s.TaxRate, s.GrowthRate, s.Speed)

	fmt.Fprintf(&b, "## Grid (%dx%d, %d empty tiles)\n", snap.Grid.Size, snap.Grid.Size, health.EmptyTiles)
	if len(health.Counts) == 0 {
		b.WriteString("Nothing built yet.\n")
	}
	for _, p := range snap.Palette {
		if n := health.Counts[p.Name]; n > 0 {
			fmt.Fprintf(&b, "- %s x%d\n", p.Name, n)
		}
	}
	b.WriteString(gridSketch(snap.Grid))
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Palette (affordable now: %s)\n", strings.Join(health.Affordable, ", "))
	for _, p := range snap.Palette {
		fmt.Fprintf(&b, "- %s: cost %.0f, +%.1f pop, +%.1f income, +%.0f housing per level\n",
			p.Name, p.Cost, p.PopGen, p.IncomeGen, p.Housing)
	}
	b.WriteString("\n")

	if snap.Goal != nil {
		fmt.Fprintf(&b, "## Goal\n%s (target %s %.0f, reward %.0f)",
			snap.Goal.Description, snap.Goal.TargetType, snap.Goal.TargetValue, snap.Goal.Reward)
		if snap.Goal.Completed {
			b.WriteString(" — COMPLETED, claim it")
		}
		b.WriteString("\n\n")
	}

	if p := snap.Governance.Active; p != nil {
		fmt.Fprintf(&b, "## Ballot\n%q — %s\n", p.Title, p.Description)
		fmt.Fprintf(&b, "Options: 0=%s, 1=%s (effect: %s)\n", p.Options[0], p.Options[1], p.Effect)
		if p.Audit != nil {
			fmt.Fprintf(&b, "Audit: score %d/100, risk %s — %s\n", p.Audit.Score, p.Audit.Risk, p.Audit.Analysis)
		} else {
			b.WriteString("No audit attached.\n")
		}
		b.WriteString("\n")
	}

	if len(snap.History) > 1 {
		first := snap.History[0]
		last := snap.History[len(snap.History)-1]
		fmt.Fprintf(&b, "## Trends (day %d → %d)\n", first.Day, last.Day)
		fmt.Fprintf(&b, "Treasury: %.0f → %.0f\n", first.Money, last.Money)
		fmt.Fprintf(&b, "Population: %.1f → %.1f\n", first.Population, last.Population)
		fmt.Fprintf(&b, "Housing cap: %.0f → %.0f\n", first.HousingCap, last.HousingCap)
	}

	return b.String()
}

// gridSketch renders the grid as one character per tile so the model can
// pick empty coordinates. Kept to small grids; past 24 wide it is noise.
func gridSketch(g GridData) string {
	if g.Size > 24 || g.Size*g.Size != len(g.Tiles) {
		return ""
	}
	var b strings.Builder
	b.WriteString("Map (. empty, letter = building initial), row y, column x:\n")
	for y := 0; y < g.Size; y++ {
		for x := 0; x < g.Size; x++ {
			t := g.Tiles[y*g.Size+x]
			if t.Building == "none" {
				b.WriteByte('.')
			} else {
				b.WriteByte(t.Building[0])
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
