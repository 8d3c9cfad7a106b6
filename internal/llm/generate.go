// Content generation for the city: each call renders a snapshot into a
// prompt, asks the model for JSON, and validates the reply against an
// embedded schema before anything reaches the simulation.
package llm

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Harishik/SkyLand/internal/catalog"
	"github.com/Harishik/SkyLand/internal/engine"
)

//go:embed schemas/*.json
var schemaFS embed.FS

func mustSchema(name string) *jsonschema.Schema {
	data, err := schemaFS.ReadFile("schemas/" + name)
	if err != nil {
		panic(err)
	}
	return jsonschema.MustCompileString(name, string(data))
}

var (
	goalSchema     = mustSchema("goal.schema.json")
	newsSchema     = mustSchema("news.schema.json")
	proposalSchema = mustSchema("proposal.schema.json")
	auditSchema    = mustSchema("audit.schema.json")
)

// Generator produces goals, news, proposals and audits for the scheduler.
// It implements engine.Generator.
type Generator struct {
	client *Client
}

// NewGenerator wraps an API client.
func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

// Goal asks for the city's next development goal.
func (g *Generator) Goal(ctx context.Context, snap engine.Snapshot) (engine.Goal, error) {
	system := `You are the city planning advisor of SkyLand, a growing isometric city. You set development goals for the mayor.

Respond ONLY with a single JSON object:
- "description": one sentence describing the goal
- "target_type": one of "money", "population", "building_count"
- "target_value": the number to reach
- "building": required when target_type is "building_count" — one of "road", "residential", "commercial", "industrial", "park", "school", "hospital", "entertainment"
- "reward": the coin payout for reaching the goal

Pick a target somewhat beyond the city's current numbers so it takes several days of play, and scale the reward to the effort.`

	reply, err := g.client.Complete(ctx, system, buildGoalPrompt(snap), 400)
	if err != nil {
		return engine.Goal{}, fmt.Errorf("goal generation: %w", err)
	}
	return parseGoal(reply)
}

// News asks for one headline about the city.
func (g *Generator) News(ctx context.Context, snap engine.Snapshot) (string, engine.NewsKind, error) {
	system := `You are the editor of "The SkyLand Herald", the city's daily paper. You write short, punchy headlines about city life: openings, closures, festivals, market moves, civic gossip. Stay in character; never reference the game or the simulation.

Respond ONLY with a single JSON object:
- "headline": one or two sentences of city news
- "kind": one of "positive", "negative", "neutral"`

	reply, err := g.client.Complete(ctx, system, buildNewsPrompt(snap), 200)
	if err != nil {
		return "", "", fmt.Errorf("news generation: %w", err)
	}
	return parseNews(reply)
}

// Proposal asks for the next governance ballot measure.
func (g *Generator) Proposal(ctx context.Context, snap engine.Snapshot) (engine.Proposal, error) {
	system := `You are the clerk of the SkyLand city council. You draft governance proposals for the mayor to vote on.

Respond ONLY with a single JSON object:
- "title": a short name for the measure
- "description": one or two sentences on what it does
- "options": exactly two choices, the first approving the measure and the second rejecting it
- "effect": one of "tax_break", "population_boom", "austerity", "festival"
- "code": optional, a short pseudo-code sketch of the measure

Effects if passed:
- tax_break: raises the income multiplier to 1.2
- population_boom: raises the growth multiplier to 1.5
- austerity: cuts both multipliers to 0.8
- festival: doubles growth and spends 500 coins from the treasury

Pick the effect that fits the city's situation.`

	reply, err := g.client.Complete(ctx, system, buildProposalPrompt(snap), 500)
	if err != nil {
		return engine.Proposal{}, fmt.Errorf("proposal generation: %w", err)
	}
	return parseProposal(reply)
}

// Audit asks for an independent review of a pending proposal.
func (g *Generator) Audit(ctx context.Context, p engine.Proposal) (engine.Audit, error) {
	system := `You are an independent auditor reviewing a city governance proposal before the vote.

Respond ONLY with a single JSON object:
- "score": 0-100, overall soundness of the measure
- "risk": one of "low", "medium", "critical"
- "analysis": two or three sentences on the measure's likely impact`

	reply, err := g.client.Complete(ctx, system, buildAuditPrompt(p), 400)
	if err != nil {
		return engine.Audit{}, fmt.Errorf("audit generation: %w", err)
	}
	return parseAudit(reply)
}

// describeCity renders the snapshot lines every prompt shares.
func describeCity(snap engine.Snapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Day %d. Treasury: %.0f coins. Population: %.0f.\n",
		snap.Stats.Day, snap.Stats.Money, snap.Stats.Population)

	wrote := false
	for _, t := range catalog.Types() {
		n := snap.Counts[t]
		if n == 0 {
			continue
		}
		if !wrote {
			b.WriteString("Buildings: ")
		} else {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%d %s", n, t)
		wrote = true
	}
	if wrote {
		b.WriteString(".\n")
	} else {
		b.WriteString("The map is still empty.\n")
	}

	fmt.Fprintf(&b, "Income multiplier %.1fx, growth multiplier %.1fx.\n",
		snap.Modifiers.TaxRate, snap.Modifiers.GrowthRate)

	if snap.Token.Connected {
		fmt.Fprintf(&b, "Token wallet connected: %.2f SKY held, %.2f staked, price %.2f coins.\n",
			snap.Token.Balance, snap.Token.Staked, snap.Token.Price)
	}

	if len(snap.Recent) > 0 {
		b.WriteString("Recent mayor actions:\n")
		for _, r := range snap.Recent {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}

	return b.String()
}

func buildGoalPrompt(snap engine.Snapshot) string {
	var b strings.Builder
	b.WriteString(describeCity(snap))
	b.WriteString("\nPropose the next development goal. Respond with a single JSON object.")
	return b.String()
}

func buildNewsPrompt(snap engine.Snapshot) string {
	var b strings.Builder
	b.WriteString(describeCity(snap))
	if snap.Goal != nil {
		fmt.Fprintf(&b, "Current goal: %s\n", snap.Goal.Description)
	}
	b.WriteString("\nWrite today's headline. Respond with a single JSON object.")
	return b.String()
}

func buildProposalPrompt(snap engine.Snapshot) string {
	var b strings.Builder
	b.WriteString(describeCity(snap))
	b.WriteString("\nDraft the next ballot measure. Respond with a single JSON object.")
	return b.String()
}

func buildAuditPrompt(p engine.Proposal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Measure under review: %s\n", p.Title)
	fmt.Fprintf(&b, "Description: %s\n", p.Description)
	fmt.Fprintf(&b, "Effect if passed: %s\n", p.Effect)
	if p.Code != "" {
		fmt.Fprintf(&b, "Attached code:\n%s\n", p.Code)
	}
	b.WriteString("\nAudit this measure. Respond with a single JSON object.")
	return b.String()
}

// extractObject pulls the first JSON object out of a reply, which may
// wrap it in prose or a code fence.
func extractObject(reply string) ([]byte, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object found in reply")
	}
	return []byte(reply[start : end+1]), nil
}

// checkSchema validates raw JSON against a compiled schema.
func checkSchema(s *jsonschema.Schema, raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	return nil
}

type goalWire struct {
	Description string  `json:"description"`
	TargetType  string  `json:"target_type"`
	TargetValue float64 `json:"target_value"`
	Building    string  `json:"building"`
	Reward      float64 `json:"reward"`
}

func parseGoal(reply string) (engine.Goal, error) {
	raw, err := extractObject(reply)
	if err != nil {
		return engine.Goal{}, err
	}
	if err := checkSchema(goalSchema, raw); err != nil {
		return engine.Goal{}, fmt.Errorf("goal reply: %w", err)
	}

	var w goalWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return engine.Goal{}, fmt.Errorf("parse goal: %w", err)
	}

	target, ok := engine.ParseTargetType(w.TargetType)
	if !ok {
		return engine.Goal{}, fmt.Errorf("unknown goal target %q", w.TargetType)
	}
	goal := engine.Goal{
		Description: w.Description,
		TargetType:  target,
		TargetValue: w.TargetValue,
		Reward:      w.Reward,
	}
	if target == engine.TargetBuildingCount {
		b, ok := catalog.ParseBuildingType(w.Building)
		if !ok || b == catalog.None {
			return engine.Goal{}, fmt.Errorf("goal names no buildable type: %q", w.Building)
		}
		goal.Building = b
	}
	return goal, nil
}

type newsWire struct {
	Headline string `json:"headline"`
	Kind     string `json:"kind"`
}

func parseNews(reply string) (string, engine.NewsKind, error) {
	raw, err := extractObject(reply)
	if err != nil {
		return "", "", err
	}
	if err := checkSchema(newsSchema, raw); err != nil {
		return "", "", fmt.Errorf("news reply: %w", err)
	}

	var w newsWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return "", "", fmt.Errorf("parse news: %w", err)
	}
	return w.Headline, engine.ParseNewsKind(w.Kind), nil
}

type proposalWire struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Options     []string `json:"options"`
	Effect      string   `json:"effect"`
	Code        string   `json:"code"`
}

func parseProposal(reply string) (engine.Proposal, error) {
	raw, err := extractObject(reply)
	if err != nil {
		return engine.Proposal{}, err
	}
	if err := checkSchema(proposalSchema, raw); err != nil {
		return engine.Proposal{}, fmt.Errorf("proposal reply: %w", err)
	}

	var w proposalWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return engine.Proposal{}, fmt.Errorf("parse proposal: %w", err)
	}

	effect, ok := engine.ParseEffect(w.Effect)
	if !ok {
		return engine.Proposal{}, fmt.Errorf("unknown proposal effect %q", w.Effect)
	}
	if len(w.Options) < 2 {
		return engine.Proposal{}, fmt.Errorf("proposal needs two options, got %d", len(w.Options))
	}
	// Extra options are dropped; the ballot is strictly binary.
	return engine.Proposal{
		Title:       w.Title,
		Description: w.Description,
		Options:     [2]string{w.Options[0], w.Options[1]},
		Effect:      effect,
		Code:        w.Code,
	}, nil
}

type auditWire struct {
	Score    int    `json:"score"`
	Risk     string `json:"risk"`
	Analysis string `json:"analysis"`
}

func parseAudit(reply string) (engine.Audit, error) {
	raw, err := extractObject(reply)
	if err != nil {
		return engine.Audit{}, err
	}
	if err := checkSchema(auditSchema, raw); err != nil {
		return engine.Audit{}, fmt.Errorf("audit reply: %w", err)
	}

	var w auditWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return engine.Audit{}, fmt.Errorf("parse audit: %w", err)
	}
	return engine.Audit{Score: w.Score, Risk: w.Risk, Analysis: w.Analysis}, nil
}
