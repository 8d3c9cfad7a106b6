// Package mayor implements the autonomous city player. It watches the
// city through the public API, sizes up what needs doing, asks the model
// for at most one move per cycle, and plays that move back through the
// same endpoints a human player would use.
package mayor

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// CitySnapshot holds everything collected during an observation cycle.
type CitySnapshot struct {
	Status     CityStatus     `json:"status"`
	Grid       GridData       `json:"grid"`
	Palette    []BuildingInfo `json:"palette"`
	Goal       *GoalInfo      `json:"goal"`
	Governance GovernanceInfo `json:"governance"`
	History    []StatsRow     `json:"history"`
}

// CityStatus mirrors GET /api/v1/status.
type CityStatus struct {
	Name       string  `json:"name"`
	Day        int     `json:"day"`
	Money      float64 `json:"money"`
	Population float64 `json:"population"`
	TaxRate    float64 `json:"tax_rate"`
	GrowthRate float64 `json:"growth_rate"`
	Buildings  int     `json:"buildings"`
	GridSize   int     `json:"grid_size"`
	Speed      float64 `json:"speed"`
	AIEnabled  bool    `json:"ai_enabled"`
	GoalSet    bool    `json:"goal_set"`
	ProposalUp bool    `json:"proposal_up"`
}

// GridData mirrors GET /api/v1/grid.
type GridData struct {
	Size  int        `json:"size"`
	Tiles []TileInfo `json:"tiles"`
}

// TileInfo is one grid cell, row-major.
type TileInfo struct {
	Building string `json:"building"`
	Level    int    `json:"level"`
}

// BuildingInfo mirrors items from GET /api/v1/buildings.
type BuildingInfo struct {
	Name      string  `json:"name"`
	Cost      float64 `json:"cost"`
	PopGen    float64 `json:"pop_gen"`
	IncomeGen float64 `json:"income_gen"`
	Housing   float64 `json:"housing"`
}

// GoalInfo mirrors the goal object from GET /api/v1/goal.
type GoalInfo struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	TargetType  string  `json:"target_type"`
	TargetValue float64 `json:"target_value"`
	Reward      float64 `json:"reward"`
	Completed   bool    `json:"completed"`
}

// GovernanceInfo mirrors GET /api/v1/governance.
type GovernanceInfo struct {
	Active *ProposalInfo `json:"active"`
}

// ProposalInfo is the ballot as the API shows it.
type ProposalInfo struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Options     [2]string  `json:"options"`
	Effect      string     `json:"effect"`
	Audit       *AuditInfo `json:"audit"`
}

// AuditInfo is the attached review, when one has been run.
type AuditInfo struct {
	Score    int    `json:"score"`
	Risk     string `json:"risk"`
	Analysis string `json:"analysis"`
}

// StatsRow mirrors items from GET /api/v1/stats/history.
type StatsRow struct {
	Day        int     `json:"day"`
	Money      float64 `json:"money"`
	Population float64 `json:"population"`
	HousingCap float64 `json:"housing_cap"`
}

// Observer fetches city state from the API.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string) *Observer {
	return &Observer{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Observe fetches every view the mayor reasons over.
func (o *Observer) Observe() (*CitySnapshot, error) {
	snap := &CitySnapshot{}

	if err := o.fetchJSON("/api/v1/status", &snap.Status); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	if err := o.fetchJSON("/api/v1/grid", &snap.Grid); err != nil {
		return nil, fmt.Errorf("fetch grid: %w", err)
	}
	if err := o.fetchJSON("/api/v1/buildings", &snap.Palette); err != nil {
		return nil, fmt.Errorf("fetch buildings: %w", err)
	}

	var goal struct {
		Goal *GoalInfo `json:"goal"`
	}
	if err := o.fetchJSON("/api/v1/goal", &goal); err != nil {
		return nil, fmt.Errorf("fetch goal: %w", err)
	}
	snap.Goal = goal.Goal

	if err := o.fetchJSON("/api/v1/governance", &snap.Governance); err != nil {
		return nil, fmt.Errorf("fetch governance: %w", err)
	}
	if err := o.fetchJSON("/api/v1/stats/history?limit=10", &snap.History); err != nil {
		return nil, fmt.Errorf("fetch stats history: %w", err)
	}

	return snap, nil
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(path string, target any) error {
	resp, err := o.HTTPClient.Get(o.BaseURL + path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
