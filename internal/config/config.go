// Package config carries every tunable the simulation reads at startup.
// Values come from Default, optionally a YAML file, then SKYLAND_* env
// overrides, in that order.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Harishik/SkyLand/internal/catalog"
)

type Config struct {
	Server    Server                   `yaml:"server" json:"server"`
	Sim       Sim                      `yaml:"sim" json:"sim"`
	LLM       LLM                      `yaml:"llm" json:"llm"`
	Entropy   Entropy                  `yaml:"entropy" json:"entropy"`
	Buildings map[string]catalog.Entry `yaml:"buildings" json:"buildings,omitempty"`
}

type Server struct {
	Addr       string `yaml:"addr" json:"addr"`
	AdminToken string `yaml:"admin_token" json:"-"`
	DBPath     string `yaml:"db_path" json:"db_path"`
}

// Sim holds the balance numbers. Timing fields are integer seconds or
// milliseconds so they round-trip through YAML and env vars cleanly.
type Sim struct {
	TickMS             int     `yaml:"tick_ms" json:"tick_ms"`
	GridSize           int     `yaml:"grid_size" json:"grid_size"`
	StartingMoney      float64 `yaml:"starting_money" json:"starting_money"`
	StartingPopulation float64 `yaml:"starting_population" json:"starting_population"`
	DemolitionCost     float64 `yaml:"demolition_cost" json:"demolition_cost"`
	DeclineRate        float64 `yaml:"decline_rate" json:"decline_rate"`
	FestivalCost       float64 `yaml:"festival_cost" json:"festival_cost"`
	NewsCap            int     `yaml:"news_cap" json:"news_cap"`
	LedgerCap          int     `yaml:"ledger_cap" json:"ledger_cap"`

	TokenPrice    float64 `yaml:"token_price" json:"token_price"`
	TokenFloor    float64 `yaml:"token_floor" json:"token_floor"`
	MiningDivisor float64 `yaml:"mining_divisor" json:"mining_divisor"`
	MiningRate    float64 `yaml:"mining_rate" json:"mining_rate"`
	StakeDivisor  float64 `yaml:"stake_divisor" json:"stake_divisor"`

	GoalRetrySec      int     `yaml:"goal_retry_sec" json:"goal_retry_sec"`
	NewsWindowSec     int     `yaml:"news_window_sec" json:"news_window_sec"`
	NewsChance        float64 `yaml:"news_chance" json:"news_chance"`
	ProposalWindowSec int     `yaml:"proposal_window_sec" json:"proposal_window_sec"`
	ProposalChance    float64 `yaml:"proposal_chance" json:"proposal_chance"`
	ProposalLifeDays  int     `yaml:"proposal_life_days" json:"proposal_life_days"`

	// AIEnabled is a pointer so an explicit false in YAML survives; nil
	// means the default (on).
	AIEnabled *bool `yaml:"ai_enabled" json:"ai_enabled,omitempty"`
}

type LLM struct {
	APIKey    string `yaml:"api_key" json:"-"`
	Model     string `yaml:"model" json:"model"`
	BaseURL   string `yaml:"base_url" json:"base_url"`
	MaxTokens int    `yaml:"max_tokens" json:"max_tokens"`
}

type Entropy struct {
	// Seed pins the RNG for reproducible runs; zero means draw real
	// entropy instead.
	Seed         int64  `yaml:"seed" json:"seed"`
	RandomOrgKey string `yaml:"random_org_key" json:"-"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Server: Server{
			Addr:   ":8080",
			DBPath: "data/skyland.db",
		},
		Sim: Sim{
			TickMS:             1000,
			GridSize:           12,
			StartingMoney:      1000,
			StartingPopulation: 0,
			DemolitionCost:     20,
			DeclineRate:        5,
			FestivalCost:       500,
			NewsCap:            13,
			LedgerCap:          50,
			TokenPrice:         100,
			TokenFloor:         10,
			MiningDivisor:      100,
			MiningRate:         0.1,
			StakeDivisor:       1000,
			GoalRetrySec:       60,
			NewsWindowSec:      60,
			NewsChance:         0.01,
			ProposalWindowSec:  30,
			ProposalChance:     0.10,
			ProposalLifeDays:   5,
		},
		LLM: LLM{
			Model:     "claude-3-5-haiku-20241022",
			BaseURL:   "https://api.anthropic.com/v1/messages",
			MaxTokens: 1024,
		},
	}
}

// Load reads a YAML config file and fills gaps from the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills any zero-valued field with its stock value.
func (c *Config) ApplyDefaults() {
	d := Default()
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.DBPath == "" {
		c.Server.DBPath = d.Server.DBPath
	}
	s, ds := &c.Sim, d.Sim
	if s.TickMS <= 0 {
		s.TickMS = ds.TickMS
	}
	if s.GridSize <= 0 {
		s.GridSize = ds.GridSize
	}
	if s.StartingMoney == 0 {
		s.StartingMoney = ds.StartingMoney
	}
	if s.DemolitionCost == 0 {
		s.DemolitionCost = ds.DemolitionCost
	}
	if s.DeclineRate == 0 {
		s.DeclineRate = ds.DeclineRate
	}
	if s.FestivalCost == 0 {
		s.FestivalCost = ds.FestivalCost
	}
	if s.NewsCap <= 0 {
		s.NewsCap = ds.NewsCap
	}
	if s.LedgerCap <= 0 {
		s.LedgerCap = ds.LedgerCap
	}
	if s.TokenPrice == 0 {
		s.TokenPrice = ds.TokenPrice
	}
	if s.TokenFloor == 0 {
		s.TokenFloor = ds.TokenFloor
	}
	if s.MiningDivisor == 0 {
		s.MiningDivisor = ds.MiningDivisor
	}
	if s.MiningRate == 0 {
		s.MiningRate = ds.MiningRate
	}
	if s.StakeDivisor == 0 {
		s.StakeDivisor = ds.StakeDivisor
	}
	if s.GoalRetrySec <= 0 {
		s.GoalRetrySec = ds.GoalRetrySec
	}
	if s.NewsWindowSec <= 0 {
		s.NewsWindowSec = ds.NewsWindowSec
	}
	if s.NewsChance == 0 {
		s.NewsChance = ds.NewsChance
	}
	if s.ProposalWindowSec <= 0 {
		s.ProposalWindowSec = ds.ProposalWindowSec
	}
	if s.ProposalChance == 0 {
		s.ProposalChance = ds.ProposalChance
	}
	if s.ProposalLifeDays <= 0 {
		s.ProposalLifeDays = ds.ProposalLifeDays
	}
	if c.LLM.Model == "" {
		c.LLM.Model = d.LLM.Model
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = d.LLM.BaseURL
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = d.LLM.MaxTokens
	}
}

// AI reports whether background generation starts enabled.
func (s Sim) AI() bool {
	return s.AIEnabled == nil || *s.AIEnabled
}

func (s Sim) TickInterval() time.Duration {
	return time.Duration(s.TickMS) * time.Millisecond
}

func (s Sim) GoalRetry() time.Duration {
	return time.Duration(s.GoalRetrySec) * time.Second
}

func (s Sim) NewsWindow() time.Duration {
	return time.Duration(s.NewsWindowSec) * time.Second
}

func (s Sim) ProposalWindow() time.Duration {
	return time.Duration(s.ProposalWindowSec) * time.Second
}

// Catalog builds the building table with any YAML overrides applied.
func (c *Config) Catalog() *catalog.Catalog {
	if len(c.Buildings) == 0 {
		return catalog.Default()
	}
	overrides := make(map[catalog.BuildingType]catalog.Entry, len(c.Buildings))
	for name, entry := range c.Buildings {
		t, ok := catalog.ParseBuildingType(name)
		if !ok || t == catalog.None {
			continue
		}
		overrides[t] = entry
	}
	return catalog.New(overrides)
}
