package config

import (
	"os"
	"strconv"
)

// FromEnv applies SKYLAND_* environment overrides on top of cfg. Env wins
// over YAML so deploys can adjust a value without shipping a file.
func FromEnv(cfg *Config) *Config {
	if cfg == nil {
		cfg = Default()
	}

	if v := os.Getenv("SKYLAND_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("SKYLAND_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("SKYLAND_DB_PATH"); v != "" {
		cfg.Server.DBPath = v
	}

	if v := envInt("SKYLAND_TICK_MS"); v > 0 {
		cfg.Sim.TickMS = v
	}
	if v := envInt("SKYLAND_GRID_SIZE"); v > 0 {
		cfg.Sim.GridSize = v
	}
	if v, ok := envFloat("SKYLAND_STARTING_MONEY"); ok {
		cfg.Sim.StartingMoney = v
	}
	if v, ok := envBool("SKYLAND_AI_ENABLED"); ok {
		cfg.Sim.AIEnabled = &v
	}

	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("SKYLAND_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("SKYLAND_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}

	if v := envInt64("SKYLAND_SEED"); v != 0 {
		cfg.Entropy.Seed = v
	}
	if v := os.Getenv("RANDOM_ORG_KEY"); v != "" {
		cfg.Entropy.RandomOrgKey = v
	}

	return cfg
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envInt64(key string) int64 {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}
