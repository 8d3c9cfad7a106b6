// Command skyland runs the SkyLand city simulation server.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Harishik/SkyLand/internal/api"
	"github.com/Harishik/SkyLand/internal/config"
	"github.com/Harishik/SkyLand/internal/engine"
	"github.com/Harishik/SkyLand/internal/entropy"
	"github.com/Harishik/SkyLand/internal/llm"
	"github.com/Harishik/SkyLand/internal/persistence"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("SkyLand — Isometric City Simulation")

	cfg := loadConfig()

	// ── Database ──────────────────────────────────────────────────────
	if dir := filepath.Dir(cfg.Server.DBPath); dir != "." {
		os.MkdirAll(dir, 0755)
	}
	db, err := persistence.Open(cfg.Server.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.Server.DBPath)

	// ── Entropy ───────────────────────────────────────────────────────
	var src entropy.Source = entropy.Crypto{}
	switch {
	case cfg.Entropy.Seed != 0:
		src = entropy.Seeded(cfg.Entropy.Seed)
		slog.Info("entropy source", "kind", "seeded", "seed", cfg.Entropy.Seed)
	case cfg.Entropy.RandomOrgKey != "":
		if r := entropy.NewRemote(cfg.Entropy.RandomOrgKey, entropy.Crypto{}); r != nil {
			src = r
			slog.Info("entropy source", "kind", "random.org")
		}
	default:
		slog.Info("entropy source", "kind", "crypto")
	}

	// ── City: fresh or resumed ────────────────────────────────────────
	cat := cfg.Catalog()
	city := engine.NewCity(cfg.Sim, cat, nil, src)

	fresh := false
	st, err := db.LoadState()
	switch {
	case errors.Is(err, persistence.ErrNoState):
		fresh = true
		slog.Info("no saved city found, starting fresh",
			"grid", cfg.Sim.GridSize, "money", cfg.Sim.StartingMoney)
	case err != nil:
		slog.Error("failed to load saved city", "error", err)
		os.Exit(1)
	default:
		if err := city.RestoreState(st); err != nil {
			slog.Error("saved city is unusable", "error", err)
			os.Exit(1)
		}
		savedAt, _ := db.GetMeta("saved_at")
		slog.Info("city restored",
			"day", st.Stats.Day,
			"population", st.Stats.Population,
			"saved_at", savedAt,
		)
	}

	// ── LLM Generation ────────────────────────────────────────────────
	var gen engine.Generator
	if client := llm.NewClient(cfg.LLM); client.Enabled() {
		gen = llm.NewGenerator(client)
		slog.Info("LLM generation enabled", "model", cfg.LLM.Model)
	} else {
		slog.Warn("ANTHROPIC_API_KEY not set — goals, news and proposals will not be generated")
	}

	scheduler := engine.NewScheduler(city, gen, nil, src, cfg.Sim)

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.Server.AdminToken == "" {
		slog.Warn("SKYLAND_ADMIN_TOKEN not set — admin POST endpoints will be disabled")
	}

	server := &api.Server{
		City:         city,
		Scheduler:    scheduler,
		Cat:          cat,
		DB:           db,
		Addr:         cfg.Server.Addr,
		AdminToken:   cfg.Server.AdminToken,
		SnapshotPath: filepath.Join(filepath.Dir(cfg.Server.DBPath), "snapshot.zst"),
	}

	// Every tick: stream to clients, record the stats point, and autosave
	// on a fixed cadence so a crash loses at most half a minute.
	lastSave := time.Now()
	scheduler.OnTick = func(r engine.TickReport) {
		server.OnTick(r)
		if err := db.AppendStats(persistence.StatsRow{
			Day:        r.Day,
			Money:      r.Money,
			Population: r.Population,
			HousingCap: r.HousingCap,
		}); err != nil {
			slog.Warn("stats append failed", "error", err)
		}
		if time.Since(lastSave) >= 30*time.Second {
			lastSave = time.Now()
			if err := saveCity(db, city); err != nil {
				slog.Error("autosave failed", "error", err)
			}
		}
	}

	server.Start()

	if fresh {
		if err := saveCity(db, city); err != nil {
			slog.Error("initial save failed", "error", err)
		}
	}

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		scheduler.Stop()
	}()

	fmt.Printf("\nSkyLand is running on http://localhost%s/api/v1/status\n", displayAddr(cfg.Server.Addr))
	if !fresh {
		fmt.Printf("Resuming from day %d\n", city.Stats().Day)
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	scheduler.Run()

	slog.Info("final save...")
	if err := saveCity(db, city); err != nil {
		slog.Error("final save failed", "error", err)
	}
	fmt.Println("Simulation stopped. City saved.")
}

// loadConfig reads the YAML config named by the first argument (default
// skyland.yaml), falling back to stock settings when no file exists.
// Environment overrides apply last either way.
func loadConfig() *config.Config {
	path := "skyland.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	cfg, err := config.Load(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Error("failed to load config", "path", path, "error", err)
			os.Exit(1)
		}
		slog.Info("no config file, using defaults", "path", path)
		cfg = config.Default()
	} else {
		slog.Info("config loaded", "path", path)
	}

	cfg.ApplyDefaults()
	return config.FromEnv(cfg)
}

func saveCity(db *persistence.DB, city *engine.City) error {
	if err := db.SaveState(city.ExportState()); err != nil {
		return err
	}
	return db.SaveMeta("saved_at", time.Now().UTC().Format(time.RFC3339))
}

// displayAddr reduces a listen address to its port for the startup banner.
func displayAddr(addr string) string {
	if i := strings.LastIndexByte(addr, ':'); i >= 0 {
		return addr[i:]
	}
	return addr
}
