// Command mayor runs the autonomous player for SkyLand. It observes the
// city over the public API, decides one move per cycle with the model,
// and plays it through the same endpoints a human would use.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Harishik/SkyLand/internal/config"
	"github.com/Harishik/SkyLand/internal/llm"
	"github.com/Harishik/SkyLand/internal/mayor"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	apiURL := envOrDefault("SKYLAND_API_URL", "http://localhost:8080")
	intervalSec := envIntOrDefault("MAYOR_INTERVAL", 60)

	cfg := config.FromEnv(config.Default())
	client := llm.NewClient(cfg.LLM)
	if !client.Enabled() {
		slog.Error("ANTHROPIC_API_KEY is required")
		os.Exit(1)
	}

	interval := time.Duration(intervalSec) * time.Second

	slog.Info("SkyLand Mayor starting",
		"api_url", apiURL,
		"interval", interval,
		"model", cfg.LLM.Model,
	)

	observer := mayor.NewObserver(apiURL)
	actor := mayor.NewActor(apiURL)
	memory := mayor.LoadMemory()

	// Wait for the city API before the first cycle; process supervision
	// only guarantees the server started, not that it listens yet.
	slog.Info("waiting for city API...")
	waitForAPI(apiURL)

	runCycle(observer, actor, client, memory)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			runCycle(observer, actor, client, memory)
		case sig := <-sigCh:
			slog.Info("received signal, shutting down", "signal", sig)
			fmt.Println("Mayor stopped.")
			return
		}
	}
}

// runCycle executes one observe → triage → decide → act cycle.
func runCycle(observer *mayor.Observer, actor *mayor.Actor, client *llm.Client, memory *mayor.CycleMemory) {
	slog.Info("mayor cycle starting")

	snap, err := observer.Observe()
	if err != nil {
		slog.Error("observation failed", "error", err)
		return
	}

	health := mayor.Triage(snap)
	slog.Info("observation complete",
		"day", snap.Status.Day,
		"money", fmt.Sprintf("%.0f", snap.Status.Money),
		"population", fmt.Sprintf("%.1f", snap.Status.Population),
		"housing_use", fmt.Sprintf("%.0f%%", health.HousingUse*100),
		"assessment", health.CrisisLevel,
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	decision, err := mayor.Decide(ctx, client, snap, health, memory.FormatForPrompt())
	if err != nil {
		slog.Error("decision failed", "error", err)
		return
	}
	slog.Info("decision made",
		"action", decision.Action,
		"rationale", decision.Rationale,
	)

	record := mayor.CycleRecord{
		Day:         snap.Status.Day,
		Action:      decision.Action,
		Money:       snap.Status.Money,
		Population:  snap.Status.Population,
		CrisisLevel: health.CrisisLevel,
		Rationale:   decision.Rationale,
	}
	if m := decision.Move; m != nil && decision.Action != "vote" {
		what := m.Building
		if what == "" {
			what = decision.Action
		}
		record.Target = fmt.Sprintf("%s@%d,%d", what, m.X, m.Y)
	}

	if decision.Action == "none" {
		memory.Record(record)
		memory.Save()
		slog.Info("mayor cycle complete — no move")
		return
	}

	result, err := actor.Act(decision)
	if err != nil {
		slog.Error("move failed", "error", err)
		return
	}

	memory.Record(record)
	memory.Save()

	slog.Info("move played",
		"action", decision.Action,
		"outcome", result.Outcome,
		"target", record.Target,
	)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

// waitForAPI polls the status endpoint with exponential backoff until it
// responds. Exits after 5 minutes if the API never becomes ready.
func waitForAPI(apiURL string) {
	backoff := 2 * time.Second
	maxBackoff := 30 * time.Second
	deadline := time.Now().Add(5 * time.Minute)

	for {
		resp, err := http.Get(apiURL + "/api/v1/status")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				slog.Info("city API is ready")
				return
			}
		}
		if time.Now().After(deadline) {
			slog.Error("city API did not become ready within 5 minutes")
			os.Exit(1)
		}
		slog.Info("city not ready, retrying...", "backoff", backoff)
		time.Sleep(backoff)
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
