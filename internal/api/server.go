// Package api serves the city over HTTP. GET endpoints are public
// read-only views of one state family each; POST endpoints carry player
// actions; a small admin plane (speed, snapshot) sits behind a bearer
// token. A websocket stream pushes tick reports and state transitions.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Harishik/SkyLand/internal/catalog"
	"github.com/Harishik/SkyLand/internal/engine"
	"github.com/Harishik/SkyLand/internal/persistence"
)

// Server serves the city state over HTTP.
type Server struct {
	City         *engine.City
	Scheduler    *engine.Scheduler
	Cat          *catalog.Catalog
	DB           *persistence.DB
	Addr         string
	AdminToken   string // Bearer token for admin endpoints. Empty = admin disabled.
	SnapshotPath string // Where POST /api/v1/snapshot writes its export.

	hub *Hub

	// Transition fingerprints for the stream diff. Touched only from the
	// scheduler goroutine via OnTick.
	lastNewsID      string
	lastGoalKey     string
	lastProposalKey string
	lastResolvedID  string
}

// routes wires the mux and starts the stream hub. Call once.
func (s *Server) routes() http.Handler {
	if s.hub == nil {
		s.hub = newHub()
		go s.hub.run()
	}
	s.primeTransitions()

	// Budget for endpoints that can trigger generation calls, plus a
	// looser one for the action firehose.
	auditLimiter := NewRateLimiter(10, time.Minute)
	actionLimiter := NewRateLimiter(120, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/grid", s.handleGrid)
	mux.HandleFunc("/api/v1/tile/", s.handleTileDetail)
	mux.HandleFunc("/api/v1/buildings", s.handleBuildings)
	mux.HandleFunc("/api/v1/news", s.handleNews)
	mux.HandleFunc("/api/v1/goal", s.handleGoal)
	mux.HandleFunc("/api/v1/token", s.handleToken)
	mux.HandleFunc("/api/v1/governance", s.handleGovernance)
	mux.HandleFunc("/api/v1/ledger", s.handleLedger)
	mux.HandleFunc("/api/v1/stats/history", s.handleStatsHistory)

	// Player endpoints (POST).
	mux.HandleFunc("/api/v1/actions", RateLimitMiddleware(actionLimiter, s.handleActions))
	mux.HandleFunc("/api/v1/goal/claim", s.handleGoalClaim)
	mux.HandleFunc("/api/v1/ai", s.handleAI)
	mux.HandleFunc("/api/v1/token/", s.handleTokenOps)
	mux.HandleFunc("/api/v1/governance/vote", s.handleVote)
	mux.HandleFunc("/api/v1/governance/audit", RateLimitMiddleware(auditLimiter, s.handleAudit))

	// Event stream.
	mux.HandleFunc("/api/v1/ws", s.handleWS)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(s.handleSnapshot))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	handler := s.routes()
	slog.Info("HTTP API starting", "addr", s.Addr, "admin_auth", s.AdminToken != "")

	go func() {
		if err := http.ListenAndServe(s.Addr, handler); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of extra allowed origins;
// localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminToken
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminToken == "" {
				http.Error(w, "admin endpoints disabled (no SKYLAND_ADMIN_TOKEN set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.City.Stats()
	mods := s.City.Modifiers()

	buildings := 0
	for _, n := range s.City.BuildingCounts() {
		buildings += n
	}

	status := map[string]any{
		"name":        "SkyLand",
		"day":         stats.Day,
		"money":       stats.Money,
		"population":  stats.Population,
		"tax_rate":    mods.TaxRate,
		"growth_rate": mods.GrowthRate,
		"buildings":   buildings,
		"grid_size":   s.City.GridSize(),
		"speed":       s.Scheduler.Speed(),
		"ai_enabled":  s.Scheduler.AIEnabled(),
		"goal_set":    s.City.Goal() != nil,
		"proposal_up": s.City.HasProposal(),
	}
	writeJSON(w, status)
}

func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"size":  s.City.GridSize(),
		"tiles": s.City.Tiles(),
	})
}

// handleTileDetail answers GET /api/v1/tile/:x/:y with the tile plus its
// current per-tick yields.
func (s *Server) handleTileDetail(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 6 {
		http.Error(w, "missing tile coordinates", http.StatusBadRequest)
		return
	}
	x, errX := strconv.Atoi(parts[4])
	y, errY := strconv.Atoi(parts[5])
	if errX != nil || errY != nil {
		http.Error(w, "invalid tile coordinates", http.StatusBadRequest)
		return
	}

	tile, ok := s.City.TileAt(x, y)
	if !ok {
		http.Error(w, "tile not found", http.StatusNotFound)
		return
	}

	result := map[string]any{
		"x":        x,
		"y":        y,
		"building": tile.Type.String(),
		"level":    tile.Level,
		"occupied": tile.Occupied(),
	}
	if tile.Occupied() {
		e := s.Cat.Entry(tile.Type)
		lvl := float64(tile.Level)
		result["income_per_tick"] = e.IncomeGen * lvl
		result["pop_per_tick"] = e.PopGen * lvl
		result["housing"] = e.Housing * lvl
		result["upgrade_cost"] = s.Cat.UpgradeCost(tile.Type, tile.Level)
	}
	writeJSON(w, result)
}

func (s *Server) handleBuildings(w http.ResponseWriter, r *http.Request) {
	type buildingEntry struct {
		Name      string  `json:"name"`
		Cost      float64 `json:"cost"`
		PopGen    float64 `json:"pop_gen"`
		IncomeGen float64 `json:"income_gen"`
		Housing   float64 `json:"housing"`
	}

	types := catalog.Types()
	result := make([]buildingEntry, 0, len(types))
	for _, t := range types {
		e := s.Cat.Entry(t)
		result = append(result, buildingEntry{
			Name:      t.String(),
			Cost:      e.Cost,
			PopGen:    e.PopGen,
			IncomeGen: e.IncomeGen,
			Housing:   e.Housing,
		})
	}
	writeJSON(w, result)
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	news := s.City.News()
	if news == nil {
		news = []engine.News{}
	}
	writeJSON(w, news)
}

func (s *Server) handleGoal(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"goal": s.City.Goal()})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.City.Token())
}

func (s *Server) handleGovernance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"active":        s.City.Proposal(),
		"last_resolved": s.City.LastResolved(),
	})
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	ledger := s.City.Ledger()
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v < len(ledger) {
			ledger = ledger[len(ledger)-v:]
		}
	}
	if ledger == nil {
		ledger = []engine.Transaction{}
	}
	writeJSON(w, ledger)
}

func (s *Server) handleStatsHistory(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	fromDay, toDay := 0, 0
	limit := 30

	if f := r.URL.Query().Get("from"); f != "" {
		if v, err := strconv.Atoi(f); err == nil && v >= 0 {
			fromDay = v
		}
	}
	if t := r.URL.Query().Get("to"); t != "" {
		if v, err := strconv.Atoi(t); err == nil && v >= 0 {
			toDay = v
		}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}

	rows, err := s.DB.LoadStatsHistory(fromDay, toDay, limit)
	if err != nil {
		slog.Error("stats history query failed", "error", err)
		// Return an empty array instead of an error; the table may simply
		// have no data yet.
		writeJSON(w, []persistence.StatsRow{})
		return
	}
	if rows == nil {
		rows = []persistence.StatsRow{}
	}
	writeJSON(w, rows)
}

// handleActions applies a grid action: place, demolish, or upgrade.
func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Action   string `json:"action"`
		X        int    `json:"x"`
		Y        int    `json:"y"`
		Building string `json:"building,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	var outcome engine.Outcome
	switch req.Action {
	case "place":
		t, ok := catalog.ParseBuildingType(req.Building)
		if !ok || t == catalog.None {
			http.Error(w, "unknown building type", http.StatusBadRequest)
			return
		}
		outcome = s.City.Place(req.X, req.Y, t)
	case "demolish":
		outcome = s.City.Demolish(req.X, req.Y)
	case "upgrade":
		outcome = s.City.Upgrade(req.X, req.Y)
	default:
		http.Error(w, "unknown action (use: place, demolish, upgrade)", http.StatusBadRequest)
		return
	}

	switch outcome {
	case engine.OutcomeApplied:
		writeJSON(w, map[string]any{
			"outcome": outcome.String(),
			"stats":   s.City.Stats(),
		})
	case engine.OutcomeSelected:
		// A build click on an existing building is a selection; hand the
		// tile back so the client can show its details.
		tile, _ := s.City.TileAt(req.X, req.Y)
		writeJSON(w, map[string]any{
			"outcome": outcome.String(),
			"tile": map[string]any{
				"x":        req.X,
				"y":        req.Y,
				"building": tile.Type.String(),
				"level":    tile.Level,
			},
		})
	case engine.OutcomeNoFunds:
		http.Error(w, "not enough funds", http.StatusPaymentRequired)
	default:
		http.Error(w, "invalid target", http.StatusBadRequest)
	}
}

func (s *Server) handleGoalClaim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	outcome, reward := s.City.ClaimGoal()
	if outcome != engine.OutcomeApplied {
		http.Error(w, "no completed goal to claim", http.StatusConflict)
		return
	}
	writeJSON(w, map[string]any{
		"claimed": true,
		"reward":  reward,
		"money":   s.City.Stats().Money,
	})
}

func (s *Server) handleAI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		http.Error(w, "enabled (true/false) required", http.StatusBadRequest)
		return
	}

	s.Scheduler.SetAI(*req.Enabled)
	writeJSON(w, map[string]any{"ai_enabled": s.Scheduler.AIEnabled()})
}

// handleTokenOps routes POST /api/v1/token/:op for connect, buy, sell,
// stake and unstake.
func (s *Server) handleTokenOps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 5 || parts[4] == "" {
		http.Error(w, "missing token operation", http.StatusBadRequest)
		return
	}
	op := parts[4]

	if op == "connect" {
		s.City.ConnectToken()
		// Connecting twice is harmless, so both paths answer the same.
		writeJSON(w, s.City.Token())
		return
	}

	var req struct {
		Amount float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 {
		http.Error(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	var outcome engine.Outcome
	switch op {
	case "buy":
		outcome = s.City.BuyTokens(req.Amount)
	case "sell":
		outcome = s.City.SellTokens(req.Amount)
	case "stake":
		outcome = s.City.Stake(req.Amount)
	case "unstake":
		outcome = s.City.Unstake(req.Amount)
	default:
		http.Error(w, "unknown token operation (use: connect, buy, sell, stake, unstake)", http.StatusBadRequest)
		return
	}

	switch outcome {
	case engine.OutcomeApplied:
		writeJSON(w, map[string]any{
			"token": s.City.Token(),
			"money": s.City.Stats().Money,
		})
	case engine.OutcomeNoFunds:
		http.Error(w, "insufficient funds or balance", http.StatusPaymentRequired)
	default:
		http.Error(w, "wallet not connected", http.StatusConflict)
	}
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Option *int `json:"option"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Option == nil {
		http.Error(w, "option required", http.StatusBadRequest)
		return
	}
	if *req.Option < 0 || *req.Option > 1 {
		http.Error(w, "option must be 0 or 1", http.StatusBadRequest)
		return
	}

	outcome, resolved := s.City.Vote(*req.Option)
	if outcome != engine.OutcomeApplied {
		http.Error(w, "no active proposal", http.StatusConflict)
		return
	}
	writeJSON(w, map[string]any{
		"proposal":  resolved,
		"modifiers": s.City.Modifiers(),
		"money":     s.City.Stats().Money,
	})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.Scheduler.RequestAudit() {
		http.Error(w, "nothing to audit", http.StatusConflict)
		return
	}
	writeJSON(w, map[string]any{"auditing": true})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed *float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Speed == nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if *req.Speed < 0 || *req.Speed > 16 {
			http.Error(w, "speed must be 0-16", http.StatusBadRequest)
			return
		}
		s.Scheduler.SetSpeed(*req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Scheduler.Speed()})
}

// handleSnapshot saves the city to the database and writes a portable
// snapshot file.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	st := s.City.ExportState()
	if err := s.DB.SaveState(st); err != nil {
		slog.Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}

	path := s.SnapshotPath
	if path == "" {
		path = "data/snapshot.zst"
	}
	if err := persistence.WriteSnapshot(path, st); err != nil {
		slog.Error("snapshot file write failed", "error", err, "path", path)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}
	if err := s.DB.SaveMeta("last_snapshot", path); err != nil {
		slog.Warn("snapshot meta update failed", "error", err)
	}

	writeJSON(w, map[string]any{
		"day":     st.Stats.Day,
		"file":    path,
		"message": "snapshot saved",
	})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
