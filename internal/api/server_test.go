package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harishik/SkyLand/internal/catalog"
	"github.com/Harishik/SkyLand/internal/config"
	"github.com/Harishik/SkyLand/internal/engine"
	"github.com/Harishik/SkyLand/internal/persistence"
)

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	return newTestServerWith(t, config.Default(), nil)
}

func newTestServerWith(t *testing.T, cfg *config.Config, gen engine.Generator) (*Server, http.Handler) {
	t.Helper()
	city := engine.NewCity(cfg.Sim, cfg.Catalog(), nil, nil)
	sched := engine.NewScheduler(city, gen, nil, nil, cfg.Sim)
	srv := &Server{
		City:       city,
		Scheduler:  sched,
		Cat:        cfg.Catalog(),
		AdminToken: "hunter2",
	}
	return srv, srv.routes()
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func post(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return postAuth(t, h, path, "", body)
}

func postAuth(t *testing.T, h http.Handler, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), into),
		"body: %s", rec.Body.String())
}

func TestStatusReportsCitySummary(t *testing.T) {
	_, h := newTestServer(t)

	rec := get(t, h, "/api/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]any
	decode(t, rec, &status)
	assert.Equal(t, "SkyLand", status["name"])
	assert.EqualValues(t, 1, status["day"])
	assert.EqualValues(t, 0, status["buildings"])
	assert.EqualValues(t, 1, status["speed"])
	assert.Equal(t, false, status["goal_set"])
	assert.Equal(t, false, status["proposal_up"])
}

func TestGridListsEveryTile(t *testing.T) {
	srv, h := newTestServer(t)
	require.Equal(t, engine.OutcomeApplied, srv.City.Place(0, 0, catalog.Road))

	rec := get(t, h, "/api/v1/grid")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Size  int `json:"size"`
		Tiles []struct {
			Building string `json:"building"`
			Level    int    `json:"level"`
		} `json:"tiles"`
	}
	decode(t, rec, &body)
	assert.Equal(t, srv.City.GridSize(), body.Size)
	require.Len(t, body.Tiles, body.Size*body.Size)
	assert.Equal(t, "road", body.Tiles[0].Building)
	assert.Equal(t, "none", body.Tiles[1].Building)
}

func TestBuildingPaletteExcludesEmpty(t *testing.T) {
	_, h := newTestServer(t)

	rec := get(t, h, "/api/v1/buildings")
	require.Equal(t, http.StatusOK, rec.Code)

	var palette []struct {
		Name string  `json:"name"`
		Cost float64 `json:"cost"`
	}
	decode(t, rec, &palette)
	require.NotEmpty(t, palette)
	assert.Equal(t, "road", palette[0].Name)
	for _, e := range palette {
		assert.NotEqual(t, "none", e.Name)
		assert.Greater(t, e.Cost, 0.0)
	}
}

func TestPlaceBuildingOverHTTP(t *testing.T) {
	srv, h := newTestServer(t)
	before := srv.City.Stats().Money

	rec := post(t, h, "/api/v1/actions", map[string]any{
		"action": "place", "x": 2, "y": 3, "building": "residential",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Outcome string       `json:"outcome"`
		Stats   engine.Stats `json:"stats"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, "applied", resp.Outcome)
	assert.Less(t, resp.Stats.Money, before)

	detail := get(t, h, "/api/v1/tile/2/3")
	require.Equal(t, http.StatusOK, detail.Code)

	var tile map[string]any
	decode(t, detail, &tile)
	assert.Equal(t, "residential", tile["building"])
	assert.EqualValues(t, 1, tile["level"])
	assert.Equal(t, true, tile["occupied"])
	assert.Contains(t, tile, "upgrade_cost")
	assert.Contains(t, tile, "housing")
}

func TestPlaceOnOccupiedTileSelectsIt(t *testing.T) {
	srv, h := newTestServer(t)
	require.Equal(t, engine.OutcomeApplied, srv.City.Place(1, 1, catalog.Park))

	rec := post(t, h, "/api/v1/actions", map[string]any{
		"action": "place", "x": 1, "y": 1, "building": "residential",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Outcome string `json:"outcome"`
		Tile    struct {
			Building string `json:"building"`
		} `json:"tile"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, "selected", resp.Outcome)
	assert.Equal(t, "park", resp.Tile.Building)
}

func TestPlaceWithoutFundsPaymentRequired(t *testing.T) {
	cfg := config.Default()
	cfg.Sim.StartingMoney = 5
	_, h := newTestServerWith(t, cfg, nil)

	rec := post(t, h, "/api/v1/actions", map[string]any{
		"action": "place", "x": 0, "y": 0, "building": "residential",
	})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestActionsInputValidation(t *testing.T) {
	_, h := newTestServer(t)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"unknown action", map[string]any{"action": "paint", "x": 0, "y": 0}},
		{"unknown building", map[string]any{"action": "place", "x": 0, "y": 0, "building": "castle"}},
		{"empty building", map[string]any{"action": "place", "x": 0, "y": 0, "building": "none"}},
		{"out of bounds", map[string]any{"action": "demolish", "x": -1, "y": 0}},
		{"upgrade empty tile", map[string]any{"action": "upgrade", "x": 5, "y": 5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := post(t, h, "/api/v1/actions", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	rec := get(t, h, "/api/v1/actions")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestTileDetailErrors(t *testing.T) {
	_, h := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/tile/99/99").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/tile/a/b").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/tile/").Code)
}

func TestNewsAlwaysAnArray(t *testing.T) {
	srv, h := newTestServer(t)

	rec := get(t, h, "/api/v1/news")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	srv.City.AddNews("Ribbon cut on the new park.", engine.NewsPositive)

	var news []engine.News
	decode(t, get(t, h, "/api/v1/news"), &news)
	require.Len(t, news, 1)
	assert.Equal(t, "Ribbon cut on the new park.", news[0].Text)
}

func TestGoalClaimLifecycle(t *testing.T) {
	srv, h := newTestServer(t)

	// Nothing to claim yet.
	assert.Equal(t, http.StatusConflict, post(t, h, "/api/v1/goal/claim", nil).Code)

	require.True(t, srv.City.SetGoal(engine.Goal{
		Description: "Reach a handful of citizens",
		TargetType:  engine.TargetPopulation,
		TargetValue: 1,
		Reward:      75,
	}))
	srv.City.AdvanceTick() // target already met; tick flips the flag

	before := srv.City.Stats().Money
	rec := post(t, h, "/api/v1/goal/claim", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Claimed bool    `json:"claimed"`
		Reward  float64 `json:"reward"`
		Money   float64 `json:"money"`
	}
	decode(t, rec, &resp)
	assert.True(t, resp.Claimed)
	assert.Equal(t, 75.0, resp.Reward)
	assert.Equal(t, before+75, resp.Money)

	// Slot is empty again.
	assert.Equal(t, http.StatusConflict, post(t, h, "/api/v1/goal/claim", nil).Code)

	var goal struct {
		Goal *engine.Goal `json:"goal"`
	}
	decode(t, get(t, h, "/api/v1/goal"), &goal)
	assert.Nil(t, goal.Goal)
}

func TestAIToggle(t *testing.T) {
	srv, h := newTestServer(t)
	require.True(t, srv.Scheduler.AIEnabled())

	rec := post(t, h, "/api/v1/ai", map[string]any{"enabled": false})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]bool
	decode(t, rec, &resp)
	assert.False(t, resp["ai_enabled"])
	assert.False(t, srv.Scheduler.AIEnabled())

	assert.Equal(t, http.StatusBadRequest, post(t, h, "/api/v1/ai", map[string]any{}).Code)
}

func TestTokenLifecycleOverHTTP(t *testing.T) {
	srv, h := newTestServer(t)

	// Everything but connect needs a wallet first.
	rec := post(t, h, "/api/v1/token/buy", map[string]any{"amount": 5})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = post(t, h, "/api/v1/token/connect", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tok engine.Token
	decode(t, rec, &tok)
	assert.True(t, tok.Connected)

	// Connecting twice is a no-op, not an error.
	assert.Equal(t, http.StatusOK, post(t, h, "/api/v1/token/connect", nil).Code)

	before := srv.City.Stats().Money
	rec = post(t, h, "/api/v1/token/buy", map[string]any{"amount": 5})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Token engine.Token `json:"token"`
		Money float64      `json:"money"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, 5.0, resp.Token.Balance)
	assert.Less(t, resp.Money, before)

	rec = post(t, h, "/api/v1/token/stake", map[string]any{"amount": 3})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.Equal(t, 3.0, resp.Token.Staked)
	assert.Equal(t, 2.0, resp.Token.Balance)

	// More than the liquid balance.
	rec = post(t, h, "/api/v1/token/sell", map[string]any{"amount": 100})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	assert.Equal(t, http.StatusBadRequest,
		post(t, h, "/api/v1/token/buy", map[string]any{"amount": 0}).Code)
	assert.Equal(t, http.StatusBadRequest,
		post(t, h, "/api/v1/token/burn", map[string]any{"amount": 1}).Code)
}

func TestVoteResolvesProposal(t *testing.T) {
	srv, h := newTestServer(t)

	assert.Equal(t, http.StatusConflict,
		post(t, h, "/api/v1/governance/vote", map[string]any{"option": 0}).Code)

	srv.City.ConnectToken()
	require.True(t, srv.City.OpenProposal(engine.Proposal{
		Title:       "Tax holiday",
		Description: "Suspend part of the levy for a season.",
		Options:     [2]string{"Approve", "Reject"},
		Effect:      engine.EffectTaxBreak,
	}))

	assert.Equal(t, http.StatusBadRequest,
		post(t, h, "/api/v1/governance/vote", map[string]any{"option": 2}).Code)
	assert.Equal(t, http.StatusBadRequest,
		post(t, h, "/api/v1/governance/vote", map[string]any{}).Code)

	rec := post(t, h, "/api/v1/governance/vote", map[string]any{"option": 0})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Proposal  engine.Proposal  `json:"proposal"`
		Modifiers engine.Modifiers `json:"modifiers"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, engine.ProposalPassed, resp.Proposal.Status)
	assert.Equal(t, 1.2, resp.Modifiers.TaxRate)

	// Slot cleared; the resolved proposal is still visible.
	var gov struct {
		Active       *engine.Proposal `json:"active"`
		LastResolved *engine.Proposal `json:"last_resolved"`
	}
	decode(t, get(t, h, "/api/v1/governance"), &gov)
	assert.Nil(t, gov.Active)
	require.NotNil(t, gov.LastResolved)
	assert.Equal(t, "Tax holiday", gov.LastResolved.Title)
}

type auditOnlyGen struct{}

func (auditOnlyGen) Goal(ctx context.Context, snap engine.Snapshot) (engine.Goal, error) {
	return engine.Goal{}, errors.New("unavailable")
}

func (auditOnlyGen) News(ctx context.Context, snap engine.Snapshot) (string, engine.NewsKind, error) {
	return "", engine.NewsNeutral, errors.New("unavailable")
}

func (auditOnlyGen) Proposal(ctx context.Context, snap engine.Snapshot) (engine.Proposal, error) {
	return engine.Proposal{}, errors.New("unavailable")
}

func (auditOnlyGen) Audit(ctx context.Context, p engine.Proposal) (engine.Audit, error) {
	return engine.Audit{Score: 61, Risk: "low", Analysis: "Modest and reversible."}, nil
}

func TestAuditEndpoint(t *testing.T) {
	// Without a generator there is nothing to audit with.
	_, h := newTestServer(t)
	assert.Equal(t, http.StatusConflict, post(t, h, "/api/v1/governance/audit", nil).Code)

	srv, h := newTestServerWith(t, config.Default(), auditOnlyGen{})
	srv.City.ConnectToken()
	require.True(t, srv.City.OpenProposal(engine.Proposal{
		Title:   "Night market",
		Options: [2]string{"Approve", "Reject"},
		Effect:  engine.EffectFestival,
	}))

	rec := post(t, h, "/api/v1/governance/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]bool
	decode(t, rec, &resp)
	assert.True(t, resp["auditing"])
}

func TestSpeedRequiresAdminToken(t *testing.T) {
	srv, h := newTestServer(t)

	// GET is public.
	rec := get(t, h, "/api/v1/speed")
	require.Equal(t, http.StatusOK, rec.Code)
	var speed map[string]float64
	decode(t, rec, &speed)
	assert.Equal(t, 1.0, speed["speed"])

	assert.Equal(t, http.StatusUnauthorized,
		post(t, h, "/api/v1/speed", map[string]any{"speed": 4}).Code)
	assert.Equal(t, http.StatusUnauthorized,
		postAuth(t, h, "/api/v1/speed", "wrong", map[string]any{"speed": 4}).Code)

	rec = postAuth(t, h, "/api/v1/speed", "hunter2", map[string]any{"speed": 4})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &speed)
	assert.Equal(t, 4.0, speed["speed"])
	assert.Equal(t, 4.0, srv.Scheduler.Speed())

	assert.Equal(t, http.StatusBadRequest,
		postAuth(t, h, "/api/v1/speed", "hunter2", map[string]any{"speed": 99}).Code)
	assert.Equal(t, http.StatusBadRequest,
		postAuth(t, h, "/api/v1/speed", "hunter2", map[string]any{}).Code)
}

func TestAdminDisabledWithoutToken(t *testing.T) {
	srv, h := newTestServer(t)
	srv.AdminToken = ""

	rec := postAuth(t, h, "/api/v1/speed", "anything", map[string]any{"speed": 2})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStatsHistoryEndpoint(t *testing.T) {
	srv, h := newTestServer(t)

	// No database wired at all.
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/api/v1/stats/history").Code)

	db, err := persistence.Open(filepath.Join(t.TempDir(), "city.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	srv.DB = db

	for day := 1; day <= 6; day++ {
		require.NoError(t, db.AppendStats(persistence.StatsRow{
			Day: day, Money: float64(day) * 10, Population: float64(day), HousingCap: 50,
		}))
	}

	var rows []persistence.StatsRow
	decode(t, get(t, h, "/api/v1/stats/history?from=2&to=4"), &rows)
	require.Len(t, rows, 3)
	assert.Equal(t, 2, rows[0].Day)
	assert.Equal(t, 4, rows[2].Day)

	decode(t, get(t, h, "/api/v1/stats/history"), &rows)
	assert.Len(t, rows, 6)

	decode(t, get(t, h, "/api/v1/stats/history?limit=2"), &rows)
	assert.Len(t, rows, 2)
}

func TestSnapshotEndpoint(t *testing.T) {
	srv, h := newTestServer(t)
	dir := t.TempDir()

	db, err := persistence.Open(filepath.Join(dir, "city.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	srv.DB = db
	srv.SnapshotPath = filepath.Join(dir, "exports", "city.zst")

	require.Equal(t, engine.OutcomeApplied, srv.City.Place(0, 0, catalog.Commercial))

	assert.Equal(t, http.StatusUnauthorized, post(t, h, "/api/v1/snapshot", nil).Code)

	rec := postAuth(t, h, "/api/v1/snapshot", "hunter2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err = os.Stat(srv.SnapshotPath)
	require.NoError(t, err)

	st, err := persistence.ReadSnapshot(srv.SnapshotPath)
	require.NoError(t, err)
	assert.Equal(t, srv.City.GridSize(), st.GridSize)

	loaded, err := db.LoadState()
	require.NoError(t, err)
	assert.Equal(t, st.Stats, loaded.Stats)

	saved, err := db.GetMeta("last_snapshot")
	require.NoError(t, err)
	assert.Equal(t, srv.SnapshotPath, saved)
}

func TestCORSPreflight(t *testing.T) {
	_, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/status", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/status", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
