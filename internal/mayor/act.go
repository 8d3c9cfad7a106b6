package mayor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Result is the server's answer to a played move. Outcome comes from the
// action endpoints; Claimed and Reward from a goal claim.
type Result struct {
	Outcome string  `json:"outcome"`
	Claimed bool    `json:"claimed"`
	Reward  float64 `json:"reward"`
}

// Actor plays moves through the public player endpoints.
type Actor struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewActor creates an Actor targeting the given API base URL.
func NewActor(baseURL string) *Actor {
	return &Actor{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Act plays a vetted decision and returns the server's response.
func (a *Actor) Act(d *Decision) (*Result, error) {
	var path string
	var payload any

	switch d.Action {
	case "build":
		path = "/api/v1/actions"
		payload = map[string]any{"action": "place", "x": d.Move.X, "y": d.Move.Y, "building": d.Move.Building}
	case "upgrade":
		path = "/api/v1/actions"
		payload = map[string]any{"action": "upgrade", "x": d.Move.X, "y": d.Move.Y}
	case "demolish":
		path = "/api/v1/actions"
		payload = map[string]any{"action": "demolish", "x": d.Move.X, "y": d.Move.Y}
	case "claim_goal":
		path = "/api/v1/goal/claim"
		payload = map[string]any{}
	case "vote":
		path = "/api/v1/governance/vote"
		payload = map[string]any{"option": *d.Move.Option}
	default:
		return nil, fmt.Errorf("unplayable action %q", d.Action)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal move: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, a.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("move rejected (%d): %s", resp.StatusCode, string(respBody))
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if result.Outcome == "" {
		result.Outcome = "ok"
	}
	return &result, nil
}
