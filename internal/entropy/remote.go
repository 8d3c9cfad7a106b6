package entropy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	remoteEndpoint = "https://api.random.org/json-rpc/4/invoke"
	poolLowWater   = 16
	poolBatch      = 128
)

// Remote draws from random.org, keeping a local pool so one HTTP call
// covers many ticks. Any failure falls back to the wrapped source, so a
// dead API never stalls the loop.
type Remote struct {
	apiKey   string
	client   *http.Client
	fallback Source

	mu   sync.Mutex
	pool []float64
}

// NewRemote builds a random.org source. Returns nil when apiKey is empty;
// callers should then wire the fallback directly.
func NewRemote(apiKey string, fallback Source) *Remote {
	if apiKey == "" {
		return nil
	}
	if fallback == nil {
		fallback = Crypto{}
	}
	return &Remote{
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 15 * time.Second},
		fallback: fallback,
	}
}

func (r *Remote) Float() float64 {
	if r == nil {
		return cryptoFloat()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.pool) < poolLowWater {
		if err := r.refill(); err != nil {
			slog.Debug("random.org refill failed", "error", err)
		}
	}
	if len(r.pool) == 0 {
		return r.fallback.Float()
	}

	v := r.pool[0]
	r.pool = r.pool[1:]
	return v
}

func (r *Remote) refill() error {
	req := map[string]any{
		"jsonrpc": "2.0",
		"method":  "generateDecimalFractions",
		"params": map[string]any{
			"apiKey":        r.apiKey,
			"n":             poolBatch,
			"decimalPlaces": 6,
		},
		"id": 1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	resp, err := r.client.Post(remoteEndpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var parsed struct {
		Result struct {
			Random struct {
				Data []float64 `json:"data"`
			} `json:"random"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	if parsed.Error != nil {
		return fmt.Errorf("api error: %s", parsed.Error.Message)
	}

	r.pool = append(r.pool, parsed.Result.Random.Data...)
	return nil
}
