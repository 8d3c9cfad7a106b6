package mayor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

const (
	memoryFile    = "mayor_memory.json"
	maxRecords    = 10
	promptRecords = 5 // how many recent records to include in the model prompt
)

// CycleRecord captures what happened in a single mayor cycle.
type CycleRecord struct {
	Day         int     `json:"day"`
	Action      string  `json:"action"`
	Money       float64 `json:"money"`
	Population  float64 `json:"population"`
	CrisisLevel string  `json:"crisis_level"`
	Target      string  `json:"target,omitempty"` // e.g. "residential@4,2"
	Rationale   string  `json:"rationale,omitempty"`
}

// CycleMemory manages a ring of recent mayor cycle records.
type CycleMemory struct {
	Records []CycleRecord `json:"records"`
}

// LoadMemory reads the memory file from disk. Returns empty memory if not found.
func LoadMemory() *CycleMemory {
	data, err := os.ReadFile(memoryFile)
	if err != nil {
		return &CycleMemory{}
	}
	var mem CycleMemory
	if err := json.Unmarshal(data, &mem); err != nil {
		slog.Warn("mayor memory corrupted, starting fresh", "error", err)
		return &CycleMemory{}
	}
	return &mem
}

// Save writes the memory to disk.
func (m *CycleMemory) Save() {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		slog.Error("failed to marshal mayor memory", "error", err)
		return
	}
	if err := os.WriteFile(memoryFile, data, 0644); err != nil {
		slog.Error("failed to write mayor memory", "error", err)
	}
}

// Record adds a cycle record, trimming to maxRecords.
func (m *CycleMemory) Record(r CycleRecord) {
	m.Records = append(m.Records, r)
	if len(m.Records) > maxRecords {
		m.Records = m.Records[len(m.Records)-maxRecords:]
	}
}

// FormatForPrompt summarizes the last few cycles for the model prompt, so
// it stops repeating a move the city already absorbed.
func (m *CycleMemory) FormatForPrompt() string {
	if len(m.Records) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Recent Mayor Cycles\n")

	start := 0
	if len(m.Records) > promptRecords {
		start = len(m.Records) - promptRecords
	}
	for _, r := range m.Records[start:] {
		fmt.Fprintf(&b, "- Day %d: action=%s, treasury=%.0f, population=%.1f, assessment=%s",
			r.Day, r.Action, r.Money, r.Population, r.CrisisLevel)
		if r.Target != "" {
			fmt.Fprintf(&b, ", target=%s", r.Target)
		}
		b.WriteString("\n")
	}
	return b.String()
}
