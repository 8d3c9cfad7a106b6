package mayor

// CityHealth holds derived diagnostic signals computed from a CitySnapshot.
// Computed before the model runs, deterministic and free.
type CityHealth struct {
	HousingUse   float64 // population / housing cap from the newest stats row
	MoneyTrend   []float64
	PopTrend     []float64
	EmptyTiles   int
	Counts       map[string]int // buildings by type name
	CheapestCost float64
	Affordable   []string // palette entries the treasury covers right now
	GoalReady    bool     // a completed goal is waiting for its claim
	BallotOpen   bool
	CrisisLevel  string // "CRITICAL", "WARNING", "WATCH", "HEALTHY"
}

// Triage computes a CityHealth from the snapshot's data.
func Triage(snap *CitySnapshot) *CityHealth {
	h := &CityHealth{
		Counts:     make(map[string]int),
		GoalReady:  snap.Goal != nil && snap.Goal.Completed,
		BallotOpen: snap.Governance.Active != nil,
	}

	for _, t := range snap.Grid.Tiles {
		if t.Building == "none" {
			h.EmptyTiles++
			continue
		}
		h.Counts[t.Building]++
	}

	h.CheapestCost = -1
	for _, b := range snap.Palette {
		if h.CheapestCost < 0 || b.Cost < h.CheapestCost {
			h.CheapestCost = b.Cost
		}
		if b.Cost <= snap.Status.Money {
			h.Affordable = append(h.Affordable, b.Name)
		}
	}

	// History arrives oldest first, so the last row is the freshest.
	for _, row := range snap.History {
		h.MoneyTrend = append(h.MoneyTrend, row.Money)
		h.PopTrend = append(h.PopTrend, row.Population)
	}
	if n := len(snap.History); n > 0 {
		newest := snap.History[n-1]
		if newest.HousingCap > 0 {
			h.HousingUse = newest.Population / newest.HousingCap
		} else if newest.Population > 0 {
			// People but nowhere to live; worst possible utilization.
			h.HousingUse = 2
		}
	}

	h.CrisisLevel = crisisLevel(snap, h)
	return h
}

func crisisLevel(snap *CitySnapshot, h *CityHealth) string {
	broke := len(h.Affordable) == 0
	popFalling := declining(h.PopTrend, 3)
	moneyFalling := declining(h.MoneyTrend, 3)

	switch {
	case popFalling && h.HousingUse >= 1:
		// Housing starved: the decline compounds every day until someone
		// builds homes.
		return "CRITICAL"
	case broke && moneyFalling:
		return "CRITICAL"
	case h.HousingUse > 0.9:
		return "WARNING"
	case moneyFalling:
		return "WARNING"
	case h.Counts["residential"] == 0 && snap.Status.Day > 3:
		return "WATCH"
	case popFalling:
		return "WATCH"
	}
	return "HEALTHY"
}

// declining reports whether the last n steps of xs all move downward.
// Needs n+1 points; fewer means no verdict, not a decline.
func declining(xs []float64, n int) bool {
	if len(xs) < n+1 {
		return false
	}
	for i := len(xs) - n; i < len(xs); i++ {
		if xs[i] >= xs[i-1] {
			return false
		}
	}
	return true
}
