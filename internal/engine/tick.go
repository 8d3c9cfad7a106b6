// Tick scheduler: drives the city on a fixed wall-clock interval and
// layers the asynchronous generation calls on top, behind their rate
// gates. Generation never blocks the loop; results merge back against
// live state whenever they land.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Harishik/SkyLand/internal/config"
	"github.com/Harishik/SkyLand/internal/entropy"
)

// Generator produces the externally generated content the city consumes.
// Implementations must treat every call as best-effort; an error simply
// means no update this cycle.
type Generator interface {
	Goal(ctx context.Context, snap Snapshot) (Goal, error)
	News(ctx context.Context, snap Snapshot) (string, NewsKind, error)
	Proposal(ctx context.Context, snap Snapshot) (Proposal, error)
	Audit(ctx context.Context, p Proposal) (Audit, error)
}

// Scheduler advances the simulation on a fixed interval.
type Scheduler struct {
	city  *City
	gen   Generator
	clock Clock
	rng   entropy.Source

	// Interval is the base tick period; Speed divides it. Speed 0 pauses.
	Interval time.Duration

	// OnTick, when set, receives every tick report. Used by the event
	// stream; must not block for long.
	OnTick func(TickReport)

	goalRetry      time.Duration
	newsWindow     time.Duration
	newsChance     float64
	proposalWindow time.Duration
	proposalChance float64

	ctx    context.Context
	cancel context.CancelFunc

	ctrl           sync.Mutex
	speed          float64
	running        bool
	aiEnabled      bool
	goalInFlight   bool
	goalRetryAt    time.Time
	lastNewsAt     time.Time
	lastProposalAt time.Time
}

// NewScheduler wires a scheduler to a city. gen may be nil, which disables
// generation entirely.
func NewScheduler(city *City, gen Generator, clk Clock, rng entropy.Source, bal config.Sim) *Scheduler {
	if clk == nil {
		clk = RealClock{}
	}
	if rng == nil {
		rng = entropy.Crypto{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		city:           city,
		gen:            gen,
		clock:          clk,
		rng:            rng,
		Interval:       bal.TickInterval(),
		goalRetry:      bal.GoalRetry(),
		newsWindow:     bal.NewsWindow(),
		newsChance:     bal.NewsChance,
		proposalWindow: bal.ProposalWindow(),
		proposalChance: bal.ProposalChance,
		ctx:            ctx,
		cancel:         cancel,
		speed:          1.0,
		aiEnabled:      bal.AI(),
	}
}

// Run starts the tick loop and blocks until Stop is called.
func (s *Scheduler) Run() {
	s.ctrl.Lock()
	s.running = true
	s.ctrl.Unlock()
	slog.Info("simulation started", "interval", s.Interval, "ai", s.AIEnabled())

	for s.isRunning() {
		speed := s.Speed()
		if speed <= 0 {
			// Paused. Check again shortly.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()
		s.Step()

		// Sleep out the remainder of the tick, adjusted for speed.
		elapsed := time.Since(start)
		target := time.Duration(float64(s.Interval) / speed)
		if elapsed < target {
			time.Sleep(target - elapsed)
		}
	}

	slog.Info("simulation stopped", "day", s.city.Stats().Day)
}

// Stop halts the loop and cancels any in-flight generation calls.
func (s *Scheduler) Stop() {
	s.ctrl.Lock()
	s.running = false
	s.ctrl.Unlock()
	s.cancel()
}

func (s *Scheduler) isRunning() bool {
	s.ctrl.Lock()
	defer s.ctrl.Unlock()
	return s.running
}

// Speed returns the current speed multiplier.
func (s *Scheduler) Speed() float64 {
	s.ctrl.Lock()
	defer s.ctrl.Unlock()
	return s.speed
}

// SetSpeed adjusts the tick rate. Zero pauses; values are clamped to a
// sane range.
func (s *Scheduler) SetSpeed(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 16 {
		v = 16
	}
	s.ctrl.Lock()
	s.speed = v
	s.ctrl.Unlock()
	slog.Info("speed changed", "speed", v)
}

// AIEnabled reports whether generation dispatch is on.
func (s *Scheduler) AIEnabled() bool {
	s.ctrl.Lock()
	defer s.ctrl.Unlock()
	return s.aiEnabled
}

// SetAI toggles generation. Disabling does not cancel in-flight calls but
// their results are discarded at merge time, and pending goal retries are
// suppressed because the gate is re-checked when they fire.
func (s *Scheduler) SetAI(enabled bool) {
	s.ctrl.Lock()
	s.aiEnabled = enabled
	s.ctrl.Unlock()
	slog.Info("ai generation toggled", "enabled", enabled)
}

// Step advances the simulation one tick and dispatches whatever
// generation the gates allow. Tests drive this directly.
func (s *Scheduler) Step() {
	report := s.city.AdvanceTick()

	slog.Debug("tick",
		"day", report.Day,
		"money", report.Money,
		"population", report.Population,
		"income", report.Income,
	)

	s.maybeGenerate()

	if s.OnTick != nil {
		s.OnTick(report)
	}
}

// maybeGenerate evaluates the rate gates and fires async fetches for
// whichever content is due. All gates are checked at fire time, so
// toggling AI off suppresses scheduled retries without bookkeeping.
func (s *Scheduler) maybeGenerate() {
	if s.gen == nil {
		return
	}
	now := s.clock.Now()
	connected := s.city.Token().Connected

	s.ctrl.Lock()
	enabled := s.aiEnabled
	var wantGoal, wantNews, wantProposal bool

	if enabled && !s.goalInFlight && !now.Before(s.goalRetryAt) && s.city.NeedsGoal() {
		s.goalInFlight = true
		wantGoal = true
	}
	if enabled && now.Sub(s.lastNewsAt) >= s.newsWindow && s.rng.Float() < s.newsChance {
		s.lastNewsAt = now
		wantNews = true
	}
	if enabled && connected && !s.city.HasProposal() &&
		now.Sub(s.lastProposalAt) >= s.proposalWindow && s.rng.Float() < s.proposalChance {
		s.lastProposalAt = now
		wantProposal = true
	}
	s.ctrl.Unlock()

	if !wantGoal && !wantNews && !wantProposal {
		return
	}

	snap := s.city.Snapshot()
	if wantGoal {
		go s.fetchGoal(snap)
	}
	if wantNews {
		go s.fetchNews(snap)
	}
	if wantProposal {
		go s.fetchProposal(snap)
	}
}

func (s *Scheduler) fetchGoal(snap Snapshot) {
	g, err := s.gen.Goal(s.ctx, snap)

	s.ctrl.Lock()
	s.goalInFlight = false
	if err != nil {
		s.goalRetryAt = s.clock.Now().Add(s.goalRetry)
	}
	enabled := s.aiEnabled
	s.ctrl.Unlock()

	if err != nil {
		slog.Warn("goal generation failed, backing off", "error", err, "retry_in", s.goalRetry)
		return
	}
	if !enabled {
		slog.Debug("goal result discarded, generation disabled")
		return
	}
	if s.city.SetGoal(g) {
		slog.Info("goal adopted", "target", g.TargetType, "value", g.TargetValue, "reward", g.Reward)
	}
}

func (s *Scheduler) fetchNews(snap Snapshot) {
	text, kind, err := s.gen.News(s.ctx, snap)
	if err != nil {
		slog.Debug("news generation failed", "error", err)
		return
	}
	if !s.AIEnabled() {
		return
	}
	s.city.AddNews(text, kind)
	slog.Info("news published", "kind", kind)
}

func (s *Scheduler) fetchProposal(snap Snapshot) {
	p, err := s.gen.Proposal(s.ctx, snap)
	if err != nil {
		slog.Debug("proposal generation failed", "error", err)
		return
	}
	if !s.AIEnabled() {
		return
	}
	if s.city.OpenProposal(p) {
		slog.Info("proposal opened", "title", p.Title, "effect", p.Effect)
	}
}

// RequestAudit kicks off an audit of the active proposal. Returns false
// when there is nothing to audit, an audit already exists or is running,
// or generation is off.
func (s *Scheduler) RequestAudit() bool {
	if s.gen == nil || !s.AIEnabled() {
		return false
	}
	p := s.city.Proposal()
	if p == nil {
		return false
	}
	if !s.city.StartAudit() {
		return false
	}

	go func() {
		a, err := s.gen.Audit(s.ctx, *p)
		if err != nil {
			s.city.FinishAudit(p.ID, nil)
			slog.Warn("audit generation failed", "error", err)
			return
		}
		s.city.FinishAudit(p.ID, &a)
	}()
	return true
}
