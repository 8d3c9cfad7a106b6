// Governance proposals: none -> active -> resolved. A single vote settles
// a proposal; approving applies its effect immediately and either way the
// slot clears for the next one.
package engine

import (
	"fmt"

	"github.com/google/uuid"
)

// ProposalStatus tracks where a proposal is in its lifecycle.
type ProposalStatus string

const (
	ProposalActive   ProposalStatus = "active"
	ProposalPassed   ProposalStatus = "passed"
	ProposalRejected ProposalStatus = "rejected"
)

// Proposal is a binary-choice governance decision. Options[0] approves and
// applies Effect; Options[1] rejects. ExpiresAt is recorded for display but
// deliberately never enforced: an unvoted proposal just sits there.
type Proposal struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Options     [2]string      `json:"options"`
	Effect      EffectKind     `json:"effect"`
	Code        string         `json:"code,omitempty"`
	ExpiresAt   int            `json:"expires_at"`
	Votes       [2]int         `json:"votes"`
	Status      ProposalStatus `json:"status"`
	Audit       *Audit         `json:"audit,omitempty"`
}

// Audit is a generated review of a proposal, attached verbatim.
type Audit struct {
	Score    int    `json:"score"`
	Risk     string `json:"risk"`
	Analysis string `json:"analysis"`
}

// Proposal returns a copy of the active proposal, or nil when none is up.
func (c *City) Proposal() *Proposal {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.proposal == nil {
		return nil
	}
	p := *c.proposal
	return &p
}

// LastResolved returns the most recently voted proposal, for display.
func (c *City) LastResolved() *Proposal {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastResolved == nil {
		return nil
	}
	p := *c.lastResolved
	return &p
}

// HasProposal reports whether a proposal is currently active.
func (c *City) HasProposal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proposal != nil
}

// OpenProposal adopts a generated proposal if the slot is still empty and
// the player is still connected. The merge re-checks live state; a result
// that raced with another proposal or a disconnect is dropped.
func (c *City) OpenProposal(p Proposal) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.proposal != nil || !c.token.Connected {
		return false
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.ExpiresAt = c.stats.Day + c.bal.ProposalLifeDays
	p.Votes = [2]int{}
	p.Status = ProposalActive
	p.Audit = nil
	c.proposal = &p
	c.auditing = false
	c.pushNews("Governance proposal on the ballot: "+p.Title, NewsNeutral)
	return true
}

// Vote settles the active proposal. The first vote wins: option 0 passes
// the proposal and applies its effect, option 1 rejects it. Either way the
// slot clears. Voting with no active proposal or a bad option is ignored.
func (c *City) Vote(option int) (Outcome, *Proposal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.proposal == nil || option < 0 || option > 1 {
		return OutcomeIgnored, nil
	}

	p := c.proposal
	p.Votes[option]++
	if option == 0 {
		p.Status = ProposalPassed
		c.applyEffect(p.Effect)
		c.pushNews(fmt.Sprintf("Proposal passed: %s", p.Title), NewsPositive)
	} else {
		p.Status = ProposalRejected
		c.pushNews(fmt.Sprintf("Proposal rejected: %s", p.Title), NewsNeutral)
	}

	c.pushTx("vote", fmt.Sprintf("voted %q on %s", p.Options[option], p.Title))
	c.recordAction("voted %q on proposal %q", p.Options[option], p.Title)

	resolved := *p
	c.lastResolved = &resolved
	c.proposal = nil
	c.auditing = false

	out := resolved
	return OutcomeApplied, &out
}

// StartAudit claims the audit slot for the active proposal. It refuses
// when no proposal is up, an audit already exists, or one is in flight,
// which keeps repeated audit requests idempotent.
func (c *City) StartAudit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.proposal == nil || c.proposal.Audit != nil || c.auditing {
		return false
	}
	c.auditing = true
	return true
}

// FinishAudit releases the audit slot and, when the call produced a
// result and the proposal is still the same one, attaches it.
func (c *City) FinishAudit(proposalID string, a *Audit) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.auditing = false
	if a == nil || c.proposal == nil || c.proposal.ID != proposalID || c.proposal.Audit != nil {
		return false
	}
	audit := *a
	c.proposal.Audit = &audit
	c.pushNews(fmt.Sprintf("Audit published for %q: %s risk, score %d.",
		c.proposal.Title, a.Risk, a.Score), NewsNeutral)
	return true
}
