package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connectedCity(t *testing.T) *City {
	t.Helper()
	c, _ := newTestCity(t)
	require.Equal(t, OutcomeApplied, c.ConnectToken())
	return c
}

func sampleProposal(effect EffectKind) Proposal {
	return Proposal{
		Title:       "Weekend Festival Fund",
		Description: "Host a city-wide festival to lift spirits.",
		Options:     [2]string{"For", "Against"},
		Effect:      effect,
		Code:        "function celebrate() public onlyMayor {}",
	}
}

func TestOpenProposalRequiresConnection(t *testing.T) {
	c, _ := newTestCity(t)
	assert.False(t, c.OpenProposal(sampleProposal(EffectTaxBreak)), "disconnected city takes no proposals")

	require.Equal(t, OutcomeApplied, c.ConnectToken())
	assert.True(t, c.OpenProposal(sampleProposal(EffectTaxBreak)))
}

func TestOpenProposalRefusedWhileActive(t *testing.T) {
	c := connectedCity(t)
	require.True(t, c.OpenProposal(sampleProposal(EffectTaxBreak)))

	assert.False(t, c.OpenProposal(sampleProposal(EffectAusterity)))
	assert.Equal(t, EffectTaxBreak, c.Proposal().Effect)
}

func TestOpenProposalStampsFields(t *testing.T) {
	c := connectedCity(t)
	for i := 0; i < 3; i++ {
		c.AdvanceTick()
	}
	day := c.Stats().Day

	require.True(t, c.OpenProposal(sampleProposal(EffectFestival)))

	p := c.Proposal()
	require.NotNil(t, p)
	assert.Equal(t, ProposalActive, p.Status)
	assert.Equal(t, day+5, p.ExpiresAt)
	assert.Equal(t, [2]int{0, 0}, p.Votes)
	assert.NotEmpty(t, p.ID)
	assert.Nil(t, p.Audit)
}

func TestVoteApproveAppliesEffect(t *testing.T) {
	c := connectedCity(t)
	require.True(t, c.OpenProposal(sampleProposal(EffectFestival)))
	money := c.Stats().Money

	out, resolved := c.Vote(0)

	assert.Equal(t, OutcomeApplied, out)
	require.NotNil(t, resolved)
	assert.Equal(t, ProposalPassed, resolved.Status)
	assert.Equal(t, [2]int{1, 0}, resolved.Votes)

	assert.Equal(t, 2.0, c.Modifiers().GrowthRate)
	assert.Equal(t, money-500, c.Stats().Money, "festival charges immediately")
	assert.Nil(t, c.Proposal(), "slot clears on resolution")
	require.NotNil(t, c.LastResolved())
	assert.Equal(t, resolved.ID, c.LastResolved().ID)

	ledger := c.Ledger()
	require.NotEmpty(t, ledger)
	assert.Equal(t, "vote", ledger[len(ledger)-1].Type)
}

func TestFestivalMayOverdraw(t *testing.T) {
	c := connectedCity(t)
	st := c.ExportState()
	st.Stats.Money = 100
	require.NoError(t, c.RestoreState(st))
	require.True(t, c.OpenProposal(sampleProposal(EffectFestival)))

	out, _ := c.Vote(0)

	assert.Equal(t, OutcomeApplied, out)
	assert.Equal(t, float64(-400), c.Stats().Money, "festival has no affordability gate")
}

func TestVoteRejectLeavesModifiers(t *testing.T) {
	c := connectedCity(t)
	require.True(t, c.OpenProposal(sampleProposal(EffectAusterity)))

	out, resolved := c.Vote(1)

	assert.Equal(t, OutcomeApplied, out)
	assert.Equal(t, ProposalRejected, resolved.Status)
	assert.Equal(t, Modifiers{TaxRate: 1.0, GrowthRate: 1.0}, c.Modifiers())
	assert.Nil(t, c.Proposal())
}

func TestFirstVoteWins(t *testing.T) {
	c := connectedCity(t)
	require.True(t, c.OpenProposal(sampleProposal(EffectTaxBreak)))

	out, _ := c.Vote(0)
	require.Equal(t, OutcomeApplied, out)

	out, resolved := c.Vote(1)
	assert.Equal(t, OutcomeIgnored, out, "second vote hits an empty slot")
	assert.Nil(t, resolved)
}

func TestVoteInvalidInputs(t *testing.T) {
	c := connectedCity(t)

	out, _ := c.Vote(0)
	assert.Equal(t, OutcomeIgnored, out, "no active proposal")

	require.True(t, c.OpenProposal(sampleProposal(EffectTaxBreak)))
	out, _ = c.Vote(2)
	assert.Equal(t, OutcomeIgnored, out)
	out, _ = c.Vote(-1)
	assert.Equal(t, OutcomeIgnored, out)
	assert.NotNil(t, c.Proposal(), "bad options leave the proposal up")
}

func TestExpiryIsRecordedNotEnforced(t *testing.T) {
	c := connectedCity(t)
	require.True(t, c.OpenProposal(sampleProposal(EffectTaxBreak)))
	expires := c.Proposal().ExpiresAt

	for i := 0; i < 20; i++ {
		c.AdvanceTick()
	}

	p := c.Proposal()
	require.NotNil(t, p, "unvoted proposals never auto-resolve")
	assert.Equal(t, ProposalActive, p.Status)
	assert.Greater(t, c.Stats().Day, expires, "well past the recorded expiry")
}

func TestAuditLifecycle(t *testing.T) {
	c := connectedCity(t)
	require.True(t, c.OpenProposal(sampleProposal(EffectTaxBreak)))
	id := c.Proposal().ID

	require.True(t, c.StartAudit())
	assert.False(t, c.StartAudit(), "audit already in flight")

	audit := Audit{Score: 72, Risk: "medium", Analysis: "Treasury exposure is moderate."}
	assert.True(t, c.FinishAudit(id, &audit))

	p := c.Proposal()
	require.NotNil(t, p.Audit)
	assert.Equal(t, 72, p.Audit.Score)

	assert.False(t, c.StartAudit(), "audited proposals are not re-audited")
	assert.False(t, c.FinishAudit(id, &audit), "repeat attach is a no-op")
}

func TestAuditFailureReleasesSlot(t *testing.T) {
	c := connectedCity(t)
	require.True(t, c.OpenProposal(sampleProposal(EffectTaxBreak)))
	id := c.Proposal().ID

	require.True(t, c.StartAudit())
	assert.False(t, c.FinishAudit(id, nil), "failed audit attaches nothing")
	assert.Nil(t, c.Proposal().Audit)
	assert.True(t, c.StartAudit(), "slot is free for another attempt")
}

func TestAuditIgnoresStaleProposal(t *testing.T) {
	c := connectedCity(t)
	require.True(t, c.OpenProposal(sampleProposal(EffectTaxBreak)))
	staleID := c.Proposal().ID
	require.True(t, c.StartAudit())

	// Proposal resolves while the audit is in flight.
	out, _ := c.Vote(1)
	require.Equal(t, OutcomeApplied, out)
	require.True(t, c.OpenProposal(sampleProposal(EffectAusterity)))

	audit := Audit{Score: 10, Risk: "critical", Analysis: "stale"}
	assert.False(t, c.FinishAudit(staleID, &audit), "result for a gone proposal is dropped")
	assert.Nil(t, c.Proposal().Audit)
}
