// Token subsystem: a simulated balance mined from population, a bounded
// random-walk price, and the stake pool that feeds the growth bonus. None
// of it runs until the player connects.
package engine

import (
	"fmt"

	"github.com/Harishik/SkyLand/internal/entropy"
)

// Token is the player's simulated token account.
type Token struct {
	Connected    bool    `json:"connected"`
	Balance      float64 `json:"balance"`
	Staked       float64 `json:"staked"`
	Price        float64 `json:"price"`
	BlockCounter int64   `json:"block_counter"`
}

// Token returns the current token state.
func (c *City) Token() Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// advanceToken mines against the previous tick's population, walks the
// price one step, and advances the block counter. Caller holds the lock.
func (c *City) advanceToken(prevPop float64) {
	if !c.token.Connected {
		return
	}
	c.token.Balance += prevPop / c.bal.MiningDivisor * c.bal.MiningRate
	c.token.Price = clampFloor(c.token.Price+entropy.Uniform(c.rng, -1, 1), c.bal.TokenFloor)
	c.token.BlockCounter++
}

// ConnectToken opts the player into the token subsystem. Connecting twice
// is harmless.
func (c *City) ConnectToken() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.Connected {
		return OutcomeIgnored
	}
	c.token.Connected = true
	c.pushTx("connect", "wallet connected")
	c.recordAction("connected a token wallet")
	c.pushNews("The city treasury now accepts SkyCoin.", NewsNeutral)
	return OutcomeApplied
}

// BuyTokens swaps money for tokens at the current price.
func (c *City) BuyTokens(amount float64) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.token.Connected || amount <= 0 {
		return OutcomeIgnored
	}
	cost := amount * c.token.Price
	if c.stats.Money < cost {
		c.pushNews("Token purchase failed: not enough funds.", NewsNegative)
		return OutcomeNoFunds
	}

	c.stats.Money -= cost
	c.token.Balance += amount
	c.pushTx("buy", fmt.Sprintf("bought %.2f SKY at %.2f", amount, c.token.Price))
	c.recordAction("bought %.2f tokens", amount)
	return OutcomeApplied
}

// SellTokens swaps tokens back to money at the current price.
func (c *City) SellTokens(amount float64) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.token.Connected || amount <= 0 {
		return OutcomeIgnored
	}
	if c.token.Balance < amount {
		c.pushNews("Token sale failed: balance too low.", NewsNegative)
		return OutcomeNoFunds
	}

	c.token.Balance -= amount
	c.stats.Money += amount * c.token.Price
	c.pushTx("sell", fmt.Sprintf("sold %.2f SKY at %.2f", amount, c.token.Price))
	c.recordAction("sold %.2f tokens", amount)
	return OutcomeApplied
}

// Stake moves tokens from the liquid balance into the stake pool, which
// boosts population growth each tick.
func (c *City) Stake(amount float64) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.token.Connected || amount <= 0 {
		return OutcomeIgnored
	}
	if c.token.Balance < amount {
		c.pushNews("Staking failed: balance too low.", NewsNegative)
		return OutcomeNoFunds
	}

	c.token.Balance -= amount
	c.token.Staked += amount
	c.pushTx("stake", fmt.Sprintf("staked %.2f SKY", amount))
	c.recordAction("staked %.2f tokens", amount)
	return OutcomeApplied
}

// Unstake moves tokens back to the liquid balance. There is no lock-up
// and no penalty.
func (c *City) Unstake(amount float64) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.token.Connected || amount <= 0 {
		return OutcomeIgnored
	}
	if c.token.Staked < amount {
		c.pushNews("Unstaking failed: stake too low.", NewsNegative)
		return OutcomeNoFunds
	}

	c.token.Staked -= amount
	c.token.Balance += amount
	c.pushTx("unstake", fmt.Sprintf("unstaked %.2f SKY", amount))
	c.recordAction("unstaked %.2f tokens", amount)
	return OutcomeApplied
}
