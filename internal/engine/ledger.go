// Simulated transaction ledger. Append-only, bounded, and purely
// observational: nothing in the simulation ever reads it back.
package engine

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Transaction is one ledger entry.
type Transaction struct {
	Hash      string    `json:"hash"`
	Type      string    `json:"type"`
	Details   string    `json:"details"`
	Block     int64     `json:"block"`
	Timestamp time.Time `json:"timestamp"`
}

// Ledger returns the transaction log, oldest first.
func (c *City) Ledger() []Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Transaction(nil), c.ledger...)
}

// pushTx appends a ledger entry stamped with the current block, evicting
// the oldest past the cap. Caller holds the lock.
func (c *City) pushTx(typ, details string) {
	c.ledger = append(c.ledger, Transaction{
		Hash:      newTxHash(),
		Type:      typ,
		Details:   details,
		Block:     c.token.BlockCounter,
		Timestamp: c.clock.Now(),
	})
	if limit := c.bal.LedgerCap; limit > 0 && len(c.ledger) > limit {
		c.ledger = c.ledger[len(c.ledger)-limit:]
	}
}

// newTxHash fabricates a hex hash for display. It only has to look the
// part.
func newTxHash() string {
	id := uuid.New()
	return "0x" + hex.EncodeToString(id[:])
}
