package model

import "time"

// CreditBalance tracks per-user AI turn credits.
type CreditBalance struct {
	UserID           string
	TotalCredits     int
	RemainingCredits int
	UpdatedAt        time.Time
}

func (c *CreditBalance) Exhausted() bool { return c.RemainingCredits <= 0 }

// DecrementOne clamps at zero. The persistent decrement is atomic at the
// storage layer; this mirrors the same floor for in-memory copies.
func (c *CreditBalance) DecrementOne() {
	if c.RemainingCredits > 0 {
		c.RemainingCredits--
	}
	c.UpdatedAt = time.Now()
}
