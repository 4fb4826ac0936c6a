package session

import "time"

// Record is the companion of the Active Session pointer.
type Record struct {
	SessionID    string
	AccountID    string
	CreatedAt    int64
	LastActivity int64
}

// Projection is the cached read model served to authenticated requests.
type Projection struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Config sets key prefix and lifetimes. Zero TTLs fall back to the defaults
// used by otpAuth (7 days, 1 hour, 1 hour).
type Config struct {
	Prefix        string
	SessionTTL    time.Duration
	CSRFTTL       time.Duration
	ProjectionTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.SessionTTL <= 0 {
		c.SessionTTL = 7 * 24 * time.Hour
	}
	if c.CSRFTTL <= 0 {
		c.CSRFTTL = time.Hour
	}
	if c.ProjectionTTL <= 0 {
		c.ProjectionTTL = time.Hour
	}
	return c
}
