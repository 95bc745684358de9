package cache

import (
	"time"
)

// Default TTLs per market session. Quotes move fast during regular hours
// and barely at all over a weekend, so cache lifetime follows the session.
const (
	DefaultMarketOpenTTL = 60 * time.Second
	DefaultAfterHoursTTL = 5 * time.Minute
	DefaultWeekendTTL    = time.Hour
)

// MarketSession classifies a point in time against US equity trading hours.
type MarketSession int

const (
	SessionOpen MarketSession = iota
	SessionAfterHours
	SessionWeekend
)

func (s MarketSession) String() string {
	switch s {
	case SessionOpen:
		return "open"
	case SessionAfterHours:
		return "after_hours"
	default:
		return "weekend"
	}
}

// MarketClock maps wall time to a session and a cache TTL for that
// session. The zero clock is not usable; construct with NewMarketClock.
type MarketClock struct {
	loc          *time.Location
	openTTL      time.Duration
	afterTTL     time.Duration
	weekendTTL   time.Duration
	now          func() time.Time
}

type MarketClockOption func(*MarketClock)

// WithSessionTTLs overrides the per-session TTLs. Non-positive values
// keep the defaults.
func WithSessionTTLs(open, after, weekend time.Duration) MarketClockOption {
	return func(c *MarketClock) {
		if open > 0 {
			c.openTTL = open
		}
		if after > 0 {
			c.afterTTL = after
		}
		if weekend > 0 {
			c.weekendTTL = weekend
		}
	}
}

// withNow pins the clock for tests.
func withNow(now func() time.Time) MarketClockOption {
	return func(c *MarketClock) { c.now = now }
}

func NewMarketClock(opts ...MarketClockOption) (*MarketClock, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, err
	}
	c := &MarketClock{
		loc:        loc,
		openTTL:    DefaultMarketOpenTTL,
		afterTTL:   DefaultAfterHoursTTL,
		weekendTTL: DefaultWeekendTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Session returns the current market session. Regular hours are
// 09:30 to 16:00 Eastern, Monday through Friday. Exchange holidays are
// treated as after hours, which only makes the cache slightly fresher
// than it needs to be.
func (c *MarketClock) Session() MarketSession {
	t := c.now().In(c.loc)
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return SessionWeekend
	}
	minutes := t.Hour()*60 + t.Minute()
	if minutes >= 9*60+30 && minutes < 16*60 {
		return SessionOpen
	}
	return SessionAfterHours
}

// TTL returns the cache lifetime appropriate for the current session.
func (c *MarketClock) TTL() time.Duration {
	switch c.Session() {
	case SessionOpen:
		return c.openTTL
	case SessionAfterHours:
		return c.afterTTL
	default:
		return c.weekendTTL
	}
}
