package resilience

import "time"

// RetryPolicy bounds repeated attempts of one collaborator call.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// BreakerPolicy configures the per-operation circuit breaker.
type BreakerPolicy struct {
	Enabled          bool
	MinRequests      uint32
	FailureRatio     float64
	OpenTimeout      time.Duration
	HalfOpenMaxCalls uint32
}

// StateObserver is told about breaker transitions, e.g. to export them as metrics.
type StateObserver interface {
	BreakerStateChanged(operation string, from, to string)
}

type Config struct {
	Retry   RetryPolicy
	Breaker BreakerPolicy

	Observer StateObserver
}

// DefaultConfig makes a single attempt per call. Pipeline steps are not retried
// individually; the breaker only sheds load from a collaborator that keeps failing.
func DefaultConfig() Config {
	return Config{
		Retry: RetryPolicy{
			MaxAttempts:    1,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     400 * time.Millisecond,
			Multiplier:     2.0,
		},
		Breaker: BreakerPolicy{
			Enabled:          true,
			MinRequests:      10,
			FailureRatio:     0.5,
			OpenTimeout:      30 * time.Second,
			HalfOpenMaxCalls: 2,
		},
	}
}

func (p RetryPolicy) normalize(def RetryPolicy) RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = def.InitialBackoff
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = def.Multiplier
	}
	return p
}

// next returns the wait after current, capped at MaxBackoff.
func (p RetryPolicy) next(current time.Duration) time.Duration {
	return min(time.Duration(float64(current)*p.Multiplier), p.MaxBackoff)
}

func (p BreakerPolicy) normalize(def BreakerPolicy) BreakerPolicy {
	if p.MinRequests == 0 {
		p.MinRequests = def.MinRequests
	}
	if p.FailureRatio <= 0 || p.FailureRatio > 1 {
		p.FailureRatio = def.FailureRatio
	}
	if p.OpenTimeout <= 0 {
		p.OpenTimeout = def.OpenTimeout
	}
	if p.HalfOpenMaxCalls == 0 {
		p.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	return p
}

// shouldTrip reports whether enough calls failed to open the breaker.
func (p BreakerPolicy) shouldTrip(requests, failures uint32) bool {
	if requests < p.MinRequests {
		return false
	}
	return float64(failures)/float64(requests) >= p.FailureRatio
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	c.Retry = c.Retry.normalize(def.Retry)
	c.Breaker = c.Breaker.normalize(def.Breaker)
	return c
}
