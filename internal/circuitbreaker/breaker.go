// Package circuitbreaker guards calls to external services that can fail in
// bursts, such as the extractor sidecar and alert webhooks.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Do when the breaker is rejecting calls.
var ErrOpen = errors.New("circuit breaker open")

type State int

const (
	StateClosed   State = iota // normal operation
	StateOpen                  // rejecting calls until the cooldown elapses
	StateHalfOpen              // probing whether the service recovered
)

type Breaker struct {
	mu            sync.Mutex
	state         State
	failures      int
	probes        int
	maxFailures   int
	probeQuota    int // successful probes required to close again
	cooldown      time.Duration
	lastFailureAt time.Time
	nowFn         func() time.Time
	onStateChange func(from, to State)
}

type Config struct {
	MaxFailures   int           // consecutive failures before opening (default 5)
	ProbeQuota    int           // half-open successes needed to close (default 2)
	Cooldown      time.Duration // open duration before probing (default 30s)
	OnStateChange func(from, to State)
}

func New(cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ProbeQuota <= 0 {
		cfg.ProbeQuota = 2
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{
		state:         StateClosed,
		maxFailures:   cfg.MaxFailures,
		probeQuota:    cfg.ProbeQuota,
		cooldown:      cfg.Cooldown,
		nowFn:         time.Now,
		onStateChange: cfg.OnStateChange,
	}
}

// Do runs fn if the breaker admits the call and records the outcome. When the
// breaker is open, Do returns ErrOpen without invoking fn.
func (b *Breaker) Do(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen {
		if b.nowFn().Sub(b.lastFailureAt) > b.cooldown {
			b.setState(StateHalfOpen)
			return nil
		}
		return ErrOpen
	}
	return nil
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	if b.state == StateHalfOpen {
		b.probes++
		if b.probes >= b.probeQuota {
			b.setState(StateClosed)
		}
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.probes = 0
	b.lastFailureAt = b.nowFn()
	if b.state == StateHalfOpen || (b.state == StateClosed && b.failures >= b.maxFailures) {
		b.setState(StateOpen)
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.nowFn().Sub(b.lastFailureAt) > b.cooldown {
		b.setState(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) setState(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.probes = 0
	if to == StateClosed {
		b.failures = 0
	}
	if b.onStateChange != nil {
		b.onStateChange(from, to)
	}
}

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
