// Package circuitbreaker protects the outbound mail transport: when the
// provider fails repeatedly, the breaker opens and rejects sends immediately
// until a recovery probe succeeds.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State of the breaker.
//
//	Closed -> Open:     after MaxFailures consecutive failures
//	Open -> HalfOpen:   once RecoveryTimeout has elapsed
//	HalfOpen -> Closed: the probe send succeeds
//	HalfOpen -> Open:   the probe send fails
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

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

// ErrOpen is returned when the breaker rejects a send. The retry engine
// treats it like any other transport failure.
var ErrOpen = errors.New("mail transport circuit breaker is open")

type Config struct {
	Name            string
	MaxFailures     int
	RecoveryTimeout time.Duration
}

type Breaker struct {
	mu     sync.Mutex
	config Config
	logger *zap.Logger

	state           State
	failureCount    int
	lastFailureTime time.Time
	probeInFlight   bool

	now func() time.Time // injectable for tests
}

func New(cfg Config, logger *zap.Logger) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}

	return &Breaker{
		config: cfg,
		logger: logger,
		state:  StateClosed,
		now:    time.Now,
	}
}

// Allow reports whether a send may proceed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true

	case StateOpen:
		if b.now().Sub(b.lastFailureTime) >= b.config.RecoveryTimeout {
			b.state = StateHalfOpen
			b.probeInFlight = true
			b.logger.Info("circuit breaker allowing probe send",
				zap.String("name", b.config.Name),
			)
			return true
		}
		return false

	case StateHalfOpen:
		// One probe at a time.
		if !b.probeInFlight {
			b.probeInFlight = true
			return true
		}
		return false

	default:
		return false
	}
}

// RecordSuccess resets the failure streak; in half-open it closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount = 0
	b.probeInFlight = false

	if b.state != StateClosed {
		b.state = StateClosed
		b.logger.Info("circuit breaker closed, transport recovered",
			zap.String("name", b.config.Name),
		)
	}
}

// RecordFailure counts a failed send; at the threshold (or on a failed
// probe) it opens the breaker.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailureTime = b.now()
	b.probeInFlight = false

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.config.MaxFailures {
			b.state = StateOpen
			b.logger.Warn("circuit breaker opened",
				zap.String("name", b.config.Name),
				zap.Int("failures", b.failureCount),
			)
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.logger.Warn("circuit breaker re-opened, probe failed",
			zap.String("name", b.config.Name),
		)
	}
}

// GetState returns the current state.
func (b *Breaker) GetState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
