package breaker

import (
	"sync"

	"github.com/driftboard/driftboard/internal/domain"

	"github.com/rs/zerolog/log"
)

// DefaultFailureThreshold is how many consecutive genuine decryption
// failures open a breaker.
const DefaultFailureThreshold = 3

type registry struct {
	mu        sync.Mutex
	threshold int
	breakers  map[string]*resourceBreaker
	handlers  []domain.BreakerEventHandler
}

type RegistryDependencies struct {
	FailureThreshold int
}

func NewRegistry(deps RegistryDependencies) domain.BreakerRegistry {
	threshold := deps.FailureThreshold
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}

	return &registry{
		threshold: threshold,
		breakers:  map[string]*resourceBreaker{},
	}
}

func (r *registry) Get(key string) domain.DecryptionBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[key]
	if !ok {
		b = &resourceBreaker{key: key, registry: r}
		r.breakers[key] = b
	}

	return b
}

func (r *registry) ResetAll() {
	r.mu.Lock()
	keys := make([]string, 0, len(r.breakers))
	for key := range r.breakers {
		keys = append(keys, key)
	}
	r.mu.Unlock()

	for _, key := range keys {
		r.Get(key).Reset()
	}
}

func (r *registry) Subscribe(handler domain.BreakerEventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers = append(r.handlers, handler)
}

func (r *registry) notify(event domain.BreakerEvent) {
	r.mu.Lock()
	handlers := make([]domain.BreakerEventHandler, len(r.handlers))
	copy(handlers, r.handlers)
	r.mu.Unlock()

	for _, handler := range handlers {
		handler(event)
	}
}

type resourceBreaker struct {
	mu       sync.Mutex
	key      string
	registry *registry
	state    domain.BreakerState
}

func (b *resourceBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return !b.state.IsOpen
}

func (b *resourceBreaker) RecordFailure(err error) {
	b.mu.Lock()

	if b.state.IsOpen {
		b.mu.Unlock()
		return
	}

	b.state.ConsecutiveFailures++
	b.state.LastError = err.Error()

	opened := b.state.ConsecutiveFailures >= b.registry.threshold
	if opened {
		b.state.IsOpen = true
	}

	state := b.state
	b.mu.Unlock()

	if opened {
		log.Warn().
			Str("resource", b.key).
			Int("failures", state.ConsecutiveFailures).
			Err(err).
			Msg("Decryption circuit breaker opened")

		b.registry.notify(domain.BreakerEvent{Key: b.key, State: state})
	}
}

func (b *resourceBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state.IsOpen {
		return
	}

	b.state.ConsecutiveFailures = 0
	b.state.LastError = ""
}

func (b *resourceBreaker) Reset() {
	b.mu.Lock()

	wasOpen := b.state.IsOpen
	b.state = domain.BreakerState{}
	state := b.state
	b.mu.Unlock()

	if wasOpen {
		log.Info().Str("resource", b.key).Msg("Decryption circuit breaker reset")
		b.registry.notify(domain.BreakerEvent{Key: b.key, State: state})
	}
}

func (b *resourceBreaker) State() domain.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}
