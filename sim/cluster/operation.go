package cluster

import "github.com/misim/misim/sim"

// Dependency is one declared need of an Operation to call another
// operation, with the probability it is actually invoked per request
// (§3: "Operation ... dependencies[] (to other Operations with
// probability)").
type Dependency struct {
	Target      sim.OperationRef
	Probability float64

	// RetryBase, RetryMaxAttempts, RetryJitterMax configure the Retry
	// pattern attached to this dependency; zero values mean no retry
	// (a single attempt, no exponential backoff).
	RetryBase        int64
	RetryMaxAttempts int
	RetryJitterMax   int64

	// CircuitBreakerWindow and CircuitBreakerThreshold configure the
	// CircuitBreaker guarding this dependency; CircuitBreakerWindow == 0
	// disables the breaker (always allow). CircuitBreakerResetTimeout
	// bounds how long the breaker stays OPEN before admitting a HALF_OPEN
	// probe; zero falls back to DefaultCircuitBreakerResetTimeout.
	CircuitBreakerWindow       int
	CircuitBreakerThreshold    float64
	CircuitBreakerResetTimeout float64

	// Timeout bounds how long the dispatching instance waits for this
	// dependency's InternalRequest before failing it with ReasonTimeout
	// (§5: "every outgoing request carries a timeout as a separate
	// scheduled event"). Zero falls back to DefaultDependencyTimeout.
	Timeout float64
}

// DefaultDependencyTimeout is used for any Dependency left with a zero
// Timeout, so every dispatched InternalRequest races a timeout event even
// when an architecture description doesn't specify one explicitly.
const DefaultDependencyTimeout float64 = 100

// DefaultCircuitBreakerResetTimeout is used for any Dependency with a
// circuit breaker enabled but a zero CircuitBreakerResetTimeout.
const DefaultCircuitBreakerResetTimeout float64 = 500

// Operation is a named unit of work a Microservice exposes: a CPU demand
// and a set of dependencies on other operations (§3, static for a run).
type Operation struct {
	Name         string
	Demand       float64
	Dependencies []Dependency
}
