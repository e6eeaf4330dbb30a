// Package cluster implements the request-routing state machine: the
// Microservice Instance lifecycle (§4.5) and the Microservice that owns
// an instance pool and resolves targets for incoming requests (§4.7). It
// depends on sim (the kernel primitives) and sim/patterns (the resilience
// interceptors it wires around instance dispatch) but is depended on by
// neither, keeping the layering spec.md §2 describes.
package cluster

// InstanceID uniquely identifies a MicroserviceInstance within a cluster.
type InstanceID string

// InstanceState is the microservice instance lifecycle state (§4.5).
type InstanceState string

const (
	StateCreated      InstanceState = "CREATED"
	StateStarting     InstanceState = "STARTING"
	StateRunning      InstanceState = "RUNNING"
	StateShuttingDown InstanceState = "SHUTTING_DOWN"
	StateShutdown     InstanceState = "SHUTDOWN"
	StateKilled       InstanceState = "KILLED"
)
