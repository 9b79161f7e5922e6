// Package webhooks runs outbound deliveries: the retry policy, the engine
// that performs and records one attempt, and the lease-based worker that
// drives jobs from the store through the engine.
package webhooks
