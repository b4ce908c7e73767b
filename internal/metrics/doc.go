// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Connection state (one-hot gauge per state)
//   - Inbound message counts and bytes by frame kind
//   - Connect attempt results
//   - Listener faults
//   - Journal buffer depth and write results
package metrics
