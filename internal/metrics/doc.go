// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Frames received by kind and pongs sent
//   - Messages applied and message/field parse errors
//   - Level upserts and resting levels per side
//   - Best bid/ask and session state
package metrics
