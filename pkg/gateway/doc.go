// Package gateway defines the caller-facing surface of MeshGate.
//
// This package holds the abstractions shared between the request router and
// its callers:
//   - Record: one topic sample in caller-facing form, a field-name-to-value
//     mapping
//   - Gateway: the request-handling entry point (read, write, subscribe,
//     unsubscribe, poll, list topics)
//   - Error: the typed failure taxonomy every operation reports through
//   - MetricsSink: the passive observation hook invoked on request completion
//
// The interfaces use Go idioms: context.Context on blocking operations,
// explicit error returns, and slice results for multiple samples.
package gateway
