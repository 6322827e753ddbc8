// Package metrics keeps lock-free counters for authentication activity.
// Storage only; export lives in metrics/export and reads Snapshot
// values.
package metrics
