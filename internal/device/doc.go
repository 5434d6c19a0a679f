// Package device owns the per-device control surface used by bench
// runs: input injection, property reads, reboot, screenshots and
// failure evidence collection.
//
// Ownership boundary:
// - the reachability gate in front of every control operation
// - input, property, reboot and diagnostics operations
// - device discovery off the bridge
//
// Operations on an unreachable device are skipped silently after one
// recovery attempt; a bench run degrades instead of crashing mid-suite.
package device
