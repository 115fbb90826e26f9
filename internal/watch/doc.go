// Package watch is the run orchestrator: it sequences fetch, asset
// relocation, baseline diffing, importance triage, digest composition,
// delivery and baseline persistence as an explicit state machine, one run
// per trigger.
package watch
